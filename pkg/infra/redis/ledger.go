package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"oip/fsbot/pkg/ledger"
)

const (
	claimPending   = "pending"
	claimCommitted = "committed"
)

// Ledger 基于 SETNX + TTL 的跨进程去重账本
type Ledger struct {
	client redis.Cmdable
	prefix string
}

// NewLedger 创建账本，prefix 用于区分用途（如 fsbot:nonce:、fsbot:msg:）
func NewLedger(client redis.Cmdable, prefix string) *Ledger {
	return &Ledger{client: client, prefix: prefix}
}

// Claim 占用 key（SET NX EX）
func (l *Ledger) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k, err := l.key(key)
	if err != nil {
		return false, err
	}
	ok, err := l.client.SetNX(ctx, k, claimPending, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s failed: %w", k, err)
	}
	return ok, nil
}

// Commit 标记已完成并续期
func (l *Ledger) Commit(ctx context.Context, key string, ttl time.Duration) error {
	k, err := l.key(key)
	if err != nil {
		return err
	}
	if err := l.client.Set(ctx, k, claimCommitted, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", k, err)
	}
	return nil
}

// Release 释放占用
func (l *Ledger) Release(ctx context.Context, key string) error {
	k, err := l.key(key)
	if err != nil {
		return err
	}
	if err := l.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis del %s failed: %w", k, err)
	}
	return nil
}

func (l *Ledger) key(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("ledger: key is required")
	}
	return l.prefix + key, nil
}

var _ ledger.Ledger = (*Ledger)(nil)
