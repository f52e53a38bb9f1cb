package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultTTL = 10 * time.Minute
const defaultMaxEntries = 8192

// Ledger 带 TTL 的去重账本
type Ledger interface {
	// Claim 首次占用返回 true；TTL 内重复占用返回 false
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Commit 将已占用的 key 续期为 ttl
	Commit(ctx context.Context, key string, ttl time.Duration) error
	// Release 释放占用，允许再次 Claim
	Release(ctx context.Context, key string) error
}

// Memory 进程内账本实现
// 条目按 LRU 淘汰，值为过期时间，TTL 按条目独立计算
type Memory struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	entries    *lru.Cache[string, time.Time]

	// Now 可替换的时钟（测试用）
	Now func() time.Time
}

// NewMemory 创建进程内账本
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	// size > 0 时 lru.New 不会返回错误
	entries, _ := lru.New[string, time.Time](maxEntries)
	return &Memory{
		defaultTTL: ttl,
		entries:    entries,
	}
}

// Claim 占用 key
func (m *Memory) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("ledger: key is required")
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiresAt, ok := m.entries.Get(key); ok {
		if now.Before(expiresAt) {
			return false, nil
		}
		m.entries.Remove(key)
	}
	m.entries.Add(key, now.Add(ttl))
	return true, nil
}

// Commit 续期 key
func (m *Memory) Commit(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	m.entries.Add(strings.TrimSpace(key), m.now().Add(ttl))
	m.mu.Unlock()
	return nil
}

// Release 释放 key
func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	m.entries.Remove(strings.TrimSpace(key))
	m.mu.Unlock()
	return nil
}

// Len 当前条目数（含已过期未淘汰的条目）
func (m *Memory) Len() int {
	return m.entries.Len()
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

var _ Ledger = (*Memory)(nil)
