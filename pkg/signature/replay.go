package signature

import (
	"context"
	"net/http"
	"strings"
	"time"

	"oip/fsbot/pkg/ledger"
)

// ReplayGuard 基于 nonce 的重放拦截
// 在签名校验通过后调用；同一 (timestamp, nonce) 在窗口内只接受一次
type ReplayGuard struct {
	ledger ledger.Ledger
	ttl    time.Duration
}

// NewReplayGuard 创建重放拦截器，ttl 应覆盖时间戳有效窗口的两倍
func NewReplayGuard(l ledger.Ledger, maxAge time.Duration) *ReplayGuard {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &ReplayGuard{ledger: l, ttl: 2 * maxAge}
}

// Accept 首次出现返回 true；账本异常时返回 error，由调用方决定是否放行
func (g *ReplayGuard) Accept(ctx context.Context, headers http.Header) (bool, error) {
	return g.ledger.Claim(ctx, nonceKey(headers), g.ttl)
}

// Release 撤销已接受的 nonce，请求未被受理（5xx）时调用，允许平台原样重试
func (g *ReplayGuard) Release(ctx context.Context, headers http.Header) error {
	return g.ledger.Release(ctx, nonceKey(headers))
}

func nonceKey(headers http.Header) string {
	return "nonce:" + strings.TrimSpace(headers.Get(HeaderTimestamp)) + ":" + strings.TrimSpace(headers.Get(HeaderNonce))
}
