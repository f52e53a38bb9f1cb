package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"oip/fsbot/pkg/errorutil"
)

// Policy 指数退避重试策略
type Policy struct {
	MaxAttempts     int           // 最大重试次数（不含首次调用）
	BaseDelay       time.Duration // 初始退避
	MaxDelay        time.Duration // 退避上限（抖动前）
	ExponentialBase float64       // 指数底数
	JitterFraction  float64       // 抖动比例，取值 [0,1]

	// Sleep 可替换的等待函数（测试用），返回 false 表示 ctx 已取消
	Sleep func(ctx context.Context, d time.Duration) bool
	// Observe 每次失败尝试的回调（可选）
	Observe func(ctx context.Context, attempt Attempt, rec *errorutil.ErrorRecord)

	mu  sync.Mutex
	rnd *rand.Rand
}

// Attempt 单次重试迭代
type Attempt struct {
	Index int           // 0 起始
	Delay time.Duration // 本次失败后的等待时长
}

// DefaultPolicy 默认策略
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2,
		JitterFraction:  0.1,
	}
}

// NextDelay 计算第 attempt 次失败后的等待时长
// min(base*exp^attempt, maxDelay) 后叠加 ±jitter，下限为 0
func (p *Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(p.BaseDelay)
	exp := p.ExponentialBase
	if exp < 1 {
		exp = 1
	}
	raw := base * math.Pow(exp, float64(attempt))
	if p.MaxDelay > 0 && raw > float64(p.MaxDelay) {
		raw = float64(p.MaxDelay)
	}

	jitter := p.JitterFraction
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	if jitter > 0 {
		raw += raw * jitter * (2*p.float() - 1)
	}
	if raw < 0 {
		raw = 0
	}
	return time.Duration(raw)
}

// ShouldRetry 判断失败后是否继续重试
func (p *Policy) ShouldRetry(rec *errorutil.ErrorRecord, attempt int) bool {
	if rec == nil {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	return rec.Retryable()
}

func (p *Policy) float() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p.rnd.Float64()
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) bool {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
