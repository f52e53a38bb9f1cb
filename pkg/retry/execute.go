package retry

import (
	"context"

	"oip/fsbot/pkg/errorutil"
)

// Result 重试执行结果
// Err 非空表示终态失败，是否可重试作为数据保存在 Err.Kind 中
type Result[T any] struct {
	Value    T
	Err      *errorutil.ErrorRecord
	Attempts int
}

// OK 是否成功
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Execute 按策略执行 fn，尝试序号 0..MaxAttempts（含）
// 不可重试错误立即返回，不消耗重试次数
func Execute[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) Result[T] {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{Value: zero, Err: errorutil.Classify(err), Attempts: attempt}
		}

		value, err := fn(ctx)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt + 1}
		}

		rec := errorutil.Classify(err)
		if !p.ShouldRetry(rec, attempt) {
			p.observe(ctx, Attempt{Index: attempt}, rec)
			return Result[T]{Value: zero, Err: rec, Attempts: attempt + 1}
		}

		delay := p.NextDelay(attempt)
		p.observe(ctx, Attempt{Index: attempt, Delay: delay}, rec)
		if !p.sleep(ctx, delay) {
			interrupted := rec.WithDetails(map[string]interface{}{"interrupted": true})
			return Result[T]{Value: zero, Err: interrupted, Attempts: attempt + 1}
		}
	}
}

// Do 无返回值版本
func Do(ctx context.Context, p *Policy, fn func(ctx context.Context) error) Result[struct{}] {
	return Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

func (p *Policy) observe(ctx context.Context, attempt Attempt, rec *errorutil.ErrorRecord) {
	if p.Observe != nil {
		p.Observe(ctx, attempt, rec)
	}
}
