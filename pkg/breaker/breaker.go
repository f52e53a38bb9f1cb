package breaker

import (
	"sync"
	"time"

	"oip/fsbot/pkg/errorutil"
)

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String 状态名
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	Name             string
	FailureThreshold int           // 连续失败次数阈值
	RecoveryTimeout  time.Duration // Open → HalfOpen 冷却时间
	// IsFailure 判断错误是否计入失败，为空时使用 CountsAsFailure
	IsFailure func(err error) bool
}

// CountsAsFailure 默认失败判定
// Validation/Business 属于调用方错误，说明下游可用，不计入失败
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch errorutil.Classify(err).Kind {
	case errorutil.KindValidation, errorutil.KindBusiness:
		return false
	default:
		return true
	}
}

// Snapshot 状态快照
type Snapshot struct {
	State               State
	ConsecutiveFailures int
	LastFailureAtMs     int64
}

// CircuitBreaker 三态熔断器，一个实例保护一个下游调用点
// 状态只在调用完成时变更，Open 状态下的拒绝不计入失败
type CircuitBreaker struct {
	cfg Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	trialInFlight       bool

	// OnStateChange 状态变更回调（可选，在锁外调用）
	OnStateChange func(name string, from, to State)
	// Now 可替换的时钟（测试用）
	Now func() time.Time
}

// New 创建熔断器
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = CountsAsFailure
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Name 调用点名称
func (b *CircuitBreaker) Name() string {
	return b.cfg.Name
}

// Call 通过熔断器执行 fn
// Open 且冷却未结束时直接返回 errorutil.ErrCircuitOpen，不调用 fn
// fn panic 时按失败结算后继续向上抛出
func (b *CircuitBreaker) Call(fn func() error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			b.complete(trial, false)
		}
	}()

	callErr := fn()
	done = true
	b.complete(trial, !b.cfg.IsFailure(callErr))
	return callErr
}

// State 当前对外可见状态（Open 且冷却已过时报告为 HalfOpen）
func (b *CircuitBreaker) State() State {
	return b.Snapshot().State
}

// Snapshot 返回当前状态快照
func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.state
	if state == StateOpen && b.cooledDownLocked() {
		state = StateHalfOpen
	}
	var lastMs int64
	if !b.lastFailureAt.IsZero() {
		lastMs = b.lastFailureAt.UnixMilli()
	}
	return Snapshot{
		State:               state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureAtMs:     lastMs,
	}
}

// admit 判断是否放行，返回本次是否为半开试探调用
func (b *CircuitBreaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return false, nil
	}
	// 内部只保存 Closed/Open，半开由 Open + 冷却结束 + 试探名额表示
	if !b.cooledDownLocked() || b.trialInFlight {
		return false, errorutil.ErrCircuitOpen
	}
	b.trialInFlight = true
	return true, nil
}

func (b *CircuitBreaker) complete(trial bool, success bool) {
	b.mu.Lock()
	from := b.state
	if trial {
		b.trialInFlight = false
	}

	if success {
		b.consecutiveFailures = 0
		if trial {
			b.state = StateClosed
		}
	} else {
		b.consecutiveFailures++
		b.lastFailureAt = b.now()
		if trial {
			b.state = StateOpen
		} else if b.state == StateClosed && b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	}
	to := b.state
	hook := b.OnStateChange
	b.mu.Unlock()

	if hook != nil && from != to {
		hook(b.cfg.Name, from, to)
	}
}

func (b *CircuitBreaker) cooledDownLocked() bool {
	return b.now().Sub(b.lastFailureAt) >= b.cfg.RecoveryTimeout
}

func (b *CircuitBreaker) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
