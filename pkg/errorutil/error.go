package errorutil

import (
	"fmt"
	"time"
)

// Kind 错误分类
type Kind string

const (
	KindNetwork       Kind = "NETWORK_ERROR"
	KindAPI           Kind = "API_ERROR"
	KindValidation    Kind = "VALIDATION_ERROR"
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	KindBusiness      Kind = "BUSINESS_ERROR"
	KindTimeout       Kind = "TIMEOUT_ERROR"
	KindRateLimit     Kind = "RATE_LIMIT_ERROR"
	KindSystem        Kind = "SYSTEM_ERROR"
)

// Severity 错误严重程度
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Retryable 该分类是否允许重试
// Validation/Configuration/Business 快速失败，不消耗重试次数
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimit, KindAPI:
		return true
	default:
		return false
	}
}

// ErrorRecord 已分类的错误（创建后不可变）
type ErrorRecord struct {
	Kind        Kind                   `json:"kind"`
	Severity    Severity               `json:"severity"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	CausedBy    *ErrorRecord           `json:"caused_by,omitempty"`
	TimestampMs int64                  `json:"timestamp_ms"`

	cause error
}

// Error 实现 error 接口
func (e *ErrorRecord) Error() string {
	if e.CausedBy != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.CausedBy.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回原始错误，支持 errors.Is / errors.As
func (e *ErrorRecord) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	if e.CausedBy != nil {
		return e.CausedBy
	}
	return nil
}

// Retryable 是否可重试
func (e *ErrorRecord) Retryable() bool {
	return e.Kind.Retryable()
}

// Detail 读取详情字段
func (e *ErrorRecord) Detail(key string) (interface{}, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// New 创建错误记录
func New(kind Kind, severity Severity, message string) *ErrorRecord {
	return &ErrorRecord{
		Kind:        kind,
		Severity:    severity,
		Message:     message,
		TimestampMs: time.Now().UnixMilli(),
	}
}

// WithDetails 返回附加详情后的副本
func (e *ErrorRecord) WithDetails(details map[string]interface{}) *ErrorRecord {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// WithCause 返回附加原始错误后的副本
func (e *ErrorRecord) WithCause(err error) *ErrorRecord {
	cp := *e
	cp.cause = err
	if rec, ok := err.(*ErrorRecord); ok {
		cp.CausedBy = rec
	}
	return &cp
}

// NewValidation 参数/签名校验失败（不可重试）
func NewValidation(message string) *ErrorRecord {
	return New(KindValidation, SeverityLow, message)
}

// NewConfiguration 配置缺失或非法（不可重试，启动期致命）
func NewConfiguration(message string) *ErrorRecord {
	return New(KindConfiguration, SeverityCritical, message)
}

// NewBusiness 业务规则错误（不可重试）
func NewBusiness(message string) *ErrorRecord {
	return New(KindBusiness, SeverityMedium, message)
}

// NewNetwork 网络错误（可重试）
func NewNetwork(message string) *ErrorRecord {
	return New(KindNetwork, SeverityMedium, message)
}

// NewTimeout 超时错误（可重试）
func NewTimeout(message string) *ErrorRecord {
	return New(KindTimeout, SeverityMedium, message)
}

// NewRateLimit 限流错误（可重试）
func NewRateLimit(message string) *ErrorRecord {
	return New(KindRateLimit, SeverityMedium, message)
}

// NewAPI 下游 API 返回错误（可重试）
func NewAPI(message string) *ErrorRecord {
	return New(KindAPI, SeverityHigh, message)
}

// NewSystem 未知系统错误
func NewSystem(message string) *ErrorRecord {
	return New(KindSystem, SeverityMedium, message)
}

// APIError 下游 HTTP/API 调用失败
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

// Error 实现 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%d msg=%s", e.StatusCode, e.Code, e.Message)
}
