package errorutil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

// ErrCircuitOpen 熔断器打开时的合成错误
var ErrCircuitOpen = errors.New("circuit breaker open")

var (
	rateLimitHints = []string{"rate limit", "ratelimit", "too many requests", "frequency limit", "throttl"}
	timeoutHints   = []string{"timeout", "timed out", "deadline exceeded"}
	networkHints   = []string{"connection refused", "connection reset", "broken pipe", "no such host", "network", "dial ", "eof"}
)

// Classify 将原始错误归类为 ErrorRecord
// 已经是 ErrorRecord 的错误原样返回，不会被放宽为 System
func Classify(err error) *ErrorRecord {
	if err == nil {
		return nil
	}

	var rec *ErrorRecord
	if errors.As(err, &rec) {
		return rec
	}

	if errors.Is(err, ErrCircuitOpen) {
		return New(KindSystem, SeverityHigh, err.Error()).
			WithDetails(map[string]interface{}{"circuit_open": true}).
			WithCause(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeout(err.Error()).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return New(KindSystem, SeverityLow, err.Error()).WithCause(err)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return classifyAPI(apiErr).WithCause(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeout(err.Error()).WithCause(err)
	}

	if isNetworkShape(err) {
		return NewNetwork(err.Error()).WithCause(err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, rateLimitHints):
		return NewRateLimit(err.Error()).WithCause(err)
	case containsAny(msg, timeoutHints):
		return NewTimeout(err.Error()).WithCause(err)
	case containsAny(msg, networkHints):
		return NewNetwork(err.Error()).WithCause(err)
	}

	return NewSystem(err.Error()).WithCause(err)
}

func classifyAPI(apiErr *APIError) *ErrorRecord {
	details := map[string]interface{}{
		"status_code": apiErr.StatusCode,
		"code":        apiErr.Code,
	}
	if apiErr.StatusCode == http.StatusTooManyRequests || containsAny(strings.ToLower(apiErr.Message), rateLimitHints) {
		return NewRateLimit(apiErr.Error()).WithDetails(details)
	}
	if apiErr.StatusCode == http.StatusGatewayTimeout || apiErr.StatusCode == http.StatusRequestTimeout {
		return NewTimeout(apiErr.Error()).WithDetails(details)
	}
	return NewAPI(apiErr.Error()).WithDetails(details)
}

func isNetworkShape(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
