package signature

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// 签名相关请求头
const (
	HeaderTimestamp = "X-Signature-Timestamp"
	HeaderNonce     = "X-Signature-Nonce"
	HeaderSignature = "X-Signature"
)

// DefaultMaxAge 时间戳允许的最大偏差
const DefaultMaxAge = 300 * time.Second

// Validator 回调签名校验器
// 签名 = hex(sha256(timestamp + nonce + secret + body))
type Validator struct {
	secret string
	maxAge time.Duration

	// Now 可替换的时钟（测试用）
	Now func() time.Time
}

// NewValidator 创建校验器，maxAge <= 0 时使用默认值
func NewValidator(secret string, maxAge time.Duration) *Validator {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Validator{secret: secret, maxAge: maxAge}
}

// MaxAge 时间戳有效窗口
func (v *Validator) MaxAge() time.Duration {
	return v.maxAge
}

// Validate 校验签名与时间戳新鲜度，任一请求头缺失即失败
func (v *Validator) Validate(headers http.Header, body []byte) bool {
	timestamp := strings.TrimSpace(headers.Get(HeaderTimestamp))
	nonce := strings.TrimSpace(headers.Get(HeaderNonce))
	sig := strings.TrimSpace(headers.Get(HeaderSignature))
	if timestamp == "" || nonce == "" || sig == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if !v.fresh(ts) {
		return false
	}

	expected := Sign(timestamp, nonce, v.secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(sig))) == 1
}

func (v *Validator) fresh(ts int64) bool {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	diff := now.Unix() - ts
	if diff < 0 {
		diff = -diff
	}
	return diff <= int64(v.maxAge/time.Second)
}

// Sign 计算签名
func Sign(timestamp, nonce, secret string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(timestamp))
	h.Write([]byte(nonce))
	h.Write([]byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
