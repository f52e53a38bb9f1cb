package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"oip/fsbot/pkg/errorutil"
)

const (
	tenantTokenPath = "/open-apis/auth/v3/tenant_access_token/internal"
	tokenSkew       = 60 * time.Second
)

// TokenSource 租户访问凭证来源
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate 丢弃缓存（仅当缓存值仍为 token 时）
	Invalidate(token string)
}

type tenantTokenResp struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int64  `json:"expire"` // 秒
}

// TenantTokenCache tenant_access_token 缓存，过期前 60s 刷新（有效期不足 120s 时提前一半）
// 并发刷新合并为一次请求
type TenantTokenCache struct {
	http      *resty.Client
	appID     string
	appSecret string

	mu        sync.Mutex
	token     string
	refreshAt time.Time
	group     singleflight.Group

	// Now 可替换的时钟（测试用）
	Now func() time.Time
}

// NewTenantTokenCache 创建凭证缓存
func NewTenantTokenCache(baseURL, appID, appSecret string, timeout time.Duration) *TenantTokenCache {
	return &TenantTokenCache{
		http:      resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		appID:     appID,
		appSecret: appSecret,
	}
}

// Token 返回有效凭证，必要时刷新
func (c *TenantTokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	ch := c.group.DoChan("tenant_access_token", func() (interface{}, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		// 刷新不跟随单个调用方取消
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate 丢弃缓存凭证
func (c *TenantTokenCache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" || c.token == token {
		c.token = ""
		c.refreshAt = time.Time{}
	}
}

func (c *TenantTokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.refreshAt) {
		return c.token, true
	}
	return "", false
}

func (c *TenantTokenCache) refresh(ctx context.Context) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(map[string]string{"app_id": c.appID, "app_secret": c.appSecret}).
		Post(tenantTokenPath)
	if err != nil {
		return "", fmt.Errorf("fetch tenant access token: %w", err)
	}
	if resp.IsError() {
		return "", &errorutil.APIError{StatusCode: resp.StatusCode(), Message: "tenant access token: " + resp.Status()}
	}

	var body tenantTokenResp
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", errorutil.NewAPI("tenant access token: malformed response").WithCause(err)
	}
	if body.Code != 0 || body.TenantAccessToken == "" {
		return "", &errorutil.APIError{StatusCode: resp.StatusCode(), Code: body.Code, Message: body.Msg}
	}

	ttl := time.Duration(body.Expire) * time.Second
	skew := tokenSkew
	if skew > ttl/2 {
		skew = ttl / 2
	}
	c.mu.Lock()
	c.token = body.TenantAccessToken
	c.refreshAt = c.now().Add(ttl - skew)
	c.mu.Unlock()
	return body.TenantAccessToken, nil
}

func (c *TenantTokenCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

var _ TokenSource = (*TenantTokenCache)(nil)
