package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"oip/fsbot/pkg/errorutil"
	"oip/fsbot/pkg/logger"
)

// 开放平台错误码
const (
	codeFrequencyLimit     = 99991400
	codeTokenMissing       = 99991661
	codeTenantTokenInvalid = 99991663
	codeAppTokenInvalid    = 99991664
	codeTokenExpired       = 99991677
	codeInvalidReceiveID   = 230001
	codeBotNotInChat       = 230002
)

// Sender 出站消息发送
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// Config 客户端配置
type Config struct {
	AppID     string
	AppSecret string
	BaseURL   string
	Timeout   time.Duration
}

// Client 基于开放平台 SDK 的消息客户端
// SDK 自带的凭证缓存关闭，由 TokenSource 统一管理
type Client struct {
	lark   *lark.Client
	tokens TokenSource
	logger logger.Logger
}

// NewClient 创建消息客户端
func NewClient(cfg Config, tokens TokenSource, log logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = lark.FeishuBaseUrl
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if tokens == nil {
		tokens = NewTenantTokenCache(cfg.BaseURL, cfg.AppID, cfg.AppSecret, cfg.Timeout)
	}
	return &Client{
		lark: lark.NewClient(cfg.AppID, cfg.AppSecret,
			lark.WithEnableTokenCache(false),
			lark.WithOpenBaseUrl(cfg.BaseURL),
			lark.WithReqTimeout(cfg.Timeout),
			lark.WithLogLevel(larkcore.LogLevelError),
		),
		tokens: tokens,
		logger: log,
	}
}

// SendText 向会话发送文本消息
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return errorutil.NewValidation("chat_id is required")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return errorutil.NewValidation("encode text content").WithCause(err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(content)).
			Build()).
		Build()

	resp, err := c.lark.Im.Message.Create(ctx, req, larkcore.WithTenantAccessToken(token))
	if err != nil {
		return fmt.Errorf("feishu send message: %w", err)
	}
	if resp.Success() {
		c.logger.Debugf(ctx, "[FeishuClient] Sent message to chat %s", chatID)
		return nil
	}

	status := 0
	if resp.ApiResp != nil {
		status = resp.StatusCode
	}
	return c.apiError(ctx, token, status, resp.Code, resp.Msg)
}

func (c *Client) apiError(ctx context.Context, token string, status, code int, msg string) error {
	apiErr := &errorutil.APIError{StatusCode: status, Code: code, Message: msg}
	details := map[string]interface{}{"status_code": status, "code": code}

	switch code {
	case codeFrequencyLimit:
		return errorutil.NewRateLimit(apiErr.Error()).WithDetails(details).WithCause(apiErr)
	case codeTokenMissing, codeTenantTokenInvalid, codeAppTokenInvalid, codeTokenExpired:
		c.tokens.Invalidate(token)
		c.logger.Warnf(ctx, "[FeishuClient] Tenant token rejected (code=%d), cache dropped", code)
		return errorutil.NewAPI(apiErr.Error()).WithDetails(details).WithCause(apiErr)
	case codeInvalidReceiveID, codeBotNotInChat:
		return errorutil.NewValidation(apiErr.Error()).WithDetails(details).WithCause(apiErr)
	}
	return apiErr
}

var _ Sender = (*Client)(nil)
