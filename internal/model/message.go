package model

import (
	"github.com/go-playground/validator/v10"

	"oip/fsbot/pkg/errorutil"
)

var validate = validator.New()

// MessageType 消息类型
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
	MessageTypeOther MessageType = "other"
)

// ParseMessageType 将平台消息类型映射为内部枚举
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return MessageType(s)
	default:
		return MessageTypeOther
	}
}

// QueuedMessage 入队消息（由 WebhookReceiver 创建，处理成功后才从队列删除）
// 同一 MessageID 可能被重复投递，消费方需按 MessageID 幂等
type QueuedMessage struct {
	MessageID   string      `json:"message_id" validate:"required"`
	UserID      string      `json:"user_id"`
	ChatID      string      `json:"chat_id" validate:"required"`
	MessageType MessageType `json:"message_type" validate:"required"`
	Content     string      `json:"content"`
	TimestampMs int64       `json:"timestamp_ms"`
	AppID       string      `json:"app_id"`
	Mentions    []string    `json:"mentions,omitempty"`
}

// AddMention 追加 mention（保持顺序并去重）
func (m *QueuedMessage) AddMention(id string) {
	if id == "" {
		return
	}
	for _, existing := range m.Mentions {
		if existing == id {
			return
		}
	}
	m.Mentions = append(m.Mentions, id)
}

// Validate 校验必填字段
func (m *QueuedMessage) Validate() error {
	if err := validate.Struct(m); err != nil {
		return errorutil.NewValidation("invalid queued message: " + err.Error()).
			WithDetails(map[string]interface{}{"message_id": m.MessageID}).
			WithCause(err)
	}
	return nil
}
