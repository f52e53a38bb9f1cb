package media

import (
	"context"

	"oip/fsbot/internal/domains/common"
	"oip/fsbot/internal/model"
	"oip/fsbot/internal/responder"
)

var replies = map[model.MessageType]string{
	model.MessageTypeImage: "收到图片，暂时只能处理文字消息哦。",
	model.MessageTypeFile:  "收到文件，暂时只能处理文字消息哦。",
	model.MessageTypeOther: "暂不支持这种消息类型，请发送文字。",
}

// Handler 非文本消息 Handler（固定回复）
type Handler struct {
	msg *model.QueuedMessage
}

// NewHandler 创建非文本 Handler
func NewHandler(msg *model.QueuedMessage, _ responder.Responder) (common.HandlerServ, error) {
	return &Handler{msg: msg}, nil
}

// BuildAction 按消息类型返回提示
func (h *Handler) BuildAction(_ context.Context) (*common.Action, error) {
	text, ok := replies[h.msg.MessageType]
	if !ok {
		text = replies[model.MessageTypeOther]
	}
	return &common.Action{ChatID: h.msg.ChatID, Text: text, Intent: responder.IntentEcho}, nil
}
