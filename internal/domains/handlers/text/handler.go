package text

import (
	"context"

	"oip/fsbot/internal/domains/common"
	"oip/fsbot/internal/model"
	"oip/fsbot/internal/responder"
	"oip/fsbot/pkg/errorutil"
)

// Handler 文本消息 Handler
type Handler struct {
	msg       *model.QueuedMessage
	responder responder.Responder
}

// NewHandler 创建文本 Handler
func NewHandler(msg *model.QueuedMessage, r responder.Responder) (common.HandlerServ, error) {
	if r == nil {
		return nil, errorutil.NewConfiguration("text handler requires a responder")
	}
	return &Handler{msg: msg, responder: r}, nil
}

// BuildAction 按关键词生成回复
func (h *Handler) BuildAction(_ context.Context) (*common.Action, error) {
	reply := h.responder.Classify(h.msg.Content)
	if reply.Text == "" {
		return nil, errorutil.NewBusiness("responder produced an empty reply").
			WithDetails(map[string]interface{}{"intent": string(reply.Intent)})
	}
	return &common.Action{ChatID: h.msg.ChatID, Text: reply.Text, Intent: reply.Intent}, nil
}
