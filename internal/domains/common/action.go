package common

import (
	"context"

	"oip/fsbot/internal/model"
	"oip/fsbot/internal/responder"
)

// Action 回复动作（发送到会话的文本）
type Action struct {
	ChatID string
	Text   string
	Intent responder.Intent
}

// HandlerServ Handler 接口
type HandlerServ interface {
	BuildAction(ctx context.Context) (*Action, error)
}

// HandlerServProc Handler 构造函数类型
type HandlerServProc func(msg *model.QueuedMessage, r responder.Responder) (HandlerServ, error)
