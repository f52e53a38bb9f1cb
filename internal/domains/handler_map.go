package domains

import (
	"context"
	"fmt"

	"oip/fsbot/internal/domains/common"
	"oip/fsbot/internal/domains/handlers/media"
	"oip/fsbot/internal/domains/handlers/text"
	"oip/fsbot/internal/model"
	"oip/fsbot/internal/responder"
	"oip/fsbot/pkg/errorutil"
)

// HandlerMap 路由表（MessageType → Handler 映射）
var HandlerMap = map[model.MessageType]common.HandlerServProc{
	model.MessageTypeText:  text.NewHandler,
	model.MessageTypeImage: media.NewHandler,
	model.MessageTypeFile:  media.NewHandler,
	model.MessageTypeOther: media.NewHandler,
}

// BuildAction 根据消息类型路由到 Handler 并生成回复动作
// 未注册的类型按 Other 处理，Handler panic 转为 System 错误
func BuildAction(ctx context.Context, msg *model.QueuedMessage, r responder.Responder) (action *common.Action, err error) {
	factory, ok := HandlerMap[msg.MessageType]
	if !ok {
		factory = HandlerMap[model.MessageTypeOther]
	}

	defer func() {
		if p := recover(); p != nil {
			action = nil
			err = errorutil.NewSystem(fmt.Sprintf("handler panic: %v", p)).
				WithDetails(map[string]interface{}{"message_type": string(msg.MessageType)})
		}
	}()

	handler, err := factory(msg, r)
	if err != nil {
		return nil, err
	}
	return handler.BuildAction(ctx)
}
