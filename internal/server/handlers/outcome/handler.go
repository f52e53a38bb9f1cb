package outcome

import (
	"context"

	"oip/fsbot/pkg/infra/mysql"
	"oip/fsbot/pkg/logger"
)

// Lister 处理结果查询
type Lister interface {
	ListByMessageID(ctx context.Context, messageID string) ([]*mysql.MessageOutcome, error)
}

// OutcomeHandler 处理结果查询处理器
type OutcomeHandler struct {
	lister Lister
	log    logger.Logger
}

// NewOutcomeHandler 创建处理结果查询处理器实例
func NewOutcomeHandler(lister Lister, log logger.Logger) *OutcomeHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &OutcomeHandler{lister: lister, log: log}
}
