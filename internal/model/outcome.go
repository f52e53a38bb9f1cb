package model

import "oip/fsbot/pkg/errorutil"

// OutcomeStatus 单条消息处理终态
type OutcomeStatus string

const (
	OutcomeSent       OutcomeStatus = "SENT"
	OutcomeDuplicate  OutcomeStatus = "DUPLICATE"
	OutcomeDeadLetter OutcomeStatus = "DEAD_LETTER"
	OutcomeRequeued   OutcomeStatus = "REQUEUED"
)

// Result 单条消息处理结果
type Result struct {
	MessageID string                 `json:"message_id"`
	ChatID    string                 `json:"chat_id"`
	Success   bool                   `json:"success"`
	Status    OutcomeStatus          `json:"status"`
	Attempts  int                    `json:"attempts"`
	Error     *errorutil.ErrorRecord `json:"error,omitempty"`
}
