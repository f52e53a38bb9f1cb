package framework

import (
	"time"

	"oip/fsbot/internal/model"
)

// Batch 框架内部流转的批次
type Batch struct {
	ID        string
	Messages  []*model.QueuedMessage
	FetchedAt time.Time
}
