package outcome

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"oip/fsbot/internal/server/ginx"
	"oip/fsbot/pkg/infra/mysql"
)

// OutcomeResponse 单次处理结果
type OutcomeResponse struct {
	MessageID    string    `json:"message_id"`
	ChatID       string    `json:"chat_id"`
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func fromRecord(r *mysql.MessageOutcome) OutcomeResponse {
	return OutcomeResponse{
		MessageID:    r.MessageID,
		ChatID:       r.ChatID,
		Status:       r.Status,
		Attempts:     r.Attempts,
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
	}
}

// List 查询消息的处理记录，用于排查死信
// GET /api/v1/messages/:id/outcomes
func (h *OutcomeHandler) List(c *gin.Context) {
	messageID := strings.TrimSpace(c.Param("id"))
	if messageID == "" {
		ginx.BadRequest(c, "message id required")
		return
	}

	records, err := h.lister.ListByMessageID(c.Request.Context(), messageID)
	if err != nil {
		h.log.Errorf(c.Request.Context(), "[Outcome] list failed: message_id=%s err=%v", messageID, err)
		ginx.InternalError(c, "failed to query outcomes")
		return
	}
	if len(records) == 0 {
		ginx.NotFound(c, "no outcome recorded")
		return
	}

	out := make([]OutcomeResponse, 0, len(records))
	for _, r := range records {
		out = append(out, fromRecord(r))
	}
	ginx.Success(c, out)
}
