package model

import (
	"encoding/json"
	"fmt"

	"oip/fsbot/pkg/errorutil"
)

// ActionTypeMessageReply 队列消息动作类型（路由键）
const ActionTypeMessageReply = "message_reply"

// Job 标准 Job 结构（队列上的线格式）
type Job struct {
	Payload *JobPayload `json:"payload"`
}

// JobPayload Job 负载
type JobPayload struct {
	Data *JobPayloadData `json:"data"`
}

// JobPayloadData Job 数据
type JobPayloadData struct {
	// 元信息
	RequestID  string `json:"request_id"`  // 请求 ID（TraceID）
	AppID      string `json:"app_id"`      // 应用 ID
	ActionType string `json:"action_type"` // 动作类型（路由键）
	ID         string `json:"id"`          // 业务 ID（message_id）

	// 业务数据
	Data *QueuedMessage `json:"data"`

	// 死信附带的错误信息
	Error *errorutil.ErrorRecord `json:"error,omitempty"`
}

// NewJob 包装入队消息
func NewJob(requestID string, msg *QueuedMessage) *Job {
	return &Job{Payload: &JobPayload{Data: &JobPayloadData{
		RequestID:  requestID,
		AppID:      msg.AppID,
		ActionType: ActionTypeMessageReply,
		ID:         msg.MessageID,
		Data:       msg,
	}}}
}

// EncodeJob 序列化 Job
func EncodeJob(job *Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job failed: %w", err)
	}
	return data, nil
}

// DecodeJob 反序列化并校验 Job
func DecodeJob(raw []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	if job.Payload == nil || job.Payload.Data == nil || job.Payload.Data.Data == nil {
		return nil, fmt.Errorf("invalid job structure: payload.data is nil")
	}
	return &job, nil
}
