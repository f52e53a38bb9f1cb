package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventType 回调事件类型
type EventType string

const (
	EventTypeURLVerification EventType = "url_verification"
	EventTypeMessageReceive  EventType = "im.message.receive_v1"
	EventTypeUnknown         EventType = "unknown"
)

// SenderType 消息发送方类型
type SenderType string

const (
	SenderTypeUser SenderType = "user"
	SenderTypeApp  SenderType = "app"
)

// InboundEnvelope 单次回调请求解析结果（只读，路由后丢弃）
type InboundEnvelope struct {
	EventType  EventType
	EventID    string
	AppID      string
	Challenge  string
	Token      string
	SenderType SenderType
	Raw        []byte

	message *messageEvent
}

type rawEnvelope struct {
	Schema    string          `json:"schema"`
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	Token     string          `json:"token"`
	Header    *rawHeader      `json:"header"`
	Event     json.RawMessage `json:"event"`
}

type rawHeader struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Token      string `json:"token"`
	AppID      string `json:"app_id"`
	TenantKey  string `json:"tenant_key"`
}

type messageEvent struct {
	Sender struct {
		SenderID struct {
			OpenID  string `json:"open_id"`
			UserID  string `json:"user_id"`
			UnionID string `json:"union_id"`
		} `json:"sender_id"`
		SenderType string `json:"sender_type"`
	} `json:"sender"`
	Message struct {
		MessageID   string    `json:"message_id"`
		CreateTime  string    `json:"create_time"`
		ChatID      string    `json:"chat_id"`
		ChatType    string    `json:"chat_type"`
		MessageType string    `json:"message_type"`
		Content     string    `json:"content"`
		Mentions    []mention `json:"mentions"`
	} `json:"message"`
}

type mention struct {
	Key string `json:"key"`
	ID  struct {
		OpenID string `json:"open_id"`
		UserID string `json:"user_id"`
	} `json:"id"`
	Name string `json:"name"`
}

// ParseEnvelope 解析回调 JSON
func ParseEnvelope(body []byte) (*InboundEnvelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal envelope failed: %w", err)
	}

	env := &InboundEnvelope{
		EventType: EventTypeUnknown,
		Challenge: raw.Challenge,
		Token:     raw.Token,
		Raw:       body,
	}

	eventType := raw.Type
	if raw.Header != nil {
		eventType = raw.Header.EventType
		env.EventID = raw.Header.EventID
		env.AppID = raw.Header.AppID
		if env.Token == "" {
			env.Token = raw.Header.Token
		}
	}
	// 旧版协议把 url_verification 放在顶层 type
	if raw.Type == string(EventTypeURLVerification) {
		eventType = raw.Type
	}

	switch EventType(eventType) {
	case EventTypeURLVerification:
		env.EventType = EventTypeURLVerification
	case EventTypeMessageReceive:
		env.EventType = EventTypeMessageReceive
		var ev messageEvent
		if len(raw.Event) > 0 {
			if err := json.Unmarshal(raw.Event, &ev); err != nil {
				return nil, fmt.Errorf("unmarshal message event failed: %w", err)
			}
		}
		env.message = &ev
		env.SenderType = SenderTypeUser
		if strings.EqualFold(ev.Sender.SenderType, string(SenderTypeApp)) {
			env.SenderType = SenderTypeApp
		}
	}

	return env, nil
}

// ToQueuedMessage 将消息事件转换为入队消息
func (e *InboundEnvelope) ToQueuedMessage(now time.Time) (*QueuedMessage, error) {
	if e.EventType != EventTypeMessageReceive || e.message == nil {
		return nil, fmt.Errorf("envelope is not a message event")
	}
	ev := e.message

	msg := &QueuedMessage{
		MessageID:   ev.Message.MessageID,
		UserID:      ev.Sender.SenderID.OpenID,
		ChatID:      ev.Message.ChatID,
		MessageType: ParseMessageType(ev.Message.MessageType),
		TimestampMs: now.UnixMilli(),
		AppID:       e.AppID,
	}
	if msg.UserID == "" {
		msg.UserID = ev.Sender.SenderID.UserID
	}
	if ts, err := strconv.ParseInt(ev.Message.CreateTime, 10, 64); err == nil && ts > 0 {
		msg.TimestampMs = ts
	}
	for _, m := range ev.Message.Mentions {
		id := m.ID.OpenID
		if id == "" {
			id = m.ID.UserID
		}
		msg.AddMention(id)
	}

	msg.Content = ev.Message.Content
	if msg.MessageType == MessageTypeText {
		msg.Content = extractText(ev.Message.Content, ev.Message.Mentions)
	}

	return msg, nil
}

// extractText 解析 {"text":"..."} 并去掉 @_user_N 占位符
func extractText(content string, mentions []mention) string {
	var body struct {
		Text string `json:"text"`
	}
	text := content
	if err := json.Unmarshal([]byte(content), &body); err == nil {
		text = body.Text
	}
	for _, m := range mentions {
		if m.Key != "" {
			text = strings.ReplaceAll(text, m.Key, "")
		}
	}
	return strings.Join(strings.Fields(text), " ")
}
