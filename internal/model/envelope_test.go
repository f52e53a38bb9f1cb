package model

import (
	"errors"
	"testing"
	"time"

	"oip/fsbot/pkg/errorutil"
)

const messageEventBody = `{
  "schema": "2.0",
  "header": {"event_id": "ev_1", "event_type": "im.message.receive_v1", "app_id": "cli_a1", "token": "vt"},
  "event": {
    "sender": {"sender_id": {"open_id": "ou_user"}, "sender_type": "user"},
    "message": {
      "message_id": "om_1",
      "create_time": "1760000000123",
      "chat_id": "oc_chat",
      "message_type": "text",
      "content": "{\"text\":\"@_user_1 hello  @_user_2 bot\"}",
      "mentions": [
        {"key": "@_user_1", "id": {"open_id": "ou_bot"}, "name": "bot"},
        {"key": "@_user_2", "id": {"open_id": "ou_bot"}, "name": "bot"}
      ]
    }
  }
}`

func TestParseEnvelope_MessageEvent(t *testing.T) {
	env, err := ParseEnvelope([]byte(messageEventBody))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.EventType != EventTypeMessageReceive {
		t.Fatalf("expected message event, got %s", env.EventType)
	}
	if env.SenderType != SenderTypeUser {
		t.Fatalf("expected user sender, got %s", env.SenderType)
	}
	if env.Token != "vt" {
		t.Fatalf("expected header token to be picked up, got %q", env.Token)
	}

	msg, err := env.ToQueuedMessage(time.Unix(0, 0))
	if err != nil {
		t.Fatalf("to queued message: %v", err)
	}
	if msg.MessageID != "om_1" || msg.ChatID != "oc_chat" || msg.UserID != "ou_user" || msg.AppID != "cli_a1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Content != "hello bot" {
		t.Fatalf("expected mention placeholders stripped, got %q", msg.Content)
	}
	if msg.TimestampMs != 1760000000123 {
		t.Fatalf("unexpected timestamp %d", msg.TimestampMs)
	}
	if len(msg.Mentions) != 1 || msg.Mentions[0] != "ou_bot" {
		t.Fatalf("expected deduplicated mentions, got %v", msg.Mentions)
	}
}

func TestParseEnvelope_URLVerification(t *testing.T) {
	for _, body := range []string{
		`{"header":{"event_type":"url_verification"},"challenge":"abc123"}`,
		`{"type":"url_verification","challenge":"abc123","token":"vt"}`,
	} {
		env, err := ParseEnvelope([]byte(body))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if env.EventType != EventTypeURLVerification || env.Challenge != "abc123" {
			t.Fatalf("unexpected envelope %+v", env)
		}
	}
}

func TestParseEnvelope_AppSenderAndUnknown(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"header":{"event_type":"im.message.receive_v1"},"event":{"sender":{"sender_type":"app"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.SenderType != SenderTypeApp {
		t.Fatalf("expected app sender, got %s", env.SenderType)
	}

	env, err = ParseEnvelope([]byte(`{"header":{"event_type":"im.chat.disbanded_v1"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.EventType != EventTypeUnknown {
		t.Fatalf("expected unknown, got %s", env.EventType)
	}
}

func TestParseEnvelope_Malformed(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`{"header":`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestToQueuedMessage_NonTextKeepsRawContent(t *testing.T) {
	body := `{"header":{"event_type":"im.message.receive_v1"},"event":{"sender":{"sender_type":"user","sender_id":{"open_id":"ou"}},"message":{"message_id":"om_2","chat_id":"oc","message_type":"image","content":"{\"image_key\":\"img_1\"}"}}}`
	env, err := ParseEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	now := time.Unix(1_760_000_000, 0)
	msg, err := env.ToQueuedMessage(now)
	if err != nil {
		t.Fatalf("to queued message: %v", err)
	}
	if msg.MessageType != MessageTypeImage || msg.Content != `{"image_key":"img_1"}` {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.TimestampMs != now.UnixMilli() {
		t.Fatalf("expected receive time fallback, got %d", msg.TimestampMs)
	}
}

func TestJob_RoundTripKeepsMessage(t *testing.T) {
	msg := &QueuedMessage{MessageID: "om_3", ChatID: "oc", MessageType: MessageTypeText, Content: "hi"}
	raw, err := EncodeJob(NewJob("req-1", msg))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	job, err := DecodeJob(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Payload.Data.ActionType != ActionTypeMessageReply || job.Payload.Data.Data.Content != "hi" {
		t.Fatalf("unexpected job %+v", job.Payload.Data)
	}
	if _, err := DecodeJob([]byte(`{"payload":{}}`)); err == nil {
		t.Fatalf("expected error for missing data")
	}
}

func TestQueuedMessageValidate(t *testing.T) {
	ok := &QueuedMessage{MessageID: "om_1", ChatID: "oc_1", MessageType: MessageTypeText}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	bad := &QueuedMessage{MessageID: "om_1", MessageType: MessageTypeText}
	err := bad.Validate()
	var rec *errorutil.ErrorRecord
	if !errors.As(err, &rec) || rec.Kind != errorutil.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
