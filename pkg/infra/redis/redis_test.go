package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestLedgerKeyPrefix(t *testing.T) {
	l := NewLedger(nil, "fsbot:msg:")
	k, err := l.key("  om_1 ")
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if k != "fsbot:msg:om_1" {
		t.Fatalf("key = %q", k)
	}
	if _, err := l.key("   "); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestLedgerRejectsEmptyKeyWithoutCallingRedis(t *testing.T) {
	l := NewLedger(nil, "p:")
	if _, err := l.Claim(context.Background(), "", 0); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if err := l.Release(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestOutcomeNotificationEncode(t *testing.T) {
	n := &OutcomeNotification{MessageID: "om_1", ChatID: "oc_1", Status: "SENT", Attempts: 1, Timestamp: 42}
	data, err := n.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["message_id"] != "om_1" || got["status"] != "SENT" {
		t.Fatalf("unexpected payload: %s", data)
	}
	if _, ok := got["error_kind"]; ok {
		t.Fatalf("error_kind must be omitted when empty: %s", data)
	}
}

func TestPublishOutcomeReportsConnectionFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	p := NewPubSub(client, "fsbot:outcome")
	if err := p.PublishOutcome(context.Background(), &OutcomeNotification{MessageID: "om_1"}); err == nil {
		t.Fatalf("expected publish to fail without a server")
	}
}
