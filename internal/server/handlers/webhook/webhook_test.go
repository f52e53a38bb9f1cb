package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"oip/fsbot/internal/model"
	"oip/fsbot/internal/queue"
	"oip/fsbot/pkg/ledger"
	"oip/fsbot/pkg/logger"
	"oip/fsbot/pkg/signature"
)

const testSecret = "s3cret"

const userMessageBody = `{
  "schema": "2.0",
  "header": {"event_id": "ev_1", "event_type": "im.message.receive_v1", "app_id": "cli_a1", "token": "vt"},
  "event": {
    "sender": {"sender_id": {"open_id": "ou_user"}, "sender_type": "user"},
    "message": {"message_id": "om_1", "chat_id": "oc_chat", "message_type": "text", "content": "{\"text\":\"hello\"}"}
  }
}`

type failingProducer struct{ calls int }

func (p *failingProducer) Enqueue(context.Context, *model.QueuedMessage) error {
	p.calls++
	return errors.New("lmstfy unavailable")
}

type countingProducer struct {
	calls int
	last  *model.QueuedMessage
}

func (p *countingProducer) Enqueue(_ context.Context, msg *model.QueuedMessage) error {
	p.calls++
	p.last = msg
	return nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(producer queue.Producer, opts Options) *gin.Engine {
	h := NewWebhookHandler(signature.NewValidator(testSecret, time.Minute), producer, logger.NewNopLogger(), opts)
	r := gin.New()
	r.POST("/webhook", h.Receive)
	return r
}

func signedRequest(body, nonce string) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderTimestamp, ts)
	req.Header.Set(signature.HeaderNonce, nonce)
	req.Header.Set(signature.HeaderSignature, signature.Sign(ts, nonce, testSecret, []byte(body)))
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error.Code
}

func TestReceive_URLVerificationEchoesChallenge(t *testing.T) {
	p := &countingProducer{}
	r := newEngine(p, Options{})

	w := serve(r, signedRequest(`{"type":"url_verification","challenge":"abc123"}`, "n1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["challenge"] != "abc123" {
		t.Fatalf("challenge = %q", resp["challenge"])
	}
	if p.calls != 0 {
		t.Fatalf("url verification must not enqueue")
	}
}

func TestReceive_UserMessageIsQueued(t *testing.T) {
	q := queue.NewMemory(time.Minute)
	r := newEngine(q, Options{})

	w := serve(r, signedRequest(userMessageBody, "n1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Data["message_id"] != "om_1" {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}

	batch, _ := q.DequeueBatch(context.Background(), 10)
	if len(batch) != 1 || batch[0].ChatID != "oc_chat" || batch[0].Content != "hello" {
		t.Fatalf("unexpected queued messages: %+v", batch)
	}
}

func TestReceive_AppSenderIsIgnored(t *testing.T) {
	p := &countingProducer{}
	r := newEngine(p, Options{})

	body := strings.Replace(userMessageBody, `"sender_type": "user"`, `"sender_type": "app"`, 1)
	w := serve(r, signedRequest(body, "n1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if p.calls != 0 {
		t.Fatalf("app-sent messages must not be enqueued")
	}
}

func TestReceive_TamperedSignatureIsRejected(t *testing.T) {
	p := &countingProducer{}
	r := newEngine(p, Options{})

	req := signedRequest(userMessageBody, "n1")
	req.Header.Set(signature.HeaderSignature, strings.Repeat("0", 64))
	w := serve(r, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if code := errorCode(t, w); code != "UNAUTHORIZED" {
		t.Fatalf("code = %q", code)
	}
	if strings.Contains(w.Body.String(), testSecret) || strings.Contains(strings.ToLower(w.Body.String()), "signature") {
		t.Fatalf("401 body must not leak details: %s", w.Body.String())
	}
	if p.calls != 0 {
		t.Fatalf("rejected request must not enqueue")
	}
}

func TestReceive_EmptyBody(t *testing.T) {
	r := newEngine(&countingProducer{}, Options{})

	w := serve(r, signedRequest("", "n1"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if code := errorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("code = %q", code)
	}
}

func TestReceive_MalformedJSON(t *testing.T) {
	r := newEngine(&countingProducer{}, Options{})

	w := serve(r, signedRequest("{not json", "n1"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestReceive_OversizedBody(t *testing.T) {
	r := newEngine(&countingProducer{}, Options{MaxBodyBytes: 16})

	w := serve(r, signedRequest(userMessageBody, "n1"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestReceive_EnqueueFailureIsVisible(t *testing.T) {
	p := &failingProducer{}
	r := newEngine(p, Options{})

	w := serve(r, signedRequest(userMessageBody, "n1"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if code := errorCode(t, w); code != "INTERNAL_ERROR" {
		t.Fatalf("code = %q", code)
	}
	if strings.Contains(w.Body.String(), "lmstfy") {
		t.Fatalf("500 body must not leak internals: %s", w.Body.String())
	}
	if p.calls != 1 {
		t.Fatalf("enqueue calls = %d", p.calls)
	}
}

func TestReceive_ReplayedNonceIsRejected(t *testing.T) {
	p := &countingProducer{}
	guard := signature.NewReplayGuard(ledger.NewMemory(time.Minute, 0), time.Minute)
	r := newEngine(p, Options{Replay: guard})

	first := signedRequest(userMessageBody, "n1")
	second := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(userMessageBody))
	second.Header = first.Header.Clone()

	if w := serve(r, first); w.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d", w.Code)
	}
	if w := serve(r, second); w.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d", w.Code)
	}
	if p.calls != 1 {
		t.Fatalf("replay must not enqueue again, calls = %d", p.calls)
	}
}

func TestReceive_EnqueueFailureReleasesNonce(t *testing.T) {
	guard := signature.NewReplayGuard(ledger.NewMemory(time.Minute, 0), time.Minute)
	failing := &failingProducer{}

	first := signedRequest(userMessageBody, "n1")
	retry := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(userMessageBody))
	retry.Header = first.Header.Clone()

	if w := serve(newEngine(failing, Options{Replay: guard}), first); w.Code != http.StatusInternalServerError {
		t.Fatalf("first delivery status = %d", w.Code)
	}

	ok := &countingProducer{}
	if w := serve(newEngine(ok, Options{Replay: guard}), retry); w.Code != http.StatusOK {
		t.Fatalf("platform retry of a rejected delivery must be accepted, status = %d", w.Code)
	}
	if ok.calls != 1 {
		t.Fatalf("retry must enqueue, calls = %d", ok.calls)
	}
}

func TestReceive_VerificationToken(t *testing.T) {
	p := &countingProducer{}

	if w := serve(newEngine(p, Options{VerificationToken: "vt"}), signedRequest(userMessageBody, "n1")); w.Code != http.StatusOK {
		t.Fatalf("matching token status = %d", w.Code)
	}
	if w := serve(newEngine(p, Options{VerificationToken: "other"}), signedRequest(userMessageBody, "n2")); w.Code != http.StatusUnauthorized {
		t.Fatalf("mismatched token status = %d", w.Code)
	}
	if p.calls != 1 {
		t.Fatalf("enqueue calls = %d", p.calls)
	}
}

func TestReceive_UnknownEventAcknowledged(t *testing.T) {
	p := &countingProducer{}
	r := newEngine(p, Options{})

	body := `{"schema":"2.0","header":{"event_id":"ev_9","event_type":"im.chat.updated_v1"},"event":{}}`
	w := serve(r, signedRequest(body, "n1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if p.calls != 0 {
		t.Fatalf("unknown events must not enqueue")
	}
}
