package routers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"oip/fsbot/internal/queue"
	"oip/fsbot/internal/server/handlers/outcome"
	"oip/fsbot/internal/server/handlers/webhook"
	"oip/fsbot/internal/server/middlewares"
	"oip/fsbot/pkg/infra/mysql"
	"oip/fsbot/pkg/logger"
	"oip/fsbot/pkg/signature"
)

type stubLister struct{}

func (stubLister) ListByMessageID(_ context.Context, id string) ([]*mysql.MessageOutcome, error) {
	return []*mysql.MessageOutcome{{MessageID: id, Status: "SENT", Attempts: 0}}, nil
}

func newTestEngineWith(oh *outcome.OutcomeHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.NewNopLogger()
	h := webhook.NewWebhookHandler(signature.NewValidator("secret", time.Minute), queue.NewMemory(time.Minute), log, webhook.Options{})
	return SetupRoutes("fsbot", h, oh, log)
}

func newTestEngine() *gin.Engine { return newTestEngineWith(nil) }

func TestHealth(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["service"] != "fsbot" {
		t.Fatalf("unexpected body: %v", resp)
	}
}

func TestTraceHeader(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middlewares.HeaderRequestID, "req-42")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(middlewares.HeaderRequestID); got != "req-42" {
		t.Fatalf("request id must be propagated, got %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Header().Get(middlewares.HeaderRequestID) == "" {
		t.Fatalf("request id must be generated")
	}
}

func TestWebhookRouteRejectsUnsigned(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"type":"url_verification"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestOutcomeRouteOptional(t *testing.T) {
	w := httptest.NewRecorder()
	newTestEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/messages/om_1/outcomes", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("route must be absent without a store, status = %d", w.Code)
	}

	r := newTestEngineWith(outcome.NewOutcomeHandler(stubLister{}, logger.NewNopLogger()))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/messages/om_1/outcomes", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"SENT"`) {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
