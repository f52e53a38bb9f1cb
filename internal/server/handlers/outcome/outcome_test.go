package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"oip/fsbot/pkg/infra/mysql"
	"oip/fsbot/pkg/logger"
)

type fakeLister struct {
	records map[string][]*mysql.MessageOutcome
	err     error
}

func (f *fakeLister) ListByMessageID(_ context.Context, id string) ([]*mysql.MessageOutcome, error) {
	return f.records[id], f.err
}

func newEngine(l Lister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/messages/:id/outcomes", NewOutcomeHandler(l, logger.NewNopLogger()).List)
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListReturnsHistory(t *testing.T) {
	l := &fakeLister{records: map[string][]*mysql.MessageOutcome{
		"om_1": {
			{MessageID: "om_1", ChatID: "oc_1", Status: "REQUEUED", Attempts: 0, ErrorKind: "SYSTEM_ERROR"},
			{MessageID: "om_1", ChatID: "oc_1", Status: "DEAD_LETTER", Attempts: 4, ErrorKind: "NETWORK_ERROR"},
		},
	}}

	w := get(newEngine(l), "/api/v1/messages/om_1/outcomes")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success bool              `json:"success"`
		Data    []OutcomeResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Data) != 2 || resp.Data[1].Status != "DEAD_LETTER" || resp.Data[1].Attempts != 4 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestListUnknownMessage(t *testing.T) {
	w := get(newEngine(&fakeLister{}), "/api/v1/messages/om_x/outcomes")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListStoreFailureHidesCause(t *testing.T) {
	w := get(newEngine(&fakeLister{err: errors.New("dial tcp 127.0.0.1:3306")}), "/api/v1/messages/om_1/outcomes")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"]["code"] != "INTERNAL_ERROR" || resp["error"]["message"] == "dial tcp 127.0.0.1:3306" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
