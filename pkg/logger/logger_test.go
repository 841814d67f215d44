package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddleware_PropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "production")

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/x", func(c *gin.Context) {
		FromGin(c).Info("inside")
		From(c.Request.Context()).Info("from context")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(headerRequestID); got != "rid-1" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %s", len(lines), buf.String())
	}
	for _, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad json line %q: %v", line, err)
		}
		if rec["request_id"] != "rid-1" || rec["service"] != serviceName {
			t.Fatalf("missing attributes in %v", rec)
		}
	}
}

func TestNew_DebugOnlyInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "production").Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug suppressed in production")
	}
	NewWithWriter(&buf, "local").Debug("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected debug output in local")
	}
}
