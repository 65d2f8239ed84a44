package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func preflight(h gin.HandlerFunc, origin string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(h)
	r.OPTIONS("/api/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodOptions, "/api/x", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCORSAdminOrigins(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	h := CORS([]string{"https://console.example.com/", " "})
	if got := preflight(h, "https://console.example.com").Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Fatalf("configured origin: got=%q", got)
	}
	if got := preflight(h, "https://evil.example.com").Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: got=%q", got)
	}

	dev := CORS(nil)
	if got := preflight(dev, "http://localhost:5173").Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("dev origin: got=%q", got)
	}
}

func TestPublicCORSAllowsAnySite(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	rec := preflight(PublicCORS(), "https://some-customer.example")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin: got=%q want=*", got)
	}
}
