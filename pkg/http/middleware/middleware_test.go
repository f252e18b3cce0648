package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestKeyLimiterBurst(t *testing.T) {
	l := NewKeyLimiter(1, 2, time.Minute)
	now := time.Now()

	if !l.Allow("a", now) || !l.Allow("a", now) {
		t.Fatalf("burst of 2 should pass")
	}
	if l.Allow("a", now) {
		t.Fatalf("third request in the same instant should be limited")
	}
	if !l.Allow("b", now) {
		t.Fatalf("other keys have their own bucket")
	}
	if !l.Allow("a", now.Add(1100*time.Millisecond)) {
		t.Fatalf("token should refill after a second")
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", l.Len())
	}
}

func TestKeyLimiterNilAllows(t *testing.T) {
	l := NewKeyLimiter(0, 0, 0)
	if l != nil {
		t.Fatalf("invalid args should yield nil limiter")
	}
	if !l.Allow("x", time.Now()) {
		t.Fatalf("nil limiter must allow")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	e := echo.New()
	l := NewKeyLimiter(0.001, 1, time.Minute)
	e.POST("/x", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RateLimit(l, func(c echo.Context) string { return "same" }))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestCORSPreflightEchoesOrigin(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins:     []string{"https://calc.example"},
		AllowMethods:     []string{http.MethodGet},
		AllowCredentials: true,
	}))
	e.GET("/api/quote", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/quote", nil)
	req.Header.Set(echo.HeaderOrigin, "https://calc.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://calc.example" {
		t.Fatalf("allow-origin = %q", got)
	}
	if rec.Header().Get(echo.HeaderAccessControlAllowCredentials) != "true" {
		t.Fatalf("credentials header missing")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/quote", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "" {
		t.Fatalf("foreign origin must not be allowed")
	}
}

func TestRouteLabelUsesTemplate(t *testing.T) {
	e := echo.New()
	e.Use(RouteLabel())
	var seen string
	e.GET("/api/routes/:id", func(c echo.Context) error {
		seen = routeLabel(c.Request())
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/routes/42", nil))
	if seen != "/api/routes/:id" {
		t.Fatalf("route label = %q", seen)
	}
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestMetricsWriterHijack(t *testing.T) {
	inner := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	h := Metrics(nil, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Errorf("wrapped writer must implement http.Hijacker")
			return
		}
		_, _, _ = hj.Hijack()
	}))
	h.ServeHTTP(inner, httptest.NewRequest(http.MethodGet, "/ws/session", nil))
	if !inner.hijacked {
		t.Fatalf("hijack not forwarded")
	}
}
