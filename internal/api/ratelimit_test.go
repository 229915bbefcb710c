package api

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/amityvox/notifyhub/internal/config"
	"github.com/amityvox/notifyhub/internal/ratelimit"
)

func newTestRateLimitServer(t *testing.T, max int) *Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	limiter, err := ratelimit.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}
	t.Cleanup(func() { limiter.Close() })

	return &Server{
		Config: &config.Config{
			HTTP: config.HTTPConfig{
				RateLimitWindow: "1m",
				RateLimitMax:    max,
			},
		},
		Limiter: limiter,
		Logger:  slog.Default(),
	}
}

func TestRateLimitMiddleware_AllowsWithinLimit(t *testing.T) {
	s := newTestRateLimitServer(t, 3)
	handler := s.rateLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_BlocksOverLimit(t *testing.T) {
	s := newTestRateLimitServer(t, 2)
	handler := s.rateLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		last = w
	}

	if last.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", last.Code, http.StatusTooManyRequests)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header to be set")
	}
}

func TestRateLimitMiddleware_SeparateClientsIndependent(t *testing.T) {
	s := newTestRateLimitServer(t, 1)
	handler := s.rateLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/test", nil)
	req1.RemoteAddr = "10.0.0.3:1111"
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("client 1: status = %d, want %d", w1.Code, http.StatusOK)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/test", nil)
	req2.RemoteAddr = "10.0.0.4:2222"
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("client 2 should be unaffected by client 1's counter, status = %d", w2.Code)
	}
}

func TestRateLimitMiddleware_DisabledWhenMaxZero(t *testing.T) {
	s := newTestRateLimitServer(t, 0)
	handler := s.rateLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.5:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: rate limiting should be disabled when RateLimitMax<=0, got %d", i, w.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	if ip := clientIP(req); ip != "203.0.113.7" {
		t.Errorf("clientIP = %q, want %q", ip, "203.0.113.7")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/test", nil)
	req2.RemoteAddr = "not-a-valid-host-port"
	if ip := clientIP(req2); ip != "not-a-valid-host-port" {
		t.Errorf("clientIP fallback = %q, want %q", ip, "not-a-valid-host-port")
	}
}
