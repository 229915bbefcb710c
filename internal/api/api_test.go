package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amityvox/notifyhub/internal/api/apiutil"
)

func TestCorsMiddleware(t *testing.T) {
	handler := corsMiddleware([]string{"https://example.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if acao := w.Header().Get("Access-Control-Allow-Origin"); acao != "https://example.com" {
		t.Errorf("ACAO = %q, want %q", acao, "https://example.com")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/test", nil)
	req2.Header.Set("Origin", "https://evil.com")
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)

	if acao := w2.Header().Get("Access-Control-Allow-Origin"); acao != "" {
		t.Errorf("ACAO should be empty for disallowed origin, got %q", acao)
	}

	handler2 := corsMiddleware([]string{"*"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)
	req3 := httptest.NewRequest(http.MethodGet, "/test", nil)
	req3.Header.Set("Origin", "https://anything.com")
	w3 := httptest.NewRecorder()
	handler2.ServeHTTP(w3, req3)

	if acao := w3.Header().Get("Access-Control-Allow-Origin"); acao != "https://anything.com" {
		t.Errorf("wildcard ACAO = %q, want %q", acao, "https://anything.com")
	}
}

func TestCorsMiddleware_Preflight(t *testing.T) {
	handler := corsMiddleware([]string{"*"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestCorsMiddleware_NoOrigin(t *testing.T) {
	called := false
	handler := corsMiddleware([]string{"*"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called when no origin header")
	}
	if acao := w.Header().Get("Access-Control-Allow-Origin"); acao != "" {
		t.Errorf("ACAO should be empty when no origin, got %q", acao)
	}
}

func TestMaxBodySize(t *testing.T) {
	handler := maxBodySize(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		_, err := r.Body.Read(buf)
		if err == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))

	body := strings.NewReader(`{"field":"this is longer than ten bytes"}`)
	req := httptest.NewRequest(http.MethodPost, "/test", body)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"name": "test"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var envelope apiutil.SuccessResponse
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	m, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want map", envelope.Data)
	}
	if m["name"] != "test" {
		t.Errorf("data.name = %v, want %q", m["name"], "test")
	}
}
