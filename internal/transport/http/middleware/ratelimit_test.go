package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"salaryrules/internal/domain/auth"
)

func TestRateLimitUsesClientKeyBeforeIPFallback(t *testing.T) {
	limited := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	clientCtx := WithClient(httptest.NewRequest(http.MethodGet, "/", nil).Context(), auth.ClientContext{
		TenantID: "tenant-1",
		ClientID: "client-1",
	})

	first := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/structures/s1/batch", nil).WithContext(clientCtx)
	first.RemoteAddr = "198.51.100.11:2222"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/structures/s1/batch", nil).WithContext(clientCtx)
	second.RemoteAddr = "198.51.100.12:3333"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by client key, got %d", secondRec.Code)
	}
	if secondRec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/compute", nil)
		req.RemoteAddr = "203.0.113.10:" + []string{"4444", "5555"}[i]
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}
}

func TestBodyFieldKeyPreservesBody(t *testing.T) {
	var seen string
	limited := RateLimit(1, time.Minute, WithKeyFunc(BodyFieldOrIPKey("client_id")))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(`{"client_id":"a"}`); code != http.StatusNoContent {
		t.Fatalf("expected first client to pass, got %d", code)
	}
	if seen != `{"client_id":"a"}` {
		t.Fatalf("expected body to be preserved, got %q", seen)
	}
	if code := send(`{"client_id":"b"}`); code != http.StatusNoContent {
		t.Fatalf("expected second client to pass, got %d", code)
	}
	if code := send(`{"client_id":"A"}`); code != http.StatusTooManyRequests {
		t.Fatalf("expected repeated client to be throttled, got %d", code)
	}
}
