package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestGemini(t *testing.T, keys []string, apiBase string) *Gemini {
	t.Helper()
	ring, err := NewKeyRing(keys, 60)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGemini(GeminiConfig{Ring: ring, APIBase: apiBase})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestHealthy_RejectsInvalidKey(t *testing.T) {
	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("x-goog-api-key"))
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := newTestGemini(t, []string{"not-a-real-key"}, srv.URL)

	err := g.Healthy(context.Background())
	if err == nil {
		t.Fatal("Healthy must fail when the API rejects the key")
	}
	if !strings.Contains(err.Error(), "invalid API key") {
		t.Fatalf("error = %v, want invalid-key classification", err)
	}
	if gotKey.Load() != "not-a-real-key" {
		t.Fatalf("probe sent key %v, want the ring's current key", gotKey.Load())
	}
}

func TestHealthy_PassesWhenAPIResponds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("probe path = %q, want /models", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGemini(t, []string{"key-a"}, srv.URL)

	if err := g.Healthy(context.Background()); err != nil {
		t.Fatalf("Healthy = %v, want nil", err)
	}
}

func TestHealthy_ReportsUnreachableAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	g := newTestGemini(t, []string{"key-a"}, srv.URL)

	err := g.Healthy(context.Background())
	if err == nil {
		t.Fatal("Healthy must fail when the API is unreachable")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("error = %v, want reachability classification", err)
	}
}

func TestHealthy_EmptyKeySkipsProbe(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	g := newTestGemini(t, []string{"  "}, srv.URL)

	if err := g.Healthy(context.Background()); err == nil {
		t.Fatal("Healthy must fail for a blank key")
	}
	if hits.Load() != 0 {
		t.Fatal("a blank key must not reach the network")
	}
}

func TestHealthy_ProbesKeyAfterAdvance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") == "key-b" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := newTestGemini(t, []string{"key-a", "key-b"}, srv.URL)

	if err := g.Healthy(context.Background()); err == nil {
		t.Fatal("key-a should be rejected")
	}
	g.ring.Advance()
	if err := g.Healthy(context.Background()); err != nil {
		t.Fatalf("key-b should pass, got %v", err)
	}
}
