package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestHandler_CachesGet(t *testing.T) {
	m, _, _ := newTestMiddleware(t)

	var calls atomic.Int32
	var sawIfNoneMatch atomic.Bool
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") != "" {
			sawIfNoneMatch.Store(true)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"matches":[{"id":"m1"}]}`))
	})
	srv := httptest.NewServer(m.Handler(upstream))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/matches?leagueId=X")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || string(body) != `{"matches":[{"id":"m1"}]}` {
		t.Fatalf("first response = %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Cache") != XCacheMiss {
		t.Errorf("X-Cache = %q, want MISS", resp.Header.Get("X-Cache"))
	}
	etag := resp.Header.Get("ETag")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/matches?leagueId=X", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("status = %d, want 304", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
	if sawIfNoneMatch.Load() {
		t.Error("If-None-Match must not be forwarded upstream")
	}
}

func TestHandler_Head(t *testing.T) {
	m, _, _ := newTestMiddleware(t)

	var method atomic.Value
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		w.Write([]byte(`{"leagues":[]}`))
	})

	rec := httptest.NewRecorder()
	m.Handler(upstream).ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/leagues", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD body = %q, want empty", rec.Body.String())
	}
	if rec.Header().Get("Content-Length") != "14" {
		t.Errorf("Content-Length = %q, want 14", rec.Header().Get("Content-Length"))
	}
	if method.Load() != http.MethodGet {
		t.Errorf("upstream method = %v, want GET", method.Load())
	}
}

func TestHandler_WritePassThrough(t *testing.T) {
	m, store, _ := newTestMiddleware(t)

	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.Copy(w, r.Body)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/matches", strings.NewReader(`{"id":"m2"}`))
	m.Handler(upstream).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated || rec.Body.String() != `{"id":"m2"}` {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Cache") != "" || store.Len() != 0 {
		t.Error("POST must bypass the cache entirely")
	}
}

func TestHandler_IdentityFromAuthorization(t *testing.T) {
	m, store, _ := newTestMiddleware(t)

	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	h := m.Handler(upstream)

	for _, token := range []string{"Bearer a", "Bearer b", "Bearer a"} {
		req := httptest.NewRequest(http.MethodGet, "/votes", nil)
		req.Header.Set("Authorization", token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if !strings.HasPrefix(rec.Header().Get("Cache-Control"), "private") {
			t.Errorf("Cache-Control = %q, want private", rec.Header().Get("Cache-Control"))
		}
	}

	if store.Len() != 2 {
		t.Errorf("entries = %d, want 2", store.Len())
	}
	for _, key := range store.Keys() {
		if strings.Contains(key, "Bearer") {
			t.Errorf("credential leaked into cache key %q", key)
		}
	}
}

func TestHandler_NoCacheHeader(t *testing.T) {
	m, store, _ := newTestMiddleware(t)

	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/players", nil)
	req.Header.Set("Cache-Control", "no-cache")
	rec := httptest.NewRecorder()
	m.Handler(upstream).ServeHTTP(rec, req)

	if rec.Header().Get("X-Cache") != XCacheBypass {
		t.Errorf("X-Cache = %q, want BYPASS", rec.Header().Get("X-Cache"))
	}
	if store.Len() != 0 {
		t.Error("no-cache request must not be stored")
	}
}

func TestDefaultIdentity(t *testing.T) {
	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := DefaultIdentity(anon); got != "" {
		t.Errorf("DefaultIdentity(anonymous) = %q, want empty", got)
	}

	authed := httptest.NewRequest(http.MethodGet, "/", nil)
	authed.Header.Set("Authorization", "Bearer token")
	got := DefaultIdentity(authed)
	if !strings.HasPrefix(got, "sub:") || len(got) != len("sub:")+16 {
		t.Errorf("DefaultIdentity() = %q, want sub:<16 hex>", got)
	}
	if DefaultIdentity(authed) != got {
		t.Error("DefaultIdentity() should be deterministic")
	}
}
