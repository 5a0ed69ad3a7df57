package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/leaguestats/statscache/pkg/cache"
)

// IdentityFunc derives the cache identity of an HTTP request. Empty means anonymous.
type IdentityFunc func(r *http.Request) string

// DefaultIdentity keys per-caller views by a hash of the Authorization header,
// so credentials never appear in cache keys.
func DefaultIdentity(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	return fmt.Sprintf("sub:%016x", xxhash.Sum64String(auth))
}

// NewRequest builds a descriptor from an HTTP request.
func (m *Middleware) NewRequest(r *http.Request) *Request {
	return &Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.Query(),
		Identity:    m.identity(r),
		IfNoneMatch: r.Header.Get("If-None-Match"),
		NoCache:     cache.WantsBypass(r.Header.Get("Cache-Control"), r.Header.Get("Pragma")),
		Header:      r.Header,
	}
}

// WriteResponse writes resp to w. Bodies are omitted for HEAD requests and 304s.
func WriteResponse(w http.ResponseWriter, method string, resp *Response) {
	h := w.Header()
	for k, v := range resp.Header {
		h[k] = append([]string(nil), v...)
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	if status == http.StatusNotModified {
		h.Del("Content-Type")
		h.Del("Content-Length")
		w.WriteHeader(status)
		return
	}

	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(status)
	if method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

// Handler wraps next with the cache. GET and HEAD go through Serve; other
// methods are handed to next directly.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		resp, err := m.Serve(r.Context(), m.NewRequest(r), func(ctx context.Context, req *Request) (*Response, error) {
			return record(ctx, next, r, req), nil
		})
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			m.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Cached read failed")
			writeJSONError(w, http.StatusBadGateway, "upstream request failed")
			return
		}

		WriteResponse(w, r.Method, resp)
	})
}

// record runs next for the downstream descriptor and buffers what it writes.
func record(ctx context.Context, next http.Handler, orig *http.Request, req *Request) *Response {
	r := orig.Clone(ctx)
	r.Method = req.Method
	u := *orig.URL
	u.RawQuery = req.Query.Encode()
	r.URL = &u
	r.RequestURI = u.RequestURI()

	// Conditional validators belong to this layer, not the downstream one.
	r.Header.Del("If-None-Match")
	r.Header.Del("If-Modified-Since")

	rec := &recorder{header: make(http.Header)}
	next.ServeHTTP(rec, r)
	return rec.response()
}

type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) response() *Response {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{
		Status: status,
		Body:   r.body.Bytes(),
		Header: r.header,
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	})
}
