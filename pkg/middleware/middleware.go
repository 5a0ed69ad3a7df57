// Package middleware serves read requests from the response cache.
//
// A Middleware wraps a downstream handler. GET and HEAD requests are looked
// up in the cache store; hits are answered directly (304 when the client's
// If-None-Match matches), misses are delegated and the 200 body is stored.
// Other methods pass through untouched.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/leaguestats/statscache/pkg/cache"
	"github.com/leaguestats/statscache/pkg/chunk"
	"github.com/rs/zerolog"
)

// ParamNoCache is the query parameter that opts a single request out of the cache.
const ParamNoCache = "nocache"

// X-Cache header values.
const (
	XCacheHit    = "HIT"
	XCacheMiss   = "MISS"
	XCacheBypass = "BYPASS"
)

// ErrNoResponse is returned when the downstream handler returns neither a response nor an error.
var ErrNoResponse = errors.New("middleware: downstream returned no response")

// Request describes an inbound read.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Identity discriminates per-caller views; empty means anonymous
	Identity string

	IfNoneMatch string

	// NoCache skips lookup and store for this request
	NoCache bool

	// Header carries the original request headers to the downstream handler
	Header http.Header
}

// Response is what the middleware or the downstream handler produced.
type Response struct {
	Status int
	Body   []byte
	Header http.Header
}

// HandlerFunc produces a response for a request on cache miss.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Config holds middleware configuration.
type Config struct {
	Rules Rules
	Chunk chunk.Config

	// Identity derives the caller identity for net/http requests (default: DefaultIdentity)
	Identity IdentityFunc
}

// Middleware implements the conditional-response state machine over a cache store.
type Middleware struct {
	store    *cache.Store
	rules    Rules
	chunk    chunk.Config
	identity IdentityFunc
	logger   zerolog.Logger
}

// New creates a middleware over store.
func New(store *cache.Store, cfg Config, logger zerolog.Logger) *Middleware {
	if store == nil {
		panic("middleware: store is required")
	}
	if cfg.Identity == nil {
		cfg.Identity = DefaultIdentity
	}
	return &Middleware{
		store:    store,
		rules:    cfg.Rules,
		chunk:    cfg.Chunk,
		identity: cfg.Identity,
		logger:   logger,
	}
}

// Rules returns the route rules in use.
func (m *Middleware) Rules() Rules {
	return m.rules
}

// Serve answers req from the cache or delegates to next.
func (m *Middleware) Serve(ctx context.Context, req *Request, next HandlerFunc) (*Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return next(ctx, req)
	}

	rule := m.rules.Lookup(req.Path)
	page, chunked := chunk.ParseParams(req.Query, m.chunk)

	query := downstreamQuery(req.Query, chunked)
	down := *req
	down.Method = http.MethodGet
	down.Query = query

	if rule.Disabled || req.NoCache || strings.EqualFold(req.Query.Get(ParamNoCache), "true") {
		return m.bypass(ctx, &down, next, page, chunked)
	}

	identity := ""
	if rule.PerIdentity {
		identity = req.Identity
	}
	key := cache.Key{Path: req.Path, Query: query, Identity: identity}.String()
	private := identity != ""

	// Step 1: Check Cache
	if entry, ok := m.store.Get(key); ok {
		if cache.ETagMatches(req.IfNoneMatch, entry.ETag) {
			m.logger.Debug().Str("key", key).Msg("Cache hit - not modified")
			Responses.WithLabelValues(ResultNotModified).Inc()
			return m.notModified(entry, rule, private, XCacheHit), nil
		}

		m.logger.Debug().Str("key", key).Msg("Cache hit")
		Responses.WithLabelValues(ResultHit).Inc()
		return m.fromEntry(entry, rule, private, XCacheHit, nil, page, chunked), nil
	}

	// Step 2: Delegate on miss
	resp, err := next(ctx, &down)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrNoResponse
	}
	if err := ctx.Err(); err != nil {
		m.logger.Debug().Str("key", key).Msg("Request cancelled - response not cached")
		return nil, err
	}

	if resp.Status != http.StatusOK || len(resp.Body) == 0 {
		Responses.WithLabelValues(ResultUncacheable).Inc()
		return resp, nil
	}

	// Step 3: Store
	entry, err := m.store.Put(key, resp.Body, rule.TTL)
	if err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
		Responses.WithLabelValues(ResultUncacheable).Inc()
		setHeader(resp, "X-Cache", XCacheMiss)
		return resp, nil
	}

	m.logger.Debug().
		Str("key", key).
		Dur("ttl", rule.TTL).
		Msg("Cached response")

	if cache.ETagMatches(req.IfNoneMatch, entry.ETag) {
		Responses.WithLabelValues(ResultNotModified).Inc()
		return m.notModified(entry, rule, private, XCacheMiss), nil
	}

	Responses.WithLabelValues(ResultMiss).Inc()
	return m.fromEntry(entry, rule, private, XCacheMiss, resp.Header, page, chunked), nil
}

func (m *Middleware) bypass(ctx context.Context, down *Request, next HandlerFunc, page chunk.Params, chunked bool) (*Response, error) {
	resp, err := next(ctx, down)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrNoResponse
	}

	Responses.WithLabelValues(ResultBypass).Inc()
	setHeader(resp, "X-Cache", XCacheBypass)

	if chunked && resp.Status == http.StatusOK && len(resp.Body) > 0 {
		resp.Body = m.applyChunk(resp.Body, page)
	}
	return resp, nil
}

func (m *Middleware) notModified(entry *cache.Entry, rule Rule, private bool, xcache string) *Response {
	h := make(http.Header)
	h.Set("ETag", entry.ETag)
	h.Set("Cache-Control", cache.CacheControl(private, entry.RemainingAt(m.store.Now()), rule.MustRevalidate))
	h.Set("X-Cache", xcache)
	return &Response{Status: http.StatusNotModified, Header: h}
}

func (m *Middleware) fromEntry(entry *cache.Entry, rule Rule, private bool, xcache string, base http.Header, page chunk.Params, chunked bool) *Response {
	h := make(http.Header)
	for k, v := range base {
		h[k] = append([]string(nil), v...)
	}
	h.Del("Content-Length")
	h.Set("Content-Type", "application/json")
	h.Set("ETag", entry.ETag)
	h.Set("Cache-Control", cache.CacheControl(private, entry.RemainingAt(m.store.Now()), rule.MustRevalidate))
	h.Set("X-Cache", xcache)

	body := entry.Data
	if chunked {
		body = m.applyChunk(body, page)
	}
	return &Response{Status: http.StatusOK, Body: body, Header: h}
}

// applyChunk returns the page view of body, or body itself when it cannot be chunked.
func (m *Middleware) applyChunk(body []byte, page chunk.Params) []byte {
	out, applied, err := chunk.Apply(body, page)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to chunk response, serving full body")
		ChunkErrors.Inc()
		return body
	}
	if !applied {
		return body
	}
	return out
}

// downstreamQuery drops the parameters the middleware consumes itself.
func downstreamQuery(q url.Values, chunked bool) url.Values {
	out := q
	if chunked {
		out = chunk.StripParams(q)
	}
	if _, ok := out[ParamNoCache]; ok {
		if !chunked {
			out = cloneValues(out)
		}
		delete(out, ParamNoCache)
	}
	return out
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func setHeader(resp *Response, key, value string) {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(key, value)
}
