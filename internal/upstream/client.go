// Package upstream forwards requests to the league CRUD API. It is the
// downstream handler behind the response cache and the write path of the proxy.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leaguestats/statscache/pkg/middleware"
	"github.com/rs/zerolog"
)

// HeaderRequestID carries the request ID to the league API and back to the caller.
const HeaderRequestID = "X-Request-ID"

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Config holds the forwarding client configuration.
type Config struct {
	// BaseURL of the league API (e.g., "http://api:3000")
	BaseURL string

	// Timeout bounds a single forwarded request
	Timeout time.Duration

	// UserAgent is sent when the caller did not send one
	UserAgent string
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		Timeout:   10 * time.Second,
		UserAgent: "statscache-proxy",
	}
}

// Client forwards requests to the league API. Requests are never retried.
type Client struct {
	httpClient *http.Client
	base       *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a forwarding client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("upstream url must be an absolute http(s) URL (got %q)", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		base:       base,
		config:     cfg,
		logger:     logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Forward implements middleware.HandlerFunc.
func (c *Client) Forward(ctx context.Context, req *middleware.Request) (*middleware.Response, error) {
	return c.Do(ctx, req.Method, req.Path, req.Query, req.Header, nil)
}

// Do sends one request to the league API and buffers the response.
// Any HTTP status is a response; only transport failures return an *UpstreamError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, header http.Header, body []byte) (*middleware.Response, error) {
	route := RouteLabel(path)
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}()

	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = query.Encode()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	copyRequestHeader(req.Header, header)
	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(HeaderRequestID, requestID)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	logger := c.logger.With().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Logger()
	logger.Debug().Msg("Forwarding request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := classifyError(ctx, nil, err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(route, string(class)).Inc()
		if class == ErrorClassCanceled {
			logger.Debug().Err(err).Msg("Request canceled")
		} else {
			logger.Error().Err(err).Str("error_class", string(class)).Msg("Upstream request failed")
		}
		return nil, &UpstreamError{Method: method, Path: path, ErrorClass: class, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		class := classifyError(ctx, nil, err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(route, string(class)).Inc()
		return nil, &UpstreamError{Method: method, Path: path, ErrorClass: class, Err: fmt.Errorf("read body: %w", err)}
	}

	requestsTotal.WithLabelValues(route, strconv.Itoa(resp.StatusCode)).Inc()
	if class := classifyError(ctx, resp, nil); class != "" {
		errorsTotal.WithLabelValues(string(class)).Inc()
		logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream returned error status")
	}

	h := resp.Header.Clone()
	removeHopHeaders(h)
	h.Del("Content-Length")
	h.Set(HeaderRequestID, requestID)

	logger.Debug().
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Upstream responded")

	return &middleware.Response{
		Status: resp.StatusCode,
		Body:   data,
		Header: h,
	}, nil
}

// RouteLabel reduces a path to its first segment to bound metric cardinality.
func RouteLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "/"
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

func copyRequestHeader(dst, src http.Header) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
	removeHopHeaders(dst)
	dst.Del("Host")
	dst.Del("Content-Length")
	// Validators are answered by the cache layer; the transport negotiates compression itself.
	dst.Del("If-None-Match")
	dst.Del("If-Modified-Since")
	dst.Del("Accept-Encoding")
}

func removeHopHeaders(h http.Header) {
	for _, name := range strings.Split(h.Get("Connection"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			h.Del(name)
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
