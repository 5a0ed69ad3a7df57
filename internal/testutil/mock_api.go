// Package testutil provides testing utilities for statscache.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request as seen by the mock API.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// MockAPI is a configurable mock of the league CRUD API.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewMockAPI creates and starts a mock league API.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		handler, ok := mock.handlers[r.Method+" "+r.URL.Path]
		if !ok {
			handler, ok = mock.handlers[r.URL.Path]
		}
		mock.mu.Unlock()

		if ok {
			handler(w, r)
			return
		}
		writeJSON(w, http.StatusNotFound, `{"success":false,"error":"not found"}`)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears the recorded requests. Handlers are kept.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// Handle registers a handler for method and path. An empty method matches any method.
func (m *MockAPI) Handle(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if method == "" {
		m.handlers[path] = handler
		return
	}
	m.handlers[method+" "+path] = handler
}

// SetResponse configures a fixed response for method and path.
func (m *MockAPI) SetResponse(method, path string, resp MockResponse) {
	m.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON answers GET path with a 200 JSON body.
func (m *MockAPI) SetJSON(path, body string) {
	m.SetResponse(http.MethodGet, path, NewJSONResponse(body))
}

// Requests returns a copy of the recorded requests, oldest first.
func (m *MockAPI) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// CountFor returns the number of requests for method and path.
func (m *MockAPI) CountFor(method, path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent request, if any.
func (m *MockAPI) LastRequest() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Match is a league match fixture.
type Match struct {
	ID          string    `json:"id"`
	LeagueID    string    `json:"leagueId"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduledAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SetLeague serves the match and admin endpoints the stats window reads:
// /matches/{id}, /leagues/{id}/matches and /leagues/{id}/admins/{userId}.
func (m *MockAPI) SetLeague(leagueID string, matches []Match, admins ...string) {
	for _, match := range matches {
		match.LeagueID = leagueID
		m.SetJSON("/matches/"+match.ID, envelope(match))
	}

	available := make([]Match, 0, len(matches))
	for _, match := range matches {
		match.LeagueID = leagueID
		if match.Status == "uploaded" || match.Status == "published" {
			available = append(available, match)
		}
	}
	m.SetJSON("/leagues/"+leagueID+"/matches", envelope(available))

	for _, userID := range admins {
		m.SetJSON("/leagues/"+leagueID+"/admins/"+userID, envelope(map[string]string{
			"userId":   userID,
			"leagueId": leagueID,
		}))
	}
}

func envelope(data any) string {
	b, err := json.Marshal(map[string]any{"success": true, "data": data})
	if err != nil {
		panic(err)
	}
	return string(b)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewCreatedResponse creates a 201 Created JSON response.
func NewCreatedResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusCreated,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"success":false,"error":"Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
