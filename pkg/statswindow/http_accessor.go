package statswindow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// HTTPAccessorConfig holds the league API accessor configuration.
type HTTPAccessorConfig struct {
	// BaseURL of the league API (e.g., "http://api:3000")
	BaseURL string

	// Timeout per attempt
	Timeout time.Duration

	// RetryMax is the number of retries after the first attempt
	RetryMax int
}

// HTTPAccessor reads match and admin state from the league API.
type HTTPAccessor struct {
	client  *retryablehttp.Client
	baseURL string
}

// NewHTTPAccessor creates an accessor over the league API.
func NewHTTPAccessor(cfg HTTPAccessorConfig, logger zerolog.Logger) *HTTPAccessor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	r := retryablehttp.NewClient()
	r.RetryMax = cfg.RetryMax
	r.RetryWaitMin = 100 * time.Millisecond
	r.RetryWaitMax = 2 * time.Second
	r.HTTPClient.Timeout = cfg.Timeout
	r.Logger = leveledLogger{logger}

	return &HTTPAccessor{
		client:  r,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// GetMatch implements Accessor.
func (a *HTTPAccessor) GetMatch(ctx context.Context, matchID string) (MatchRecord, bool, error) {
	var wm wireMatch
	found, err := a.getJSON(ctx, "/matches/"+url.PathEscape(matchID), nil, &wm)
	if err != nil || !found {
		return MatchRecord{}, false, err
	}
	return wm.record(), true, nil
}

// ListResultsAvailableMatches implements Accessor.
func (a *HTTPAccessor) ListResultsAvailableMatches(ctx context.Context, leagueID string) ([]MatchRecord, error) {
	q := url.Values{"status": {string(StatusUploaded) + "," + string(StatusPublished)}}

	var list wireMatchList
	found, err := a.getJSON(ctx, "/leagues/"+url.PathEscape(leagueID)+"/matches", q, &list)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	out := make([]MatchRecord, 0, len(list))
	for _, wm := range list {
		rec := wm.record()
		if rec.LeagueID == "" {
			rec.LeagueID = leagueID
		}
		// The API may ignore the status filter.
		if rec.Status.ResultsAvailable() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// IsLeagueAdmin implements Accessor. A 404 means the user is not an admin.
func (a *HTTPAccessor) IsLeagueAdmin(ctx context.Context, userID, leagueID string) (bool, error) {
	var body json.RawMessage
	path := "/leagues/" + url.PathEscape(leagueID) + "/admins/" + url.PathEscape(userID)
	return a.getJSON(ctx, path, nil, &body)
}

// getJSON fetches path and decodes the payload into out. It returns false on 404.
func (a *HTTPAccessor) getJSON(ctx context.Context, path string, q url.Values, out any) (bool, error) {
	u := a.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(unwrapEnvelope(data), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// unwrapEnvelope returns the "data" member of {"success":...,"data":...}
// responses, or data itself for bare payloads.
func unwrapEnvelope(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return trimmed
	}
	for _, field := range []string{"data", "match", "matches"} {
		if inner, ok := env[field]; ok {
			return inner
		}
	}
	return trimmed
}

// flexString decodes a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// wireMatch accepts both camelCase and snake_case field names.
type wireMatch struct {
	ID             flexString `json:"id"`
	LeagueID       flexString `json:"leagueId"`
	LeagueIDSnake  flexString `json:"league_id"`
	Status         string     `json:"status"`
	ScheduledAt    *time.Time `json:"scheduledAt"`
	ScheduledSnake *time.Time `json:"scheduled_at"`
	CreatedAt      *time.Time `json:"createdAt"`
	CreatedSnake   *time.Time `json:"created_at"`
}

func (w wireMatch) record() MatchRecord {
	rec := MatchRecord{
		ID:       string(w.ID),
		LeagueID: string(w.LeagueID),
		Status:   Status(strings.ToLower(w.Status)),
	}
	if rec.LeagueID == "" {
		rec.LeagueID = string(w.LeagueIDSnake)
	}
	rec.ScheduledAt = firstTime(w.ScheduledAt, w.ScheduledSnake)
	rec.CreatedAt = firstTime(w.CreatedAt, w.CreatedSnake)
	return rec
}

func firstTime(ts ...*time.Time) time.Time {
	for _, t := range ts {
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}

type wireMatchList []wireMatch

// leveledLogger routes retryablehttp logs to zerolog.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
