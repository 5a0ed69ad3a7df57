package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/leaguestats/statscache/pkg/invalidation"
	"github.com/leaguestats/statscache/pkg/middleware"
	"github.com/leaguestats/statscache/pkg/statswindow"
)

// maxBodyBytes bounds request bodies read by the write path.
const maxBodyBytes = 10 << 20

func (s *Server) proxy(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead:
		s.read(c)
	default:
		s.write(c)
	}
}

func (s *Server) read(c *gin.Context) {
	r := c.Request
	resp, err := s.mw.Serve(r.Context(), s.mw.NewRequest(r), s.upstream.Forward)
	if err != nil {
		if r.Context().Err() != nil {
			c.Abort()
			return
		}
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Read failed")
		abortJSON(c, http.StatusBadGateway, "upstream request failed")
		return
	}
	middleware.WriteResponse(c.Writer, r.Method, resp)
}

func (s *Server) write(c *gin.Context) {
	r := c.Request

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortJSON(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		abortJSON(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	if matchIDs, ok, err := statisticsMatchIDs(r.URL.Path, r.URL.Query(), body); ok {
		if err != nil {
			abortJSON(c, http.StatusBadRequest, err.Error())
			return
		}
		if id := statisticItemID(r.URL.Path); id != "" && r.Method != http.MethodPost {
			existing, ok := s.resolveStatisticMatch(c, id)
			if !ok {
				return
			}
			matchIDs = appendDistinct(matchIDs, existing)
		}
		if !s.authorizeStatistics(c, matchIDs) {
			return
		}
	}

	resp, err := s.upstream.Do(r.Context(), r.Method, r.URL.Path, r.URL.Query(), r.Header, body)
	if err != nil {
		if r.Context().Err() != nil {
			c.Abort()
			return
		}
		abortJSON(c, http.StatusBadGateway, "upstream request failed")
		return
	}

	if resp.Status >= 200 && resp.Status < 300 {
		s.invalidateAfterWrite(r.Method, r.URL.Path)
	}
	middleware.WriteResponse(c.Writer, r.Method, resp)
}

// authorizeStatistics writes the rejection and returns false when any match is outside the window.
func (s *Server) authorizeStatistics(c *gin.Context, matchIDs []string) bool {
	if len(matchIDs) == 0 {
		abortJSON(c, http.StatusBadRequest, "matchId is required")
		return false
	}
	userID := c.GetHeader(HeaderUserID)
	if userID == "" {
		abortJSON(c, http.StatusUnauthorized, HeaderUserID+" header is required")
		return false
	}

	for _, matchID := range matchIDs {
		_, err := s.policy.Authorize(c.Request.Context(), matchID, userID)
		if err == nil {
			continue
		}

		var violation *statswindow.ViolationError
		switch {
		case errors.As(err, &violation):
			abortJSON(c, http.StatusForbidden, violation.Message())
		case errors.Is(err, statswindow.ErrMatchNotFound):
			abortJSON(c, http.StatusNotFound, "Match not found")
		default:
			if c.Request.Context().Err() != nil {
				c.Abort()
				return false
			}
			s.logger.Error().Err(err).Str("match_id", matchID).Msg("Stats window check failed")
			abortJSON(c, http.StatusBadGateway, "failed to check statistics window")
		}
		return false
	}
	return true
}

// invalidateAfterWrite drops the proxy's own views of a resource it just changed.
// The change feed delivers the same event later; handling it twice is harmless.
func (s *Server) invalidateAfterWrite(method, path string) {
	if s.bridge == nil {
		return
	}
	ev, ok := eventForWrite(method, path)
	if !ok {
		return
	}
	s.bridge.Handle(ev)
}

// eventForWrite derives the changed resource from a write path. Nested
// collections win: /matches/12/statistics changes a statistic.
func eventForWrite(method, path string) (invalidation.Event, bool) {
	segs := segments(path)
	if len(segs) == 0 {
		return invalidation.Event{}, false
	}

	ev := invalidation.Event{ResourceType: segs[0]}
	if len(segs) > 1 {
		ev.ID = segs[1]
	}
	if len(segs) > 2 {
		ev.ResourceType = segs[2]
		ev.ID = ""
		if len(segs) > 3 {
			ev.ID = segs[3]
		}
	}

	switch method {
	case http.MethodPost:
		ev.Operation = invalidation.OpInsert
	case http.MethodDelete:
		ev.Operation = invalidation.OpDelete
	default:
		ev.Operation = invalidation.OpUpdate
	}
	return ev, true
}

// resolveStatisticMatch looks up the match an existing statistic belongs to.
// It writes the rejection and returns false when the lookup fails.
func (s *Server) resolveStatisticMatch(c *gin.Context, statisticID string) (string, bool) {
	r := c.Request
	resp, err := s.upstream.Do(r.Context(), http.MethodGet, "/statistics/"+url.PathEscape(statisticID), nil, r.Header, nil)
	if err != nil {
		if r.Context().Err() != nil {
			c.Abort()
			return "", false
		}
		s.logger.Error().Err(err).Str("statistic_id", statisticID).Msg("Statistic lookup failed")
		abortJSON(c, http.StatusBadGateway, "failed to check statistics window")
		return "", false
	}

	switch {
	case resp.Status == http.StatusNotFound:
		abortJSON(c, http.StatusNotFound, "Statistic not found")
		return "", false
	case resp.Status < 200 || resp.Status >= 300:
		s.logger.Error().Int("status", resp.Status).Str("statistic_id", statisticID).Msg("Statistic lookup failed")
		abortJSON(c, http.StatusBadGateway, "failed to check statistics window")
		return "", false
	}

	var rec map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &rec); err != nil {
		abortJSON(c, http.StatusBadGateway, "failed to check statistics window")
		return "", false
	}
	if raw, ok := rec["data"]; ok {
		var data map[string]json.RawMessage
		if err := json.Unmarshal(raw, &data); err == nil {
			rec = data
		}
	}
	matchID := recordMatchID(rec)
	if matchID == "" {
		s.logger.Error().Str("statistic_id", statisticID).Msg("Statistic has no match")
		abortJSON(c, http.StatusBadGateway, "failed to check statistics window")
		return "", false
	}
	return matchID, true
}

var (
	errMatchIDRequired = errors.New("matchId is required")
	errInvalidBody     = errors.New("request body must be a JSON object or array")
)

// matchIDFields are the names a statistics write may carry its match under.
var matchIDFields = []string{"matchId", "match_id"}

// statisticsMatchIDs reports whether the write targets statistics and returns
// every distinct match it touches: the id in /matches/{id}/statistics, each
// matchId query value and each matchId of the JSON body. Body records may
// omit the match only when the path or query names one.
func statisticsMatchIDs(path string, query url.Values, body []byte) ([]string, bool, error) {
	segs := segments(path)
	var ids []string
	switch {
	case len(segs) >= 3 && segs[0] == "matches" && segs[2] == "statistics":
		ids = appendDistinct(ids, segs[1])
	case len(segs) >= 1 && segs[0] == "statistics":
	default:
		return nil, false, nil
	}

	for _, name := range matchIDFields {
		ids = appendDistinct(ids, query[name]...)
	}
	named := len(ids) > 0

	fromBody, complete, err := bodyMatchIDs(body)
	if err != nil {
		return nil, true, err
	}
	ids = appendDistinct(ids, fromBody...)

	// An item path is resolved against the stored statistic.
	if statisticItemID(path) != "" {
		return ids, true, nil
	}
	if len(ids) == 0 || (!complete && !named) {
		return nil, true, errMatchIDRequired
	}
	return ids, true, nil
}

// statisticItemID returns {id} for /statistics/{id}.
func statisticItemID(path string) string {
	segs := segments(path)
	if len(segs) == 2 && segs[0] == "statistics" {
		return segs[1]
	}
	return ""
}

// bodyMatchIDs returns the match ids of a statistics object or array, and
// whether every record named one. An empty body holds no records.
func bodyMatchIDs(body []byte) ([]string, bool, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, true, nil
	}

	var records []map[string]json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, false, errInvalidBody
		}
	} else {
		var one map[string]json.RawMessage
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, false, errInvalidBody
		}
		records = append(records, one)
	}

	complete := true
	var ids []string
	for _, rec := range records {
		id := recordMatchID(rec)
		if id == "" {
			complete = false
			continue
		}
		ids = appendDistinct(ids, id)
	}
	return ids, complete, nil
}

func recordMatchID(rec map[string]json.RawMessage) string {
	for _, name := range matchIDFields {
		if raw, ok := rec[name]; ok {
			return scalarString(raw)
		}
	}
	return ""
}

func appendDistinct(ids []string, values ...string) []string {
	for _, v := range values {
		if v == "" || slices.Contains(ids, v) {
			continue
		}
		ids = append(ids, v)
	}
	return ids
}

func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func segments(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
