package chunk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the page size when the request omits limit
	DefaultLimit = 50

	// MaxLimit caps the page size to bound response size
	MaxLimit = 500
)

// Query parameters that control chunking.
const (
	ParamPage    = "page"
	ParamLimit   = "limit"
	ParamChunked = "chunked"
)

// Fields is the ordered list of object fields searched for the collection array.
var Fields = []string{"data", "items", "results", "matches", "leagues", "players", "statistics", "votes", "records"}

// bareArrayField names the output field when the body itself is an array.
const bareArrayField = "data"

// Config holds chunking configuration
type Config struct {
	// DefaultLimit applies when limit is absent or unparsable
	DefaultLimit int

	// MaxLimit is the largest accepted limit
	MaxLimit int
}

// DefaultConfig returns the default chunking configuration
func DefaultConfig() Config {
	return Config{
		DefaultLimit: DefaultLimit,
		MaxLimit:     MaxLimit,
	}
}

// Params is a requested page.
type Params struct {
	Page  int
	Limit int
}

// Meta describes the returned page.
type Meta struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalItems  int  `json:"totalItems"`
	TotalChunks int  `json:"totalChunks"`
	HasMore     bool `json:"hasMore"`
	Items       int  `json:"items"`
}

// Requested reports whether the query asks for a page view.
func Requested(q url.Values) bool {
	if _, ok := q[ParamPage]; ok {
		return true
	}
	return strings.EqualFold(q.Get(ParamChunked), "true")
}

// ParseParams reads page and limit from q. The second return value is false
// when chunking was not requested. Out-of-range values are clamped and
// unparsable values fall back to the defaults.
func ParseParams(q url.Values, cfg Config) (Params, bool) {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}

	if !Requested(q) {
		return Params{}, false
	}

	p := Params{
		Page:  parsePositive(q.Get(ParamPage), 1),
		Limit: parsePositive(q.Get(ParamLimit), cfg.DefaultLimit),
	}
	if p.Limit > cfg.MaxLimit {
		p.Limit = cfg.MaxLimit
	}
	return p, true
}

// StripParams returns a copy of q without the chunking parameters.
func StripParams(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		switch k {
		case ParamPage, ParamLimit, ParamChunked:
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

func parsePositive(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	if n < 1 {
		return 1
	}
	return n
}

// Apply returns the page view of body. When body holds no known array the
// original bytes are returned with applied == false.
func Apply(body []byte, p Params) (out []byte, applied bool, err error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return body, false, nil
	}

	var (
		fields map[string]json.RawMessage
		field  string
		items  []json.RawMessage
	)

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false, fmt.Errorf("decode array body: %w", err)
		}
		fields = make(map[string]json.RawMessage, 3)
		field = bareArrayField
	case '{':
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, false, fmt.Errorf("decode object body: %w", err)
		}
		var ok bool
		field, items, ok = findArray(fields)
		if !ok {
			return body, false, nil
		}
	default:
		return body, false, nil
	}

	page, meta := slice(items, p)

	pageJSON, err := json.Marshal(page)
	if err != nil {
		return nil, false, fmt.Errorf("encode page: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, false, fmt.Errorf("encode chunk meta: %w", err)
	}

	fields["success"] = json.RawMessage("true")
	fields["chunk"] = metaJSON
	fields[field] = pageJSON

	out, err = json.Marshal(fields)
	if err != nil {
		return nil, false, fmt.Errorf("encode chunked body: %w", err)
	}
	return out, true, nil
}

func findArray(fields map[string]json.RawMessage) (string, []json.RawMessage, bool) {
	for _, name := range Fields {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '[' {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		return name, items, true
	}
	return "", nil, false
}

// slice cuts the half-open range [(page-1)*limit, min(page*limit, total)).
func slice(items []json.RawMessage, p Params) ([]json.RawMessage, Meta) {
	total := len(items)
	totalChunks := (total + p.Limit - 1) / p.Limit

	start, end := total, total
	if p.Page-1 < totalChunks {
		start = (p.Page - 1) * p.Limit
		end = start + p.Limit
		if end > total {
			end = total
		}
	}

	page := make([]json.RawMessage, 0, end-start)
	page = append(page, items[start:end]...)

	return page, Meta{
		Page:        p.Page,
		Limit:       p.Limit,
		TotalItems:  total,
		TotalChunks: totalChunks,
		HasMore:     p.Page < totalChunks,
		Items:       len(page),
	}
}
