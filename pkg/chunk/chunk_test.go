package chunk

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"testing"
)

func itemsJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"id":%d}`, i+1)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

type chunkedBody struct {
	Success bool              `json:"success"`
	Chunk   Meta              `json:"chunk"`
	Matches []json.RawMessage `json:"matches"`
	Data    []json.RawMessage `json:"data"`
	League  string            `json:"league"`
}

func decode(t *testing.T, data []byte) chunkedBody {
	t.Helper()
	var out chunkedBody
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode chunked body: %v (%s)", err, data)
	}
	return out
}

func TestApply_Pages(t *testing.T) {
	body := []byte(`{"success":true,"league":"North","matches":` + itemsJSON(45) + `}`)

	tests := []struct {
		name        string
		page        int
		wantItems   int
		wantHasMore bool
		wantFirstID string
	}{
		{name: "first page", page: 1, wantItems: 20, wantHasMore: true, wantFirstID: `{"id":1}`},
		{name: "middle page", page: 2, wantItems: 20, wantHasMore: true, wantFirstID: `{"id":21}`},
		{name: "last page", page: 3, wantItems: 5, wantHasMore: false, wantFirstID: `{"id":41}`},
		{name: "past the end", page: 4, wantItems: 0, wantHasMore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, applied, err := Apply(body, Params{Page: tt.page, Limit: 20})
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if !applied {
				t.Fatal("Apply() should chunk a body with a matches array")
			}

			got := decode(t, out)
			if !got.Success {
				t.Error("success should be true")
			}
			if got.Chunk.TotalItems != 45 || got.Chunk.TotalChunks != 3 {
				t.Errorf("totals = %d/%d, want 45/3", got.Chunk.TotalItems, got.Chunk.TotalChunks)
			}
			if got.Chunk.Items != tt.wantItems || len(got.Matches) != tt.wantItems {
				t.Errorf("items = %d (len %d), want %d", got.Chunk.Items, len(got.Matches), tt.wantItems)
			}
			if got.Chunk.HasMore != tt.wantHasMore {
				t.Errorf("hasMore = %v, want %v", got.Chunk.HasMore, tt.wantHasMore)
			}
			if tt.wantFirstID != "" && string(got.Matches[0]) != tt.wantFirstID {
				t.Errorf("first item = %s, want %s", got.Matches[0], tt.wantFirstID)
			}
			if got.League != "North" {
				t.Errorf("league = %q, other fields must be preserved", got.League)
			}
		})
	}
}

func TestApply_EmptyPageIsArray(t *testing.T) {
	out, _, err := Apply([]byte(`{"matches":[{"id":1}]}`), Params{Page: 9, Limit: 10})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !strings.Contains(string(out), `"matches":[]`) {
		t.Errorf("past-the-end page should encode an empty array, got %s", out)
	}
}

func TestApply_BareArray(t *testing.T) {
	out, applied, err := Apply([]byte(itemsJSON(7)), Params{Page: 2, Limit: 5})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !applied {
		t.Fatal("bare array should be chunked")
	}
	got := decode(t, out)
	if len(got.Data) != 2 || got.Chunk.TotalChunks != 2 || got.Chunk.HasMore {
		t.Errorf("got %d items, chunk %+v", len(got.Data), got.Chunk)
	}
}

func TestApply_FieldOrder(t *testing.T) {
	// "data" wins over "matches" because it comes first in Fields.
	body := []byte(`{"matches":[1,2,3],"data":[4,5]}`)
	out, _, err := Apply(body, Params{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	got := decode(t, out)
	if got.Chunk.TotalItems != 2 {
		t.Errorf("totalItems = %d, want 2 (data field)", got.Chunk.TotalItems)
	}
	if len(got.Matches) != 3 {
		t.Errorf("matches should be untouched, got %d items", len(got.Matches))
	}
}

func TestApply_PassThrough(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no array field", body: `{"id":"m1","status":"published"}`},
		{name: "field is not an array", body: `{"data":{"id":"m1"}}`},
		{name: "scalar body", body: `"ok"`},
		{name: "empty body", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, applied, err := Apply([]byte(tt.body), Params{Page: 1, Limit: 10})
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if applied {
				t.Error("Apply() should not chunk")
			}
			if string(out) != tt.body {
				t.Errorf("body = %s, want unchanged %s", out, tt.body)
			}
		})
	}
}

func TestApply_InvalidJSON(t *testing.T) {
	if _, _, err := Apply([]byte(`{"data":[`), Params{Page: 1, Limit: 10}); err == nil {
		t.Error("Apply() expected error for truncated body")
	}
}

func TestParseParams(t *testing.T) {
	cfg := Config{DefaultLimit: 50, MaxLimit: 500}

	tests := []struct {
		name      string
		query     string
		want      Params
		wantChunk bool
	}{
		{name: "not requested", query: "leagueId=1", wantChunk: false},
		{name: "limit alone does not request", query: "limit=10", wantChunk: false},
		{name: "page only", query: "page=2", want: Params{Page: 2, Limit: 50}, wantChunk: true},
		{name: "chunked flag", query: "chunked=true&limit=20", want: Params{Page: 1, Limit: 20}, wantChunk: true},
		{name: "chunked false", query: "chunked=false", wantChunk: false},
		{name: "clamp low", query: "page=0&limit=-5", want: Params{Page: 1, Limit: 1}, wantChunk: true},
		{name: "clamp high", query: "page=3&limit=9000", want: Params{Page: 3, Limit: 500}, wantChunk: true},
		{name: "garbage falls back", query: "page=abc&limit=xyz", want: Params{Page: 1, Limit: 50}, wantChunk: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery() error = %v", err)
			}
			got, ok := ParseParams(q, cfg)
			if ok != tt.wantChunk {
				t.Fatalf("ParseParams() requested = %v, want %v", ok, tt.wantChunk)
			}
			if ok && got != tt.want {
				t.Errorf("ParseParams() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStripParams(t *testing.T) {
	q := url.Values{
		"leagueId": {"42"},
		"page":     {"2"},
		"limit":    {"20"},
		"chunked":  {"true"},
	}
	got := StripParams(q)
	if len(got) != 1 || got.Get("leagueId") != "42" {
		t.Errorf("StripParams() = %v, want only leagueId", got)
	}
	if q.Get("page") != "2" {
		t.Error("StripParams() must not modify its input")
	}
}
