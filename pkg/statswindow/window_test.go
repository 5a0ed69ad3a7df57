package statswindow

import (
	"testing"
	"time"
)

var base = time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC)

// leagueOfFive returns m1..m5 with available results, oldest first, in shuffled input order.
func leagueOfFive() []MatchRecord {
	at := func(id string, week int, status Status) MatchRecord {
		return MatchRecord{ID: id, LeagueID: "l1", Status: status, ScheduledAt: base.AddDate(0, 0, 7*week)}
	}
	return []MatchRecord{
		at("m3", 2, StatusPublished),
		at("m1", 0, StatusPublished),
		at("m5", 4, StatusUploaded),
		at("m2", 1, StatusPublished),
		at("m4", 3, StatusPublished),
		at("m6", 5, StatusScheduled),
	}
}

func TestDecide(t *testing.T) {
	matches := leagueOfFive()

	tests := []struct {
		name         string
		matchID      string
		admin        bool
		wantIndex    int
		wantFound    bool
		wantWithin   bool
		wantEditable bool
	}{
		{name: "most recent", matchID: "m5", wantIndex: 0, wantFound: true, wantWithin: true, wantEditable: true},
		{name: "second most recent", matchID: "m4", wantIndex: 1, wantFound: true, wantWithin: true, wantEditable: true},
		{name: "third most recent", matchID: "m3", wantIndex: 2, wantFound: true, wantWithin: false, wantEditable: false},
		{name: "third most recent as admin", matchID: "m3", admin: true, wantIndex: 2, wantFound: true, wantWithin: false, wantEditable: true},
		{name: "oldest", matchID: "m1", wantIndex: 4, wantFound: true, wantEditable: false},
		{name: "results not available", matchID: "m6", wantIndex: -1, wantFound: false, wantEditable: false},
		{name: "results not available as admin", matchID: "m6", admin: true, wantIndex: -1, wantEditable: true},
		{name: "unknown match", matchID: "zz", wantIndex: -1, wantEditable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.matchID, matches, tt.admin)
			if got.IndexFromEnd != tt.wantIndex {
				t.Errorf("IndexFromEnd = %d, want %d", got.IndexFromEnd, tt.wantIndex)
			}
			if got.Found != tt.wantFound {
				t.Errorf("Found = %v, want %v", got.Found, tt.wantFound)
			}
			if got.WithinLastTwo != tt.wantWithin {
				t.Errorf("WithinLastTwo = %v, want %v", got.WithinLastTwo, tt.wantWithin)
			}
			if got.Editable != tt.wantEditable {
				t.Errorf("Editable = %v, want %v", got.Editable, tt.wantEditable)
			}
		})
	}
}

func TestRecency_Tiebreak(t *testing.T) {
	created := base.Add(-24 * time.Hour)
	matches := []MatchRecord{
		{ID: "b", Status: StatusPublished, ScheduledAt: base, CreatedAt: created.Add(time.Hour)},
		{ID: "a", Status: StatusPublished, ScheduledAt: base, CreatedAt: created.Add(time.Hour)},
		{ID: "c", Status: StatusPublished, ScheduledAt: base, CreatedAt: created},
	}

	// Order: c (created first), then a, b by ID.
	want := map[string]int{"c": 2, "a": 1, "b": 0}
	for id, wantIdx := range want {
		got, ok := Recency(id, matches)
		if !ok || got != wantIdx {
			t.Errorf("Recency(%s) = %d, %v; want %d", id, got, ok, wantIdx)
		}
	}
}

func TestRecency_DoesNotReorderInput(t *testing.T) {
	matches := leagueOfFive()
	first := matches[0].ID

	Recency("m5", matches)
	if matches[0].ID != first {
		t.Error("Recency must not sort the caller's slice")
	}
}

func TestStatus_ResultsAvailable(t *testing.T) {
	tests := map[Status]bool{
		StatusScheduled:  false,
		StatusInProgress: false,
		StatusUploaded:   true,
		StatusPublished:  true,
		StatusCancelled:  false,
		Status("weird"):  false,
	}
	for s, want := range tests {
		if got := s.ResultsAvailable(); got != want {
			t.Errorf("%s.ResultsAvailable() = %v, want %v", s, got, want)
		}
	}
}
