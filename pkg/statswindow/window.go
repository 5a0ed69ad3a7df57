// Package statswindow decides whether statistics for a match may still be
// submitted or edited.
//
// A league's matches with available results (uploaded or published) are
// ordered by scheduled start. Only the two most recent of them stay open to
// regular members; league admins may edit any match.
package statswindow

import (
	"sort"
	"time"
)

// WindowSize is how many of the most recent results stay editable by non-admins.
const WindowSize = 2

// Status is a match lifecycle status.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusUploaded   Status = "uploaded"
	StatusPublished  Status = "published"
	StatusCancelled  Status = "cancelled"
)

// ResultsAvailable reports whether the match result has been uploaded or published.
func (s Status) ResultsAvailable() bool {
	return s == StatusUploaded || s == StatusPublished
}

// MatchRecord is the part of a match the policy reads.
type MatchRecord struct {
	ID          string
	LeagueID    string
	Status      Status
	ScheduledAt time.Time
	CreatedAt   time.Time
}

// Decision is the outcome of a window check.
type Decision struct {
	// IndexFromEnd is 0 for the most recent result, 1 for the one before; -1 when not found
	IndexFromEnd int

	// Found reports whether the match is among the league's available results
	Found bool

	WithinLastTwo bool
	Admin         bool
	Editable      bool
}

// Recency returns the position of matchID counted from the most recent
// available result. Matches are ordered by ScheduledAt, then CreatedAt, then
// ID; full ties keep their input order.
func Recency(matchID string, matches []MatchRecord) (int, bool) {
	available := make([]MatchRecord, 0, len(matches))
	for _, m := range matches {
		if m.Status.ResultsAvailable() {
			available = append(available, m)
		}
	}

	sort.SliceStable(available, func(i, j int) bool {
		a, b := available[i], available[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	for i, m := range available {
		if m.ID == matchID {
			return len(available) - 1 - i, true
		}
	}
	return -1, false
}

// Decide applies the window to matchID. Admins may always edit; everyone else
// only while the match is one of the WindowSize most recent available results.
func Decide(matchID string, matches []MatchRecord, isAdmin bool) Decision {
	idx, found := Recency(matchID, matches)
	within := found && idx < WindowSize

	return Decision{
		IndexFromEnd:  idx,
		Found:         found,
		WithinLastTwo: within,
		Admin:         isAdmin,
		Editable:      isAdmin || within,
	}
}
