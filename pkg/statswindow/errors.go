package statswindow

import (
	"errors"
	"fmt"
)

var (
	// ErrMatchNotFound is returned when the match does not exist.
	ErrMatchNotFound = errors.New("match not found")

	// ErrOutsideWindow means the match is older than the editable window.
	ErrOutsideWindow = errors.New("match is outside the statistics edit window")

	// ErrResultsUnavailable means the match result is not uploaded or published yet.
	ErrResultsUnavailable = errors.New("match results are not available")
)

// Messages shown to users on rejection.
const (
	MessageOutsideWindow      = "Statistics for older games can only be edited by a league admin"
	MessageResultsUnavailable = "Statistics can only be submitted once match results are uploaded or published"
)

// ViolationError is returned when a non-admin may not submit statistics for a match.
type ViolationError struct {
	MatchID  string
	LeagueID string
	UserID   string
	Decision Decision
	Err      error
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("stats window violation (match %s, league %s): %v", e.MatchID, e.LeagueID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ViolationError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing rejection text.
func (e *ViolationError) Message() string {
	if errors.Is(e.Err, ErrResultsUnavailable) {
		return MessageResultsUnavailable
	}
	return MessageOutsideWindow
}
