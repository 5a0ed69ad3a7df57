package statswindow

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Decisions counts authorization outcomes.
var Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "statscache_statswindow_decisions_total",
	Help: "Total stats window checks by outcome",
}, []string{"outcome"})

// Accessor reads match and league state. Implementations must not cache:
// the window is recomputed on every check.
type Accessor interface {
	// GetMatch returns the match, or ok == false when it does not exist
	GetMatch(ctx context.Context, matchID string) (match MatchRecord, ok bool, err error)

	// ListResultsAvailableMatches returns the league's uploaded or published matches
	ListResultsAvailableMatches(ctx context.Context, leagueID string) ([]MatchRecord, error)

	IsLeagueAdmin(ctx context.Context, userID, leagueID string) (bool, error)
}

// Policy enforces the window for a user.
type Policy struct {
	accessor Accessor
	logger   zerolog.Logger
}

// NewPolicy creates a policy reading state through accessor.
func NewPolicy(accessor Accessor, logger zerolog.Logger) *Policy {
	return &Policy{accessor: accessor, logger: logger}
}

// Authorize checks whether userID may submit statistics for matchID.
// A rejection is a *ViolationError; ErrMatchNotFound is returned for unknown
// matches and accessor failures are wrapped.
func (p *Policy) Authorize(ctx context.Context, matchID, userID string) (Decision, error) {
	match, ok, err := p.accessor.GetMatch(ctx, matchID)
	if err != nil {
		Decisions.WithLabelValues("error").Inc()
		return Decision{}, fmt.Errorf("get match %s: %w", matchID, err)
	}
	if !ok {
		Decisions.WithLabelValues("not_found").Inc()
		return Decision{}, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}

	isAdmin := false
	if userID != "" {
		isAdmin, err = p.accessor.IsLeagueAdmin(ctx, userID, match.LeagueID)
		if err != nil {
			Decisions.WithLabelValues("error").Inc()
			return Decision{}, fmt.Errorf("check league admin: %w", err)
		}
	}
	if isAdmin {
		Decisions.WithLabelValues("admin").Inc()
		return Decision{IndexFromEnd: -1, Admin: true, Editable: true}, nil
	}

	if !match.Status.ResultsAvailable() {
		return Decision{IndexFromEnd: -1}, p.reject(match, userID, Decision{IndexFromEnd: -1}, ErrResultsUnavailable)
	}

	matches, err := p.accessor.ListResultsAvailableMatches(ctx, match.LeagueID)
	if err != nil {
		Decisions.WithLabelValues("error").Inc()
		return Decision{}, fmt.Errorf("list league matches: %w", err)
	}

	d := Decide(matchID, matches, false)
	if !d.Found {
		return d, p.reject(match, userID, d, ErrResultsUnavailable)
	}
	if !d.Editable {
		return d, p.reject(match, userID, d, ErrOutsideWindow)
	}

	Decisions.WithLabelValues("allowed").Inc()
	p.logger.Debug().
		Str("match_id", matchID).
		Str("user_id", userID).
		Int("index_from_end", d.IndexFromEnd).
		Msg("Stats submission allowed")
	return d, nil
}

func (p *Policy) reject(match MatchRecord, userID string, d Decision, cause error) error {
	Decisions.WithLabelValues("rejected").Inc()
	p.logger.Info().
		Str("match_id", match.ID).
		Str("league_id", match.LeagueID).
		Str("user_id", userID).
		Int("index_from_end", d.IndexFromEnd).
		Err(cause).
		Msg("Stats submission rejected")

	return &ViolationError{
		MatchID:  match.ID,
		LeagueID: match.LeagueID,
		UserID:   userID,
		Decision: d,
		Err:      cause,
	}
}
