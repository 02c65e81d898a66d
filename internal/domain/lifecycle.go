package domain

import "time"

// VoteOutcome is what a vote did to the match
type VoteOutcome string

const (
	OutcomeWaiting    VoteOutcome = "waiting"
	OutcomeCancelled  VoteOutcome = "cancelled"
	OutcomeScheduling VoteOutcome = "scheduling"
)

// VoteRequest represents a participant approving or rejecting a proposal
type VoteRequest struct {
	MatchID  string `json:"-"`
	PlayerID string `json:"-"`
	Approved bool   `json:"approved"`
}

// VoteResult is returned from casting a vote
type VoteResult struct {
	MatchID       string      `json:"match_id"`
	Outcome       VoteOutcome `json:"outcome"`
	CaptainID     string      `json:"captain_id,omitempty"`
	TimeProposals []time.Time `json:"time_proposals,omitempty"`
}

// ScheduleRequest represents the captain fixing the match time
type ScheduleRequest struct {
	MatchID  string    `json:"-"`
	PlayerID string    `json:"-"`
	At       time.Time `json:"at"`
}

// ResultRequest represents a participant reporting the final score
type ResultRequest struct {
	MatchID    string     `json:"-"`
	PlayerID   string     `json:"-"`
	Sets       []SetScore `json:"sets"`
	WinnerTeam TeamID     `json:"winner_team"`
}

// MaxSets bounds the number of sets a result may report
const MaxSets = 5

// Validate checks the sets are internally consistent with the declared winner
func (r ResultRequest) Validate() error {
	if !r.WinnerTeam.Valid() {
		return Invalidf("winner team must be A or B, got %q", r.WinnerTeam)
	}
	if len(r.Sets) == 0 || len(r.Sets) > MaxSets {
		return Invalidf("expected between 1 and %d sets, got %d", MaxSets, len(r.Sets))
	}
	setsA, setsB := 0, 0
	for i, set := range r.Sets {
		if set.A < 0 || set.B < 0 {
			return Invalidf("set %d has a negative score", i+1)
		}
		switch {
		case set.A > set.B:
			setsA++
		case set.B > set.A:
			setsB++
		default:
			return Invalidf("set %d is tied at %d-%d", i+1, set.A, set.B)
		}
	}
	if (r.WinnerTeam == TeamA && setsA <= setsB) || (r.WinnerTeam == TeamB && setsB <= setsA) {
		return Invalidf("declared winner %s won %d sets against %d", r.WinnerTeam, max(setsA, setsB), min(setsA, setsB))
	}
	return nil
}

// ResultDeltas is returned from submitting a result
type ResultDeltas struct {
	MatchID    string `json:"match_id"`
	TeamADelta int    `json:"team_a_delta"`
	TeamBDelta int    `json:"team_b_delta"`
	Counted    bool   `json:"counted"`
}

// Event types published on the lifecycle stream
const (
	EventMatchProposed   = "match.proposed"
	EventMatchCancelled  = "match.cancelled"
	EventMatchScheduling = "match.scheduling"
	EventMatchScheduled  = "match.scheduled"
	EventMatchCompleted  = "match.completed"
)

// MatchEvent is a lifecycle transition published to other services
type MatchEvent struct {
	Type      string    `json:"type"`
	MatchID   string    `json:"match_id"`
	PlayerIDs []string  `json:"player_ids"`
	Status    string    `json:"status"`
	Match     *Match    `json:"match,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMatchEvent builds an event snapshot of the match
func NewMatchEvent(eventType string, m *Match) MatchEvent {
	ids := m.PlayerIDs()
	return MatchEvent{
		Type:      eventType,
		MatchID:   m.ID,
		PlayerIDs: ids[:],
		Status:    string(m.Status),
		Match:     m,
		Timestamp: time.Now(),
	}
}
