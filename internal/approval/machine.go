// Package approval drives a proposed match through unanimous approval into scheduling.
//
// The machine works on a *domain.Match already loaded under the caller's lock;
// it never touches storage. Every exported method either mutates the match into
// a valid next state or returns an error and leaves it untouched.
package approval

import (
	"math/rand/v2"
	"time"

	"github.com/match-lifecycle/internal/domain"
)

// TieBreaker picks one of several equally eligible captains
type TieBreaker func(candidates []string) string

// RandomTieBreaker picks uniformly at random
func RandomTieBreaker(candidates []string) string {
	return candidates[rand.IntN(len(candidates))]
}

// Machine is the approval state machine
type Machine struct {
	policy Policy
	tie    TieBreaker
}

// NewMachine creates a machine. A nil tie breaker picks at random.
func NewMachine(policy Policy, tie TieBreaker) *Machine {
	if tie == nil {
		tie = RandomTieBreaker
	}
	return &Machine{policy: policy, tie: tie}
}

// Policy returns the scheduling policy the machine uses
func (m *Machine) Policy() Policy {
	return m.policy
}

// Resolve decides what a set of votes means. Any rejection cancels once all four
// have voted; unanimity opens scheduling; anything else keeps waiting.
func Resolve(votes [4]domain.ApprovalVote) domain.VoteOutcome {
	rejected := false
	for _, v := range votes {
		switch v.Vote {
		case domain.VoteApproved:
		case domain.VoteRejected:
			rejected = true
		default:
			return domain.OutcomeWaiting
		}
	}
	if rejected {
		return domain.OutcomeCancelled
	}
	return domain.OutcomeScheduling
}

// Vote records a participant's vote and applies the resulting transition.
// lastCaptained holds when each participant last captained; players missing from
// it have never captained. It is only consulted when the vote completes unanimity.
func (m *Machine) Vote(match *domain.Match, playerID string, approved bool, lastCaptained map[string]time.Time, now time.Time) (domain.VoteResult, error) {
	if !match.IsParticipant(playerID) {
		return domain.VoteResult{}, domain.ErrNotParticipant
	}
	if match.Status != domain.MatchPendingApproval {
		return domain.VoteResult{}, domain.ErrVotingClosed
	}
	idx := match.VoteIndex(playerID)
	if idx < 0 {
		// votes were never bound to slots
		match.ResetVotes()
		idx = match.VoteIndex(playerID)
	}

	vote := domain.VoteRejected
	if approved {
		vote = domain.VoteApproved
	}
	votedAt := now
	match.Votes[idx].Vote = vote
	match.Votes[idx].VotedAt = &votedAt
	match.UpdatedAt = now

	result := domain.VoteResult{MatchID: match.ID, Outcome: Resolve(match.Votes)}
	switch result.Outcome {
	case domain.OutcomeCancelled:
		match.Status = domain.MatchCancelled
	case domain.OutcomeScheduling:
		m.openScheduling(match, lastCaptained, now)
		result.CaptainID = match.CaptainID
		result.TimeProposals = append([]time.Time(nil), match.TimeProposals...)
	}
	return result, nil
}

func (m *Machine) openScheduling(match *domain.Match, lastCaptained map[string]time.Time, now time.Time) {
	ids := match.PlayerIDs()
	deadline := now.Add(m.policy.NegotiationWindow)

	match.Status = domain.MatchScheduling
	match.SchedulingStatus = domain.SchedulingProposed
	match.CaptainID = ChooseCaptain(ids[:], lastCaptained, m.tie)
	match.TimeProposals = m.policy.ProposeTimes(match.CommonAvailability, now)
	match.NegotiationDeadline = &deadline
}

// ConfirmSchedule lets the captain fix the match time, moving it to scheduled.
// The captain must confirm before the negotiation deadline.
func (m *Machine) ConfirmSchedule(match *domain.Match, playerID string, at, now time.Time) error {
	if !match.IsParticipant(playerID) {
		return domain.ErrNotParticipant
	}
	if match.Status != domain.MatchScheduling {
		return domain.ErrNotScheduling
	}
	if match.CaptainID != playerID {
		return domain.ErrNotCaptain
	}
	if match.NegotiationDeadline != nil && now.After(*match.NegotiationDeadline) {
		return domain.ErrNegotiationClosed
	}
	if !at.After(now) {
		return domain.ErrInvalidTime
	}

	scheduled := at
	match.ScheduledAt = &scheduled
	match.Status = domain.MatchScheduled
	match.SchedulingStatus = domain.SchedulingConfirmed
	match.UpdatedAt = now
	return nil
}

// ChooseCaptain returns the participant who captained least recently. Players
// who never captained come first; ties go to the tie breaker.
func ChooseCaptain(playerIDs []string, lastCaptained map[string]time.Time, tie TieBreaker) string {
	var candidates []string
	var oldest time.Time
	for _, id := range playerIDs {
		at := lastCaptained[id]
		switch {
		case len(candidates) == 0 || at.Before(oldest):
			candidates = []string{id}
			oldest = at
		case at.Equal(oldest):
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	return tie(candidates)
}
