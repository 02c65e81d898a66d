package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/match-lifecycle/internal/domain"
)

// Monday
var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func firstCandidate(c []string) string { return c[0] }

func newMatch() *domain.Match {
	m := &domain.Match{
		ID: "m-1",
		TeamA: domain.Team{Players: [2]domain.Slot{
			{PlayerID: "a1", Side: domain.SideLeft}, {PlayerID: "a2", Side: domain.SideRight},
		}},
		TeamB: domain.Team{Players: [2]domain.Slot{
			{PlayerID: "b1", Side: domain.SideLeft}, {PlayerID: "b2", Side: domain.SideRight},
		}},
		Status: domain.MatchPendingApproval,
		CommonAvailability: domain.Availability{
			time.Wednesday: {domain.PeriodEvening},
		},
	}
	m.ResetVotes()
	return m
}

// permutations returns every ordering of the four participants
func permutations(ids []string) [][]string {
	if len(ids) <= 1 {
		return [][]string{append([]string(nil), ids...)}
	}
	var out [][]string
	for i := range ids {
		rest := make([]string, 0, len(ids)-1)
		rest = append(rest, ids[:i]...)
		rest = append(rest, ids[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{ids[i]}, p...))
		}
	}
	return out
}

func TestVote_SingleRejectionCancelsInAnyOrder(t *testing.T) {
	machine := NewMachine(DefaultPolicy(time.UTC), firstCandidate)
	ids := []string{"a1", "a2", "b1", "b2"}

	for _, rejecter := range ids {
		for _, order := range permutations(ids) {
			m := newMatch()
			var last domain.VoteResult
			for i, id := range order {
				res, err := machine.Vote(m, id, id != rejecter, nil, now)
				require.NoError(t, err)
				if i < 3 {
					assert.Equal(t, domain.OutcomeWaiting, res.Outcome)
				}
				last = res
			}
			assert.Equal(t, domain.OutcomeCancelled, last.Outcome, "rejecter %s order %v", rejecter, order)
			assert.Equal(t, domain.MatchCancelled, m.Status)
			assert.Empty(t, m.CaptainID)
			assert.Empty(t, m.TimeProposals)
		}
	}
}

func TestVote_UnanimousApprovalOpensScheduling(t *testing.T) {
	machine := NewMachine(DefaultPolicy(time.UTC), nil)

	for _, order := range permutations([]string{"a1", "a2", "b1", "b2"}) {
		m := newMatch()
		var res domain.VoteResult
		for _, id := range order {
			var err error
			res, err = machine.Vote(m, id, true, nil, now)
			require.NoError(t, err)
		}

		assert.Equal(t, domain.OutcomeScheduling, res.Outcome)
		assert.Equal(t, domain.MatchScheduling, m.Status)
		assert.Equal(t, domain.SchedulingProposed, m.SchedulingStatus)
		assert.NotEmpty(t, res.CaptainID)
		assert.True(t, m.IsParticipant(res.CaptainID))
		assert.Len(t, res.TimeProposals, 3)
		require.NotNil(t, m.NegotiationDeadline)
		assert.Equal(t, now.Add(72*time.Hour), *m.NegotiationDeadline)
	}
}

func TestVote_WaitingAndOverwrite(t *testing.T) {
	machine := NewMachine(DefaultPolicy(time.UTC), firstCandidate)
	m := newMatch()

	res, err := machine.Vote(m, "a1", false, nil, now)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWaiting, res.Outcome)
	assert.Equal(t, domain.VoteRejected, m.Votes[0].Vote)
	require.NotNil(t, m.Votes[0].VotedAt)

	// a participant may change their mind while the match is pending
	_, err = machine.Vote(m, "a1", true, nil, now)
	require.NoError(t, err)
	assert.Equal(t, domain.VoteApproved, m.Votes[0].Vote)
	assert.Equal(t, domain.MatchPendingApproval, m.Status)
}

func TestVote_Errors(t *testing.T) {
	machine := NewMachine(DefaultPolicy(time.UTC), firstCandidate)

	t.Run("non participant", func(t *testing.T) {
		m := newMatch()
		_, err := machine.Vote(m, "stranger", true, nil, now)
		assert.ErrorIs(t, err, domain.ErrNotParticipant)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("after resolution", func(t *testing.T) {
		m := newMatch()
		for _, id := range []string{"a1", "a2", "b1", "b2"} {
			_, err := machine.Vote(m, id, true, nil, now)
			require.NoError(t, err)
		}
		_, err := machine.Vote(m, "a1", false, nil, now)
		assert.ErrorIs(t, err, domain.ErrVotingClosed)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, domain.MatchScheduling, m.Status)
	})
}

func TestChooseCaptain(t *testing.T) {
	ids := []string{"a1", "a2", "b1", "b2"}
	week := 7 * 24 * time.Hour

	tests := []struct {
		name string
		last map[string]time.Time
		want string
	}{
		{
			name: "never captained beats everyone",
			last: map[string]time.Time{"a1": now.Add(-week), "a2": now.Add(-2 * week), "b2": now.Add(-3 * week)},
			want: "b1",
		},
		{
			name: "least recent wins",
			last: map[string]time.Time{"a1": now.Add(-week), "a2": now.Add(-2 * week), "b1": now.Add(-3 * week), "b2": now},
			want: "b1",
		},
		{
			name: "ties go to the tie breaker",
			last: map[string]time.Time{"a1": now, "b1": now},
			want: "a2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var offered []string
			tie := func(c []string) string {
				offered = c
				return c[0]
			}
			assert.Equal(t, tt.want, ChooseCaptain(ids, tt.last, tie))
			if tt.name == "ties go to the tie breaker" {
				assert.Equal(t, []string{"a2", "b2"}, offered)
			}
		})
	}
}

func TestConfirmSchedule(t *testing.T) {
	machine := NewMachine(DefaultPolicy(time.UTC), firstCandidate)
	approved := func() *domain.Match {
		m := newMatch()
		for _, id := range []string{"a1", "a2", "b1", "b2"} {
			_, err := machine.Vote(m, id, true, nil, now)
			require.NoError(t, err)
		}
		require.Equal(t, "a1", m.CaptainID)
		return m
	}

	t.Run("captain confirms a proposal", func(t *testing.T) {
		m := approved()
		at := m.TimeProposals[0]
		require.NoError(t, machine.ConfirmSchedule(m, "a1", at, now))
		assert.Equal(t, domain.MatchScheduled, m.Status)
		assert.Equal(t, domain.SchedulingConfirmed, m.SchedulingStatus)
		require.NotNil(t, m.ScheduledAt)
		assert.Equal(t, at, *m.ScheduledAt)
	})

	t.Run("time beyond the deadline is allowed", func(t *testing.T) {
		m := approved()
		at := now.Add(10 * 24 * time.Hour)
		require.NoError(t, machine.ConfirmSchedule(m, "a1", at, now.Add(time.Hour)))
		assert.Equal(t, at, *m.ScheduledAt)
	})

	tests := []struct {
		name    string
		player  string
		at      time.Time
		prepare func(*domain.Match)
		wantErr error
	}{
		{name: "not the captain", player: "b1", at: now.Add(time.Hour), wantErr: domain.ErrNotCaptain},
		{name: "stranger", player: "x", at: now.Add(time.Hour), wantErr: domain.ErrNotParticipant},
		{name: "in the past", player: "a1", at: now.Add(-time.Hour), wantErr: domain.ErrInvalidTime},
		{
			name: "negotiation expired", player: "a1", at: now.Add(time.Hour),
			prepare: func(m *domain.Match) {
				expired := now.Add(-time.Minute)
				m.NegotiationDeadline = &expired
			},
			wantErr: domain.ErrNegotiationClosed,
		},
		{
			name: "already scheduled", player: "a1", at: now.Add(time.Hour),
			prepare: func(m *domain.Match) { m.Status = domain.MatchScheduled },
			wantErr: domain.ErrNotScheduling,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := approved()
			if tt.prepare != nil {
				tt.prepare(m)
			}
			before := m.Status
			err := machine.ConfirmSchedule(m, tt.player, tt.at, now)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, m.Status)
			assert.Nil(t, m.ScheduledAt)
		})
	}
}
