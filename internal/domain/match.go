package domain

import "time"

// MatchStatus is the single finite-state field of a match
type MatchStatus string

const (
	MatchPendingApproval MatchStatus = "pending_approval"
	MatchScheduling      MatchStatus = "scheduling"
	MatchScheduled       MatchStatus = "scheduled"
	MatchCompleted       MatchStatus = "completed"
	MatchCancelled       MatchStatus = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

// SchedulingStatus tracks the time negotiation once a match is approved
type SchedulingStatus string

const (
	SchedulingNone      SchedulingStatus = ""
	SchedulingProposed  SchedulingStatus = "proposed"
	SchedulingConfirmed SchedulingStatus = "confirmed"
)

// TeamID names one side of the net
type TeamID string

const (
	TeamA TeamID = "A"
	TeamB TeamID = "B"
)

// Valid reports whether t is A or B
func (t TeamID) Valid() bool {
	return t == TeamA || t == TeamB
}

// Other returns the opposing team
func (t TeamID) Other() TeamID {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

// Vote is the tri-state approval of a proposed match
type Vote string

const (
	VoteUnset    Vote = "unset"
	VoteApproved Vote = "approved"
	VoteRejected Vote = "rejected"
)

// Slot is one player position in a team
type Slot struct {
	PlayerID string `json:"player_id"`
	Side     Side   `json:"side"`
}

// Team is a pair of players playing together
type Team struct {
	Players [2]Slot `json:"players"`
	WasDuo  bool    `json:"was_duo"`
}

// Has reports whether the player is in this team
func (t Team) Has(playerID string) bool {
	return t.Players[0].PlayerID == playerID || t.Players[1].PlayerID == playerID
}

// ApprovalVote is one participant's vote on a proposed match
type ApprovalVote struct {
	PlayerID string     `json:"player_id"`
	Vote     Vote       `json:"vote"`
	VotedAt  *time.Time `json:"voted_at,omitempty"`
}

// SetScore holds the games won by each team in one set
type SetScore struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Match is the central aggregate of the lifecycle engine
type Match struct {
	ID                  string           `json:"id"`
	LeagueID            string           `json:"league_id,omitempty"`
	TeamA               Team             `json:"team_a"`
	TeamB               Team             `json:"team_b"`
	Status              MatchStatus      `json:"status"`
	SchedulingStatus    SchedulingStatus `json:"scheduling_status,omitempty"`
	CaptainID           string           `json:"captain_id,omitempty"`
	CommonAvailability  Availability     `json:"common_availability"`
	Votes               [4]ApprovalVote  `json:"votes"`
	TimeProposals       []time.Time      `json:"time_proposals,omitempty"`
	NegotiationDeadline *time.Time       `json:"negotiation_deadline,omitempty"`
	ScheduledAt         *time.Time       `json:"scheduled_at,omitempty"`
	Sets                []SetScore       `json:"sets,omitempty"`
	WinnerTeam          TeamID           `json:"winner_team,omitempty"`
	PointDeltas         map[string]int   `json:"point_deltas,omitempty"`
	QueueEntryIDs       []string         `json:"-"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
}

// PlayerIDs returns the four participants in slot order A1, A2, B1, B2
func (m *Match) PlayerIDs() [4]string {
	return [4]string{
		m.TeamA.Players[0].PlayerID,
		m.TeamA.Players[1].PlayerID,
		m.TeamB.Players[0].PlayerID,
		m.TeamB.Players[1].PlayerID,
	}
}

// IsParticipant reports whether the player is one of the four bound participants
func (m *Match) IsParticipant(playerID string) bool {
	return playerID != "" && (m.TeamA.Has(playerID) || m.TeamB.Has(playerID))
}

// TeamOf returns the team a participant plays in
func (m *Match) TeamOf(playerID string) (TeamID, bool) {
	switch {
	case m.TeamA.Has(playerID):
		return TeamA, true
	case m.TeamB.Has(playerID):
		return TeamB, true
	}
	return "", false
}

// Team returns the team with the given id
func (m *Match) Team(id TeamID) Team {
	if id == TeamA {
		return m.TeamA
	}
	return m.TeamB
}

// ResetVotes binds one unset vote to each participant
func (m *Match) ResetVotes() {
	for i, id := range m.PlayerIDs() {
		m.Votes[i] = ApprovalVote{PlayerID: id, Vote: VoteUnset}
	}
}

// VoteIndex returns the index of the participant's vote, or -1
func (m *Match) VoteIndex(playerID string) int {
	for i, v := range m.Votes {
		if v.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the match
func (m *Match) Clone() *Match {
	c := *m
	c.CommonAvailability = m.CommonAvailability.Clone()
	for i, v := range m.Votes {
		if v.VotedAt != nil {
			at := *v.VotedAt
			c.Votes[i].VotedAt = &at
		}
	}
	c.TimeProposals = append([]time.Time(nil), m.TimeProposals...)
	c.Sets = append([]SetScore(nil), m.Sets...)
	c.QueueEntryIDs = append([]string(nil), m.QueueEntryIDs...)
	if m.PointDeltas != nil {
		c.PointDeltas = make(map[string]int, len(m.PointDeltas))
		for k, v := range m.PointDeltas {
			c.PointDeltas[k] = v
		}
	}
	c.NegotiationDeadline = cloneTime(m.NegotiationDeadline)
	c.ScheduledAt = cloneTime(m.ScheduledAt)
	c.CompletedAt = cloneTime(m.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
