package domain

import (
	"fmt"
	"strings"
	"time"
)

// Gender is the matchmaking bucket a queue entry competes in
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderMixed  Gender = "mixed"
)

// Valid reports whether g is a known gender bucket
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderMixed:
		return true
	}
	return false
}

// Side is a court side preference or assignment
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideBoth  Side = "both"
	SideNone  Side = "none"
)

// Valid reports whether s is a known side preference
func (s Side) Valid() bool {
	switch s {
	case SideLeft, SideRight, SideBoth, SideNone:
		return true
	}
	return false
}

// Exclusive reports whether the preference names exactly one side
func (s Side) Exclusive() bool {
	return s == SideLeft || s == SideRight
}

// Opposite returns the other court side. Flexible preferences have no opposite.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	}
	return s
}

// Region identifies where a player plays; only players of the same region are matched
type Region struct {
	State string `json:"state"`
	City  string `json:"city"`
}

// Key returns the canonical region key, e.g. "catalonia/barcelona"
func (r Region) Key() string {
	return strings.ToLower(strings.TrimSpace(r.State)) + "/" + strings.ToLower(strings.TrimSpace(r.City))
}

func (r Region) String() string {
	return fmt.Sprintf("%s, %s", r.City, r.State)
}

// ProvisionalMatches is the number of counted matches after which a player stops being provisional
const ProvisionalMatches = 5

// Player represents a player in the system
type Player struct {
	ID                     string       `json:"id"`
	Name                   string       `json:"name"`
	Region                 Region       `json:"region"`
	Gender                 Gender       `json:"gender"`
	SidePreference         Side         `json:"side_preference"`
	Rating                 int          `json:"rating"`
	Category               int          `json:"category"`
	MatchesPlayed          int          `json:"matches_played"`
	Wins                   int          `json:"wins"`
	ProvisionalGamesPlayed int          `json:"provisional_games_played"`
	Availability           Availability `json:"availability"`
	LastCaptainedAt        *time.Time   `json:"last_captained_at,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// Provisional reports whether the player is still within their first counted matches
func (p Player) Provisional() bool {
	return p.ProvisionalGamesPlayed < ProvisionalMatches
}

// Clone returns a deep copy of the player
func (p *Player) Clone() *Player {
	c := *p
	c.Availability = p.Availability.Clone()
	c.LastCaptainedAt = cloneTime(p.LastCaptainedAt)
	return &c
}
