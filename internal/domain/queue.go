package domain

import "time"

// QueueStatus is the lifecycle state of a queue entry
type QueueStatus string

const (
	QueueStatusActive    QueueStatus = "active"
	QueueStatusMatched   QueueStatus = "matched"
	QueueStatusCancelled QueueStatus = "cancelled"
)

// QueueEntry represents a player waiting for a match. A duo is two entries naming each other as partner.
type QueueEntry struct {
	ID            string      `json:"id"`
	PlayerID      string      `json:"player_id"`
	PartnerID     string      `json:"partner_id,omitempty"`
	Gender        Gender      `json:"gender"`
	PreferredSide Side        `json:"preferred_side"`
	AverageRating float64     `json:"average_rating"`
	Status        QueueStatus `json:"status"`
	MatchID       string      `json:"match_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// HasPartner reports whether the entry was created for a duo
func (e QueueEntry) HasPartner() bool {
	return e.PartnerID != ""
}

// JoinRequest represents a request to enter the matchmaking queue
type JoinRequest struct {
	PlayerID      string `json:"-"`
	PartnerID     string `json:"partner_id,omitempty"`
	Gender        Gender `json:"gender"`
	PreferredSide Side   `json:"preferred_side,omitempty"`
}

// Validate checks the request shape before it reaches the store
func (r JoinRequest) Validate() error {
	if !r.Gender.Valid() {
		return ErrInvalidGender
	}
	if r.PreferredSide != "" && !r.PreferredSide.Valid() {
		return ErrInvalidSide
	}
	if r.PartnerID != "" && r.PartnerID == r.PlayerID {
		return ErrSelfPartner
	}
	return nil
}

// QueueCommand is a join or leave request delivered asynchronously (e.g. over Kafka)
type QueueCommand struct {
	Type          string `json:"type"`
	PlayerID      string `json:"player_id"`
	PartnerID     string `json:"partner_id,omitempty"`
	Gender        Gender `json:"gender,omitempty"`
	PreferredSide Side   `json:"preferred_side,omitempty"`
}

// Queue command types
const (
	QueueCommandJoin  = "join"
	QueueCommandLeave = "leave"
)
