package service

import (
	"context"
	"time"

	"github.com/match-lifecycle/internal/domain"
)

// Store is the persistence collaborator of the lifecycle engine
type Store interface {
	GetPlayer(ctx context.Context, id string) (*domain.Player, error)
	GetPlayers(ctx context.Context, ids []string) (map[string]domain.Player, error)

	// CreateQueueEntry inserts an active entry, failing with ErrAlreadyInQueue if
	// the player already holds one.
	CreateQueueEntry(ctx context.Context, entry *domain.QueueEntry) error
	// GetActiveQueueEntry returns the player's active entry or ErrQueueEntryNotFound
	GetActiveQueueEntry(ctx context.Context, playerID string) (*domain.QueueEntry, error)
	// CancelActiveQueueEntry cancels the player's active entry. It is a no-op when
	// there is none and fails with ErrQueueEntryClaimed when the player's entry
	// is held by a match still pending approval.
	CancelActiveQueueEntry(ctx context.Context, playerID string, now time.Time) error
	ListActiveQueueEntries(ctx context.Context) ([]domain.QueueEntry, error)

	// CreateProposal claims match.QueueEntryIDs (active to matched) and inserts the
	// match with its votes as one unit. A lost claim fails with ErrQueueEntryClaimed
	// and writes nothing.
	CreateProposal(ctx context.Context, match *domain.Match) error
	GetMatch(ctx context.Context, id string) (*domain.Match, error)
	// UpdateMatch runs fn on the match under an exclusive lock and persists the
	// result. A transition to cancelled also cancels the match's queue entries,
	// and a newly chosen captain gets their last-captained time stamped.
	UpdateMatch(ctx context.Context, id string, fn func(*domain.Match) error) (*domain.Match, error)
	// CompleteMatch locks the match and its participants, runs fn and commits the
	// match, players, history, league ranking and region strength atomically.
	CompleteMatch(ctx context.Context, id string, fn domain.CompletionFunc) (*domain.Match, error)

	GetLeague(ctx context.Context, id string) (*domain.League, error)
	ListRankingHistory(ctx context.Context, playerID string, limit int) ([]domain.RankingHistoryRecord, error)
}

// EventPublisher ships lifecycle events to other services
type EventPublisher interface {
	PublishMatchEvent(ctx context.Context, event domain.MatchEvent) error
}

// Broadcaster pushes live updates to connected clients
type Broadcaster interface {
	BroadcastMatchUpdate(match *domain.Match)
	BroadcastRankingUpdate(regionKey string, entries []domain.RankingEntry)
}

// RankingIndex is the regional ranking read model
type RankingIndex interface {
	SetRatings(ctx context.Context, regionKey string, ratings map[string]int) error
	GetTopN(ctx context.Context, regionKey string, n int) ([]domain.RankingEntry, error)
}

// SweepTrigger asks for a matchmaking sweep soon. It never blocks.
type SweepTrigger interface {
	Trigger()
}

// SweepLock keeps concurrent sweeps across instances apart
type SweepLock interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// no-op side channels for disabled collaborators

type nopPublisher struct{}

func (nopPublisher) PublishMatchEvent(context.Context, domain.MatchEvent) error { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastMatchUpdate(*domain.Match)                   {}
func (nopBroadcaster) BroadcastRankingUpdate(string, []domain.RankingEntry) {}

type nopTrigger struct{}

func (nopTrigger) Trigger() {}
