package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/match-lifecycle/internal/approval"
	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/metrics"
)

// ApprovalService collects votes on proposed matches and fixes their schedule
type ApprovalService struct {
	store       Store
	machine     *approval.Machine
	publisher   EventPublisher
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewApprovalService creates a new approval service
func NewApprovalService(
	store Store,
	machine *approval.Machine,
	publisher EventPublisher,
	broadcaster Broadcaster,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ApprovalService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	return &ApprovalService{
		store:       store,
		machine:     machine,
		publisher:   publisher,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger.With("component", "approval"),
		now:         time.Now,
	}
}

// GetMatch returns a match to one of its participants
func (s *ApprovalService) GetMatch(ctx context.Context, matchID, playerID string) (*domain.Match, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, storeErr("get match", err)
	}
	if !m.IsParticipant(playerID) {
		return nil, domain.ErrNotParticipant
	}
	return m, nil
}

// CastVote records a participant's vote. The vote and the transition it causes
// are applied under the match lock, so concurrent votes always see all four.
func (s *ApprovalService) CastVote(ctx context.Context, req domain.VoteRequest) (*domain.VoteResult, error) {
	current, err := s.GetMatch(ctx, req.MatchID, req.PlayerID)
	if err != nil {
		return nil, err
	}
	ids := current.PlayerIDs()
	players, err := s.store.GetPlayers(ctx, ids[:])
	if err != nil {
		return nil, fmt.Errorf("loading participants: %w", storeErr("get players", err))
	}
	lastCaptained := make(map[string]time.Time, len(players))
	for id, p := range players {
		if p.LastCaptainedAt != nil {
			lastCaptained[id] = *p.LastCaptainedAt
		}
	}

	var result domain.VoteResult
	now := s.now()
	updated, err := s.store.UpdateMatch(ctx, req.MatchID, func(m *domain.Match) error {
		res, err := s.machine.Vote(m, req.PlayerID, req.Approved, lastCaptained, now)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, storeErr("update match", err)
	}

	s.metrics.Vote(string(result.Outcome))
	s.logger.Info("vote cast",
		"match_id", req.MatchID,
		"player_id", req.PlayerID,
		"approved", req.Approved,
		"outcome", result.Outcome,
	)
	switch result.Outcome {
	case domain.OutcomeCancelled:
		announce(ctx, s.publisher, s.broadcaster, s.metrics, s.logger, domain.EventMatchCancelled, updated)
	case domain.OutcomeScheduling:
		s.logger.Info("match approved", "match_id", updated.ID, "captain_id", updated.CaptainID)
		announce(ctx, s.publisher, s.broadcaster, s.metrics, s.logger, domain.EventMatchScheduling, updated)
	default:
		s.broadcaster.BroadcastMatchUpdate(updated)
	}
	return &result, nil
}

// ConfirmSchedule lets the captain pick the final time of an approved match
func (s *ApprovalService) ConfirmSchedule(ctx context.Context, req domain.ScheduleRequest) (*domain.Match, error) {
	now := s.now()
	updated, err := s.store.UpdateMatch(ctx, req.MatchID, func(m *domain.Match) error {
		return s.machine.ConfirmSchedule(m, req.PlayerID, req.At, now)
	})
	if err != nil {
		return nil, storeErr("update match", err)
	}

	s.metrics.ScheduleConfirmed()
	s.logger.Info("match scheduled", "match_id", updated.ID, "scheduled_at", updated.ScheduledAt)
	announce(ctx, s.publisher, s.broadcaster, s.metrics, s.logger, domain.EventMatchScheduled, updated)
	return updated, nil
}
