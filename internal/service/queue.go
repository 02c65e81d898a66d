package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/metrics"
)

// QueueService manages players entering and leaving the matchmaking queue
type QueueService struct {
	store   Store
	trigger SweepTrigger
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewQueueService creates a new queue service. trigger may be nil when sweeps
// only run periodically.
func NewQueueService(store Store, trigger SweepTrigger, m *metrics.Metrics, logger *slog.Logger) *QueueService {
	if trigger == nil {
		trigger = nopTrigger{}
	}
	return &QueueService{
		store:   store,
		trigger: trigger,
		metrics: m,
		logger:  logger.With("component", "queue"),
		now:     time.Now,
	}
}

// JoinQueue puts a player (optionally with a partner) in the waiting pool
func (s *QueueService) JoinQueue(ctx context.Context, req domain.JoinRequest) (*domain.QueueEntry, error) {
	if err := req.Validate(); err != nil {
		s.metrics.QueueJoin("invalid")
		return nil, err
	}

	player, err := s.store.GetPlayer(ctx, req.PlayerID)
	if err != nil {
		return nil, s.joinFailed(fmt.Errorf("getting player: %w", storeErr("get player", err)))
	}
	average := float64(player.Rating)
	if req.PartnerID != "" {
		partner, err := s.store.GetPlayer(ctx, req.PartnerID)
		if err != nil {
			return nil, s.joinFailed(fmt.Errorf("getting partner: %w", storeErr("get partner", err)))
		}
		average = float64(player.Rating+partner.Rating) / 2
	}

	side := req.PreferredSide
	if side == "" {
		side = player.SidePreference
	}
	now := s.now()
	entry := &domain.QueueEntry{
		ID:            uuid.NewString(),
		PlayerID:      req.PlayerID,
		PartnerID:     req.PartnerID,
		Gender:        req.Gender,
		PreferredSide: side,
		AverageRating: average,
		Status:        domain.QueueStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateQueueEntry(ctx, entry); err != nil {
		return nil, s.joinFailed(storeErr("create queue entry", err))
	}

	s.metrics.QueueJoin("ok")
	s.logger.Info("player joined queue",
		"player_id", entry.PlayerID,
		"partner_id", entry.PartnerID,
		"gender", entry.Gender,
		"average_rating", entry.AverageRating,
	)
	s.trigger.Trigger()
	return entry, nil
}

func (s *QueueService) joinFailed(err error) error {
	switch {
	case errors.Is(err, domain.ErrConflict):
		s.metrics.QueueJoin("conflict")
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.QueueJoin("not_found")
	default:
		s.metrics.QueueJoin("error")
	}
	return err
}

// LeaveQueue cancels the player's active entry. Leaving with no active entry succeeds.
func (s *QueueService) LeaveQueue(ctx context.Context, playerID string) error {
	if err := s.store.CancelActiveQueueEntry(ctx, playerID, s.now()); err != nil {
		return storeErr("cancel queue entry", err)
	}
	s.logger.Info("player left queue", "player_id", playerID)
	return nil
}

// ActiveEntry returns the player's active queue entry
func (s *QueueService) ActiveEntry(ctx context.Context, playerID string) (*domain.QueueEntry, error) {
	entry, err := s.store.GetActiveQueueEntry(ctx, playerID)
	if err != nil {
		return nil, storeErr("get active queue entry", err)
	}
	return entry, nil
}

// ApplyCommands executes a batch of asynchronously delivered queue commands.
// Failures are logged per command and do not stop the batch; the number of
// commands that took effect is returned.
func (s *QueueService) ApplyCommands(ctx context.Context, commands []domain.QueueCommand) int {
	applied := 0
	for _, cmd := range commands {
		var err error
		switch cmd.Type {
		case domain.QueueCommandJoin:
			_, err = s.JoinQueue(ctx, domain.JoinRequest{
				PlayerID:      cmd.PlayerID,
				PartnerID:     cmd.PartnerID,
				Gender:        cmd.Gender,
				PreferredSide: cmd.PreferredSide,
			})
		case domain.QueueCommandLeave:
			err = s.LeaveQueue(ctx, cmd.PlayerID)
		default:
			err = fmt.Errorf("%w: unknown queue command %q", domain.ErrInvalid, cmd.Type)
		}
		if err != nil {
			s.metrics.QueueCommand(cmd.Type, "error")
			s.logger.Error("failed to apply queue command",
				"type", cmd.Type,
				"player_id", cmd.PlayerID,
				"error", err,
			)
			continue
		}
		s.metrics.QueueCommand(cmd.Type, "ok")
		applied++
	}
	return applied
}

// storeErr passes domain errors through and marks anything else as a dependency failure
func storeErr(op string, err error) error {
	if err == nil || domain.KindOf(err) != nil {
		return err
	}
	return domain.Dependency(op, err)
}
