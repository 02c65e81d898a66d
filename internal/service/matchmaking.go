package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/matchmaking"
	"github.com/match-lifecycle/internal/metrics"
)

// MatchmakingService runs sweeps over the waiting pool
type MatchmakingService struct {
	store       Store
	engine      *matchmaking.Engine
	lock        SweepLock
	publisher   EventPublisher
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
	parallelism int
}

// NewMatchmakingService creates a new matchmaking service. lock, publisher and
// broadcaster are optional.
func NewMatchmakingService(
	store Store,
	engine *matchmaking.Engine,
	lock SweepLock,
	publisher EventPublisher,
	broadcaster Broadcaster,
	m *metrics.Metrics,
	logger *slog.Logger,
) *MatchmakingService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	return &MatchmakingService{
		store:       store,
		engine:      engine,
		lock:        lock,
		publisher:   publisher,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger.With("component", "matchmaking"),
		now:         time.Now,
		parallelism: 8,
	}
}

type bucketResult struct {
	created   []domain.Match
	kinds     []matchmaking.Kind
	unmatched map[string]int
}

// RunSweep matches the current waiting pool and persists every proposal it can
// claim. Buckets are planned and persisted in parallel.
func (s *MatchmakingService) RunSweep(ctx context.Context) ([]domain.Match, error) {
	start := time.Now()

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx)
		switch {
		case err != nil:
			s.metrics.SideChannelFailure("redis")
			s.logger.Warn("sweep lock unavailable, sweeping without it", "error", err)
		case !ok:
			s.metrics.SweepSkipped()
			s.logger.Debug("sweep already running elsewhere")
			return nil, nil
		default:
			defer release()
		}
	}

	entries, err := s.store.ListActiveQueueEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", storeErr("list queue entries", err))
	}
	if len(entries) == 0 {
		return nil, nil
	}
	ids := pie.Unique(pie.Map(entries, func(e domain.QueueEntry) string { return e.PlayerID }))
	players, err := s.store.GetPlayers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading players: %w", storeErr("get players", err))
	}

	buckets, orphans := matchmaking.Partition(entries, players)
	if len(orphans) > 0 {
		s.metrics.Unmatched(matchmaking.ReasonMissingProfile, len(orphans))
		s.logger.Warn("queue entries reference missing players", "count", len(orphans))
	}

	now := s.now()
	results := make([]bucketResult, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, bucket := range buckets {
		g.Go(func() error {
			res, err := s.sweepBucket(gctx, bucket, now)
			results[i] = res
			return err
		})
	}
	sweepErr := g.Wait()

	var created []domain.Match
	for _, res := range results {
		for i := range res.created {
			m := &res.created[i]
			s.metrics.ProposalCreated(string(res.kinds[i]))
			announce(ctx, s.publisher, s.broadcaster, s.metrics, s.logger, domain.EventMatchProposed, m)
		}
		for reason, count := range res.unmatched {
			s.metrics.Unmatched(reason, count)
		}
		created = append(created, res.created...)
	}

	s.metrics.SweepFinished(time.Since(start))
	s.logger.Info("matchmaking sweep finished",
		"entries", len(entries),
		"buckets", len(buckets),
		"proposals", len(created),
		"duration", time.Since(start),
	)
	if sweepErr != nil {
		return created, fmt.Errorf("sweeping: %w", sweepErr)
	}
	return created, nil
}

func (s *MatchmakingService) sweepBucket(ctx context.Context, bucket matchmaking.Bucket, now time.Time) (bucketResult, error) {
	plan := s.engine.Plan(bucket)
	res := bucketResult{unmatched: plan.Unmatched}

	for _, p := range plan.Proposals {
		match := p.Match(uuid.NewString(), now)
		err := s.store.CreateProposal(ctx, &match)
		if errors.Is(err, domain.ErrQueueEntryClaimed) {
			// a concurrent sweep took one of the entries; the rest wait for the next pass
			s.logger.Info("proposal lost its claim", "bucket", bucket.Key.String(), "entries", p.EntryIDs)
			continue
		}
		if err != nil {
			return res, storeErr("create proposal", err)
		}
		s.logger.Info("match proposed",
			"match_id", match.ID,
			"bucket", bucket.Key.String(),
			"kind", p.Kind,
			"team_a_average", p.TeamAAverage,
			"team_b_average", p.TeamBAverage,
		)
		res.created = append(res.created, match)
		res.kinds = append(res.kinds, p.Kind)
	}
	return res, nil
}

// announce publishes a lifecycle event and pushes the match to subscribers.
// Both are best effort.
func announce(ctx context.Context, publisher EventPublisher, broadcaster Broadcaster, m *metrics.Metrics, logger *slog.Logger, eventType string, match *domain.Match) {
	if err := publisher.PublishMatchEvent(ctx, domain.NewMatchEvent(eventType, match)); err != nil {
		m.SideChannelFailure("kafka")
		logger.Warn("failed to publish match event", "match_id", match.ID, "type", eventType, "error", err)
	}
	broadcaster.BroadcastMatchUpdate(match)
}
