package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/metrics"
	"github.com/match-lifecycle/internal/rating"
)

// CompletionService closes played matches and applies their rating changes
type CompletionService struct {
	store        Store
	ranking      RankingIndex
	publisher    EventPublisher
	broadcaster  Broadcaster
	broadcastTop int
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// NewCompletionService creates a new completion service. ranking may be nil when
// no regional ranking feed is configured.
func NewCompletionService(
	store Store,
	ranking RankingIndex,
	publisher EventPublisher,
	broadcaster Broadcaster,
	broadcastTop int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CompletionService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	return &CompletionService{
		store:        store,
		ranking:      ranking,
		publisher:    publisher,
		broadcaster:  broadcaster,
		broadcastTop: broadcastTop,
		metrics:      m,
		logger:       logger.With("component", "completion"),
		now:          time.Now,
	}
}

// SubmitResult validates a reported result, computes the rating deltas and
// commits the match, the four players and the bookkeeping rows in one unit.
func (s *CompletionService) SubmitResult(ctx context.Context, req domain.ResultRequest) (*domain.ResultDeltas, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	var deltas domain.ResultDeltas
	var winnerPoints int
	var final []domain.Player
	updated, err := s.store.CompleteMatch(ctx, req.MatchID, func(m *domain.Match, players map[string]*domain.Player, league *domain.League) (*domain.CompletionRecord, error) {
		if !m.IsParticipant(req.PlayerID) {
			return nil, domain.ErrNotParticipant
		}
		if m.Status != domain.MatchScheduled {
			return nil, domain.ErrMatchNotScheduled
		}

		rec, res := complete(m, players, league, req, now)
		deltas = domain.ResultDeltas{
			MatchID:    m.ID,
			TeamADelta: m.PointDeltas[m.TeamA.Players[0].PlayerID],
			TeamBDelta: m.PointDeltas[m.TeamB.Players[0].PlayerID],
			Counted:    league == nil || league.AffectsRegionalRanking,
		}
		winnerPoints = res.WinnerDelta
		final = final[:0]
		for _, id := range m.PlayerIDs() {
			final = append(final, *players[id])
		}
		return rec, nil
	})
	if err != nil {
		return nil, storeErr("complete match", err)
	}

	s.metrics.Completion(deltas.Counted, winnerPoints)
	s.logger.Info("match completed",
		"match_id", updated.ID,
		"winner_team", updated.WinnerTeam,
		"team_a_delta", deltas.TeamADelta,
		"team_b_delta", deltas.TeamBDelta,
		"counted", deltas.Counted,
	)
	if deltas.Counted {
		s.refreshRanking(ctx, final)
	}
	announce(ctx, s.publisher, s.broadcaster, s.metrics, s.logger, domain.EventMatchCompleted, updated)
	return &deltas, nil
}

// complete applies a validated result to the locked aggregates. Leagues that do
// not affect the regional ranking keep ratings, provisional progress and history
// untouched but still get their league-local standings.
func complete(m *domain.Match, players map[string]*domain.Player, league *domain.League, req domain.ResultRequest, now time.Time) (*domain.CompletionRecord, rating.Result) {
	winner, loser := req.WinnerTeam, req.WinnerTeam.Other()
	provisional := false
	for _, p := range players {
		if p.Provisional() {
			provisional = true
		}
	}
	res := rating.Calculate(rating.Input{
		WinnerAverage:       teamAverage(m.Team(winner), players),
		LoserAverage:        teamAverage(m.Team(loser), players),
		Sets:                req.Sets,
		WinnerTeam:          winner,
		WinnerWasDuo:        m.Team(winner).WasDuo,
		ProvisionalInvolved: provisional,
	})
	counted := league == nil || league.AffectsRegionalRanking

	rec := &domain.CompletionRecord{}
	m.PointDeltas = make(map[string]int, 4)
	for _, id := range m.PlayerIDs() {
		p := players[id]
		team, _ := m.TeamOf(id)
		won := team == winner
		delta := res.LoserDelta
		if won {
			delta = res.WinnerDelta
		}
		m.PointDeltas[id] = delta

		p.MatchesPlayed++
		if won {
			p.Wins++
		}
		if counted {
			before := p.Rating
			p.Rating = rating.Apply(before, delta)
			p.Category = rating.Category(p.Rating)
			p.ProvisionalGamesPlayed++
			rec.History = append(rec.History, domain.RankingHistoryRecord{
				ID:           uuid.NewString(),
				PlayerID:     id,
				MatchID:      m.ID,
				PointsBefore: before,
				PointsAfter:  p.Rating,
				Delta:        p.Rating - before,
				CreatedAt:    now,
			})
		}
		p.UpdatedAt = now

		if league != nil {
			rec.LeagueRankings = append(rec.LeagueRankings, domain.LeagueRankingUpdate{
				LeagueID: league.ID,
				PlayerID: id,
				Points:   delta,
				Won:      won,
			})
		}
	}

	winnerRegion := teamRegion(m.Team(winner), players)
	loserRegion := teamRegion(m.Team(loser), players)
	if winnerRegion != "" && loserRegion != "" && winnerRegion != loserRegion {
		rec.RegionStrength = &domain.RegionStrengthUpdate{WinnerRegion: winnerRegion, LoserRegion: loserRegion}
	}

	completedAt := now
	m.Status = domain.MatchCompleted
	m.Sets = append([]domain.SetScore(nil), req.Sets...)
	m.WinnerTeam = winner
	m.CompletedAt = &completedAt
	m.UpdatedAt = now
	return rec, res
}

func teamAverage(t domain.Team, players map[string]*domain.Player) float64 {
	return float64(players[t.Players[0].PlayerID].Rating+players[t.Players[1].PlayerID].Rating) / 2
}

// teamRegion returns the region both players share, or "" for a mixed team
func teamRegion(t domain.Team, players map[string]*domain.Player) string {
	first := players[t.Players[0].PlayerID].Region.Key()
	if players[t.Players[1].PlayerID].Region.Key() != first {
		return ""
	}
	return first
}

// refreshRanking pushes graduated players' new ratings to the regional ranking
// and broadcasts each touched region's top list. Failures only degrade the feed.
func (s *CompletionService) refreshRanking(ctx context.Context, players []domain.Player) {
	if s.ranking == nil {
		return
	}
	byRegion := make(map[string]map[string]int)
	for _, p := range players {
		if p.Provisional() {
			continue
		}
		key := p.Region.Key()
		if byRegion[key] == nil {
			byRegion[key] = make(map[string]int)
		}
		byRegion[key][p.ID] = p.Rating
	}

	for region, ratings := range byRegion {
		if err := s.ranking.SetRatings(ctx, region, ratings); err != nil {
			s.metrics.SideChannelFailure("redis")
			s.logger.Warn("failed to update regional ranking", "region", region, "error", err)
			continue
		}
		top, err := s.ranking.GetTopN(ctx, region, s.broadcastTop)
		if err != nil {
			s.metrics.SideChannelFailure("redis")
			s.logger.Warn("failed to read regional ranking", "region", region, "error", err)
			continue
		}
		s.broadcaster.BroadcastRankingUpdate(region, top)
	}
}
