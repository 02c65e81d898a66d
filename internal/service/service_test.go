package service

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/match-lifecycle/internal/approval"
	"github.com/match-lifecycle/internal/config"
	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/matchmaking"
	"github.com/match-lifecycle/internal/memory"
	"github.com/match-lifecycle/internal/metrics"
	"github.com/match-lifecycle/internal/rating"
)

// Monday morning
var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

var (
	barcelona = domain.Region{State: "Catalonia", City: "Barcelona"}
	madrid    = domain.Region{State: "Madrid", City: "Madrid"}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.MatchEvent
	err    error
}

func (p *recordingPublisher) PublishMatchEvent(_ context.Context, event domain.MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	matches  []domain.Match
	rankings map[string][]domain.RankingEntry
}

func (b *recordingBroadcaster) BroadcastMatchUpdate(m *domain.Match) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matches = append(b.matches, *m.Clone())
}

func (b *recordingBroadcaster) BroadcastRankingUpdate(regionKey string, entries []domain.RankingEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rankings == nil {
		b.rankings = make(map[string][]domain.RankingEntry)
	}
	b.rankings[regionKey] = entries
}

func (b *recordingBroadcaster) matchUpdates() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.matches)
}

// fakeRanking is an in-memory RankingIndex
type fakeRanking struct {
	mu      sync.Mutex
	ratings map[string]map[string]int
	lastN   int
	setErr  error
	topErr  error
}

func (r *fakeRanking) SetRatings(_ context.Context, regionKey string, ratings map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	if r.ratings == nil {
		r.ratings = make(map[string]map[string]int)
	}
	if r.ratings[regionKey] == nil {
		r.ratings[regionKey] = make(map[string]int)
	}
	for id, v := range ratings {
		r.ratings[regionKey][id] = v
	}
	return nil
}

func (r *fakeRanking) GetTopN(_ context.Context, regionKey string, n int) ([]domain.RankingEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastN = n
	if r.topErr != nil {
		return nil, r.topErr
	}
	var out []domain.RankingEntry
	for id, v := range r.ratings[regionKey] {
		out = append(out, domain.RankingEntry{PlayerID: id, Rating: int64(v)})
	}
	slices.SortFunc(out, func(a, b domain.RankingEntry) int {
		return cmp.Or(cmp.Compare(b.Rating, a.Rating), cmp.Compare(a.PlayerID, b.PlayerID))
	})
	if len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Rank = int64(i + 1)
	}
	return out, nil
}

type countingTrigger struct {
	n atomic.Int32
}

func (c *countingTrigger) Trigger() { c.n.Add(1) }

type fakeLock struct {
	ok       bool
	err      error
	released atomic.Int32
}

func (l *fakeLock) Acquire(context.Context) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() { l.released.Add(1) }, true, nil
}

type fixture struct {
	store       *memory.Store
	publisher   *recordingPublisher
	broadcaster *recordingBroadcaster
	ranking     *fakeRanking
	trigger     *countingTrigger

	queue       *QueueService
	matchmaking *MatchmakingService
	approval    *ApprovalService
	completion  *CompletionService
	rankings    *RankingService
}

type fixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	lock    SweepLock
	ranking bool
}

func withLock(lock SweepLock) fixtureOption {
	return func(o *fixtureOptions) { o.lock = lock }
}

func withoutRanking() fixtureOption {
	return func(o *fixtureOptions) { o.ranking = false }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// firstCandidate makes captain ties deterministic
func firstCandidate(candidates []string) string { return candidates[0] }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	o := fixtureOptions{ranking: true}
	for _, opt := range opts {
		opt(&o)
	}

	f := &fixture{
		store:       memory.NewStore(),
		publisher:   &recordingPublisher{},
		broadcaster: &recordingBroadcaster{},
		ranking:     &fakeRanking{},
		trigger:     &countingTrigger{},
	}
	var ranking RankingIndex
	if o.ranking {
		ranking = f.ranking
	}
	m := metrics.New()
	logger := discardLogger()
	clock := func() time.Time { return testNow }

	f.queue = NewQueueService(f.store, f.trigger, m, logger)
	f.queue.now = clock
	f.matchmaking = NewMatchmakingService(f.store, matchmaking.NewEngine(matchmaking.DefaultThresholds()), o.lock, f.publisher, f.broadcaster, m, logger)
	f.matchmaking.now = clock
	f.approval = NewApprovalService(f.store, approval.NewMachine(approval.DefaultPolicy(time.UTC), firstCandidate), f.publisher, f.broadcaster, m, logger)
	f.approval.now = clock
	f.completion = NewCompletionService(f.store, ranking, f.publisher, f.broadcaster, 10, m, logger)
	f.completion.now = clock
	f.rankings = NewRankingService(f.store, ranking, &config.RankingConfig{DefaultLimit: 20, MaxLimit: 200, BroadcastTop: 10})
	return f
}

// addPlayer stores a graduated player free on Thursday evenings
func (f *fixture) addPlayer(t *testing.T, id string, r int, region domain.Region, mutate ...func(*domain.Player)) *domain.Player {
	t.Helper()
	p := &domain.Player{
		ID:                     id,
		Name:                   id,
		Region:                 region,
		Gender:                 domain.GenderMale,
		SidePreference:         domain.SideBoth,
		Rating:                 r,
		Category:               rating.Category(r),
		ProvisionalGamesPlayed: domain.ProvisionalMatches,
		Availability:           domain.Availability{time.Thursday: {domain.PeriodEvening}},
		CreatedAt:              testNow,
		UpdatedAt:              testNow,
	}
	for _, fn := range mutate {
		fn(p)
	}
	require.NoError(t, f.store.UpsertPlayer(context.Background(), p))
	return p
}

func (f *fixture) player(t *testing.T, id string) *domain.Player {
	t.Helper()
	p, err := f.store.GetPlayer(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) joinSolo(t *testing.T, id string) *domain.QueueEntry {
	t.Helper()
	e, err := f.queue.JoinQueue(context.Background(), domain.JoinRequest{PlayerID: id, Gender: domain.GenderMale})
	require.NoError(t, err)
	return e
}

func (f *fixture) joinDuo(t *testing.T, first, second string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.queue.JoinQueue(ctx, domain.JoinRequest{PlayerID: first, PartnerID: second, Gender: domain.GenderMale})
	require.NoError(t, err)
	_, err = f.queue.JoinQueue(ctx, domain.JoinRequest{PlayerID: second, PartnerID: first, Gender: domain.GenderMale})
	require.NoError(t, err)
}

// proposeSolos queues four close solos and sweeps them into one proposal
func (f *fixture) proposeSolos(t *testing.T) *domain.Match {
	t.Helper()
	for i, id := range []string{"s1", "s2", "s3", "s4"} {
		f.addPlayer(t, id, 1000+10*i, barcelona)
		f.joinSolo(t, id)
	}
	matches, err := f.matchmaking.RunSweep(context.Background())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return &matches[0]
}

// approveAll casts four approvals and returns the final result
func (f *fixture) approveAll(t *testing.T, m *domain.Match) *domain.VoteResult {
	t.Helper()
	var res *domain.VoteResult
	for _, id := range m.PlayerIDs() {
		var err error
		res, err = f.approval.CastVote(context.Background(), domain.VoteRequest{MatchID: m.ID, PlayerID: id, Approved: true})
		require.NoError(t, err)
	}
	return res
}

// scheduledMatch stores a match already in scheduled state, A1 A2 against B1 B2
func (f *fixture) scheduledMatch(t *testing.T, id, leagueID string, players [4]string) *domain.Match {
	t.Helper()
	at := testNow.Add(-2 * time.Hour)
	m := &domain.Match{
		ID:       id,
		LeagueID: leagueID,
		TeamA:    domain.Team{Players: [2]domain.Slot{{PlayerID: players[0], Side: domain.SideLeft}, {PlayerID: players[1], Side: domain.SideRight}}},
		TeamB:    domain.Team{Players: [2]domain.Slot{{PlayerID: players[2], Side: domain.SideLeft}, {PlayerID: players[3], Side: domain.SideRight}}},
		Status:   domain.MatchScheduled,

		SchedulingStatus: domain.SchedulingConfirmed,
		CaptainID:        players[0],
		ScheduledAt:      &at,
		CreatedAt:        testNow.Add(-72 * time.Hour),
		UpdatedAt:        testNow.Add(-72 * time.Hour),
	}
	m.ResetVotes()
	require.NoError(t, f.store.CreateProposal(context.Background(), m))
	return m
}
