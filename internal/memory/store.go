// Package memory is an in-process Store used by tests and the memory storage driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/match-lifecycle/internal/domain"
)

// Store keeps every aggregate in maps guarded by one mutex. Every method holds
// the lock for its whole duration, which gives the same per-call atomicity the
// Postgres repository gets from transactions.
type Store struct {
	mu             sync.RWMutex
	players        map[string]domain.Player
	entries        map[string]domain.QueueEntry
	matches        map[string]*domain.Match
	leagues        map[string]domain.League
	history        []domain.RankingHistoryRecord
	leagueRankings map[leagueKey]LeagueStanding
	regionStrength map[string]RegionRecord
}

type leagueKey struct {
	leagueID string
	playerID string
}

// LeagueStanding is a player's league-local record
type LeagueStanding struct {
	Points  int
	Matches int
	Wins    int
}

// RegionRecord counts inter-regional results for one region
type RegionRecord struct {
	Wins   int
	Losses int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		players:        make(map[string]domain.Player),
		entries:        make(map[string]domain.QueueEntry),
		matches:        make(map[string]*domain.Match),
		leagues:        make(map[string]domain.League),
		leagueRankings: make(map[leagueKey]LeagueStanding),
		regionStrength: make(map[string]RegionRecord),
	}
}

// UpsertPlayer stores a player profile
func (s *Store) UpsertPlayer(_ context.Context, p *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players[p.ID] = *p.Clone()
	return nil
}

// UpsertLeague stores a league
func (s *Store) UpsertLeague(_ context.Context, l *domain.League) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leagues[l.ID] = *l
	return nil
}

func (s *Store) GetPlayer(_ context.Context, id string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return p.Clone(), nil
}

func (s *Store) GetPlayers(_ context.Context, ids []string) (map[string]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Player, len(ids))
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			out[id] = *p.Clone()
		}
	}
	return out, nil
}

func (s *Store) CreateQueueEntry(_ context.Context, entry *domain.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.PlayerID == entry.PlayerID && e.Status == domain.QueueStatusActive {
			return domain.ErrAlreadyInQueue
		}
	}
	if s.heldByPendingMatch(entry.PlayerID) {
		return domain.ErrAlreadyInQueue
	}
	s.entries[entry.ID] = *entry
	return nil
}

// heldByPendingMatch reports whether one of the player's entries is claimed by
// a match still awaiting votes
func (s *Store) heldByPendingMatch(playerID string) bool {
	for _, e := range s.entries {
		if e.PlayerID != playerID || e.Status != domain.QueueStatusMatched {
			continue
		}
		if m, ok := s.matches[e.MatchID]; ok && m.Status == domain.MatchPendingApproval {
			return true
		}
	}
	return false
}

func (s *Store) GetActiveQueueEntry(_ context.Context, playerID string) (*domain.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.PlayerID == playerID && e.Status == domain.QueueStatusActive {
			return &e, nil
		}
	}
	return nil, domain.ErrQueueEntryNotFound
}

func (s *Store) CancelActiveQueueEntry(_ context.Context, playerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.PlayerID == playerID && e.Status == domain.QueueStatusActive {
			e.Status = domain.QueueStatusCancelled
			e.UpdatedAt = now
			s.entries[id] = e
			return nil
		}
	}
	if s.heldByPendingMatch(playerID) {
		return domain.ErrQueueEntryClaimed
	}
	return nil
}

func (s *Store) ListActiveQueueEntries(_ context.Context) ([]domain.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.QueueEntry
	for _, e := range s.entries {
		if e.Status == domain.QueueStatusActive {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateProposal(_ context.Context, match *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range match.QueueEntryIDs {
		e, ok := s.entries[id]
		if !ok || e.Status != domain.QueueStatusActive {
			return domain.ErrQueueEntryClaimed
		}
	}
	for _, id := range match.QueueEntryIDs {
		e := s.entries[id]
		e.Status = domain.QueueStatusMatched
		e.MatchID = match.ID
		e.UpdatedAt = match.CreatedAt
		s.entries[id] = e
	}
	s.matches[match.ID] = match.Clone()
	return nil
}

func (s *Store) GetMatch(_ context.Context, id string) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return m.Clone(), nil
}

func (s *Store) UpdateMatch(_ context.Context, id string, fn func(*domain.Match) error) (*domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.matches[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	if current.Status != domain.MatchCancelled && next.Status == domain.MatchCancelled {
		for _, entryID := range next.QueueEntryIDs {
			if e, ok := s.entries[entryID]; ok && e.Status == domain.QueueStatusMatched {
				e.Status = domain.QueueStatusCancelled
				e.UpdatedAt = next.UpdatedAt
				s.entries[entryID] = e
			}
		}
	}
	if current.CaptainID == "" && next.CaptainID != "" {
		if p, ok := s.players[next.CaptainID]; ok {
			at := next.UpdatedAt
			p.LastCaptainedAt = &at
			s.players[p.ID] = p
		}
	}

	s.matches[id] = next
	return next.Clone(), nil
}

func (s *Store) CompleteMatch(_ context.Context, id string, fn domain.CompletionFunc) (*domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.matches[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	next := current.Clone()

	participants := make(map[string]*domain.Player, 4)
	for _, pid := range next.PlayerIDs() {
		p, ok := s.players[pid]
		if !ok {
			return nil, domain.ErrPlayerNotFound
		}
		participants[pid] = p.Clone()
	}
	var league *domain.League
	if next.LeagueID != "" {
		l, ok := s.leagues[next.LeagueID]
		if !ok {
			return nil, domain.ErrLeagueNotFound
		}
		league = &l
	}

	rec, err := fn(next, participants, league)
	if err != nil {
		return nil, err
	}

	s.matches[id] = next
	for pid, p := range participants {
		s.players[pid] = *p
	}
	if rec != nil {
		s.history = append(s.history, rec.History...)
		for _, u := range rec.LeagueRankings {
			key := leagueKey{leagueID: u.LeagueID, playerID: u.PlayerID}
			st := s.leagueRankings[key]
			st.Points += u.Points
			st.Matches++
			if u.Won {
				st.Wins++
			}
			s.leagueRankings[key] = st
		}
		if rs := rec.RegionStrength; rs != nil {
			w := s.regionStrength[rs.WinnerRegion]
			w.Wins++
			s.regionStrength[rs.WinnerRegion] = w
			l := s.regionStrength[rs.LoserRegion]
			l.Losses++
			s.regionStrength[rs.LoserRegion] = l
		}
	}
	return next.Clone(), nil
}

func (s *Store) GetLeague(_ context.Context, id string) (*domain.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leagues[id]
	if !ok {
		return nil, domain.ErrLeagueNotFound
	}
	return &l, nil
}

// ListRankingHistory returns the player's history, newest first
func (s *Store) ListRankingHistory(_ context.Context, playerID string, limit int) ([]domain.RankingHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RankingHistoryRecord
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].PlayerID != playerID {
			continue
		}
		out = append(out, s.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// LeagueStanding returns a player's league-local record
func (s *Store) LeagueStanding(leagueID, playerID string) LeagueStanding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.leagueRankings[leagueKey{leagueID: leagueID, playerID: playerID}]
}

// RegionStrength returns the inter-regional record of a region
func (s *Store) RegionStrength(regionKey string) RegionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.regionStrength[regionKey]
}

// QueueEntry returns any entry by id, whatever its status
func (s *Store) QueueEntry(id string) (domain.QueueEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	return e, ok
}

// GraduatedRatings returns the ratings of every non-provisional player grouped by region key
func (s *Store) GraduatedRatings(_ context.Context) (map[string]map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]int)
	for _, p := range s.players {
		if p.Provisional() {
			continue
		}
		key := p.Region.Key()
		if out[key] == nil {
			out[key] = make(map[string]int)
		}
		out[key][p.ID] = p.Rating
	}
	return out, nil
}
