package domain

import "time"

// League groups matches; some leagues are friendly and do not move the regional ranking
type League struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	AffectsRegionalRanking bool      `json:"affects_regional_ranking"`
	CreatedAt              time.Time `json:"created_at"`
}

// RankingHistoryRecord is an append-only log line of one player's rating change in one match
type RankingHistoryRecord struct {
	ID           string    `json:"id"`
	PlayerID     string    `json:"player_id"`
	MatchID      string    `json:"match_id"`
	PointsBefore int       `json:"points_before"`
	PointsAfter  int       `json:"points_after"`
	Delta        int       `json:"delta"`
	CreatedAt    time.Time `json:"created_at"`
}

// LeagueRankingUpdate is a league-local standings increment for one player
type LeagueRankingUpdate struct {
	LeagueID string `json:"league_id"`
	PlayerID string `json:"player_id"`
	Points   int    `json:"points"`
	Won      bool   `json:"won"`
}

// RegionStrengthUpdate records the outcome of an inter-regional match
type RegionStrengthUpdate struct {
	WinnerRegion string `json:"winner_region"`
	LoserRegion  string `json:"loser_region"`
}

// CompletionRecord is everything a completion writes besides the match and player rows
type CompletionRecord struct {
	History        []RankingHistoryRecord
	LeagueRankings []LeagueRankingUpdate
	RegionStrength *RegionStrengthUpdate
}

// RankingEntry represents a single entry in a regional ranking
type RankingEntry struct {
	Rank     int64  `json:"rank"`
	PlayerID string `json:"player_id"`
	Rating   int64  `json:"rating"`
}

// CompletionFunc computes a completion inside the store's transaction. It receives
// the locked match, its four participants and the league (nil for non-league
// matches), mutates them in place, and returns the extra rows to write.
type CompletionFunc func(m *Match, players map[string]*Player, league *League) (*CompletionRecord, error)
