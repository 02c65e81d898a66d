package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/match-lifecycle/internal/config"
	"github.com/match-lifecycle/internal/domain"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger.With("component", "postgres"),
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations applies the embedded goose migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertPlayer inserts or replaces a player profile
func (r *Repository) UpsertPlayer(ctx context.Context, p *domain.Player) error {
	availability, err := json.Marshal(p.Availability)
	if err != nil {
		return fmt.Errorf("marshaling availability: %w", err)
	}
	query := `
		INSERT INTO players (id, name, region_state, region_city, gender, side_preference, rating, category,
			matches_played, wins, provisional_games_played, availability, last_captained_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id)
		DO UPDATE SET name = $2, region_state = $3, region_city = $4, gender = $5, side_preference = $6,
			rating = $7, category = $8, matches_played = $9, wins = $10, provisional_games_played = $11,
			availability = $12, last_captained_at = $13, updated_at = $15
	`
	_, err = r.pool.Exec(ctx, query,
		p.ID, p.Name, p.Region.State, p.Region.City, string(p.Gender), string(p.SidePreference),
		p.Rating, p.Category, p.MatchesPlayed, p.Wins, p.ProvisionalGamesPlayed,
		availability, p.LastCaptainedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting player: %w", err)
	}
	return nil
}

// UpsertLeague inserts or replaces a league
func (r *Repository) UpsertLeague(ctx context.Context, l *domain.League) error {
	query := `
		INSERT INTO leagues (id, name, affects_regional_ranking, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, affects_regional_ranking = $3
	`
	if _, err := r.pool.Exec(ctx, query, l.ID, l.Name, l.AffectsRegionalRanking, l.CreatedAt); err != nil {
		return fmt.Errorf("upserting league: %w", err)
	}
	return nil
}

const playerColumns = `id, name, region_state, region_city, gender, side_preference, rating, category,
	matches_played, wins, provisional_games_played, availability, last_captained_at, created_at, updated_at`

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	var availability []byte
	err := row.Scan(
		&p.ID, &p.Name, &p.Region.State, &p.Region.City, &p.Gender, &p.SidePreference,
		&p.Rating, &p.Category, &p.MatchesPlayed, &p.Wins, &p.ProvisionalGamesPlayed,
		&availability, &p.LastCaptainedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(availability, &p.Availability); err != nil {
		return nil, fmt.Errorf("decoding availability of %s: %w", p.ID, err)
	}
	return &p, nil
}

// GetPlayer retrieves a player by ID
func (r *Repository) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	p, err := scanPlayer(r.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return p, nil
}

// GetPlayers retrieves the players that exist among ids
func (r *Repository) GetPlayers(ctx context.Context, ids []string) (map[string]domain.Player, error) {
	return r.getPlayers(ctx, r.pool, ids, false)
}

func (r *Repository) getPlayers(ctx context.Context, q querier, ids []string, forUpdate bool) (map[string]domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = ANY($1) ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("getting players: %w", err)
	}
	defer rows.Close()

	players := make(map[string]domain.Player, len(ids))
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		players[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting players: %w", err)
	}
	return players, nil
}

// GraduatedRatings returns the ratings of every non-provisional player grouped by region key
func (r *Repository) GraduatedRatings(ctx context.Context) (map[string]map[string]int, error) {
	query := `SELECT id, region_state, region_city, rating FROM players WHERE provisional_games_played >= $1`
	rows, err := r.pool.Query(ctx, query, domain.ProvisionalMatches)
	if err != nil {
		return nil, fmt.Errorf("getting graduated ratings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var id string
		var region domain.Region
		var rating int
		if err := rows.Scan(&id, &region.State, &region.City, &rating); err != nil {
			return nil, fmt.Errorf("scanning rating: %w", err)
		}
		key := region.Key()
		if out[key] == nil {
			out[key] = make(map[string]int)
		}
		out[key][id] = rating
	}
	return out, rows.Err()
}

// heldByPendingMatch tells whether a player's entry is claimed by a match still awaiting votes
const heldByPendingMatch = `
	SELECT EXISTS(
		SELECT 1 FROM queue_entries q JOIN matches m ON m.id = q.match_id
		WHERE q.player_id = $1 AND q.status = 'matched' AND m.status = 'pending_approval'
	)`

// CreateQueueEntry inserts an active entry. The player row is locked so a join
// cannot interleave with another join for the same player; a second active entry
// is rejected by the partial unique index, and an entry claimed by a match still
// pending approval keeps the player out of the queue.
func (r *Repository) CreateQueueEntry(ctx context.Context, e *domain.QueueEntry) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM players WHERE id = $1 FOR UPDATE`, e.PlayerID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrPlayerNotFound
			}
			return fmt.Errorf("locking player: %w", err)
		}

		var held bool
		err = tx.QueryRow(ctx, heldByPendingMatch, e.PlayerID).Scan(&held)
		if err != nil {
			return fmt.Errorf("checking claimed entries: %w", err)
		}
		if held {
			return domain.ErrAlreadyInQueue
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO queue_entries (id, player_id, partner_id, gender, preferred_side, average_rating, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			e.ID, e.PlayerID, e.PartnerID, string(e.Gender), string(e.PreferredSide),
			e.AverageRating, string(e.Status), e.CreatedAt, e.UpdatedAt,
		)
		return err
	})
	if err == nil || domain.KindOf(err) != nil {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return domain.ErrAlreadyInQueue
		case pgerrcode.ForeignKeyViolation:
			return domain.ErrPlayerNotFound
		}
	}
	return fmt.Errorf("creating queue entry: %w", err)
}

const entryColumns = `id, player_id, partner_id, gender, preferred_side, average_rating, status,
	COALESCE(match_id, ''), created_at, updated_at`

func scanEntry(row pgx.Row) (*domain.QueueEntry, error) {
	var e domain.QueueEntry
	err := row.Scan(
		&e.ID, &e.PlayerID, &e.PartnerID, &e.Gender, &e.PreferredSide, &e.AverageRating,
		&e.Status, &e.MatchID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetActiveQueueEntry returns the player's active entry
func (r *Repository) GetActiveQueueEntry(ctx context.Context, playerID string) (*domain.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE player_id = $1 AND status = 'active'`
	e, err := scanEntry(r.pool.QueryRow(ctx, query, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQueueEntryNotFound
		}
		return nil, fmt.Errorf("getting active queue entry: %w", err)
	}
	return e, nil
}

// CancelActiveQueueEntry cancels the player's active entry, refusing while one of
// their entries is held by a match still pending approval
func (r *Repository) CancelActiveQueueEntry(ctx context.Context, playerID string, now time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE queue_entries SET status = 'cancelled', updated_at = $2 WHERE player_id = $1 AND status = 'active'`,
			playerID, now,
		)
		if err != nil {
			return fmt.Errorf("cancelling queue entry: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		var claimed bool
		err = tx.QueryRow(ctx, heldByPendingMatch, playerID).Scan(&claimed)
		if err != nil {
			return fmt.Errorf("checking claimed entries: %w", err)
		}
		if claimed {
			return domain.ErrQueueEntryClaimed
		}
		return nil
	})
}

// ListActiveQueueEntries returns the waiting pool, oldest first
func (r *Repository) ListActiveQueueEntries(ctx context.Context) ([]domain.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE status = 'active' ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing queue entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// CreateProposal inserts the match with its votes and claims its queue entries
// in one transaction. Any entry no longer active rolls everything back.
func (r *Repository) CreateProposal(ctx context.Context, m *domain.Match) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertMatch(ctx, tx, m); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, v := range m.Votes {
			batch.Queue(
				`INSERT INTO match_votes (match_id, slot, player_id, vote, voted_at) VALUES ($1, $2, $3, $4, $5)`,
				m.ID, i, v.PlayerID, string(v.Vote), v.VotedAt,
			)
		}
		if err := execBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("inserting votes: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE queue_entries SET status = 'matched', match_id = $1, updated_at = $2
			WHERE id = ANY($3) AND status = 'active'`,
			m.ID, m.CreatedAt, m.QueueEntryIDs,
		)
		if err != nil {
			return fmt.Errorf("claiming queue entries: %w", err)
		}
		if tag.RowsAffected() != int64(len(m.QueueEntryIDs)) {
			return domain.ErrQueueEntryClaimed
		}
		return nil
	})
}

// matchRow carries the JSON-encoded columns of a match
type matchRow struct {
	teamA, teamB, availability, proposals, sets, deltas []byte
}

func encodeMatch(m *domain.Match) (matchRow, error) {
	var row matchRow
	var err error
	fields := []struct {
		dst *[]byte
		src any
	}{
		{&row.teamA, m.TeamA},
		{&row.teamB, m.TeamB},
		{&row.availability, nonNilAvailability(m.CommonAvailability)},
		{&row.proposals, nonNilSlice(m.TimeProposals)},
		{&row.sets, nonNilSlice(m.Sets)},
		{&row.deltas, nonNilDeltas(m.PointDeltas)},
	}
	for _, f := range fields {
		if *f.dst, err = json.Marshal(f.src); err != nil {
			return row, fmt.Errorf("encoding match %s: %w", m.ID, err)
		}
	}
	return row, nil
}

func nonNilAvailability(a domain.Availability) domain.Availability {
	if a == nil {
		return domain.Availability{}
	}
	return a
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilDeltas(d map[string]int) map[string]int {
	if d == nil {
		return map[string]int{}
	}
	return d
}

func insertMatch(ctx context.Context, q querier, m *domain.Match) error {
	row, err := encodeMatch(m)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO matches (id, league_id, team_a, team_b, status, scheduling_status, captain_id,
			common_availability, time_proposals, negotiation_deadline, scheduled_at, sets, winner_team,
			point_deltas, queue_entry_ids, created_at, updated_at, completed_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = q.Exec(ctx, query,
		m.ID, m.LeagueID, row.teamA, row.teamB, string(m.Status), string(m.SchedulingStatus), m.CaptainID,
		row.availability, row.proposals, m.NegotiationDeadline, m.ScheduledAt, row.sets, string(m.WinnerTeam),
		row.deltas, nonNilSlice(m.QueueEntryIDs), m.CreatedAt, m.UpdatedAt, m.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.Detail)
		}
		return fmt.Errorf("inserting match: %w", err)
	}
	return nil
}

func saveMatch(ctx context.Context, q querier, m *domain.Match) error {
	row, err := encodeMatch(m)
	if err != nil {
		return err
	}
	query := `
		UPDATE matches SET status = $2, scheduling_status = $3, captain_id = $4, common_availability = $5,
			time_proposals = $6, negotiation_deadline = $7, scheduled_at = $8, sets = $9, winner_team = $10,
			point_deltas = $11, updated_at = $12, completed_at = $13
		WHERE id = $1
	`
	_, err = q.Exec(ctx, query,
		m.ID, string(m.Status), string(m.SchedulingStatus), m.CaptainID, row.availability,
		row.proposals, m.NegotiationDeadline, m.ScheduledAt, row.sets, string(m.WinnerTeam),
		row.deltas, m.UpdatedAt, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("updating match: %w", err)
	}

	batch := &pgx.Batch{}
	for i, v := range m.Votes {
		batch.Queue(`UPDATE match_votes SET vote = $3, voted_at = $4 WHERE match_id = $1 AND slot = $2`,
			m.ID, i, string(v.Vote), v.VotedAt)
	}
	if err := execBatch(ctx, q, batch); err != nil {
		return fmt.Errorf("updating votes: %w", err)
	}
	return nil
}

const matchColumns = `id, COALESCE(league_id, ''), team_a, team_b, status, scheduling_status, captain_id,
	common_availability, time_proposals, negotiation_deadline, scheduled_at, sets, winner_team,
	point_deltas, queue_entry_ids, created_at, updated_at, completed_at`

func loadMatch(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var m domain.Match
	var row matchRow
	err := q.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.LeagueID, &row.teamA, &row.teamB, &m.Status, &m.SchedulingStatus, &m.CaptainID,
		&row.availability, &row.proposals, &m.NegotiationDeadline, &m.ScheduledAt, &row.sets, &m.WinnerTeam,
		&row.deltas, &m.QueueEntryIDs, &m.CreatedAt, &m.UpdatedAt, &m.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, fmt.Errorf("getting match: %w", err)
	}

	decode := []struct {
		src []byte
		dst any
	}{
		{row.teamA, &m.TeamA},
		{row.teamB, &m.TeamB},
		{row.availability, &m.CommonAvailability},
		{row.proposals, &m.TimeProposals},
		{row.sets, &m.Sets},
		{row.deltas, &m.PointDeltas},
	}
	for _, d := range decode {
		if err := json.Unmarshal(d.src, d.dst); err != nil {
			return nil, fmt.Errorf("decoding match %s: %w", m.ID, err)
		}
	}
	if len(m.PointDeltas) == 0 {
		m.PointDeltas = nil
	}
	if len(m.TimeProposals) == 0 {
		m.TimeProposals = nil
	}
	if len(m.Sets) == 0 {
		m.Sets = nil
	}

	rows, err := q.Query(ctx, `SELECT slot, player_id, vote, voted_at FROM match_votes WHERE match_id = $1 ORDER BY slot`, id)
	if err != nil {
		return nil, fmt.Errorf("getting votes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var slot int
		var v domain.ApprovalVote
		if err := rows.Scan(&slot, &v.PlayerID, &v.Vote, &v.VotedAt); err != nil {
			return nil, fmt.Errorf("scanning vote: %w", err)
		}
		if slot >= 0 && slot < len(m.Votes) {
			m.Votes[slot] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting votes: %w", err)
	}
	return &m, nil
}

// GetMatch retrieves a match with its votes
func (r *Repository) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	return loadMatch(ctx, r.pool, id, false)
}

// UpdateMatch locks the match row, applies fn and writes the result back
func (r *Repository) UpdateMatch(ctx context.Context, id string, fn func(*domain.Match) error) (*domain.Match, error) {
	var updated *domain.Match
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := loadMatch(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := saveMatch(ctx, tx, next); err != nil {
			return err
		}

		if current.Status != domain.MatchCancelled && next.Status == domain.MatchCancelled {
			_, err := tx.Exec(ctx, `
				UPDATE queue_entries SET status = 'cancelled', updated_at = $2
				WHERE id = ANY($1) AND status = 'matched'`,
				next.QueueEntryIDs, next.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("releasing queue entries: %w", err)
			}
		}
		if current.CaptainID == "" && next.CaptainID != "" {
			_, err := tx.Exec(ctx, `UPDATE players SET last_captained_at = $2 WHERE id = $1`, next.CaptainID, next.UpdatedAt)
			if err != nil {
				return fmt.Errorf("stamping captain: %w", err)
			}
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CompleteMatch locks the match and its four players and commits the completion,
// the player rows, rating history, league standings and region strength together
func (r *Repository) CompleteMatch(ctx context.Context, id string, fn domain.CompletionFunc) (*domain.Match, error) {
	var completed *domain.Match
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		m, err := loadMatch(ctx, tx, id, true)
		if err != nil {
			return err
		}
		ids := m.PlayerIDs()
		rows, err := r.getPlayers(ctx, tx, ids[:], true)
		if err != nil {
			return err
		}
		players := make(map[string]*domain.Player, len(rows))
		for _, pid := range ids {
			p, ok := rows[pid]
			if !ok {
				return domain.ErrPlayerNotFound
			}
			players[pid] = &p
		}
		var league *domain.League
		if m.LeagueID != "" {
			if league, err = getLeague(ctx, tx, m.LeagueID); err != nil {
				return err
			}
		}

		rec, err := fn(m, players, league)
		if err != nil {
			return err
		}
		if err := saveMatch(ctx, tx, m); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, p := range players {
			batch.Queue(`
				UPDATE players SET rating = $2, category = $3, matches_played = $4, wins = $5,
					provisional_games_played = $6, updated_at = $7
				WHERE id = $1`,
				p.ID, p.Rating, p.Category, p.MatchesPlayed, p.Wins, p.ProvisionalGamesPlayed, p.UpdatedAt,
			)
		}
		if rec != nil {
			queueCompletionRecord(batch, rec)
		}
		if err := execBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("writing completion: %w", err)
		}
		completed = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

func queueCompletionRecord(batch *pgx.Batch, rec *domain.CompletionRecord) {
	for _, h := range rec.History {
		batch.Queue(`
			INSERT INTO ranking_history (id, player_id, match_id, points_before, points_after, delta, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			h.ID, h.PlayerID, h.MatchID, h.PointsBefore, h.PointsAfter, h.Delta, h.CreatedAt,
		)
	}
	for _, u := range rec.LeagueRankings {
		wins := 0
		if u.Won {
			wins = 1
		}
		batch.Queue(`
			INSERT INTO league_rankings (league_id, player_id, points, matches, wins)
			VALUES ($1, $2, $3, 1, $4)
			ON CONFLICT (league_id, player_id)
			DO UPDATE SET points = league_rankings.points + $3, matches = league_rankings.matches + 1,
				wins = league_rankings.wins + $4`,
			u.LeagueID, u.PlayerID, u.Points, wins,
		)
	}
	if rs := rec.RegionStrength; rs != nil {
		batch.Queue(`
			INSERT INTO region_strength (region, wins, losses) VALUES ($1, 1, 0)
			ON CONFLICT (region) DO UPDATE SET wins = region_strength.wins + 1`,
			rs.WinnerRegion,
		)
		batch.Queue(`
			INSERT INTO region_strength (region, wins, losses) VALUES ($1, 0, 1)
			ON CONFLICT (region) DO UPDATE SET losses = region_strength.losses + 1`,
			rs.LoserRegion,
		)
	}
}

// execBatch sends the batch and checks every statement's result
func execBatch(ctx context.Context, q querier, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	sender, ok := q.(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	})
	if !ok {
		return errors.New("querier cannot send batches")
	}
	br := sender.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

func getLeague(ctx context.Context, q querier, id string) (*domain.League, error) {
	var l domain.League
	err := q.QueryRow(ctx,
		`SELECT id, name, affects_regional_ranking, created_at FROM leagues WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.AffectsRegionalRanking, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLeagueNotFound
		}
		return nil, fmt.Errorf("getting league: %w", err)
	}
	return &l, nil
}

// GetLeague retrieves a league by ID
func (r *Repository) GetLeague(ctx context.Context, id string) (*domain.League, error) {
	return getLeague(ctx, r.pool, id)
}

// ListRankingHistory returns a player's most recent rating changes, newest first
func (r *Repository) ListRankingHistory(ctx context.Context, playerID string, limit int) ([]domain.RankingHistoryRecord, error) {
	query := `
		SELECT id, player_id, match_id, points_before, points_after, delta, created_at
		FROM ranking_history
		WHERE player_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing ranking history: %w", err)
	}
	defer rows.Close()

	var records []domain.RankingHistoryRecord
	for rows.Next() {
		var h domain.RankingHistoryRecord
		if err := rows.Scan(&h.ID, &h.PlayerID, &h.MatchID, &h.PointsBefore, &h.PointsAfter, &h.Delta, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ranking history: %w", err)
		}
		records = append(records, h)
	}
	return records, rows.Err()
}
