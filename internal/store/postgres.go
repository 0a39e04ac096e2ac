package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/Cheese-Arena/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Open connects to Postgres with the pool settings used across services.
func Open(databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type Postgres struct {
	db            *sql.DB
	defaultRating int
}

func NewPostgres(db *sql.DB, defaultRating int) *Postgres {
	if defaultRating <= 0 {
		defaultRating = DefaultRating
	}
	return &Postgres{db: db, defaultRating: defaultRating}
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Migrate applies the bundled schema. Safe to run repeatedly.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) CreateMatch(ctx context.Context, m *domain.MatchRecord) error {
	if m == nil || strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("nil match payload")
	}
	movesSAN, movesUCI, err := encodeMoves(m.MovesSAN, m.MovesUCI)
	if err != nil {
		return err
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	const q = `
		INSERT INTO matches (id, kind, white_id, black_id, fen, moves_san, moves_uci, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6::jsonb, $7::jsonb, $8, $8)
		ON CONFLICT (id) DO NOTHING`
	res, err := p.db.ExecContext(ctx, q, m.ID, string(m.Kind), m.WhiteID, m.BlackID, m.FEN, movesSAN, movesUCI, created)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateMatch
	}
	return nil
}

func (p *Postgres) AssignSeat(ctx context.Context, matchID string, seat domain.Seat, participantID string) error {
	var q string
	switch seat {
	case domain.White:
		q = `UPDATE matches SET white_id = $2, updated_at = now()
			WHERE id = $1 AND (white_id IS NULL OR white_id = $2)`
	case domain.Black:
		q = `UPDATE matches SET black_id = $2, updated_at = now()
			WHERE id = $1 AND (black_id IS NULL OR black_id = $2)`
	default:
		return fmt.Errorf("unknown seat %q", seat)
	}
	res, err := p.db.ExecContext(ctx, q, matchID, participantID)
	if err != nil {
		return fmt.Errorf("assign seat: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	m, err := p.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}
	return ErrSeatTaken
}

func (p *Postgres) GetMatch(ctx context.Context, id string) (*domain.MatchRecord, error) {
	return scanMatch(p.db.QueryRowContext(ctx, selectMatch+` WHERE id = $1`, id))
}

func (p *Postgres) SaveProgress(ctx context.Context, matchID, fen string, movesSAN, movesUCI []string) error {
	san, uci, err := encodeMoves(movesSAN, movesUCI)
	if err != nil {
		return err
	}
	const q = `UPDATE matches SET fen = $2, moves_san = $3::jsonb, moves_uci = $4::jsonb, updated_at = now()
		WHERE id = $1 AND result IS NULL`
	if _, err := p.db.ExecContext(ctx, q, matchID, fen, san, uci); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Finalize writes the final snapshot and rating deltas in one transaction.
// A row that already carries a result is left as is.
func (p *Postgres) Finalize(ctx context.Context, f Final) (Outcome, error) {
	san, uci, err := encodeMoves(f.MovesSAN, f.MovesUCI)
	if err != nil {
		return Outcome{}, err
	}
	ended := f.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	created := f.StartedAt
	if created.IsZero() {
		created = ended
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("begin finalize: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
		INSERT INTO matches (id, kind, white_id, black_id, fen, moves_san, moves_uci, result, winner_id, pgn, created_at, ended_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6::jsonb, $7::jsonb, $8, NULLIF($9, ''), $10, $11, $12, $12)
		ON CONFLICT (id) DO UPDATE SET
			white_id = EXCLUDED.white_id,
			black_id = EXCLUDED.black_id,
			fen = EXCLUDED.fen,
			moves_san = EXCLUDED.moves_san,
			moves_uci = EXCLUDED.moves_uci,
			result = EXCLUDED.result,
			winner_id = EXCLUDED.winner_id,
			pgn = EXCLUDED.pgn,
			ended_at = EXCLUDED.ended_at,
			updated_at = EXCLUDED.updated_at
		WHERE matches.result IS NULL`
	res, err := tx.ExecContext(ctx, upsert,
		f.MatchID, string(f.Kind), f.WhiteID, f.BlackID, f.FEN, san, uci,
		string(f.Result), f.WinnerID, BuildPGN(f), created, ended,
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert match: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		m, err := p.GetMatch(ctx, f.MatchID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Applied: false, Match: m, Ratings: p.currentRatings(ctx, m)}, nil
	}

	ratings := map[string]int{}
	// 레이팅은 양쪽 각각 [Min, Max]로 clamp
	if rc := f.Ratings; rc != nil {
		const adjust = `UPDATE users SET rating = LEAST(GREATEST(rating + $2, $3), $4), updated_at = now()
			WHERE id = $1 RETURNING rating`
		for _, step := range []struct {
			id    string
			delta int
		}{{rc.WinnerID, rc.Gain}, {rc.LoserID, -rc.Loss}} {
			var r int
			if err := tx.QueryRowContext(ctx, adjust, step.id, step.delta, rc.Min, rc.Max).Scan(&r); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return Outcome{}, fmt.Errorf("adjust rating %s: %w", step.id, ErrNotFound)
				}
				return Outcome{}, fmt.Errorf("adjust rating %s: %w", step.id, err)
			}
			ratings[step.id] = r
		}
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("commit finalize: %w", err)
	}
	m, err := p.GetMatch(ctx, f.MatchID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Applied: true, Match: m, Ratings: ratings}, nil
}

func (p *Postgres) currentRatings(ctx context.Context, m *domain.MatchRecord) map[string]int {
	out := map[string]int{}
	if m == nil || m.Kind != domain.KindRated {
		return out
	}
	for _, id := range []string{m.WhiteID, m.BlackID} {
		if u, err := p.GetUser(ctx, id); err == nil && u != nil {
			out[id] = u.Rating
		}
	}
	return out
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*domain.User, error) {
	const q = `SELECT id, username, rating, created_at, updated_at FROM users WHERE id = $1`
	var u domain.User
	err := p.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Username, &u.Rating, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) EnsureUser(ctx context.Context, id, username string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" {
		username = id
	}
	const q = `INSERT INTO users (id, username, rating) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`
	if _, err := p.db.ExecContext(ctx, q, id, username, p.defaultRating); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return p.GetUser(ctx, id)
}

const selectMatch = `
	SELECT id, kind, COALESCE(white_id, ''), COALESCE(black_id, ''), fen, moves_san, moves_uci,
		COALESCE(result, ''), COALESCE(winner_id, ''), pgn, created_at, ended_at
	FROM matches`

func scanMatch(row *sql.Row) (*domain.MatchRecord, error) {
	var (
		m         domain.MatchRecord
		kind, res string
		san, uci  []byte
		endedAt   sql.NullTime
	)
	err := row.Scan(&m.ID, &kind, &m.WhiteID, &m.BlackID, &m.FEN, &san, &uci, &res, &m.WinnerID, &m.PGN, &m.CreatedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan match: %w", err)
	}
	m.Kind = domain.Kind(kind)
	m.Result = domain.Result(res)
	if endedAt.Valid {
		m.EndedAt = endedAt.Time
	}
	if len(san) > 0 {
		if err := json.Unmarshal(san, &m.MovesSAN); err != nil {
			return nil, fmt.Errorf("unmarshal moves_san: %w", err)
		}
	}
	if len(uci) > 0 {
		if err := json.Unmarshal(uci, &m.MovesUCI); err != nil {
			return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
		}
	}
	return &m, nil
}

func encodeMoves(san, uci []string) (string, string, error) {
	if san == nil {
		san = []string{}
	}
	if uci == nil {
		uci = []string{}
	}
	s, err := json.Marshal(san)
	if err != nil {
		return "", "", fmt.Errorf("marshal moves_san: %w", err)
	}
	u, err := json.Marshal(uci)
	if err != nil {
		return "", "", fmt.Errorf("marshal moves_uci: %w", err)
	}
	return string(s), string(u), nil
}
