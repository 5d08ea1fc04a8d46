package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shiba/internal/game"
)

var ErrRoundNotFound = errors.New("round not found")

// RoundStore persists finished rounds with their fairness verdicts.
type RoundStore struct {
	db *sql.DB
}

func NewRoundStore(db *sql.DB) *RoundStore {
	return &RoundStore{db: db}
}

func (s *RoundStore) Name() string { return "postgres" }

// Handle stores the round of every game_crash notification.
func (s *RoundStore) Handle(ctx context.Context, n game.Notification) error {
	if n.Type != game.NotifyGameCrash || n.Round == nil {
		return nil
	}
	return s.Save(ctx, n.Round)
}

const upsertRound = `
INSERT INTO rounds (id, crash_point, server_seed, server_seed_hash, forced, verified, chain_linked, started_at, tick_count, players)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    crash_point      = EXCLUDED.crash_point,
    server_seed      = EXCLUDED.server_seed,
    server_seed_hash = EXCLUDED.server_seed_hash,
    forced           = EXCLUDED.forced,
    verified         = EXCLUDED.verified,
    chain_linked     = EXCLUDED.chain_linked,
    started_at       = EXCLUDED.started_at,
    tick_count       = EXCLUDED.tick_count,
    players          = EXCLUDED.players,
    recorded_at      = NOW()`

func (s *RoundStore) Save(ctx context.Context, r *game.Round) error {
	players, err := json.Marshal(r.Players)
	if err != nil {
		return fmt.Errorf("marshal players of round %d: %w", r.ID, err)
	}

	var startedAt sql.NullTime
	if !r.StartTime.IsZero() {
		startedAt = sql.NullTime{Time: r.StartTime, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, upsertRound,
		r.ID, r.CrashPoint, r.ServerSeed, r.ServerSeedHash, r.Forced,
		string(r.Verified), r.ChainLinked, startedAt, len(r.Ticks), players)
	if err != nil {
		return fmt.Errorf("save round %d: %w", r.ID, err)
	}
	return nil
}

const selectRound = `
SELECT id, crash_point, server_seed, server_seed_hash, forced, verified, chain_linked, started_at, players
FROM rounds`

func (s *RoundStore) Get(ctx context.Context, id int64) (*game.Round, error) {
	row := s.db.QueryRowContext(ctx, selectRound+` WHERE id = $1`, id)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRoundNotFound, id)
	}
	return r, err
}

// Recent returns up to limit rounds, newest first.
func (s *RoundStore) Recent(ctx context.Context, limit int) ([]*game.Round, error) {
	return s.query(ctx, selectRound+` ORDER BY id DESC LIMIT $1`, limit)
}

// Disputed returns rounds whose verdict was not ok, newest first.
func (s *RoundStore) Disputed(ctx context.Context, limit int) ([]*game.Round, error) {
	return s.query(ctx, selectRound+` WHERE verified <> 'ok' ORDER BY id DESC LIMIT $1`, limit)
}

func (s *RoundStore) query(ctx context.Context, query string, args ...any) ([]*game.Round, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*game.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(row scanner) (*game.Round, error) {
	var (
		r         game.Round
		verified  string
		startedAt sql.NullTime
		players   []byte
	)
	err := row.Scan(&r.ID, &r.CrashPoint, &r.ServerSeed, &r.ServerSeedHash, &r.Forced,
		&verified, &r.ChainLinked, &startedAt, &players)
	if err != nil {
		return nil, err
	}

	r.Phase = game.PhaseEnded
	r.Verified = game.Verdict(verified)
	if startedAt.Valid {
		r.StartTime = startedAt.Time.In(time.UTC)
	}
	if err := json.Unmarshal(players, &r.Players); err != nil {
		return nil, fmt.Errorf("decode players of round %d: %w", r.ID, err)
	}
	return &r, nil
}
