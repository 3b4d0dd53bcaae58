package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS ledger_games (
    game_id      TEXT PRIMARY KEY,
    seat_one     TEXT NOT NULL,
    seat_two     TEXT NOT NULL,
    winner       TEXT NOT NULL,
    result       TEXT NOT NULL,
    termination  TEXT NOT NULL,
    moves_san    JSONB NOT NULL,
    eco          TEXT NOT NULL DEFAULT '',
    opening      TEXT NOT NULL DEFAULT '',
    pgn          TEXT NOT NULL,
    started_at   TIMESTAMPTZ,
    ended_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_games_seat_one_idx ON ledger_games (lower(seat_one));
CREATE INDEX IF NOT EXISTS ledger_games_seat_two_idx ON ledger_games (lower(seat_two));`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save upserts the entry.
func (r *PostgresRepository) Save(ctx context.Context, e *Entry) error {
	if r == nil || r.db == nil || e == nil {
		return nil
	}
	movesRaw, err := json.Marshal(e.Moves)
	if err != nil {
		return err
	}
	q := `INSERT INTO ledger_games (
        game_id, seat_one, seat_two, winner, result, termination,
        moves_san, eco, opening, pgn, started_at, ended_at
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
      ) ON CONFLICT (game_id) DO UPDATE SET
        seat_one=EXCLUDED.seat_one,
        seat_two=EXCLUDED.seat_two,
        winner=EXCLUDED.winner,
        result=EXCLUDED.result,
        termination=EXCLUDED.termination,
        moves_san=EXCLUDED.moves_san,
        eco=EXCLUDED.eco,
        opening=EXCLUDED.opening,
        pgn=EXCLUDED.pgn,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at`

	_, err = r.db.ExecContext(ctx, q,
		e.GameID, e.SeatOne, e.SeatTwo, e.Winner, e.Result, e.Termination,
		string(movesRaw), e.ECO, e.Opening, e.PGN, nullTime(e.StartedAt), e.EndedAt,
	)
	return err
}

const selectCols = `game_id, seat_one, seat_two, winner, result, termination, moves_san, eco, opening, pgn, started_at, ended_at`

func (r *PostgresRepository) Get(ctx context.Context, gameID string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM ledger_games WHERE game_id=$1`, gameID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *PostgresRepository) RecentByPlayer(ctx context.Context, addr string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectCols+` FROM ledger_games
          WHERE lower(seat_one)=lower($1) OR lower(seat_two)=lower($1)
          ORDER BY ended_at DESC LIMIT $2`, strings.TrimSpace(addr), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e        Entry
		movesRaw []byte
		started  sql.NullTime
	)
	if err := s.Scan(&e.GameID, &e.SeatOne, &e.SeatTwo, &e.Winner, &e.Result, &e.Termination,
		&movesRaw, &e.ECO, &e.Opening, &e.PGN, &started, &e.EndedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(movesRaw, &e.Moves); err != nil {
		return nil, fmt.Errorf("decode moves: %w", err)
	}
	if started.Valid {
		e.StartedAt = started.Time
	}
	return &e, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
