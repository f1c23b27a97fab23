package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the turn table on first connection. The table is append-only
// in the hot path; old rows are trimmed opportunistically per session.
const schema = `
CREATE TABLE IF NOT EXISTS voice_turns (
    id         BIGSERIAL PRIMARY KEY,
    session_id TEXT        NOT NULL,
    role       TEXT        NOT NULL,
    text       TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS voice_turns_session_idx ON voice_turns (session_id, id);
`

// PGStore is a PostgreSQL-backed Store. It holds a single [pgxpool.Pool];
// all operations are safe for concurrent use.
type PGStore struct {
	pool *pgxpool.Pool
	keep int
}

// Compile-time assertion that PGStore implements Store.
var _ Store = (*PGStore)(nil)

// NewPGStore connects to the database at dsn, ensures the schema exists, and
// returns a store retaining at most keep turns per session (keep <= 0 falls
// back to 40).
func NewPGStore(ctx context.Context, dsn string, keep int) (*PGStore, error) {
	if keep <= 0 {
		keep = 40
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}

	return &PGStore{pool: pool, keep: keep}, nil
}

// AppendTurn implements Store. After the insert it trims rows beyond the
// retention window for the session.
func (s *PGStore) AppendTurn(ctx context.Context, sessionID string, turn Turn) error {
	const insert = `INSERT INTO voice_turns (session_id, role, text, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, insert, sessionID, turn.Role, turn.Text, turn.At); err != nil {
		return fmt.Errorf("history: insert turn: %w", err)
	}

	const trim = `
DELETE FROM voice_turns
WHERE session_id = $1
  AND id NOT IN (
    SELECT id FROM voice_turns WHERE session_id = $1 ORDER BY id DESC LIMIT $2
  )`
	if _, err := s.pool.Exec(ctx, trim, sessionID, s.keep); err != nil {
		return fmt.Errorf("history: trim turns: %w", err)
	}
	return nil
}

// RecentTurns implements Store.
func (s *PGStore) RecentTurns(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if n <= 0 || n > s.keep {
		n = s.keep
	}

	const query = `
SELECT role, text, created_at FROM (
    SELECT id, role, text, created_at
    FROM voice_turns
    WHERE session_id = $1
    ORDER BY id DESC
    LIMIT $2
) sub ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("history: query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text, &t.At); err != nil {
			return nil, fmt.Errorf("history: scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate turns: %w", err)
	}
	return turns, nil
}

// Ping reports whether the database is reachable. Used by the readiness
// probe.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
