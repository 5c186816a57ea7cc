package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rp-notify/broker/internal/database"
)

// Postgres is the durable Store backend, one login_records table keyed
// on (user_id, client_id).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to Postgres and configures the pool the way the
// rest of the corpus's repositories do: bounded size, bounded lifetimes.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	cfg.MaxConns = 25
	cfg.MinConns = 5
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close implements Store.
func (p *Postgres) Close() {
	p.pool.Close()
}

// StoreLogin implements Store as an idempotent upsert: duplicate pairs
// only refresh last_seen_at, never error, never create a second row.
func (p *Postgres) StoreLogin(ctx context.Context, userID, clientID string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	const query = `
		INSERT INTO login_records (user_id, client_id, created_at, last_seen_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id, client_id) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
	`

	if _, err := p.pool.Exec(ctx, query, userID, clientID); err != nil {
		return fmt.Errorf("failed to store login: %w", err)
	}
	return nil
}

// FetchClientIDs implements Store.
func (p *Postgres) FetchClientIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	const query = `SELECT client_id FROM login_records WHERE user_id = $1`

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan client id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating client ids: %w", err)
	}

	return ids, nil
}
