// Package postgres wraps a lib/pq connection pool and stores frequent
// term-sets in the frequent_termsets table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/config"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS frequent_termsets (
    run_id     TEXT        NOT NULL,
    level      INTEGER     NOT NULL,
    support    INTEGER     NOT NULL,
    terms      TEXT[]      NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (run_id, terms)
);
CREATE INDEX IF NOT EXISTS frequent_termsets_run_level
    ON frequent_termsets (run_id, level, support DESC);
`

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens the pool and verifies it with a ping bounded by ctx.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// EnsureSchema creates the result table and its index when missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating frequent_termsets schema: %w", err)
	}
	return nil
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Row is one stored term-set.
type Row struct {
	Support int
	Terms   []string
}

// InsertLevel writes every row of one level in a single transaction.
// Re-inserting a level of the same run overwrites supports.
func (c *Client) InsertLevel(ctx context.Context, runID string, level int, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	return c.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO frequent_termsets (run_id, level, support, terms)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (run_id, terms) DO UPDATE SET support = EXCLUDED.support, level = EXCLUDED.level`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, runID, level, r.Support, pq.Array(r.Terms)); err != nil {
				return fmt.Errorf("inserting term-set %v: %w", r.Terms, err)
			}
		}
		return nil
	})
}

// Level reads back the rows of one level ordered by descending support.
func (c *Client) Level(ctx context.Context, runID string, level int) ([]Row, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT support, terms FROM frequent_termsets
		WHERE run_id = $1 AND level = $2
		ORDER BY support DESC, terms`, runID, level)
	if err != nil {
		return nil, fmt.Errorf("querying level %d: %w", level, err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Support, pq.Array(&r.Terms)); err != nil {
			return nil, fmt.Errorf("scanning term-set: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes every row stored for runID.
func (c *Client) DeleteRun(ctx context.Context, runID string) (int64, error) {
	res, err := c.DB.ExecContext(ctx, `DELETE FROM frequent_termsets WHERE run_id = $1`, runID)
	if err != nil {
		return 0, fmt.Errorf("deleting run %s: %w", runID, err)
	}
	return res.RowsAffected()
}
