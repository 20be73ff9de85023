// Package cache persists the local board to disk so work survives a
// restart even when the replicated store is unreachable.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dhanucoding/retro-app/go/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS boards (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	payload    BLOB    NOT NULL,
	updated_at INTEGER NOT NULL
);`

// BoardCache is a single-row sqlite store for the local board document.
type BoardCache struct {
	db *sql.DB
}

// Open creates or opens the cache database at path.
func Open(path string) (*BoardCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open board cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init board cache schema: %w", err)
	}
	return &BoardCache{db: db}, nil
}

// Save overwrites the cached board.
func (c *BoardCache) Save(ctx context.Context, b models.Board) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal board: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO boards (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		payload, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save board: %w", err)
	}
	return nil
}

// Load reads the cached board. The second return is false when the cache
// is empty.
func (c *BoardCache) Load(ctx context.Context) (models.Board, bool, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM boards WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Board{}, false, nil
	}
	if err != nil {
		return models.Board{}, false, fmt.Errorf("load board: %w", err)
	}

	b, err := models.DecodeBoard(payload)
	if err != nil {
		return models.Board{}, false, fmt.Errorf("decode cached board: %w", err)
	}
	return b, true, nil
}

// Clear removes the cached board.
func (c *BoardCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM boards`); err != nil {
		return fmt.Errorf("clear board cache: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (c *BoardCache) Close() error {
	return c.db.Close()
}
