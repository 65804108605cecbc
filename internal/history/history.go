// Package history stores a record of every client operation in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/halcrud/internal/config"
	"github.com/studiowebux/halcrud/internal/migrations"
	"github.com/studiowebux/halcrud/internal/types"
)

const timestampLayout = "2006-01-02 15:04:05.000"

// DefaultLimit caps List when the filter sets no limit
const DefaultLimit = 50

// Filter narrows List
type Filter struct {
	Resource string
	Outcome  string
	Limit    int
}

// Manager reads and writes the operations table
type Manager struct {
	db *sql.DB
}

// NewManager opens (creating if needed) the database at dbPath and migrates it
func NewManager(dbPath string) (*Manager, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, config.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	// Run database migrations
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Manager{db: db}, nil
}

// Record saves one operation
func (m *Manager) Record(ctx context.Context, entry types.HistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	query := `
		INSERT INTO operations (
			timestamp, resource, label, method, url, status, outcome, duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.ExecContext(ctx, query,
		entry.Timestamp.UTC().Format(timestampLayout),
		entry.Resource,
		entry.Label,
		entry.Method,
		entry.URL,
		entry.Status,
		entry.Outcome,
		entry.DurationMs,
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}

	return nil
}

// List returns the newest entries first
func (m *Manager) List(ctx context.Context, filter Filter) ([]types.HistoryEntry, error) {
	var where []string
	var args []interface{}

	if filter.Resource != "" {
		where = append(where, "resource = ?")
		args = append(args, filter.Resource)
	}
	if filter.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `
		SELECT id, timestamp, resource, label, method, url, status, outcome, duration_ms, error
		FROM operations
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]types.HistoryEntry, error) {
	entries := make([]types.HistoryEntry, 0)

	for rows.Next() {
		var entry types.HistoryEntry
		var timestamp string
		var method, url, errorMsg sql.NullString

		err := rows.Scan(
			&entry.ID,
			&timestamp,
			&entry.Resource,
			&entry.Label,
			&method,
			&url,
			&entry.Status,
			&entry.Outcome,
			&entry.DurationMs,
			&errorMsg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}

		parsed, err := time.ParseInLocation(timestampLayout, timestamp, time.UTC)
		if err != nil {
			// Try RFC3339 format as fallback
			parsed, err = time.Parse(time.RFC3339, timestamp)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp %q in history entry %d", timestamp, entry.ID)
			}
		}

		entry.Timestamp = parsed.Local()
		entry.Method = method.String
		entry.URL = url.String
		entry.Error = errorMsg.String
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Clear deletes the entries of resource, or every entry when resource is empty
func (m *Manager) Clear(ctx context.Context, resource string) error {
	var err error
	if resource == "" {
		_, err = m.db.ExecContext(ctx, "DELETE FROM operations")
	} else {
		_, err = m.db.ExecContext(ctx, "DELETE FROM operations WHERE resource = ?", resource)
	}
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Delete removes one entry
func (m *Manager) Delete(ctx context.Context, id int64) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM operations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	return nil
}

// GetCount returns the number of recorded entries
func (m *Manager) GetCount(ctx context.Context) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operations").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get history count: %w", err)
	}
	return count, nil
}

// Close closes the database
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
