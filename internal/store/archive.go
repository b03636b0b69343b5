package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// ArchiveStore keeps transcripts of closed or expired cases in a separate
// SQLite file so the primary store stays small. It rides the cgo sqlite3
// driver; the primary store stays on the pure-Go driver so a broken cgo
// toolchain only costs archival, never live traffic. Archival is best
// effort: failures log and never block cleanup.
type ArchiveStore struct {
	db     *sql.DB
	dbPath string
}

// NewArchiveStore opens (or creates) the archive database.
func NewArchiveStore(path string) (*ArchiveStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("archive: failed to set busy_timeout: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS archived_cases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		phase INTEGER NOT NULL,
		transcript TEXT NOT NULL,
		archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_archived_user ON archived_cases(user_id);
	CREATE INDEX IF NOT EXISTS idx_archived_at ON archived_cases(archived_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	logging.Store("ArchiveStore ready at %s", path)
	return &ArchiveStore{db: db, dbPath: path}, nil
}

// ArchiveCase stores the case transcript. Re-archiving the same case id
// replaces the previous transcript, keeping the sweeper idempotent.
func (a *ArchiveStore) ArchiveCase(c *types.Case) error {
	transcript, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("failed to serialize transcript: %w", err)
	}

	_, err = a.db.Exec(
		`INSERT OR REPLACE INTO archived_cases (id, user_id, status, phase, transcript, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, string(c.Status), int(c.Phase), string(transcript), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive case %s: %w", c.ID, err)
	}
	logging.Cleanup("Archived case %s (%d transcript entries)", c.ID, len(c.Messages))
	return nil
}

// ArchivedCount returns the number of archived cases.
func (a *ArchiveStore) ArchivedCount() (int64, error) {
	var count int64
	err := a.db.QueryRow(`SELECT COUNT(*) FROM archived_cases`).Scan(&count)
	return count, err
}

// Close closes the archive database.
func (a *ArchiveStore) Close() error {
	return a.db.Close()
}
