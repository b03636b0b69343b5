// Package store is the durable case/session layer: one SQLite database
// holding the primary case records, the session index, per-case evidence and
// hypothesis rows, and per-case document vectors for similarity search.
// Writes for one logical update happen in one transaction; case saves go
// through a versioned compare-and-swap so turn handling stays serialized per
// case.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"gumshoe/internal/logging"
)

// LocalStore implements the case/session store on SQLite.
type LocalStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	dbPath    string
	vectorExt bool // sqlite-vec available
}

// NewLocalStore initializes the SQLite database at the given path.
// Pass ":memory:" for an ephemeral store (tests).
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to set sqlite foreign_keys=ON: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	store.detectVecExtension()
	if store.vectorExt {
		logging.Store("sqlite-vec extension detected and enabled")
	} else {
		logging.StoreDebug("sqlite-vec extension not available; similarity search uses the in-process fallback")
	}

	logging.Store("LocalStore initialization complete")
	return store, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	casesTable := `
	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		phase INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		doc TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_cases_user ON cases(user_id);
	CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
	CREATE INDEX IF NOT EXISTS idx_cases_expires ON cases(expires_at);
	`

	// One live session per (user_id, client_id). The unique index is what
	// lets a returning client resume instead of duplicating a session.
	sessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		case_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NOT NULL,
		UNIQUE(user_id, client_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_case ON sessions(case_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	`

	evidenceRequestsTable := `
	CREATE TABLE IF NOT EXISTS evidence_requests (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		label TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		critical BOOLEAN NOT NULL DEFAULT FALSE,
		completeness REAL NOT NULL DEFAULT 0,
		hypothesis_id TEXT,
		guidance TEXT,
		created_turn INTEGER NOT NULL DEFAULT 0,
		updated_turn INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_requests_case ON evidence_requests(case_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON evidence_requests(status);
	`

	evidenceProvidedTable := `
	CREATE TABLE IF NOT EXISTS evidence_provided (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		form TEXT NOT NULL,
		raw_content TEXT,
		attachment TEXT,
		addressed_ids TEXT,
		verdict TEXT NOT NULL,
		relation TEXT NOT NULL,
		intent TEXT NOT NULL,
		category TEXT NOT NULL,
		key_findings TEXT,
		temporal_marker TEXT,
		has_temporal_marker BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_provided_case ON evidence_provided(case_id);
	CREATE INDEX IF NOT EXISTS idx_provided_turn ON evidence_provided(case_id, turn);
	`

	hypothesesTable := `
	CREATE TABLE IF NOT EXISTS hypotheses (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		statement TEXT NOT NULL,
		category TEXT NOT NULL,
		likelihood REAL NOT NULL DEFAULT 0.5,
		status TEXT NOT NULL,
		strategy TEXT,
		evidence_ids TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_hypotheses_case ON hypotheses(case_id);
	CREATE INDEX IF NOT EXISTS idx_hypotheses_status ON hypotheses(status);
	`

	caseVectorsTable := `
	CREATE TABLE IF NOT EXISTS case_vectors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		case_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(case_id, source_id)
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_case ON case_vectors(case_id);
	`

	for _, table := range []string{
		casesTable,
		sessionsTable,
		evidenceRequestsTable,
		evidenceProvidedTable,
		hypothesesTable,
		caseVectorsTable,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// detectVecExtension attempts to create a vec0 virtual table to see if
// sqlite-vec is available.
func (s *LocalStore) detectVecExtension() {
	if s.db == nil {
		return
	}
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		return
	}
	s.vectorExt = false
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	logging.Store("Closing LocalStore database connection")
	return s.db.Close()
}

// GetDB returns the underlying SQL database connection.
func (s *LocalStore) GetDB() *sql.DB {
	return s.db
}

// GetStats returns row counts per table.
func (s *LocalStore) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	tables := []string{"cases", "sessions", "evidence_requests", "evidence_provided", "hypotheses", "case_vectors"}

	for _, table := range tables {
		var count int64
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			logging.StoreDebug("Table %s count failed: %v", table, err)
			continue
		}
		stats[table] = count
	}

	return stats, nil
}
