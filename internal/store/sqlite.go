package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using an embedded SQLite database. It uses
// modernc.org/sqlite, which is pure Go (no CGO) and ships with FTS5 built
// in.
type SQLiteStore struct {
	db      *sql.DB
	dbPath  string
	mu      sync.RWMutex // serializes writes; SQLite is single-writer
	closeCh chan struct{}
}

// Open opens or creates the cache database at dataDir/sessions.db, running
// migrations and recovering from a corrupted file by deleting and rebuilding
// it once.
func Open(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "sessions.db")

	s, err := openAt(dbPath)
	if err != nil {
		if isCorruption(err) {
			slog.Warn("database appears corrupted, recreating", "path", dbPath, "error", err)
			_ = os.Remove(dbPath)
			_ = os.Remove(dbPath + "-wal")
			_ = os.Remove(dbPath + "-shm")
			s, err = openAt(dbPath)
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func openAt(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// Single connection avoids SQLITE_BUSY under our own write lock.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		dbPath:  dbPath,
		closeCh: make(chan struct{}),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite: %w", err)
	}

	go s.cleanupLoop()

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			path TEXT PRIMARY KEY,
			id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			cwd TEXT NOT NULL DEFAULT '',
			created DATETIME,
			modified DATETIME NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			first_message TEXT NOT NULL DEFAULT '',
			last_message TEXT NOT NULL DEFAULT '',
			last_message_role TEXT NOT NULL DEFAULT '',
			all_messages_text TEXT NOT NULL DEFAULT '',
			user_messages_text TEXT NOT NULL DEFAULT '',
			assistant_messages_text TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_modified ON sessions(modified)`,
		`CREATE TABLE IF NOT EXISTS message_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_path TEXT NOT NULL REFERENCES sessions(path) ON DELETE CASCADE,
			entry_index INTEGER NOT NULL,
			entry_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			timestamp DATETIME,
			UNIQUE(session_path, entry_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_entries_session ON message_entries(session_path)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS message_fts USING fts5(
			text,
			content='message_entries',
			content_rowid='id',
			tokenize='porter unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS message_entries_ai AFTER INSERT ON message_entries BEGIN
			INSERT INTO message_fts(rowid, text) VALUES (new.id, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS message_entries_ad AFTER DELETE ON message_entries BEGIN
			INSERT INTO message_fts(message_fts, rowid, text) VALUES ('delete', old.id, old.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS message_entries_au AFTER UPDATE ON message_entries BEGIN
			INSERT INTO message_fts(message_fts, rowid, text) VALUES ('delete', old.id, old.text);
			INSERT INTO message_fts(rowid, text) VALUES (new.id, new.text);
		END`,
		`CREATE TABLE IF NOT EXISTS favorites (
			session_path TEXT PRIMARY KEY REFERENCES sessions(path) ON DELETE CASCADE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			color TEXT NOT NULL DEFAULT '',
			auto_rules TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_tags (
			session_path TEXT NOT NULL,
			tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (session_path, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS config_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_config_versions_file ON config_versions(file_path, created_at)`,
		`CREATE TABLE IF NOT EXISTS session_details_cache (
			path TEXT PRIMARY KEY REFERENCES sessions(path) ON DELETE CASCADE,
			file_modified DATETIME NOT NULL,
			user_message_count INTEGER NOT NULL DEFAULT 0,
			assistant_message_count INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cache_read_tokens INTEGER NOT NULL DEFAULT 0,
			cache_write_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			models_json TEXT NOT NULL DEFAULT '[]'
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	// Columns added after the initial release; idempotent on older databases.
	s.addColumnIfNotExists("sessions", "last_message_role", "TEXT NOT NULL DEFAULT ''")
	s.addColumnIfNotExists("message_entries", "entry_id", "TEXT NOT NULL DEFAULT ''")
	s.addColumnIfNotExists("message_entries", "timestamp", "DATETIME")

	return nil
}

// addColumnIfNotExists attempts to add a column to a table, ignoring the
// "duplicate column" error SQLite returns when it already exists.
func (s *SQLiteStore) addColumnIfNotExists(table, column, colType string) {
	_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, colType))
	if err != nil && !strings.Contains(err.Error(), "duplicate column") {
		slog.Warn("adding column failed", "table", table, "column", column, "error", err)
	}
}

// cleanupLoop periodically prunes settings history beyond the retention
// window. Session/message rows are never pruned by time — only by explicit
// delete or rescan-detected removal.
func (s *SQLiteStore) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.pruneSettingsVersions()
			s.mu.Unlock()
		}
	}
}

const settingsVersionsPerFile = 50

func (s *SQLiteStore) pruneSettingsVersions() {
	rows, err := s.db.Query(`SELECT DISTINCT file_path FROM config_versions`)
	if err != nil {
		return
	}
	var files []string
	for rows.Next() {
		var f string
		if rows.Scan(&f) == nil {
			files = append(files, f)
		}
	}
	rows.Close()

	for _, f := range files {
		s.db.Exec(`DELETE FROM config_versions WHERE file_path = ? AND id NOT IN (
			SELECT id FROM config_versions WHERE file_path = ? ORDER BY created_at DESC LIMIT ?
		)`, f, f, settingsVersionsPerFile)
	}
}

// --- Sessions ---

func (s *SQLiteStore) UpsertSession(_ context.Context, sess model.Session, entries []model.MessageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (path, id, name, cwd, created, modified, message_count, first_message, last_message, last_message_role, all_messages_text, user_messages_text, assistant_messages_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   id = excluded.id,
		   name = CASE WHEN excluded.name != '' THEN excluded.name ELSE sessions.name END,
		   cwd = excluded.cwd,
		   created = excluded.created,
		   modified = excluded.modified,
		   message_count = excluded.message_count,
		   first_message = excluded.first_message,
		   last_message = excluded.last_message,
		   last_message_role = excluded.last_message_role,
		   all_messages_text = excluded.all_messages_text,
		   user_messages_text = excluded.user_messages_text,
		   assistant_messages_text = excluded.assistant_messages_text`,
		sess.Path, sess.ID, sess.Name, sess.Cwd, sess.Created, sess.Modified,
		sess.MessageCount, sess.FirstMessage, sess.LastMessage, sess.LastMessageRole,
		sess.AllMessagesText, sess.UserMessagesText, sess.AssistantText,
	)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	// Replace message entries wholesale: transcripts are append-only, but a
	// rescan always reparses the whole file, so the simplest correct rule is
	// delete-then-reinsert rather than diffing entry by entry.
	if _, err := tx.Exec(`DELETE FROM message_entries WHERE session_path = ?`, sess.Path); err != nil {
		return fmt.Errorf("clearing message entries: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO message_entries (session_path, entry_index, entry_id, role, text, timestamp) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(e.SessionPath, e.EntryIndex, e.ID, e.Role, e.Text, e.Timestamp); err != nil {
			return fmt.Errorf("inserting message entry: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetSession(_ context.Context, path string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanSessionRow(s.db.QueryRow(sessionSelect+" WHERE path = ?", path))
}

const sessionSelect = `SELECT path, id, name, cwd, created, modified, message_count, first_message, last_message, last_message_role FROM sessions`

func (s *SQLiteStore) scanSessionRow(row *sql.Row) (*model.Session, error) {
	var sess model.Session
	var created sql.NullTime
	err := row.Scan(&sess.Path, &sess.ID, &sess.Name, &sess.Cwd, &created, &sess.Modified,
		&sess.MessageCount, &sess.FirstMessage, &sess.LastMessage, &sess.LastMessageRole)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if created.Valid {
		sess.Created = created.Time
	}
	return &sess, nil
}

func (s *SQLiteStore) DeleteSession(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM sessions WHERE path = ?`, path)
	return err
}

func (s *SQLiteStore) RenameSession(_ context.Context, path, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE sessions SET name = ? WHERE path = ?`, name, path)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", path)
	}
	return nil
}

func (s *SQLiteStore) SessionsModifiedBefore(_ context.Context, cutoff time.Time) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(sessionSelect+` WHERE modified < ? ORDER BY modified DESC`, cutoff)
	if err != nil {
		if isCorruption(err) {
			return nil, apperr.Wrap(apperr.Corruption, "querying historical sessions", err)
		}
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var created sql.NullTime
		if err := rows.Scan(&sess.Path, &sess.ID, &sess.Name, &sess.Cwd, &created, &sess.Modified,
			&sess.MessageCount, &sess.FirstMessage, &sess.LastMessage, &sess.LastMessageRole); err != nil {
			return nil, err
		}
		if created.Valid {
			sess.Created = created.Time
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CachedFileModified(_ context.Context, path string) (*time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var modified time.Time
	err := s.db.QueryRow(`SELECT modified FROM sessions WHERE path = ?`, path).Scan(&modified)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &modified, true, nil
}

// CleanupMissingFiles deletes every indexed session whose path is not a key
// in existing, returning the removed paths.
func (s *SQLiteStore) CleanupMissingFiles(_ context.Context, existing map[string]bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT path FROM sessions`)
	if err != nil {
		return nil, err
	}
	var all []string
	for rows.Next() {
		var p string
		if rows.Scan(&p) == nil {
			all = append(all, p)
		}
	}
	rows.Close()

	var removed []string
	for _, p := range all {
		if !existing[p] {
			if _, err := s.db.Exec(`DELETE FROM sessions WHERE path = ?`, p); err != nil {
				return removed, err
			}
			removed = append(removed, p)
		}
	}
	return removed, nil
}

// Vacuum compacts the database file. Exposed for maintenance commands and
// corruption-recovery testing.
func (s *SQLiteStore) Vacuum(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`VACUUM`)
	return err
}

// Close stops the cleanup goroutine and closes the database.
func (s *SQLiteStore) Close() error {
	close(s.closeCh)
	return s.db.Close()
}
