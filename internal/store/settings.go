package store

import (
	"context"
	"database/sql"
	"time"
)

// SaveSettingsVersion records a new snapshot of filePath's contents. Old
// snapshots beyond settingsVersionsPerFile are pruned lazily by
// cleanupLoop, not on every write, to keep writes cheap.
func (s *SQLiteStore) SaveSettingsVersion(_ context.Context, filePath string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO config_versions (file_path, data, created_at) VALUES (?, ?, ?)`,
		filePath, data, time.Now().UTC(),
	)
	return err
}

// LatestSettingsVersion returns the most recently saved snapshot for
// filePath, or nil if none exists.
func (s *SQLiteStore) LatestSettingsVersion(_ context.Context, filePath string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRow(
		`SELECT data FROM config_versions WHERE file_path = ? ORDER BY created_at DESC LIMIT 1`,
		filePath,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return data, err
}
