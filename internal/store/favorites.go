package store

import (
	"context"
	"time"

	"github.com/pi-agent/session-manager/internal/model"
)

func (s *SQLiteStore) AddFavorite(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO favorites (session_path, created_at) VALUES (?, ?)
		 ON CONFLICT(session_path) DO NOTHING`,
		path, time.Now().UTC(),
	)
	return err
}

func (s *SQLiteStore) RemoveFavorite(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM favorites WHERE session_path = ?`, path)
	return err
}

func (s *SQLiteStore) IsFavorite(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM favorites WHERE session_path = ?`, path).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) ListFavorites(_ context.Context) ([]model.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT session_path, created_at FROM favorites ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Favorite
	for rows.Next() {
		var f model.Favorite
		if err := rows.Scan(&f.SessionPath, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
