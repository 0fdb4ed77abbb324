package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pi-agent/session-manager/internal/model"
)

func (s *SQLiteStore) ListTags(_ context.Context) ([]model.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, name, color, auto_rules, created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.AutoRules, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateTag(_ context.Context, name, color, autoRules string) (*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO tags (name, color, auto_rules, created_at) VALUES (?, ?, ?, ?)`,
		name, color, autoRules, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating tag: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Tag{ID: id, Name: name, Color: color, AutoRules: autoRules, CreatedAt: now}, nil
}

func (s *SQLiteStore) DeleteTag(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM tags WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) TagSession(_ context.Context, path string, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO session_tags (session_path, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		path, tagID,
	)
	return err
}

func (s *SQLiteStore) UntagSession(_ context.Context, path string, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM session_tags WHERE session_path = ? AND tag_id = ?`, path, tagID)
	return err
}

func (s *SQLiteStore) SessionTags(_ context.Context, path string) ([]model.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT t.id, t.name, t.color, t.auto_rules, t.created_at
		 FROM tags t JOIN session_tags st ON st.tag_id = t.id
		 WHERE st.session_path = ? ORDER BY t.name`,
		path,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.AutoRules, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
