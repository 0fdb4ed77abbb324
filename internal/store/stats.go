package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pi-agent/session-manager/internal/model"
)

func (s *SQLiteStore) UpsertSessionStats(_ context.Context, stats model.SessionStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	modelsJSON, err := json.Marshal(stats.Models)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO session_details_cache (path, file_modified, user_message_count, assistant_message_count, input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, cost_usd, models_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   file_modified = excluded.file_modified,
		   user_message_count = excluded.user_message_count,
		   assistant_message_count = excluded.assistant_message_count,
		   input_tokens = excluded.input_tokens,
		   output_tokens = excluded.output_tokens,
		   cache_read_tokens = excluded.cache_read_tokens,
		   cache_write_tokens = excluded.cache_write_tokens,
		   cost_usd = excluded.cost_usd,
		   models_json = excluded.models_json`,
		stats.SessionPath, stats.FileModified, stats.UserMessageCount, stats.AssistantMsgCount,
		stats.InputTokens, stats.OutputTokens, stats.CacheReadTokens, stats.CacheWriteTokens,
		stats.CostUSD, string(modelsJSON),
	)
	return err
}

func (s *SQLiteStore) GetSessionStats(_ context.Context, path string) (*model.SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats model.SessionStats
	var modelsJSON string
	stats.SessionPath = path

	err := s.db.QueryRow(
		`SELECT file_modified, user_message_count, assistant_message_count, input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, cost_usd, models_json
		 FROM session_details_cache WHERE path = ?`,
		path,
	).Scan(&stats.FileModified, &stats.UserMessageCount, &stats.AssistantMsgCount,
		&stats.InputTokens, &stats.OutputTokens, &stats.CacheReadTokens, &stats.CacheWriteTokens,
		&stats.CostUSD, &modelsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if modelsJSON != "" {
		_ = json.Unmarshal([]byte(modelsJSON), &stats.Models)
	}
	return &stats, nil
}
