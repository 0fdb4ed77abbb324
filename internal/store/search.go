package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/pi-agent/session-manager/internal/model"
)

// perSessionCap bounds how many hits from a single session can appear in one
// full_text_search result set, so one chatty transcript can't crowd out
// every other match.
const perSessionCap = 3

// FullTextSearch runs an FTS5 MATCH query over message_entries, optionally
// restricted by a glob over the session path and a role filter, groups hits
// by session (capped at perSessionCap per session), and returns one page
// ordered by BM25 rank (ascending — lower is a better match).
func (s *SQLiteStore) FullTextSearch(_ context.Context, query, globFilter string, role model.RoleFilter, offset, limit int) (model.FTSPage, error) {
	if strings.TrimSpace(query) == "" {
		return model.FTSPage{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	// Over-fetch: the glob filter and per-session cap are applied after the
	// FTS query runs, so ask SQLite for more candidates than the page needs.
	fetchLimit := (offset + limit + 1) * 4
	if fetchLimit < 200 {
		fetchLimit = 200
	}

	q := `SELECT se.id, me.session_path, se.name, me.entry_id, me.role,
	       snippet(message_fts, 0, '<b>', '</b>', '...', 24) AS snippet,
	       me.timestamp,
	       bm25(message_fts) AS rank
	      FROM message_fts
	      JOIN message_entries me ON me.id = message_fts.rowid
	      JOIN sessions se ON se.path = me.session_path
	      WHERE message_fts MATCH ?`
	args := []any{quoteFTSQuery(query)}

	if role != "" && role != model.RoleFilterAll {
		q += ` AND me.role = ?`
		args = append(args, string(role))
	}
	q += ` ORDER BY rank LIMIT ?`
	args = append(args, fetchLimit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return model.FTSPage{}, fmt.Errorf("running full text search: %w", err)
	}
	defer rows.Close()

	perSession := make(map[string]int)
	var candidates []model.FTSHit
	for rows.Next() {
		var h model.FTSHit
		var ts sql.NullTime
		if err := rows.Scan(&h.SessionID, &h.SessionPath, &h.SessionName, &h.EntryID, &h.Role, &h.Snippet, &ts, &h.Score); err != nil {
			return model.FTSPage{}, err
		}
		if ts.Valid {
			h.Timestamp = ts.Time
		}
		if globFilter != "" {
			ok, _ := doublestar.Match(globFilter, h.SessionPath)
			if !ok {
				continue
			}
		}
		if perSession[h.SessionPath] >= perSessionCap {
			continue
		}
		perSession[h.SessionPath]++
		h.Snippet = strings.TrimSpace(h.Snippet)
		candidates = append(candidates, h)
	}
	if err := rows.Err(); err != nil {
		return model.FTSPage{}, err
	}

	total := len(candidates)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return model.FTSPage{
		Hits:    candidates[offset:end],
		HasMore: end < total,
	}, nil
}

// quoteFTSQuery wraps query as a single FTS5 string literal so arbitrary
// user input (including unbalanced quotes) can never be parsed as MATCH
// query syntax. Embedded double quotes are doubled per SQL string literal
// escaping; embedded backslashes are escaped too.
func quoteFTSQuery(query string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range query {
		switch r {
		case '"':
			b.WriteString(`""`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
