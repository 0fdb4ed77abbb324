package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pi-agent/session-manager/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := model.Session{
		Path:         "/sessions/proj/a.jsonl",
		ID:           "abc123",
		Cwd:          "/home/me/proj",
		Modified:     time.Now().UTC().Truncate(time.Second),
		MessageCount: 2,
		FirstMessage: "hello there",
		LastMessage:  "goodbye",
	}
	entries := []model.MessageEntry{
		{SessionPath: sess.Path, EntryIndex: 0, Role: "user", Text: "hello there"},
		{SessionPath: sess.Path, EntryIndex: 1, Role: "assistant", Text: "goodbye"},
	}

	if err := s.UpsertSession(ctx, sess, entries); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	got, err := s.GetSession(ctx, sess.Path)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.ID != sess.ID || got.MessageCount != sess.MessageCount {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestUpsertSessionPreservesNameOnBlankUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := "/sessions/proj/b.jsonl"
	first := model.Session{Path: path, ID: "x", Name: "My Session", Modified: time.Now().UTC()}
	if err := s.UpsertSession(ctx, first, nil); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := model.Session{Path: path, ID: "x", Modified: time.Now().UTC()}
	if err := s.UpsertSession(ctx, second, nil); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetSession(ctx, path)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Name != "My Session" {
		t.Fatalf("expected name to survive blank update, got %q", got.Name)
	}
}

// messageEntryIDs returns the message_entries.id values belonging to path,
// which double as message_fts rowids (content_rowid='id').
func messageEntryIDs(t *testing.T, s *SQLiteStore, path string) []int64 {
	t.Helper()
	rows, err := s.db.Query("SELECT id FROM message_entries WHERE session_path = ?", path)
	if err != nil {
		t.Fatalf("querying message_entries ids: %v", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scanning message_entries id: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

// countByRowids returns how many of the given rowids still exist in table.
func countByRowids(t *testing.T, s *SQLiteStore, table string, ids []int64) int {
	t.Helper()
	if len(ids) == 0 {
		return 0
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE rowid IN (%s)", table, placeholders)
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("counting %s rows: %v", table, err)
	}
	return n
}

func TestDeleteSessionCascadesEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := "/sessions/proj/c.jsonl"
	sess := model.Session{Path: path, ID: "c", Modified: time.Now().UTC()}
	entries := []model.MessageEntry{{SessionPath: path, EntryIndex: 0, Role: "user", Text: "hi"}}
	if err := s.UpsertSession(ctx, sess, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	ids := messageEntryIDs(t, s, path)
	if len(ids) != 1 {
		t.Fatalf("expected 1 message_entries row before delete, got %d", len(ids))
	}
	if n := countByRowids(t, s, "message_fts", ids); n != 1 {
		t.Fatalf("expected 1 message_fts row before delete, got %d", n)
	}

	if err := s.DeleteSession(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.GetSession(ctx, path)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Fatalf("expected session to be gone, got %+v", got)
	}
	if n := len(messageEntryIDs(t, s, path)); n != 0 {
		t.Fatalf("expected message_entries to be cascade-deleted, got %d rows", n)
	}
	if n := countByRowids(t, s, "message_fts", ids); n != 0 {
		t.Fatalf("expected message_fts to be cascade-cleaned, got %d rows", n)
	}
}

func TestFullTextSearchFindsAndCapsPerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := "/sessions/proj/d.jsonl"
	sess := model.Session{Path: path, ID: "d", Name: "Widget project", Modified: time.Now().UTC()}
	var entries []model.MessageEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, model.MessageEntry{
			ID: fmt.Sprintf("msg-%d", i), SessionPath: path, EntryIndex: i, Role: "user",
			Text: "please refactor the widget renderer", Timestamp: time.Now().UTC(),
		})
	}
	if err := s.UpsertSession(ctx, sess, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	page, err := s.FullTextSearch(ctx, "widget", "", model.RoleFilterAll, 0, 20)
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(page.Hits) != perSessionCap {
		t.Fatalf("expected %d hits capped per session, got %d", perSessionCap, len(page.Hits))
	}

	hit := page.Hits[0]
	if hit.SessionID != "d" || hit.SessionPath != path || hit.SessionName != "Widget project" {
		t.Fatalf("unexpected hit session fields: %+v", hit)
	}
	if hit.EntryID == "" {
		t.Fatalf("expected a non-empty entry id, got %+v", hit)
	}
	if !strings.Contains(hit.Snippet, "<b>") || !strings.Contains(hit.Snippet, "</b>") {
		t.Fatalf("expected <b></b> snippet delimiters, got %q", hit.Snippet)
	}
}

func TestFullTextSearchEscapesQuotesAndBackslashes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := "/sessions/proj/g.jsonl"
	sess := model.Session{Path: path, ID: "g", Modified: time.Now().UTC()}
	entries := []model.MessageEntry{{
		ID: "msg-1", SessionPath: path, EntryIndex: 0, Role: "user",
		Text: `he said "hi` + `\` + `there`, Timestamp: time.Now().UTC(),
	}}
	if err := s.UpsertSession(ctx, sess, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := s.FullTextSearch(ctx, `he said "hi`, "", model.RoleFilterAll, 0, 20); err != nil {
		t.Fatalf("FullTextSearch with unbalanced quote: %v", err)
	}
	if _, err := s.FullTextSearch(ctx, `a\b`, "", model.RoleFilterAll, 0, 20); err != nil {
		t.Fatalf("FullTextSearch with backslash: %v", err)
	}
}

func TestFullTextSearchEmptyQueryReturnsEmptyPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	page, err := s.FullTextSearch(ctx, "   ", "", model.RoleFilterAll, 0, 20)
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(page.Hits) != 0 || page.HasMore {
		t.Fatalf("expected empty page for blank query, got %+v", page)
	}
}

func TestFavorites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := "/sessions/proj/e.jsonl"

	if fav, _ := s.IsFavorite(ctx, path); fav {
		t.Fatal("expected not favorite initially")
	}
	if err := s.AddFavorite(ctx, path); err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}
	if fav, _ := s.IsFavorite(ctx, path); !fav {
		t.Fatal("expected favorite after add")
	}
	if err := s.RemoveFavorite(ctx, path); err != nil {
		t.Fatalf("RemoveFavorite: %v", err)
	}
	if fav, _ := s.IsFavorite(ctx, path); fav {
		t.Fatal("expected not favorite after remove")
	}
}

func TestTagsCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := "/sessions/proj/f.jsonl"

	tag, err := s.CreateTag(ctx, "bugfix", "#ff0000", "")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if err := s.TagSession(ctx, path, tag.ID); err != nil {
		t.Fatalf("TagSession: %v", err)
	}
	tags, err := s.SessionTags(ctx, path)
	if err != nil {
		t.Fatalf("SessionTags: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "bugfix" {
		t.Fatalf("unexpected tags: %+v", tags)
	}
}

func TestSettingsVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSettingsVersion(ctx, "settings.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("SaveSettingsVersion: %v", err)
	}
	if err := s.SaveSettingsVersion(ctx, "settings.json", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("SaveSettingsVersion: %v", err)
	}
	latest, err := s.LatestSettingsVersion(ctx, "settings.json")
	if err != nil {
		t.Fatalf("LatestSettingsVersion: %v", err)
	}
	if string(latest) != `{"a":2}` {
		t.Fatalf("expected latest version, got %s", latest)
	}
}
