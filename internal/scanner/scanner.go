// Package scanner walks the configured sessions directories, maintains an
// in-memory cache of the resulting Session list behind an atomic version
// counter, and computes incremental diffs when the file watcher reports
// specific paths that changed.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/config"
	"github.com/pi-agent/session-manager/internal/model"
	"github.com/pi-agent/session-manager/internal/parser"
	"github.com/pi-agent/session-manager/internal/store"
	"github.com/pi-agent/session-manager/internal/writebuffer"
)

// maxCorruptionRetries is the corruption-recovery budget. Scan does not
// consult it and does not retry: a Corruption error from the store is
// returned to the caller, and the database is deleted and reopened only
// when a caller invokes Recover.
const maxCorruptionRetries = 1

// skipDirNames are subdirectories under a project's session directory that
// hold artifacts other than top-level session transcripts.
var skipDirNames = map[string]bool{
	"transcripts":         true,
	"subagent-artifacts": true,
}

// Scanner owns the scan cache and coordinates reparsing with the store and
// write buffer.
type Scanner struct {
	cfg *config.ScanConfig
	st  store.Store
	wb  *writebuffer.Buffer

	mu      sync.Mutex
	cache   []model.Session
	version atomic.Uint64
}

// New builds a Scanner backed by st and wb.
func New(cfg *config.ScanConfig, st store.Store, wb *writebuffer.Buffer) *Scanner {
	return &Scanner{cfg: cfg, st: st, wb: wb}
}

// Digest returns the current cache version and session count without
// touching the filesystem — cheap enough for HTTP polling.
func (s *Scanner) Digest() (version uint64, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version.Load(), len(s.cache)
}

// InvalidateCache drops the in-memory cache so the next Scan call performs a
// full rescan.
func (s *Scanner) InvalidateCache() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
	s.version.Add(1)
}

// Scan returns the cached session list, performing a full scan first if the
// cache is empty.
func (s *Scanner) Scan(ctx context.Context) ([]model.Session, error) {
	s.mu.Lock()
	if s.cache != nil {
		cached := append([]model.Session(nil), s.cache...)
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	result, err := s.fullScan(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache = result
	s.mu.Unlock()
	s.version.Add(1)

	return result, nil
}

func (s *Scanner) sessionDirs() []string {
	dirs := []string{s.cfg.SessionsDir}
	return dirs
}

func (s *Scanner) fullScan(ctx context.Context) ([]model.Session, error) {
	realtimeCutoff := time.Now().Add(-time.Duration(s.cfg.RealtimeCutoffDays) * 24 * time.Hour)

	var sessions []model.Session
	var seen = map[string]bool{}

	for _, dir := range s.sessionDirs() {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			slog.Warn("reading sessions dir failed", "dir", dir, "error", err)
			continue
		}

		for _, projectDir := range entries {
			if !projectDir.IsDir() {
				continue
			}
			if skipDirNames[projectDir.Name()] {
				continue
			}
			projectPath := filepath.Join(dir, projectDir.Name())
			files, err := os.ReadDir(projectPath)
			if err != nil {
				continue
			}

			for _, f := range files {
				if f.IsDir() || filepath.Ext(f.Name()) != ".jsonl" {
					continue
				}
				filePath := filepath.Join(projectPath, f.Name())
				info, err := f.Info()
				if err != nil {
					continue
				}
				modified := info.ModTime()
				seen[filePath] = true

				needsParse := modified.After(realtimeCutoff)
				if !needsParse {
					cachedMod, ok, err := s.st.CachedFileModified(ctx, filePath)
					if err != nil {
						return nil, err
					}
					needsParse = !ok || modified.After(*cachedMod)
				}
				if !needsParse {
					continue
				}

				result, err := parser.ParseFile(filePath)
				if err != nil {
					slog.Warn("failed to parse session", "path", filePath, "error", err)
					continue
				}
				sessions = append(sessions, result.Session)
				s.wb.Add(result)
			}
		}
	}

	historical, err := s.st.SessionsModifiedBefore(ctx, realtimeCutoff)
	if err != nil {
		if apperr.Is(err, apperr.Corruption) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.IO, "reading historical sessions", err)
	}
	present := map[string]bool{}
	for _, sess := range sessions {
		present[sess.Path] = true
	}
	for _, sess := range historical {
		if !present[sess.Path] {
			sessions = append(sessions, sess)
		}
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Modified.After(sessions[j].Modified)
	})

	return sessions, nil
}

// Rescan re-parses exactly the given paths (as reported by the file
// watcher), updates the store and in-memory cache, and returns a diff the
// caller can forward to subscribers.
func (s *Scanner) Rescan(ctx context.Context, changedPaths []string) (model.SessionsDiff, error) {
	s.mu.Lock()
	sessions := append([]model.Session(nil), s.cache...)
	s.mu.Unlock()

	if sessions == nil {
		full, err := s.Scan(ctx)
		if err != nil {
			return model.SessionsDiff{}, err
		}
		sessions = full
	}

	var diff model.SessionsDiff

	for _, path := range changedPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			before := len(sessions)
			sessions = removeByPath(sessions, path)
			if len(sessions) != before {
				diff.Removed = append(diff.Removed, path)
				if err := s.st.DeleteSession(ctx, path); err != nil {
					slog.Warn("failed to delete removed session from store", "path", path, "error", err)
				}
			}
			continue
		}

		result, err := parser.ParseFile(path)
		if err != nil {
			slog.Warn("failed to reparse changed session", "path", path, "error", err)
			continue
		}

		if err := s.st.UpsertSession(ctx, result.Session, result.Entries); err != nil {
			slog.Warn("failed to upsert rescanned session", "path", path, "error", err)
			continue
		}
		s.wb.Add(result)

		diff.Updated = append(diff.Updated, result.Session)
		sessions = upsertByPath(sessions, result.Session)
	}

	if diff.Changed() {
		sort.SliceStable(sessions, func(i, j int) bool {
			return sessions[i].Modified.After(sessions[j].Modified)
		})
		s.mu.Lock()
		s.cache = sessions
		s.mu.Unlock()
		s.version.Add(1)
	}

	return diff, nil
}

func removeByPath(sessions []model.Session, path string) []model.Session {
	out := sessions[:0]
	for _, s := range sessions {
		if s.Path != path {
			out = append(out, s)
		}
	}
	return out
}

func upsertByPath(sessions []model.Session, updated model.Session) []model.Session {
	for i, s := range sessions {
		if s.Path == updated.Path {
			sessions[i] = updated
			return sessions
		}
	}
	return append(sessions, updated)
}

// Recover deletes the cache database and reopens a fresh one, used when a
// scan surfaces a corruption error. Returns the replacement store so the
// caller can swap it in.
func Recover(dataDir string) (*store.SQLiteStore, error) {
	dbPath := filepath.Join(dataDir, "sessions.db")
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing corrupted database: %w", err)
	}
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
	return store.Open(dataDir)
}
