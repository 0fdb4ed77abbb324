// Package store implements the persistent SQLite-backed index and cache
// engine: session/message rows, a contentless FTS5 index, favorites, tags,
// versioned settings, and session statistics.
package store

import (
	"context"
	"time"

	"github.com/pi-agent/session-manager/internal/model"
)

// Store is the full surface the dispatcher and scanner use to read and
// write the index. SQLiteStore is the only implementation; the interface
// exists so tests can swap in a store backed by a temp-dir database without
// the rest of the package knowing the difference.
type Store interface {
	UpsertSession(ctx context.Context, sess model.Session, entries []model.MessageEntry) error
	GetSession(ctx context.Context, path string) (*model.Session, error)
	DeleteSession(ctx context.Context, path string) error
	RenameSession(ctx context.Context, path, name string) error
	SessionsModifiedBefore(ctx context.Context, cutoff time.Time) ([]model.Session, error)
	CachedFileModified(ctx context.Context, path string) (*time.Time, bool, error)
	CleanupMissingFiles(ctx context.Context, existing map[string]bool) ([]string, error)

	FullTextSearch(ctx context.Context, query string, globFilter string, role model.RoleFilter, offset, limit int) (model.FTSPage, error)

	AddFavorite(ctx context.Context, path string) error
	RemoveFavorite(ctx context.Context, path string) error
	IsFavorite(ctx context.Context, path string) (bool, error)
	ListFavorites(ctx context.Context) ([]model.Favorite, error)

	ListTags(ctx context.Context) ([]model.Tag, error)
	CreateTag(ctx context.Context, name, color, autoRules string) (*model.Tag, error)
	DeleteTag(ctx context.Context, id int64) error
	TagSession(ctx context.Context, path string, tagID int64) error
	UntagSession(ctx context.Context, path string, tagID int64) error
	SessionTags(ctx context.Context, path string) ([]model.Tag, error)

	SaveSettingsVersion(ctx context.Context, filePath string, data []byte) error
	LatestSettingsVersion(ctx context.Context, filePath string) ([]byte, error)

	UpsertSessionStats(ctx context.Context, stats model.SessionStats) error
	GetSessionStats(ctx context.Context, path string) (*model.SessionStats, error)

	Vacuum(ctx context.Context) error
	Close() error
}
