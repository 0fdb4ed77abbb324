package dispatch

import (
	"context"

	"github.com/pi-agent/session-manager/internal/model"
	"github.com/pi-agent/session-manager/internal/search"
)

func handleSearchSessions(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	query, err := extractString(p, "query")
	if err != nil {
		return nil, err
	}
	mode := model.SearchMode(optionalStr(p, "mode", string(model.SearchModeContent)))
	role := model.RoleFilter(optionalStr(p, "role", string(model.RoleFilterAll)))
	includeTools := optionalBool(p, "includeTools", false)

	sessions, err := d.Scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}

	return search.Search(sessions, query, mode, role, includeTools), nil
}

// handleSearchSessionsFTS is a legacy convenience wrapper kept for backward
// compatibility with clients built against the session-level search: it
// resolves to full_text_search and dedups down to one hit per session.
func handleSearchSessionsFTS(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	query, err := extractString(p, "query")
	if err != nil {
		return nil, err
	}

	page, err := d.Store.FullTextSearch(ctx, query, "", model.RoleFilterAll, 0, 200)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var paths []string
	for _, h := range page.Hits {
		if !seen[h.SessionPath] {
			seen[h.SessionPath] = true
			paths = append(paths, h.SessionPath)
		}
	}
	return paths, nil
}

func handleFullTextSearch(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	query, err := extractString(p, "query")
	if err != nil {
		return nil, err
	}
	glob, _ := extractOptionalString(p, "pathGlob")
	role := model.RoleFilter(optionalStr(p, "role", string(model.RoleFilterAll)))
	offset := optionalUsize(p, "offset", 0)
	limit := optionalUsize(p, "limit", 20)

	return d.Store.FullTextSearch(ctx, query, glob, role, offset, limit)
}

func optionalStr(p Payload, key, def string) string {
	if v, ok := extractOptionalString(p, key); ok && v != "" {
		return v
	}
	return def
}
