// Package dispatch implements the single command-table function shared by
// the HTTP and WebSocket transports: every request, regardless of which
// connection carried it, flows through Dispatch(ctx, command, payload).
package dispatch

import (
	"context"
	"fmt"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/authtoken"
	"github.com/pi-agent/session-manager/internal/broadcast"
	"github.com/pi-agent/session-manager/internal/config"
	"github.com/pi-agent/session-manager/internal/scanner"
	"github.com/pi-agent/session-manager/internal/store"
	"github.com/pi-agent/session-manager/internal/terminal"
	"github.com/pi-agent/session-manager/internal/writebuffer"
)

// Payload is the decoded JSON body of a dispatch request.
type Payload map[string]any

// Dispatcher holds every subsystem a command handler might need.
type Dispatcher struct {
	Store      store.Store
	Scanner    *scanner.Scanner
	WriteBuf   *writebuffer.Buffer
	Terminals  *terminal.Manager
	Broadcast  *broadcast.Broadcaster
	AuthTokens *authtoken.Store
	ConfigDir  string
}

// Dispatch routes command to its handler with payload as arguments. Unknown
// commands return an Unsupported error; missing/malformed fields return an
// Invalid error, matching the original dispatcher's error text so clients
// written against it keep working unmodified.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, payload Payload) (any, error) {
	if payload == nil {
		payload = Payload{}
	}

	handler, ok := commandTable[command]
	if !ok {
		return nil, apperr.New(apperr.Unsupported, fmt.Sprintf("Unknown command: %s", command))
	}
	return handler(ctx, d, payload)
}

type handlerFunc func(ctx context.Context, d *Dispatcher, p Payload) (any, error)

var commandTable = map[string]handlerFunc{
	"scan_sessions":                  handleScanSessions,
	"session_digest":                 handleSessionDigest,
	"read_session_file":              handleReadSessionFile,
	"read_session_file_incremental":  handleReadSessionFileIncremental,
	"get_file_stats":                 handleGetFileStats,
	"get_session_entries":            handleGetSessionEntries,
	"delete_session":                 handleDeleteSession,
	"rename_session":                 handleRenameSession,
	"export_session":                 handleExportSession,
	"search_sessions":                handleSearchSessions,
	"search_sessions_fts":            handleSearchSessionsFTS,
	"full_text_search":               handleFullTextSearch,
	"get_all_favorites":              handleGetAllFavorites,
	"add_favorite":                   handleAddFavorite,
	"remove_favorite":                handleRemoveFavorite,
	"is_favorite":                    handleIsFavorite,
	"toggle_favorite":                handleToggleFavorite,
	"list_tags":                      handleListTags,
	"create_tag":                     handleCreateTag,
	"delete_tag":                     handleDeleteTag,
	"tag_session":                    handleTagSession,
	"untag_session":                  handleUntagSession,
	"get_session_tags":               handleGetSessionTags,
	"load_settings":                  handleLoadSettings,
	"save_settings":                  handleSaveSettings,
	"scan_skills":                    handleScanSkills,
	"scan_prompts":                   handleScanPrompts,
	"get_skill_content":              handleGetSkillContent,
	"get_prompt_content":             handleGetPromptContent,
	"terminal_create":                handleTerminalCreate,
	"terminal_write":                 handleTerminalWrite,
	"terminal_resize":                handleTerminalResize,
	"terminal_close":                 handleTerminalClose,
	"terminal_list":                  handleTerminalList,
	"get_session_stats":              handleGetSessionStats,
	"get_session_stats_light":        handleGetSessionStatsLight,
	"list_models":                    handleListModels,
	"auth_status":                    handleAuthStatus,
	"auth_generate_token":            handleAuthGenerateToken,
}

// --- field extraction helpers, error text pinned from the original dispatcher ---

func extractString(p Payload, key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", apperr.Invalidf("Missing or invalid field: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.Invalidf("Missing or invalid field: %s", key)
	}
	return s, nil
}

func extractOptionalString(p Payload, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return s, true
}

func extractUsize(p Payload, key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, apperr.Invalidf("Missing or invalid field: %s", key)
	}
	f, ok := v.(float64) // encoding/json decodes JSON numbers as float64
	if !ok || f < 0 {
		return 0, apperr.Invalidf("Missing or invalid field: %s", key)
	}
	return int(f), nil
}

func extractInt64(p Payload, key string) (int64, error) {
	v, ok := p[key]
	if !ok {
		return 0, apperr.Invalidf("Missing or invalid field: %s", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, apperr.Invalidf("Missing or invalid field: %s", key)
	}
	return int64(f), nil
}

func optionalUsize(p Payload, key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	if f, ok := v.(float64); ok && f >= 0 {
		return int(f)
	}
	return def
}

func optionalBool(p Payload, key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func configDirFor(d *Dispatcher) (string, error) {
	if d.ConfigDir != "" {
		return d.ConfigDir, nil
	}
	return config.DefaultConfigDir()
}
