package dispatch

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/model"
	"github.com/pi-agent/session-manager/internal/parser"
)

// handleGetSessionStats reparses the transcript fresh and recounts its user
// and assistant messages, writing the result back to session_details_cache
// before returning it. Token usage, cost and models are not computed and
// are returned as zero/empty.
func handleGetSessionStats(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}

	result, err := parser.ParseFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "parsing session for stats", err)
	}

	stats := model.SessionStats{
		SessionPath:  path,
		FileModified: result.Session.Modified,
	}
	for _, e := range result.Entries {
		if e.Role == "user" {
			stats.UserMessageCount++
		} else if e.Role == "assistant" {
			stats.AssistantMsgCount++
		}
	}

	if err := d.Store.UpsertSessionStats(ctx, stats); err != nil {
		return nil, apperr.Wrap(apperr.IO, "caching session stats", err)
	}
	return stats, nil
}

// handleGetSessionStatsLight reads the cached stats without touching the
// filesystem, returning NotFound if nothing has been cached yet.
func handleGetSessionStatsLight(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	stats, err := d.Store.GetSessionStats(ctx, path)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "reading cached stats", err)
	}
	if stats == nil {
		return nil, apperr.NotFoundf("no cached stats for %s", path)
	}
	return stats, nil
}

// listModelsTimeout bounds how long the agent subprocess gets to answer
// --list-models before this call fails rather than hanging the request.
const listModelsTimeout = 5 * time.Second

// handleListModels invokes the agent binary to enumerate the models it
// supports. This is the one dispatcher command that shells out.
func handleListModels(ctx context.Context, _ *Dispatcher, p Payload) (any, error) {
	agentBin, ok := extractOptionalString(p, "agentBinary")
	if !ok || agentBin == "" {
		agentBin = "pi"
	}

	cctx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, agentBin, "--list-models")
	out, err := cmd.Output()
	if err != nil {
		return nil, apperr.Wrap(apperr.Subprocess, "listing models", err)
	}

	var models []any
	if err := json.Unmarshal(out, &models); err != nil {
		return nil, apperr.Wrap(apperr.Subprocess, "parsing model list output", err)
	}
	return models, nil
}
