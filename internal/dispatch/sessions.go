package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/parser"
)

func handleScanSessions(ctx context.Context, d *Dispatcher, _ Payload) (any, error) {
	sessions, err := d.Scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func handleSessionDigest(_ context.Context, d *Dispatcher, _ Payload) (any, error) {
	version, count := d.Scanner.Digest()
	return map[string]any{"version": version, "count": count}, nil
}

func handleReadSessionFile(_ context.Context, _ *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("reading %s", path), err)
	}
	return string(data), nil
}

// handleReadSessionFileIncremental returns [totalLines, newContent] so a
// client that already has the first N lines can request only what changed.
func handleReadSessionFileIncremental(_ context.Context, _ *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	fromLine, err := extractUsize(p, "fromLine")
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var lines []string
	total := 0
	for scanner.Scan() {
		if total >= fromLine {
			lines = append(lines, scanner.Text())
		}
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("reading %s", path), err)
	}

	return []any{total, strings.Join(lines, "\n")}, nil
}

func handleGetFileStats(_ context.Context, _ *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return map[string]any{"size": 0, "modifiedAt": nil, "isFile": false}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("stat %s", path), err)
	}
	return map[string]any{
		"size":       info.Size(),
		"modifiedAt": info.ModTime(),
		"isFile":     !info.IsDir(),
	}, nil
}

func handleGetSessionEntries(_ context.Context, _ *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	result, err := parser.ParseFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("parsing %s", path), err)
	}
	return result.Entries, nil
}

func handleDeleteSession(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("deleting %s", path), err)
	}
	d.WriteBuf.Flush()
	if err := d.Store.DeleteSession(ctx, path); err != nil {
		return nil, apperr.Wrap(apperr.IO, "removing session from index", err)
	}
	d.Scanner.InvalidateCache()
	d.Broadcast.SessionsChanged()
	return map[string]any{"deleted": true}, nil
}

func handleRenameSession(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	name, err := extractString(p, "name")
	if err != nil {
		return nil, err
	}
	d.WriteBuf.Flush()
	if err := d.Store.RenameSession(ctx, path, name); err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "renaming session", err)
	}
	d.Scanner.InvalidateCache()
	d.Broadcast.SessionsChanged()
	return map[string]any{"renamed": true}, nil
}

func handleExportSession(_ context.Context, _ *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	format, _ := extractOptionalString(p, "format")
	if format == "" {
		format = "json"
	}

	result, err := parser.ParseFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("parsing %s", path), err)
	}

	switch format {
	case "json":
		return result, nil
	case "markdown":
		return exportMarkdown(result), nil
	default:
		return nil, apperr.Invalidf("Unsupported export format: %s", format)
	}
}

func exportMarkdown(result *parser.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", result.Session.DisplayName())
	for _, e := range result.Entries {
		role := "User"
		if e.Role != "user" {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "**%s:**\n\n%s\n\n", role, e.Text)
	}
	return sb.String()
}
