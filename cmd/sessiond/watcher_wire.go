package main

import (
	"context"
	"log/slog"

	"github.com/pi-agent/session-manager/internal/broadcast"
	"github.com/pi-agent/session-manager/internal/scanner"
	"github.com/pi-agent/session-manager/internal/watcher"
)

// newWatcher wires a file-system watcher to the scanner: every settled burst
// of .jsonl changes triggers an incremental Rescan, and a successful rescan
// that actually changed anything fans out a sessions-changed event.
func newWatcher(root string, sc *scanner.Scanner, bc *broadcast.Broadcaster) (*watcher.Watcher, error) {
	return watcher.New(root, func(changedPaths []string) {
		diff, err := sc.Rescan(context.Background(), changedPaths)
		if err != nil {
			slog.Warn("rescan failed", "error", err)
			return
		}
		if diff.Changed() {
			bc.SessionsChanged()
		}
	})
}
