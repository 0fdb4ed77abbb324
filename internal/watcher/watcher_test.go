package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherDetectsJSONLChange(t *testing.T) {
	dir := t.TempDir()

	notified := make(chan []string, 1)
	w, err := New(dir, func(paths []string) {
		notified <- paths
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	// The timing constants are consts, so the test cannot shrink them; it
	// just waits long enough for the real debounce + min-interval window
	// below.
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	path := filepath.Join(dir, "a.jsonl")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-notified:
		if len(paths) != 1 || paths[0] != path {
			t.Fatalf("unexpected notified paths: %v", paths)
		}
	case <-time.After(12 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestWatcherIgnoresNonJSONL(t *testing.T) {
	dir := t.TempDir()

	notified := make(chan []string, 1)
	w, err := New(dir, func(paths []string) { notified <- paths })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-notified:
		t.Fatalf("unexpected notification for non-jsonl file: %v", paths)
	case <-time.After(debounceWindow + 3*pollTick):
		// expected: no notification even after the debounce window and the
		// poll ticks that would have fired one for a .jsonl file
	}
}
