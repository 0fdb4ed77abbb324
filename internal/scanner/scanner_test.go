package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/pi-agent/session-manager/internal/config"
	"github.com/pi-agent/session-manager/internal/model"
	"github.com/pi-agent/session-manager/internal/store"
	"github.com/pi-agent/session-manager/internal/writebuffer"
)

func writeSession(t *testing.T, dir, project, name, body string) string {
	t.Helper()
	projDir := filepath.Join(dir, project)
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(projDir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleTranscript = `{"type":"session","id":"s1","cwd":"/tmp/proj","timestamp":"2026-01-01T00:00:00Z"}
{"type":"message","id":"m1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"user","content":[{"type":"text","text":"fix the bug"}]}}
{"type":"message","id":"m2","timestamp":"2026-01-01T00:00:02Z","message":{"role":"assistant","content":[{"type":"text","text":"done"}]}}
`

func newTestScanner(t *testing.T) (*Scanner, string) {
	t.Helper()
	sessionsDir := t.TempDir()
	dataDir := t.TempDir()

	st, err := store.Open(dataDir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	wb := writebuffer.New(st)
	t.Cleanup(wb.Close)

	cfg := &config.ScanConfig{SessionsDir: sessionsDir, RealtimeCutoffDays: 2}
	return New(cfg, st, wb), sessionsDir
}

func TestScanFindsSessions(t *testing.T) {
	s, dir := newTestScanner(t)
	writeSession(t, dir, "proj1", "a.jsonl", sampleTranscript)

	sessions, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].MessageCount != 2 {
		t.Fatalf("expected 2 messages, got %d", sessions[0].MessageCount)
	}
}

func TestRescanDetectsRemoval(t *testing.T) {
	s, dir := newTestScanner(t)
	path := writeSession(t, dir, "proj1", "a.jsonl", sampleTranscript)

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	diff, err := s.Rescan(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	want := model.SessionsDiff{Removed: []string{path}}
	if diff := cmp.Diff(want, diff, cmpopts.IgnoreFields(model.SessionsDiff{}, "Updated")); diff != "" {
		t.Fatalf("unexpected diff shape (-want +got):\n%s", diff)
	}
}

func TestDigestReflectsVersionBump(t *testing.T) {
	s, dir := newTestScanner(t)
	writeSession(t, dir, "proj1", "a.jsonl", sampleTranscript)

	v0, _ := s.Digest()
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	v1, count := s.Digest()
	if v1 == v0 {
		t.Fatal("expected version to change after scan")
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}
