package parser

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTranscript = `{"type":"session","id":"s1","cwd":"/tmp","timestamp":"2026-01-01T00:00:00Z"}
{"type":"message","id":"msg-1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"user","content":[{"type":"text","text":"hello"}]}}
{"type":"message","id":"msg-2","timestamp":"not-a-timestamp","message":{"role":"assistant","content":[{"type":"text","text":"hi there"}]}}
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	if err := os.WriteFile(path, []byte(sampleTranscript), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseCarriesEntryIDAndTimestamp(t *testing.T) {
	path := writeSample(t)
	result, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
	if result.Entries[0].ID != "msg-1" {
		t.Fatalf("expected entry id msg-1, got %q", result.Entries[0].ID)
	}
	if result.Entries[0].Timestamp.IsZero() {
		t.Fatal("expected a parsed timestamp for msg-1")
	}
	if result.Entries[1].ID != "msg-2" {
		t.Fatalf("expected entry id msg-2, got %q", result.Entries[1].ID)
	}
	if result.Entries[1].Timestamp.IsZero() {
		t.Fatal("expected a fallback-to-now timestamp for an invalid timestamp string")
	}
}

func TestParseSearchableEntriesIncludesThinkingOnlyWhenRequested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.jsonl")
	content := `{"type":"session","id":"s2","cwd":"/tmp","timestamp":"2026-01-01T00:00:00Z"}
{"type":"message","id":"m1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"thinking","thinking":"mulling it over"},{"type":"text","text":"done"}]}}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	without, err := ParseSearchableEntries(path, false)
	if err != nil {
		t.Fatalf("ParseSearchableEntries: %v", err)
	}
	if len(without) != 1 || len(without[0].Texts) != 1 || without[0].Texts[0] != "done" {
		t.Fatalf("expected only the text item without includeTools, got %+v", without)
	}

	with, err := ParseSearchableEntries(path, true)
	if err != nil {
		t.Fatalf("ParseSearchableEntries: %v", err)
	}
	if len(with) != 1 || len(with[0].Texts) != 2 {
		t.Fatalf("expected thinking+text items with includeTools, got %+v", with)
	}
}
