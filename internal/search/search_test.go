package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pi-agent/session-manager/internal/model"
)

const transcript = `{"type":"session","id":"s1","cwd":"/tmp","timestamp":"2026-01-01T00:00:00Z"}
{"type":"session_info","name":"widget refactor"}
{"type":"message","id":"m1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"user","content":[{"type":"text","text":"please refactor the widget renderer module"}]}}
{"type":"message","id":"m2","timestamp":"2026-01-01T00:00:02Z","message":{"role":"assistant","content":[{"type":"text","text":"done, widget renderer refactored"}]}}
`

func writeTranscript(t *testing.T) model.Session {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		t.Fatal(err)
	}
	return model.Session{Path: path, Name: "widget refactor", FirstMessage: "please refactor"}
}

func TestSearchNameModeRequiresAllTokens(t *testing.T) {
	sess := writeTranscript(t)
	matches := Search([]model.Session{sess}, "widget refactor", model.SearchModeName, model.RoleFilterAll, false)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}

	none := Search([]model.Session{sess}, "widget nonexistent", model.SearchModeName, model.RoleFilterAll, false)
	if len(none) != 0 {
		t.Fatalf("expected no match, got %d", len(none))
	}
}

func TestSearchContentModeFindsSnippets(t *testing.T) {
	sess := writeTranscript(t)
	matches := Search([]model.Session{sess}, "widget", model.SearchModeContent, model.RoleFilterAll, false)
	if len(matches) != 2 {
		t.Fatalf("expected 2 content matches, got %d", len(matches))
	}
}

func TestSearchContentModeRespectsRoleFilter(t *testing.T) {
	sess := writeTranscript(t)
	matches := Search([]model.Session{sess}, "widget", model.SearchModeContent, model.RoleFilterAssistant, false)
	if len(matches) != 1 || matches[0].Role != "assistant" {
		t.Fatalf("expected 1 assistant match, got %+v", matches)
	}
}

const thinkingTranscript = `{"type":"session","id":"s2","cwd":"/tmp","timestamp":"2026-01-01T00:00:00Z"}
{"type":"message","id":"m1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"thinking","thinking":"the quokka approach seems best here"},{"type":"text","text":"done"}]}}
`

func writeThinkingTranscript(t *testing.T) model.Session {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "b.jsonl")
	if err := os.WriteFile(path, []byte(thinkingTranscript), 0o644); err != nil {
		t.Fatal(err)
	}
	return model.Session{Path: path}
}

func TestSearchContentModeIncludeToolsMatchesThinking(t *testing.T) {
	sess := writeThinkingTranscript(t)

	none := Search([]model.Session{sess}, "quokka", model.SearchModeContent, model.RoleFilterAll, false)
	if len(none) != 0 {
		t.Fatalf("expected no match without includeTools, got %+v", none)
	}

	matches := Search([]model.Session{sess}, "quokka", model.SearchModeContent, model.RoleFilterAll, true)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match with includeTools, got %d", len(matches))
	}
}
