// Package parser reads a single JSONL transcript file and produces the
// Session summary and per-message entries the store indexes.
package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pi-agent/session-manager/internal/model"
)

// maxLineBytes bounds a single JSONL line; transcripts can carry large tool
// outputs inline, so the default bufio.Scanner token limit is too small.
const maxLineBytes = 16 * 1024 * 1024

type header struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Cwd       string `json:"cwd"`
	Timestamp string `json:"timestamp"`
}

type rawEntry struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}

// Result is the output of parsing one transcript file.
type Result struct {
	Session model.Session
	Entries []model.MessageEntry
}

// ParseFile opens path and parses it with Parse semantics, reading the
// mtime from the filesystem.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return Parse(path, f, info.ModTime())
}

// Parse reads a transcript from r and builds the Session/MessageEntry set.
// modified is the file's mtime, supplied by the caller so callers that
// already have os.FileInfo don't need a second stat.
func Parse(path string, r io.Reader, modified time.Time) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		return nil, fmt.Errorf("empty session file")
	}

	var hdr header
	if err := json.Unmarshal(scanner.Bytes(), &hdr); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if hdr.Type != "session" {
		return nil, fmt.Errorf("invalid session header")
	}

	id := hdr.ID
	if id == "" {
		id = "unknown"
	}
	created, _ := parseTimestamp(hdr.Timestamp)

	sess := model.Session{
		Path:     path,
		ID:       id,
		Cwd:      hdr.Cwd,
		Created:  created,
		Modified: modified,
	}

	var allMessages, userMessages, assistantMessages []string
	var entries []model.MessageEntry
	entryIndex := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry rawEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}

		if entry.Type == "session_info" {
			if n := strings.TrimSpace(entry.Name); n != "" {
				sess.Name = n
			}
			continue
		}

		if entry.Type != "message" || len(entry.Message) == 0 {
			continue
		}

		var msg rawMessage
		if err := json.Unmarshal(entry.Message, &msg); err != nil {
			continue
		}
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}

		text := extractText(msg.Content)
		if text == "" {
			continue
		}

		sess.MessageCount++
		allMessages = append(allMessages, text)

		if sess.FirstMessage == "" && msg.Role == "user" {
			sess.FirstMessage = truncateRunes(text, 100)
		}
		sess.LastMessage = truncateRunes(text, 150)
		sess.LastMessageRole = msg.Role

		if msg.Role == "user" {
			userMessages = append(userMessages, text)
		} else {
			assistantMessages = append(assistantMessages, text)
		}

		ts, err := parseTimestamp(entry.Timestamp)
		if err != nil {
			ts = time.Now().UTC()
		}
		entries = append(entries, model.MessageEntry{
			ID:          entry.ID,
			SessionPath: path,
			EntryIndex:  entryIndex,
			Role:        msg.Role,
			Text:        text,
			Timestamp:   ts,
		})
		entryIndex++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	sess.AllMessagesText = strings.Join(allMessages, "\n")
	sess.UserMessagesText = strings.Join(userMessages, "\n")
	sess.AssistantText = strings.Join(assistantMessages, "\n")

	return &Result{Session: sess, Entries: entries}, nil
}

// extractText returns the first text content item, matching the original
// parser's "first text block wins" rule.
func extractText(raw json.RawMessage) string {
	var items []rawContentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	for _, item := range items {
		if item.Text != "" {
			return item.Text
		}
	}
	return ""
}

// SearchableEntry is a lightweight view of one transcript message for
// content search: unlike MessageEntry, which collapses a message down to
// its first text block for session summaries and indexing, it carries every
// content item text so include_tools can search thinking blocks too.
type SearchableEntry struct {
	EntryIndex int
	Role       string
	Texts      []string
}

// ParseSearchableEntries re-reads path for search_sessions' content mode.
// When includeTools is true, "thinking" content items are included
// alongside "text" items; otherwise only "text" items are returned. This
// never affects Session aggregates or the stored MessageEntry set, both of
// which only ever see the first text block per message.
func ParseSearchableEntries(path string, includeTools bool) ([]SearchableEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	if !scanner.Scan() {
		return nil, fmt.Errorf("empty session file")
	}
	var hdr header
	if err := json.Unmarshal(scanner.Bytes(), &hdr); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if hdr.Type != "session" {
		return nil, fmt.Errorf("invalid session header")
	}

	var out []SearchableEntry
	entryIndex := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry rawEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry.Type != "message" || len(entry.Message) == 0 {
			continue
		}
		var msg rawMessage
		if err := json.Unmarshal(entry.Message, &msg); err != nil {
			continue
		}
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}

		texts := extractTexts(msg.Content, includeTools)
		if len(texts) == 0 {
			continue
		}
		out = append(out, SearchableEntry{EntryIndex: entryIndex, Role: msg.Role, Texts: texts})
		entryIndex++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return out, nil
}

// extractTexts returns every "text" content item, plus every "thinking"
// item when includeTools is true, in document order.
func extractTexts(raw json.RawMessage, includeTools bool) []string {
	var items []rawContentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		if item.Text != "" {
			out = append(out, item.Text)
		}
		if includeTools && item.Thinking != "" {
			out = append(out, item.Thinking)
		}
	}
	return out
}

// truncateRunes truncates s to at most n unicode scalars, matching the
// original's `chars().take(n)` truncation (not a byte truncation).
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339, s)
}
