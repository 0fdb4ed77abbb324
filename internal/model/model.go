// Package model defines the shared data types for indexed sessions, their
// messages, and the incremental diffs the scanner reports to subscribers.
package model

import "time"

// Session is the indexed summary of a single JSONL transcript file.
type Session struct {
	Path             string    `json:"path"`
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Cwd              string    `json:"cwd"`
	Created          time.Time `json:"created"`
	Modified         time.Time `json:"modified"`
	MessageCount     int       `json:"messageCount"`
	FirstMessage     string    `json:"firstMessage"`
	LastMessage      string    `json:"lastMessage"`
	LastMessageRole  string    `json:"lastMessageRole"`
	AllMessagesText  string    `json:"-"`
	UserMessagesText string    `json:"-"`
	AssistantText    string    `json:"-"`
}

// DisplayName returns Name if set, otherwise falls back to ID — mirroring
// the original parser, which leaves Name empty unless a session_info line
// supplies one.
func (s Session) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// MessageEntry is a single parsed line from a transcript, kept for per-entry
// full-text indexing and content search.
type MessageEntry struct {
	ID          string    `json:"id"` // the entry's own id, as carried in the JSONL line
	SessionPath string    `json:"sessionPath"`
	EntryIndex  int       `json:"entryIndex"`
	Role        string    `json:"role"` // "user" or "assistant"
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// SessionsDiff describes what changed between two scans of the sessions
// directory. Updated holds the new/changed session summaries; Removed holds
// the paths of sessions whose backing file disappeared.
type SessionsDiff struct {
	Updated []Session `json:"updated"`
	Removed []string  `json:"removed"`
}

// Changed reports whether the diff carries any updates or removals.
func (d SessionsDiff) Changed() bool {
	return len(d.Updated) > 0 || len(d.Removed) > 0
}

// Favorite marks a session path as favorited.
type Favorite struct {
	SessionPath string    `json:"sessionPath"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Tag is a user-defined label that can be attached to sessions.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	AutoRules string    `json:"autoRules,omitempty"` // opaque JSON blob, CRUD only
	CreatedAt time.Time `json:"createdAt"`
}

// SessionStats is the per-session row kept in session_details_cache. Only
// FileModified and the two message counts are filled in from the
// transcript; the token, cost and model fields are stored and returned but
// nothing populates them from "message" lines, so they stay zero/empty.
type SessionStats struct {
	SessionPath       string        `json:"sessionPath"`
	FileModified      time.Time     `json:"fileModified"`
	UserMessageCount  int           `json:"userMessageCount"`
	AssistantMsgCount int           `json:"assistantMessageCount"`
	InputTokens       int64         `json:"inputTokens"`
	OutputTokens      int64         `json:"outputTokens"`
	CacheReadTokens   int64         `json:"cacheReadTokens"`
	CacheWriteTokens  int64         `json:"cacheWriteTokens"`
	CostUSD           float64       `json:"costUsd"`
	Models            []ModelUsage  `json:"models"`
}

// ModelUsage names one distinct model/provider pair seen in a session.
type ModelUsage struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// SearchMode selects the in-memory search strategy.
type SearchMode string

const (
	SearchModeName    SearchMode = "name"
	SearchModeContent SearchMode = "content"
)

// RoleFilter restricts content search to entries of a given role.
type RoleFilter string

const (
	RoleFilterAll       RoleFilter = "all"
	RoleFilterUser      RoleFilter = "user"
	RoleFilterAssistant RoleFilter = "assistant"
)

// SearchMatch is one hit produced by the in-memory search.
type SearchMatch struct {
	SessionPath string  `json:"sessionPath"`
	EntryIndex  int     `json:"entryIndex"`
	Role        string  `json:"role"`
	Snippet     string  `json:"snippet"`
	Score       float64 `json:"score"`
}

// FTSHit is one row returned by the FTS5-backed full_text_search command.
type FTSHit struct {
	SessionID   string    `json:"sessionId"`
	SessionPath string    `json:"sessionPath"`
	SessionName string    `json:"sessionName,omitempty"`
	EntryID     string    `json:"entryId"`
	Role        string    `json:"role"`
	Snippet     string    `json:"snippet"`
	Timestamp   time.Time `json:"timestamp"`
	Score       float64   `json:"score"`
}

// FTSPage is a single page of full_text_search results.
type FTSPage struct {
	Hits    []FTSHit `json:"hits"`
	HasMore bool     `json:"hasMore"`
}
