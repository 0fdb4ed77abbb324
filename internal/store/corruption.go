package store

import "strings"

// corruptionMarkers are substrings SQLite embeds in error messages when the
// database file itself is damaged, as opposed to a query or constraint
// error. Centralized here so every caller that needs to decide "retry with a
// fresh database" vs "surface the error" uses the same rule.
var corruptionMarkers = []string{
	"malformed",
	"disk image",
	"not a database",
	"vtable constructor failed",
}

// isCorruption reports whether err looks like SQLite-file corruption rather
// than an ordinary query failure.
func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range corruptionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
