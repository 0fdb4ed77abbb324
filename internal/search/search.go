// Package search implements the in-memory, non-FTS search used by
// `search_sessions`: Name mode matches session names/first messages, Content
// mode re-reads each transcript from disk and scores snippet matches. This
// mirrors the original implementation's choice to keep this path independent
// of the SQLite index so search_sessions reflects the file on disk even if
// the background scanner hasn't caught up yet.
package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pi-agent/session-manager/internal/model"
	"github.com/pi-agent/session-manager/internal/parser"
)

const (
	maxMatchesPerSession = 5
	snippetLeadPad       = 30
	snippetTrailPad      = 100
)

// Search runs query against sessions using mode and role, returning matches
// sorted by descending score. includeTools extends content-mode matching to
// "thinking" content items, not just plain message text.
func Search(sessions []model.Session, query string, mode model.SearchMode, role model.RoleFilter, includeTools bool) []model.SearchMatch {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil
	}

	var out []model.SearchMatch
	for _, sess := range sessions {
		switch mode {
		case model.SearchModeName:
			if matchesName(sess, tokens) {
				out = append(out, model.SearchMatch{
					SessionPath: sess.Path,
					EntryIndex:  -1,
					Snippet:     sess.DisplayName(),
					Score:       1,
				})
			}
		default: // content
			out = append(out, findContentMatches(sess, tokens, role, includeTools)...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// matchesName requires every token to appear (AND) in the session's name or
// first message.
func matchesName(sess model.Session, tokens []string) bool {
	haystack := strings.ToLower(sess.DisplayName() + " " + sess.FirstMessage)
	for _, t := range tokens {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

// findContentMatches re-parses the session's transcript and looks for any
// token (OR) in each message entry's content, subject to role, capping at
// maxMatchesPerSession and deduping by entry index. When includeTools is
// true, "thinking" content items are searched alongside message text.
func findContentMatches(sess model.Session, tokens []string, role model.RoleFilter, includeTools bool) []model.SearchMatch {
	entries, err := parser.ParseSearchableEntries(sess.Path, includeTools)
	if err != nil {
		return nil
	}

	seen := map[int]bool{}
	var matches []model.SearchMatch

	for _, entry := range entries {
		if len(matches) >= maxMatchesPerSession {
			break
		}
		if !roleAllowed(entry.Role, role) {
			continue
		}
		if seen[entry.EntryIndex] {
			continue
		}

		text, pos, matchLen := firstTokenHit(entry.Texts, tokens)
		if pos < 0 {
			continue
		}

		seen[entry.EntryIndex] = true
		snippet := snippetAround(text, pos, matchLen)
		score := calculateScore(strings.Join(entry.Texts, "\n"), tokens)

		matches = append(matches, model.SearchMatch{
			SessionPath: sess.Path,
			EntryIndex:  entry.EntryIndex,
			Role:        entry.Role,
			Snippet:     snippet,
			Score:       score,
		})
	}

	return matches
}

// firstTokenHit returns the first text item among texts that contains any
// token, along with the match position and length within it, both counted
// in runes. It reports pos -1 if no text item matches any token.
func firstTokenHit(texts []string, tokens []string) (matchText string, pos, matchLen int) {
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, t := range tokens {
			if idx := strings.Index(lower, t); idx >= 0 {
				return text, utf8.RuneCountInString(lower[:idx]), utf8.RuneCountInString(t)
			}
		}
	}
	return "", -1, 0
}

func roleAllowed(role string, filter model.RoleFilter) bool {
	switch filter {
	case model.RoleFilterUser:
		return role == "user"
	case model.RoleFilterAssistant:
		return role == "assistant"
	default:
		return true
	}
}

func snippetAround(text string, pos, matchLen int) string {
	runes := []rune(text)
	start := pos - snippetLeadPad
	if start < 0 {
		start = 0
	}
	end := pos + matchLen + snippetTrailPad
	if end > len(runes) {
		end = len(runes)
	}
	if start > len(runes) {
		start = len(runes)
	}
	return string(runes[start:end])
}

// calculateScore counts total token occurrences plus a 0.5 bonus for each
// token that occurs at least once on a word boundary, matching the original
// scorer.
func calculateScore(text string, tokens []string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, t := range tokens {
		count := strings.Count(lower, t)
		score += float64(count)
		if count > 0 && isWordBoundaryHit(lower, t) {
			score += 0.5
		}
	}
	return score
}

func isWordBoundaryHit(lower, word string) bool {
	return strings.Contains(lower, " "+word+" ") ||
		strings.HasPrefix(lower, word+" ") ||
		strings.HasSuffix(lower, " "+word)
}
