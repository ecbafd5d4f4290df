// Package llmjson pulls JSON values out of free-form model replies.
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"

	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
)

// Object decodes the outermost {...} in text into T. It returns fallback and
// false when nothing decodes.
func Object[T any](text string, fallback T) (T, bool) {
	return parse(text, '{', '}', fallback)
}

// Array decodes the outermost [...] in text into T.
func Array[T any](text string, fallback T) (T, bool) {
	return parse(text, '[', ']', fallback)
}

// Require is Object without a fallback: a reply that does not parse fails
// the step permanently.
func Require[T any](text string, what string) (T, error) {
	var zero T
	v, ok := Object(text, zero)
	if !ok {
		return zero, jobrt.Permanent(fmt.Errorf("model reply has no valid %s JSON: %s", what, preview(text)))
	}
	return v, nil
}

// RequireArray is Require for top-level arrays.
func RequireArray[T any](text string, what string) (T, error) {
	var zero T
	v, ok := Array(text, zero)
	if !ok {
		return zero, jobrt.Permanent(fmt.Errorf("model reply has no valid %s JSON array: %s", what, preview(text)))
	}
	return v, nil
}

func parse[T any](text string, open, close byte, fallback T) (out T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = fallback, false
		}
	}()
	eachSpan(StripFences(text), open, close, func(body string) bool {
		var v T
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return false
		}
		out, ok = v, true
		return true
	})
	if !ok {
		return fallback, false
	}
	return out, true
}

// Extract returns the first balanced open..close span in text, skipping
// over string literals, after stripping markdown code fences.
func Extract(text string, open, close byte) string {
	var first string
	eachSpan(StripFences(text), open, close, func(body string) bool {
		first = body
		return true
	})
	return first
}

// maxCandidates caps the opening positions tried per reply, so a reply full
// of unbalanced brackets costs O(maxCandidates*n) rather than O(n^2).
const maxCandidates = 32

// eachSpan feeds balanced candidates to fn in order of their opening
// position until fn returns true.
func eachSpan(s string, open, close byte, fn func(string) bool) {
	start := strings.IndexByte(s, open)
	for tried := 0; start >= 0 && tried < maxCandidates; tried++ {
		if end := matchClose(s, start, open, close); end > start && fn(s[start:end+1]) {
			return
		}
		next := strings.IndexByte(s[start+1:], open)
		if next < 0 {
			return
		}
		start += next + 1
	}
}

func matchClose(s string, start int, open, close byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// StripFences removes ```json ... ``` wrappers.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.Contains(s, "```") {
		return s
	}
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
