// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// codeBlockRegex extracts content wrapped in markdown, supporting various language tags (text, yaml, hcl, etc.).
	codeBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")

	// numberRegex finds the first decimal number in a field value.
	numberRegex = regexp.MustCompile(`[-+]?\d*\.?\d+`)
)

// CleanCodeOutput removes common markdown artifacts (like ```hcl or ```text) from a model response.
func CleanCodeOutput(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		matches := codeBlockRegex.FindStringSubmatch(content)
		if len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}
	return content
}

// ScanFields extracts "KEY: value" fields from free-form model output. Keys are
// matched case-insensitively at the start of a line, tolerating markdown list
// markers and bold markers around the key. Lines that do not start a new field
// are appended to the most recent field, so multi-line explanations survive.
// Keys that never appear are absent from the returned map.
func ScanFields(response string, keys ...string) map[string]string {
	fields := make(map[string]string, len(keys))
	current := ""

	for _, raw := range strings.Split(CleanCodeOutput(response), "\n") {
		line := normalizeFieldLine(raw)
		if key, value, ok := matchFieldKey(line, keys); ok {
			current = key
			fields[key] = value
			continue
		}
		if current == "" || strings.TrimSpace(raw) == "" {
			continue
		}
		if fields[current] == "" {
			fields[current] = strings.TrimSpace(raw)
		} else {
			fields[current] += "\n" + strings.TrimSpace(raw)
		}
	}

	for k, v := range fields {
		fields[k] = strings.TrimSpace(v)
	}
	return fields
}

func normalizeFieldLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*# ")
	return strings.ReplaceAll(line, "**", "")
}

func matchFieldKey(line string, keys []string) (string, string, bool) {
	upper := strings.ToUpper(line)
	for _, key := range keys {
		prefix := strings.ToUpper(key) + ":"
		spaced := strings.ReplaceAll(prefix, "_", " ")
		if strings.HasPrefix(upper, prefix) || strings.HasPrefix(upper, spaced) {
			value := strings.TrimSpace(line[len(prefix):])
			value = strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
			return key, strings.TrimSpace(value), true
		}
	}
	return "", "", false
}

// ParseConfidence reads a confidence value such as "0.85", "85%" or "85". Values
// above 1 are read as percentages. ok is false if no number is present.
func ParseConfidence(value string) (float64, bool) {
	match := numberRegex.FindString(value)
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	if strings.Contains(value, "%") || (f > 1 && f <= 100) {
		f = f / 100
	}
	return f, true
}

// ParseBool reads a yes/no style field. ok is false for anything else.
func ParseBool(value string) (bool, bool) {
	words := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	if len(words) == 0 {
		return false, false
	}
	switch words[0] {
	case "true", "yes":
		return true, true
	case "false", "no":
		return false, true
	}
	return false, false
}

// TruncateString truncates a string to at most maxLen bytes plus an ellipsis.
// The cut never splits a multi-byte character.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
