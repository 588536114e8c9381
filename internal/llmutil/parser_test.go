// internal/llmutil/parser_test.go
package llmutil

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestScanFields(t *testing.T) {
	t.Parallel()
	keys := []string{"CATEGORY", "CONFIDENCE", "EXPLANATION", "CAN_AUTOFIX", "SUGGESTED_FIX"}

	t.Run("plain format", func(t *testing.T) {
		t.Parallel()
		resp := "CATEGORY: Configuration Error\nCONFIDENCE: 0.8\nEXPLANATION: variable is missing\nCAN_AUTOFIX: true\nSUGGESTED_FIX: declare it"
		fields := ScanFields(resp, keys...)
		assert.Equal(t, "Configuration Error", fields["CATEGORY"])
		assert.Equal(t, "0.8", fields["CONFIDENCE"])
		assert.Equal(t, "variable is missing", fields["EXPLANATION"])
		assert.Equal(t, "true", fields["CAN_AUTOFIX"])
		assert.Equal(t, "declare it", fields["SUGGESTED_FIX"])
	})

	t.Run("markdown decorations and multi-line values", func(t *testing.T) {
		t.Parallel()
		resp := "```text\n**CATEGORY:** [Syntax Error]\n- **Confidence:** 90%\nExplanation: first line\nsecond line\n\nSuggested Fix: close the brace\n```"
		fields := ScanFields(resp, keys...)
		assert.Equal(t, "Syntax Error", fields["CATEGORY"])
		assert.Equal(t, "90%", fields["CONFIDENCE"])
		assert.Equal(t, "first line\nsecond line", fields["EXPLANATION"])
		assert.Equal(t, "close the brace", fields["SUGGESTED_FIX"])
		_, present := fields["CAN_AUTOFIX"]
		assert.False(t, present)
	})

	t.Run("no fields", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, ScanFields("I am not sure what happened.", keys...))
	})
}

func TestParseConfidence(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"0.85", 0.85, true},
		{"85%", 0.85, true},
		{"90", 0.9, true},
		{"1.0", 1.0, true},
		{"high", 0, false},
		{"", 0, false},
	}
	for _, tc := range testCases {
		got, ok := ParseConfidence(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, tc.in)
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		in     string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{"Yes, it can", true, true},
		{"False.", false, true},
		{"no", false, true},
		{"maybe", false, false},
		{"", false, false},
	}
	for _, tc := range testCases {
		got, ok := ParseBool(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestCleanCodeOutput(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "CATEGORY: x", CleanCodeOutput("```\nCATEGORY: x\n```"))
	assert.Equal(t, "plain", CleanCodeOutput("  plain  "))
}

func TestTruncateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", TruncateString("abc", 5))
	assert.Equal(t, "ab...", TruncateString("abcdef", 2))
	assert.Equal(t, "", TruncateString("abc", 0))
	// "é" is two bytes; a cut inside it backs up to the rune start.
	assert.Equal(t, "caf...", TruncateString("café au lait", 4))
	assert.True(t, utf8.ValidString(TruncateString("région westeurope", 2)))
	assert.Equal(t, "r...", TruncateString("région westeurope", 2))
}
