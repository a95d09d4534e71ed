package cli

import (
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
	}{
		{name: "ascii", input: "the quick brown fox jumps over the lazy dog", maxLen: 10},
		{name: "accented", input: "résumé für señor ümlaut àèìòù", maxLen: 9},
		{name: "wide", input: "插件运行失败插件运行失败", maxLen: 8},
		{name: "emoji", input: "🚀🚀🚀🚀🚀🚀🚀🚀", maxLen: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateString(tt.input, tt.maxLen)
			assert.True(t, utf8.ValidString(got), "truncated to invalid UTF-8: %q", got)
			assert.LessOrEqual(t, ansi.StringWidth(got), tt.maxLen)
			assert.Contains(t, got, "...")
		})
	}
}

func TestTruncateString_ShortInputUnchanged(t *testing.T) {
	assert.Equal(t, "héllo", truncateString("héllo", 10))
	assert.Equal(t, "", truncateString("", 10))
}
