package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wenjin/chatd/store"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "single line",
			content: "How do I cook rice?",
			want:    "How do I cook rice?",
		},
		{
			name:    "first line only",
			content: "Plan a trip\nto three cities\nin one week",
			want:    "Plan a trip",
		},
		{
			name:    "surrounding whitespace trimmed",
			content: "  hello world  \nmore",
			want:    "hello world",
		},
		{
			name:    "empty keeps placeholder",
			content: "",
			want:    store.PlaceholderTitle,
		},
		{
			name:    "whitespace only keeps placeholder",
			content: "   \nactual content on the next line",
			want:    store.PlaceholderTitle,
		},
		{
			name:    "long line truncated to fifty runes",
			content: strings.Repeat("ab", 40),
			want:    strings.Repeat("ab", 25),
		},
		{
			name:    "exactly fifty runes unchanged",
			content: strings.Repeat("x", 50),
			want:    strings.Repeat("x", 50),
		},
		{
			name:    "truncation counts runes not bytes",
			content: strings.Repeat("你", 60),
			want:    strings.Repeat("你", 50),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.content))
		})
	}
}
