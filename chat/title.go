package chat

import (
	"strings"

	"github.com/wenjin/chatd/store"
)

const titleMaxRuneCount = 50

// DeriveTitle derives a conversation title from the first user message:
// the first line of the content, trimmed, truncated to 50 runes. Empty
// content keeps the placeholder.
func DeriveTitle(content string) string {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return store.PlaceholderTitle
	}
	runes := []rune(line)
	if len(runes) > titleMaxRuneCount {
		line = string(runes[:titleMaxRuneCount])
	}
	return line
}
