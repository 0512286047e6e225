package chat

import "strings"

// titleRuneLimit bounds derived conversation titles.
const titleRuneLimit = 30

// DeriveTitle derives a conversation title from the first message:
// whitespace collapsed, truncated to 30 runes with a trailing ellipsis
// only when truncation actually happened.
func DeriveTitle(firstMessage string) string {
	title := strings.Join(strings.Fields(firstMessage), " ")
	if title == "" {
		return "New conversation"
	}

	runes := []rune(title)
	if len(runes) <= titleRuneLimit {
		return title
	}
	return string(runes[:titleRuneLimit]) + "…"
}
