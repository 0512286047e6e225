package cmd

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// parseConversationID parses a /open argument as a conversation UUID.
func parseConversationID(arg string) (uuid.UUID, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return uuid.Nil, errors.New("usage: /open <conversation-id>")
	}
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, errors.New("conversation id must be a UUID, see /list")
	}
	return id, nil
}
