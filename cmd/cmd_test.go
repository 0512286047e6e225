package cmd

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConversationID(t *testing.T) {
	id := uuid.New()

	got, err := parseConversationID("  " + id.String() + "  ")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseConversationID("")
	assert.Error(t, err)

	_, err = parseConversationID("not-a-uuid")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, buf.String(), "podscout v")
	assert.Contains(t, buf.String(), "Commit:")
}
