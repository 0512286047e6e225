package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSSEEvents(t *testing.T) {
	body := "event: chunk\ndata: hello\n\nevent: chunk\ndata: line one\ndata: line two\n\nevent: done\ndata: {}\n\n"

	events := ParseSSEEvents(body)
	require.Len(t, events, 3)

	assert.Equal(t, SSEEvent{Event: "chunk", Data: "hello"}, events[0])
	assert.Equal(t, SSEEvent{Event: "chunk", Data: "line one\nline two"}, events[1])
	assert.Equal(t, SSEEvent{Event: "done", Data: "{}"}, events[2])
}

func TestParseSSEEventsEmptyBody(t *testing.T) {
	assert.Empty(t, ParseSSEEvents(""))
}
