// Package testutil provides shared test helpers: a silent logger, an
// SSE wire parser, and a containerized Postgres harness.
package testutil

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	Event string
	Data  string
}

// ParseSSEEvents parses a raw SSE response body into events. Multi-line
// data fields are joined with newlines per the SSE framing rules.
func ParseSSEEvents(body string) []SSEEvent {
	var (
		events  []SSEEvent
		current SSEEvent
		dataSet bool
	)

	flush := func() {
		if current.Event != "" || dataSet {
			events = append(events, current)
		}
		current = SSEEvent{}
		dataSet = false
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			current.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimPrefix(line, "data:")
			chunk = strings.TrimPrefix(chunk, " ")
			if dataSet {
				current.Data += "\n" + chunk
			} else {
				current.Data = chunk
			}
			dataSet = true
		}
	}
	flush()
	return events
}
