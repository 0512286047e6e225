package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sseWriter frames a chat stream as Server-Sent Events: a "chunk" event
// per text fragment, one "done" event with the turn result, or one
// "error" event when the turn fails after headers went out.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	return &sseWriter{w: w, flusher: flusher}, nil
}

// writeEvent writes one event. Multi-line data gets a "data:" prefix
// per line as the SSE framing requires.
func (s *sseWriter) writeEvent(event, data string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write event name: %w", err)
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write data line: %w", err)
		}
	}
	if _, err := io.WriteString(s.w, "\n"); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) writeJSONEvent(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	return s.writeEvent(event, string(data))
}

// chunkEvent carries one streamed text fragment.
type chunkEvent struct {
	Text string `json:"text"`
}

// doneEvent closes a successful turn.
type doneEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Text           string `json:"text"`
}

func (s *sseWriter) writeChunk(text string) error {
	return s.writeJSONEvent("chunk", chunkEvent{Text: text})
}

func (s *sseWriter) writeDone(done doneEvent) error {
	return s.writeJSONEvent("done", done)
}

func (s *sseWriter) writeError(code, message string) error {
	return s.writeJSONEvent("error", errorBody{Code: code, Message: message})
}
