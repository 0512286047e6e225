package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/podscout/podscout/internal/chat"
)

// newSessionKey marks a stream that has not bound to a conversation yet.
const newSessionKey = "new"

// Idle controllers are swept inline during lookups.
const (
	sessionSweepInterval = 5 * time.Minute
	sessionTTL           = 30 * time.Minute
)

// sessionRegistry holds one live controller per (user, conversation).
// Controllers carry the in-flight turn state, so requests for the same
// conversation must land on the same instance.
type sessionRegistry struct {
	mu        sync.Mutex
	entries   map[string]*sessionEntry
	lastSweep time.Time
	create    func(userID string) (*chat.Controller, error)
}

type sessionEntry struct {
	ctrl     *chat.Controller
	lastUsed time.Time
}

func newSessionRegistry(create func(userID string) (*chat.Controller, error)) *sessionRegistry {
	return &sessionRegistry{
		entries:   make(map[string]*sessionEntry),
		lastSweep: time.Now(),
		create:    create,
	}
}

func sessionKey(userID, convKey string) string {
	return userID + "/" + convKey
}

// acquire returns the controller for the given conversation, creating
// one on first use. Stale idle entries are swept on the way.
func (reg *sessionRegistry) acquire(userID, convKey string) (*chat.Controller, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	now := time.Now()
	if now.Sub(reg.lastSweep) > sessionSweepInterval {
		for key, entry := range reg.entries {
			if now.Sub(entry.lastUsed) > sessionTTL && entry.ctrl.State() == chat.StateIdle {
				delete(reg.entries, key)
			}
		}
		reg.lastSweep = now
	}

	key := sessionKey(userID, convKey)
	if entry, ok := reg.entries[key]; ok {
		entry.lastUsed = now
		return entry.ctrl, nil
	}

	ctrl, err := reg.create(userID)
	if err != nil {
		return nil, err
	}
	reg.entries[key] = &sessionEntry{ctrl: ctrl, lastUsed: now}
	return ctrl, nil
}

// rekey moves an entry to a new key, once the conversation id is known.
func (reg *sessionRegistry) rekey(userID, oldKey, newKey string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	old := sessionKey(userID, oldKey)
	if entry, ok := reg.entries[old]; ok {
		delete(reg.entries, old)
		reg.entries[sessionKey(userID, newKey)] = entry
	}
}

// drop tears down a conversation's controller, e.g. after deletion.
func (reg *sessionRegistry) drop(userID, convKey string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	key := sessionKey(userID, convKey)
	if entry, ok := reg.entries[key]; ok {
		entry.ctrl.Reset()
		delete(reg.entries, key)
	}
}

// chatStreamRequest is the POST /api/v1/chat/stream body.
type chatStreamRequest struct {
	// ConversationID continues an existing conversation; empty starts a
	// new one titled after the message.
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// handleChatStream runs one chat turn over SSE. Errors before headers
// map to JSON statuses; once the stream is open they become "error"
// events carrying the same code.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, s.logger, http.StatusBadRequest,
			errorBody{Code: "invalid_request", Message: "message is required"})
		return
	}

	convKey := newSessionKey
	var convID uuid.UUID
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			writeJSON(w, s.logger, http.StatusBadRequest,
				errorBody{Code: "invalid_request", Message: "malformed conversation id"})
			return
		}
		convID = id
		convKey = id.String()
	}

	ctrl, err := s.sessions.acquire(userID, convKey)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	// Bind the controller to the requested conversation before the
	// stream opens, so ownership and existence failures still get a
	// proper status code.
	if convID != uuid.Nil && ctrl.ConversationID() != convID {
		conv, err := s.store.Get(r.Context(), userID, convID)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		if err := ctrl.Open(r.Context(), conv); err != nil {
			writeError(w, s.logger, err)
			return
		}
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeJSON(w, s.logger, http.StatusInternalServerError,
			errorBody{Code: "internal", Message: http.StatusText(http.StatusInternalServerError)})
		return
	}

	res, err := ctrl.Submit(r.Context(), req.Message, func(text string) {
		if werr := sse.writeChunk(text); werr != nil {
			s.logger.Debug("chunk write failed, client likely gone", "error", werr)
		}
	})
	if err != nil {
		status, code := errorStatus(err)
		if werr := sse.writeError(code, publicMessage(err, status)); werr != nil {
			s.logger.Debug("error event write failed", "error", werr)
		}
		return
	}

	if convKey == newSessionKey {
		s.sessions.rekey(userID, newSessionKey, res.ConversationID.String())
	}

	if werr := sse.writeDone(doneEvent{
		ConversationID: res.ConversationID.String(),
		MessageID:      res.AssistantID.String(),
		Text:           res.Reply,
	}); werr != nil {
		s.logger.Debug("done event write failed", "error", werr)
	}
}
