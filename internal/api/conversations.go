package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/podscout/podscout/internal/chat"
	"github.com/podscout/podscout/internal/conversation"
)

// Wire shapes for the conversation endpoints.
type conversationJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageJSON struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func toConversationJSON(c *conversation.Conversation) conversationJSON {
	return conversationJSON{
		ID:        c.ID.String(),
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toMessageJSON(m *conversation.Message) messageJSON {
	return messageJSON{
		ID:        m.ID.String(),
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	convs, err := s.store.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	out := make([]conversationJSON, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationJSON(c))
	}
	writeJSON(w, s.logger, http.StatusOK, out)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest,
			errorBody{Code: "invalid_request", Message: "malformed request body"})
		return
	}

	conv, err := s.store.Create(r.Context(), userID, chat.DeriveTitle(req.Title))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, toConversationJSON(conv))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	conv, err := s.store.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, toConversationJSON(conv))
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeJSON(w, s.logger, http.StatusBadRequest,
			errorBody{Code: "invalid_request", Message: "title is required"})
		return
	}

	if err := s.store.Rename(r.Context(), userID, id, strings.TrimSpace(req.Title)); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if err := s.store.Delete(r.Context(), userID, id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.sessions.drop(userID, id.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	msgs, err := s.store.Messages(r.Context(), userID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageJSON(m))
	}
	writeJSON(w, s.logger, http.StatusOK, out)
}
