// Package api exposes the HTTP surface: conversation CRUD, the SSE chat
// stream, credential management, and health probes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/podscout/podscout/internal/chat"
	"github.com/podscout/podscout/internal/conversation"
	"github.com/podscout/podscout/internal/localstore"
)

// ConversationStore is the persistence surface the API drives.
// Implemented by *conversation.Store.
type ConversationStore interface {
	Create(ctx context.Context, userID, title string) (*conversation.Conversation, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*conversation.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*conversation.Conversation, error)
	Messages(ctx context.Context, userID string, conversationID uuid.UUID) ([]*conversation.Message, error)
	AppendMessage(ctx context.Context, userID string, msg *conversation.Message) error
	Rename(ctx context.Context, userID string, id uuid.UUID, title string) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	InterestsSummary(ctx context.Context, userID string) (string, error)
}

// CredentialStore resolves and stores the generation API credential.
// Implemented by *credential.Store.
type CredentialStore interface {
	Resolve(ctx context.Context) (string, error)
	Set(ctx context.Context, key string) error
	Has(ctx context.Context) bool
}

// Pinger reports readiness of the backing database.
// Implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig assembles the API server.
type ServerConfig struct {
	Logger        *slog.Logger
	Conversations ConversationStore
	Credentials   CredentialStore
	Engine        chat.Engine
	DB            Pinger
	Local         *localstore.Store // optional history fallback mirror

	// HMACSecret signs identity cookies. 32+ bytes required.
	HMACSecret []byte

	CORSOrigins []string
	TrustProxy  bool
	RateBurst   int

	// IsDev disables the Secure cookie flag for plain-HTTP development.
	IsDev bool
}

// Server is the podscout HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	store    ConversationStore
	creds    CredentialStore
	db       Pinger
	identity *identity
	limiter  *rateLimiter
	cors     func(http.Handler) http.Handler
	sessions *sessionRegistry
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Conversations == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if len(cfg.HMACSecret) < 32 {
		return nil, errors.New("HMAC secret must be at least 32 bytes")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		store:  cfg.Conversations,
		creds:  cfg.Credentials,
		db:     cfg.DB,
		identity: &identity{
			secret: cfg.HMACSecret,
			logger: logger,
			secure: !cfg.IsDev,
		},
		limiter: newRateLimiter(cfg.RateBurst, cfg.TrustProxy, logger),
		cors:    corsMiddleware(cfg.CORSOrigins),
		sessions: newSessionRegistry(func(userID string) (*chat.Controller, error) {
			return chat.NewController(chat.Config{
				Store:       cfg.Conversations,
				Engine:      cfg.Engine,
				Credentials: cfg.Credentials,
				Local:       cfg.Local,
				UserID:      userID,
				Logger:      logger,
			})
		}),
	}

	// Probes stay outside the middleware stack for container health
	// checks.
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)

	s.mux.HandleFunc("GET /api/v1/conversations", s.handleListConversations)
	s.mux.HandleFunc("POST /api/v1/conversations", s.handleCreateConversation)
	s.mux.HandleFunc("GET /api/v1/conversations/{id}", s.handleGetConversation)
	s.mux.HandleFunc("PATCH /api/v1/conversations/{id}", s.handleRenameConversation)
	s.mux.HandleFunc("DELETE /api/v1/conversations/{id}", s.handleDeleteConversation)
	s.mux.HandleFunc("GET /api/v1/conversations/{id}/messages", s.handleListMessages)

	s.mux.HandleFunc("POST /api/v1/chat/stream", s.handleChatStream)

	s.mux.HandleFunc("GET /api/v1/credential", s.handleGetCredential)
	s.mux.HandleFunc("PUT /api/v1/credential", s.handlePutCredential)

	return s, nil
}

// ServeHTTP implements http.Handler with the middleware stack:
// recovery, request id, logging, CORS, rate limit, identity.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" || r.URL.Path == "/ready" {
		s.mux.ServeHTTP(w, r)
		return
	}

	var handler http.Handler = s.mux
	handler = s.identity.middleware(handler)
	handler = s.limiter.middleware(handler)
	handler = s.cors(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	handler.ServeHTTP(w, r)
}

// userID pulls the identity injected by the middleware. Absence means a
// probe-style direct call that skipped the stack.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := UserID(r.Context())
	if !ok || id == "" {
		writeError(w, s.logger, conversation.ErrAuthRequired)
		return "", false
	}
	return id, true
}

// pathID parses the {id} path segment as a UUID.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest,
			errorBody{Code: "invalid_request", Message: "malformed conversation id"})
		return uuid.Nil, false
	}
	return id, true
}
