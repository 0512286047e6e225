// Package credential resolves and stores the generation API credential.
//
// Resolution order on read: in-memory cache → remote default lookup
// (shared fallback key in the persistent store) → locally persisted
// value. An explicit Set writes local storage and memory; nothing ever
// invalidates the cache automatically. The credential is never sent to
// the conversation store — it only authorizes generation calls.
package credential

import (
	"context"
	"log/slog"
	"sync"

	"github.com/podscout/podscout/internal/localstore"
)

// ServiceName is the default_api_keys row podscout reads for its shared
// fallback credential.
const ServiceName = "gemini"

// RemoteLookup fetches the deployment-wide fallback credential.
// Implemented by *conversation.Store.
type RemoteLookup interface {
	DefaultAPIKey(ctx context.Context, serviceName string) (string, error)
}

// Store holds the process-wide credential.
// Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	cached string

	remote RemoteLookup
	local  *localstore.Store
	logger *slog.Logger
}

// NewStore creates a credential store. remote may be nil when no
// persistent store is reachable (local-only mode).
func NewStore(remote RemoteLookup, local *localstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{remote: remote, local: local, logger: logger}
}

// Resolve returns the credential, consulting cache, remote default, and
// local storage in that order. Empty string means nothing resolved; the
// caller decides whether that is an error.
func (s *Store) Resolve(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	if s.remote != nil {
		key, err := s.remote.DefaultAPIKey(ctx, ServiceName)
		if err != nil {
			// Remote lookup failing must not block a locally stored key.
			s.logger.Warn("default credential lookup failed", "error", err)
		} else if key != "" {
			s.cached = key
			return key, nil
		}
	}

	if s.local != nil {
		key, ok, err := s.local.Get(localstore.KeyAPICredential)
		if err != nil {
			return "", err
		}
		if ok && key != "" {
			s.cached = key
			return key, nil
		}
	}

	return "", nil
}

// Set stores a credential explicitly: durable local write plus cache.
func (s *Store) Set(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.local != nil {
		if err := s.local.Set(localstore.KeyAPICredential, key); err != nil {
			return err
		}
	}
	s.cached = key
	s.logger.Info("credential updated")
	return nil
}

// Has reports whether a non-empty credential resolves.
func (s *Store) Has(ctx context.Context) bool {
	key, err := s.Resolve(ctx)
	return err == nil && key != ""
}
