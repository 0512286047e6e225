package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store depends on.
// Defined by the consumer so tests can substitute a fake.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages conversation and message persistence.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store. logger nil falls back to slog.Default().
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Create inserts a new conversation and returns it with server-assigned
// timestamps mirrored locally.
func (s *Store) Create(ctx context.Context, userID, title string) (*Conversation, error) {
	if userID == "" {
		return nil, ErrAuthRequired
	}

	conv := &Conversation{
		ID:     uuid.New(),
		Title:  title,
		UserID: userID,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO conversations (id, title, user_id)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		conv.ID, conv.Title, conv.UserID,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, persistErr("create conversation", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "user", userID)
	return conv, nil
}

// Get retrieves a conversation the caller owns.
func (s *Store) Get(ctx context.Context, userID string, id uuid.UUID) (*Conversation, error) {
	if userID == "" {
		return nil, ErrAuthRequired
	}

	conv := &Conversation{}
	err := s.db.QueryRow(ctx,
		`SELECT id, title, user_id, created_at, updated_at
		 FROM conversations
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&conv.ID, &conv.Title, &conv.UserID, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get conversation", err)
	}
	return conv, nil
}

// ListForUser returns the caller's conversations, most recently updated
// first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	if userID == "" {
		return nil, ErrAuthRequired
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, title, user_id, created_at, updated_at
		 FROM conversations
		 WHERE user_id = $1
		 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, persistErr("list conversations", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv := &Conversation{}
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.UserID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, persistErr("scan conversation", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list conversations", err)
	}
	return convs, nil
}

// Messages returns a conversation's messages ordered by timestamp
// ascending. An unknown or foreign conversation id yields an empty
// slice, not an error — the UI treats "no history" and "gone" the same.
func (s *Store) Messages(ctx context.Context, userID string, conversationID uuid.UUID) ([]*Message, error) {
	if userID == "" {
		return nil, ErrAuthRequired
	}

	rows, err := s.db.Query(ctx,
		`SELECT m.id, m.conversation_id, m.role, m.content, m.timestamp
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE m.conversation_id = $1 AND c.user_id = $2
		 ORDER BY m.timestamp ASC`,
		conversationID, userID,
	)
	if err != nil {
		return nil, persistErr("fetch messages", err)
	}
	defer rows.Close()

	msgs := make([]*Message, 0)
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, persistErr("scan message", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("fetch messages", err)
	}
	return msgs, nil
}

// AppendMessage persists one message and bumps the parent conversation's
// updated_at, atomically. Ownership is verified inside the same
// transaction; appending to a foreign conversation is ErrNotFound.
func (s *Store) AppendMessage(ctx context.Context, userID string, msg *Message) error {
	if userID == "" {
		return ErrAuthRequired
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return persistErr("append message", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		msg.ConversationID, userID,
	)
	if err != nil {
		return persistErr("append message", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, timestamp)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Timestamp,
	)
	if err != nil {
		return persistErr("append message", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return persistErr("append message", err)
	}

	s.logger.Debug("appended message", "conversation", msg.ConversationID, "role", msg.Role)
	return nil
}

// Rename updates a conversation's title and bumps updated_at.
func (s *Store) Rename(ctx context.Context, userID string, id uuid.UUID, title string) error {
	if userID == "" {
		return ErrAuthRequired
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE conversations SET title = $1, updated_at = now()
		 WHERE id = $2 AND user_id = $3`,
		title, id, userID,
	)
	if err != nil {
		return persistErr("rename conversation", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a conversation and its messages. Messages go first —
// the foreign key has no cascade, so the ordering is load-bearing.
func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if userID == "" {
		return ErrAuthRequired
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return persistErr("delete conversation", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`DELETE FROM messages
		 WHERE conversation_id = $1
		   AND conversation_id IN (SELECT id FROM conversations WHERE id = $1 AND user_id = $2)`,
		id, userID,
	)
	if err != nil {
		return persistErr("delete conversation", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return persistErr("delete conversation", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return persistErr("delete conversation", err)
	}

	s.logger.Debug("deleted conversation", "id", id, "user", userID)
	return nil
}

// DefaultAPIKey looks up the shared fallback credential for a service.
// Not user-scoped: default_api_keys holds deployment-wide keys.
// Returns empty string (no error) when no row exists.
func (s *Store) DefaultAPIKey(ctx context.Context, serviceName string) (string, error) {
	var key string
	err := s.db.QueryRow(ctx,
		`SELECT api_key FROM default_api_keys WHERE service_name = $1`,
		serviceName,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", persistErr("default api key lookup", err)
	}
	return key, nil
}
