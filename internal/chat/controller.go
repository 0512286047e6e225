// Package chat implements the session controller: the turn state
// machine that owns the live message list for the active conversation
// and drives persistence around each streaming turn.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/podscout/podscout/internal/conversation"
	"github.com/podscout/podscout/internal/gemini"
	"github.com/podscout/podscout/internal/localstore"
)

// State is the turn-taking state of a controller.
type State int

// Turn states. A submission is accepted only in StateIdle; every path
// through a turn, success or failure, ends back in StateIdle.
const (
	StateIdle State = iota
	StateAwaitingPersistUser
	StateStreaming
	StateAwaitingPersistAssistant
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPersistUser:
		return "awaiting-persist-user"
	case StateStreaming:
		return "streaming"
	case StateAwaitingPersistAssistant:
		return "awaiting-persist-assistant"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sentinel errors for turn submission.
var (
	// ErrBusy indicates a turn is already in flight for this controller.
	ErrBusy = errors.New("a response is already in progress")

	// ErrCredentialMissing indicates no API credential resolved; the
	// user message was neither persisted nor sent.
	ErrCredentialMissing = errors.New("API credential required")
)

// Store is the persistence surface the controller drives.
// Implemented by *conversation.Store.
type Store interface {
	Create(ctx context.Context, userID, title string) (*conversation.Conversation, error)
	Messages(ctx context.Context, userID string, conversationID uuid.UUID) ([]*conversation.Message, error)
	AppendMessage(ctx context.Context, userID string, msg *conversation.Message) error
	InterestsSummary(ctx context.Context, userID string) (string, error)
}

// Engine produces the streaming response. Implemented by *gemini.Client.
type Engine interface {
	GenerateStream(ctx context.Context, req gemini.StreamRequest, onFragment gemini.FragmentFunc) error
}

// Credentials resolves the generation API credential.
// Implemented by *credential.Store.
type Credentials interface {
	Resolve(ctx context.Context) (string, error)
}

// Controller owns the in-memory message list for one user's active
// conversation and serializes turns through the state machine.
//
// The live list is exclusively the controller's; the durable copy
// belongs to the store. They are reconciled only by explicit saves.
type Controller struct {
	store  Store
	engine Engine
	creds  Credentials
	local  *localstore.Store // optional history fallback mirror
	logger *slog.Logger

	userID string

	mu       sync.Mutex
	state    State
	conv     *conversation.Conversation
	messages []*conversation.Message

	// generation counts teardowns. A fragment callback captured before a
	// Reset must not mutate state afterwards, so each turn snapshots the
	// value and re-checks it before every mutation.
	generation uint64
}

// Config assembles a Controller.
type Config struct {
	Store       Store
	Engine      Engine
	Credentials Credentials
	Local       *localstore.Store // optional
	UserID      string
	Logger      *slog.Logger
}

// NewController creates a controller in StateIdle with no active
// conversation.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("credentials are required")
	}
	if cfg.UserID == "" {
		return nil, conversation.ErrAuthRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:  cfg.Store,
		engine: cfg.Engine,
		creds:  cfg.Credentials,
		local:  cfg.Local,
		logger: logger,
		userID: cfg.UserID,
		state:  StateIdle,
	}, nil
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationID returns the active conversation id, or uuid.Nil.
func (c *Controller) ConversationID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conv == nil {
		return uuid.Nil
	}
	return c.conv.ID
}

// Messages returns a snapshot of the live message list.
func (c *Controller) Messages() []*conversation.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*conversation.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Open loads an existing conversation's history into the live list.
// Rejected while a turn is in flight.
func (c *Controller) Open(ctx context.Context, conv *conversation.Conversation) error {
	msgs, err := c.store.Messages(ctx, c.userID, conv.ID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrBusy
	}
	c.generation++
	c.conv = conv
	c.messages = msgs
	return nil
}

// Reset tears down the live session. In-flight fragment callbacks
// become no-ops against the new generation.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.state = StateIdle
	c.conv = nil
	c.messages = nil
}

// Result is the outcome of one completed turn.
type Result struct {
	ConversationID uuid.UUID
	AssistantID    uuid.UUID
	Reply          string
}

// Submit runs one full turn: persist the user message, stream the
// response (forwarding each fragment to onFragment while mutating the
// live assistant message in place), then persist the final assistant
// message. onFragment may be nil.
//
// Failures surface as errors and the controller unconditionally returns
// to StateIdle; stored history is never corrupted by a failed turn.
func (c *Controller) Submit(ctx context.Context, text string, onFragment gemini.FragmentFunc) (_ *Result, retErr error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state = StateAwaitingPersistUser
	gen := c.generation
	c.mu.Unlock()

	// Any exit, success or failure, releases the busy-guard.
	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		if retErr != nil {
			c.logger.Warn("turn failed", "error", retErr)
		}
	}()

	// Credential gate comes first: with nothing resolved, the message
	// must be neither persisted nor sent.
	key, err := c.creds.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving credential: %w", err)
	}
	if key == "" {
		return nil, ErrCredentialMissing
	}

	conv, err := c.ensureConversation(ctx, text)
	if err != nil {
		return nil, err
	}

	userMsg := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           conversation.RoleUser,
		Content:        text,
		Timestamp:      time.Now().UTC(),
	}
	if err := c.store.AppendMessage(ctx, c.userID, userMsg); err != nil {
		return nil, err
	}

	// Interests digest is best effort; a failed scan never blocks a turn.
	interests, err := c.store.InterestsSummary(ctx, c.userID)
	if err != nil {
		c.logger.Warn("interest scan failed", "error", err)
		interests = ""
	}

	assistantMsg := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           conversation.RoleAssistant,
		Timestamp:      time.Now().UTC(),
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil, ErrBusy // torn down mid-turn
	}
	history := c.historyTurnsLocked()
	c.messages = append(c.messages, userMsg, assistantMsg)
	c.state = StateStreaming
	c.mu.Unlock()

	err = c.engine.GenerateStream(ctx, gemini.StreamRequest{
		Prompt:     text,
		History:    history,
		Interests:  interests,
		Credential: key,
	}, func(fragment string) {
		c.mu.Lock()
		if c.generation != gen {
			// Session torn down while streaming: drop on the floor.
			c.mu.Unlock()
			return
		}
		assistantMsg.Content += fragment
		c.mu.Unlock()
		if onFragment != nil {
			onFragment(fragment)
		}
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state = StateAwaitingPersistAssistant
	reply := assistantMsg.Content
	c.mu.Unlock()

	if err := c.store.AppendMessage(ctx, c.userID, assistantMsg); err != nil {
		// The reply already reached the UI; the live list keeps it even
		// though the durable save failed.
		return nil, err
	}

	c.mirrorHistory()

	return &Result{
		ConversationID: conv.ID,
		AssistantID:    assistantMsg.ID,
		Reply:          reply,
	}, nil
}

// ensureConversation returns the active conversation, creating one
// titled after the first message when none is active.
func (c *Controller) ensureConversation(ctx context.Context, firstMessage string) (*conversation.Conversation, error) {
	c.mu.Lock()
	conv := c.conv
	c.mu.Unlock()
	if conv != nil {
		return conv, nil
	}

	created, err := c.store.Create(ctx, c.userID, DeriveTitle(firstMessage))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conv = created
	c.mu.Unlock()
	return created, nil
}

// historyTurnsLocked serializes the live list as engine turns.
// Caller holds c.mu.
func (c *Controller) historyTurnsLocked() []gemini.Turn {
	turns := make([]gemini.Turn, 0, len(c.messages))
	for _, msg := range c.messages {
		turns = append(turns, gemini.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

// mirrorHistory writes a serialized fallback copy of the live list to
// local storage. Best effort only.
func (c *Controller) mirrorHistory() {
	if c.local == nil {
		return
	}

	c.mu.Lock()
	type storedMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	stored := make([]storedMessage, 0, len(c.messages))
	for _, msg := range c.messages {
		stored = append(stored, storedMessage{Role: msg.Role, Content: msg.Content})
	}
	c.mu.Unlock()

	data, err := json.Marshal(stored)
	if err != nil {
		c.logger.Warn("history mirror encode failed", "error", err)
		return
	}
	if err := c.local.Set(localstore.KeyHistoryFallback, string(data)); err != nil {
		c.logger.Warn("history mirror write failed", "error", err)
	}
}
