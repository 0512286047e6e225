//go:build integration
// +build integration

package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podscout/podscout/internal/conversation"
	"github.com/podscout/podscout/internal/credential"
	"github.com/podscout/podscout/internal/testutil"
)

func setupStore(t *testing.T) (*conversation.Store, context.Context) {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return conversation.NewStore(db.Pool, testutil.DiscardLogger()), context.Background()
}

func appendText(t *testing.T, store *conversation.Store, ctx context.Context, userID string, convID uuid.UUID, role, content string) *conversation.Message {
	t.Helper()
	msg := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
	require.NoError(t, store.AppendMessage(ctx, userID, msg))
	return msg
}

func TestStoreCreateAndGet(t *testing.T) {
	store, ctx := setupStore(t)

	conv, err := store.Create(ctx, "user-1", "Science shows")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, conv.ID)
	assert.False(t, conv.CreatedAt.IsZero())

	got, err := store.Get(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "Science shows", got.Title)
}

func TestStoreAuthRequired(t *testing.T) {
	store, ctx := setupStore(t)

	_, err := store.Create(ctx, "", "title")
	assert.ErrorIs(t, err, conversation.ErrAuthRequired)

	_, err = store.ListForUser(ctx, "")
	assert.ErrorIs(t, err, conversation.ErrAuthRequired)
}

func TestStoreOwnershipIsolation(t *testing.T) {
	store, ctx := setupStore(t)

	conv, err := store.Create(ctx, "alice", "private")
	require.NoError(t, err)

	_, err = store.Get(ctx, "bob", conv.ID)
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	err = store.Rename(ctx, "bob", conv.ID, "stolen")
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	err = store.AppendMessage(ctx, "bob", &conversation.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           conversation.RoleUser,
		Content:        "intrusion",
		Timestamp:      time.Now().UTC(),
	})
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestStoreMessagesRoundTrip(t *testing.T) {
	store, ctx := setupStore(t)

	conv, err := store.Create(ctx, "user-1", "chat")
	require.NoError(t, err)

	appendText(t, store, ctx, "user-1", conv.ID, conversation.RoleUser, "first question")
	appendText(t, store, ctx, "user-1", conv.ID, conversation.RoleAssistant, "first answer")

	msgs, err := store.Messages(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first question", msgs[0].Content)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
}

func TestStoreMessagesUnknownConversationIsEmpty(t *testing.T) {
	store, ctx := setupStore(t)

	msgs, err := store.Messages(ctx, "user-1", uuid.New())
	require.NoError(t, err)
	assert.Empty(t, msgs, "unknown id yields an empty history, not an error")
}

func TestStoreListOrderedByActivity(t *testing.T) {
	store, ctx := setupStore(t)

	first, err := store.Create(ctx, "user-1", "older")
	require.NoError(t, err)
	second, err := store.Create(ctx, "user-1", "newer")
	require.NoError(t, err)

	// Touch the older conversation so it becomes the most recent.
	time.Sleep(10 * time.Millisecond)
	appendText(t, store, ctx, "user-1", first.ID, conversation.RoleUser, "bump")

	convs, err := store.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID, "most recently active first")
	assert.Equal(t, second.ID, convs[1].ID)
}

func TestStoreDeleteRemovesMessagesFirst(t *testing.T) {
	store, ctx := setupStore(t)

	conv, err := store.Create(ctx, "user-1", "doomed")
	require.NoError(t, err)
	appendText(t, store, ctx, "user-1", conv.ID, conversation.RoleUser, "hello")
	appendText(t, store, ctx, "user-1", conv.ID, conversation.RoleAssistant, "hi")

	require.NoError(t, store.Delete(ctx, "user-1", conv.ID))

	_, err = store.Get(ctx, "user-1", conv.ID)
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	msgs, err := store.Messages(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStoreRename(t *testing.T) {
	store, ctx := setupStore(t)

	conv, err := store.Create(ctx, "user-1", "old name")
	require.NoError(t, err)
	other, err := store.Create(ctx, "user-1", "untouched")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Rename(ctx, "user-1", conv.ID, "new name"))

	got, err := store.Get(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "new name", got.Title)

	// Renaming counts as activity: the renamed conversation now lists
	// ahead of one not touched since.
	convs, err := store.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, conv.ID, convs[0].ID)
	assert.Equal(t, other.ID, convs[1].ID)
}

func TestStoreDefaultAPIKeyAbsent(t *testing.T) {
	store, ctx := setupStore(t)

	key, err := store.DefaultAPIKey(ctx, credential.ServiceName)
	require.NoError(t, err, "missing row is not an error")
	assert.Empty(t, key)
}

func TestStoreInterestsSummaryFromHistory(t *testing.T) {
	store, ctx := setupStore(t)

	conv, err := store.Create(ctx, "user-1", "chat")
	require.NoError(t, err)
	appendText(t, store, ctx, "user-1", conv.ID, conversation.RoleUser, "any good true crime series?")
	appendText(t, store, ctx, "user-1", conv.ID, conversation.RoleAssistant, "plenty of science shows too")

	summary, err := store.InterestsSummary(ctx, "user-1")
	require.NoError(t, err)
	assert.Contains(t, summary, "true crime")
	assert.NotContains(t, summary, "science", "assistant text never feeds the interest scan")
}
