package credential

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podscout/podscout/internal/localstore"
	"github.com/podscout/podscout/internal/log"
)

// fakeRemote returns a scripted default key or error.
type fakeRemote struct {
	key   string
	err   error
	calls int
}

func (f *fakeRemote) DefaultAPIKey(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.key, f.err
}

func newLocal(t *testing.T) *localstore.Store {
	t.Helper()
	return localstore.New(filepath.Join(t.TempDir(), "state.json"))
}

func TestResolveNothingConfigured(t *testing.T) {
	s := NewStore(&fakeRemote{}, newLocal(t), log.NewNop())

	key, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.False(t, s.Has(context.Background()))
}

func TestResolvePrefersRemoteDefaultOverLocal(t *testing.T) {
	local := newLocal(t)
	require.NoError(t, local.Set(localstore.KeyAPICredential, "local-key"))

	s := NewStore(&fakeRemote{key: "remote-key"}, local, log.NewNop())

	key, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "remote-key", key)
}

func TestResolveFallsBackToLocalOnRemoteError(t *testing.T) {
	local := newLocal(t)
	require.NoError(t, local.Set(localstore.KeyAPICredential, "local-key"))

	s := NewStore(&fakeRemote{err: errors.New("store down")}, local, log.NewNop())

	key, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local-key", key)
}

func TestResolveCachesResult(t *testing.T) {
	remote := &fakeRemote{key: "remote-key"}
	s := NewStore(remote, newLocal(t), log.NewNop())

	ctx := context.Background()
	_, err := s.Resolve(ctx)
	require.NoError(t, err)
	_, err = s.Resolve(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, remote.calls, "second resolve should hit the cache")
}

func TestSetWritesLocalAndMemory(t *testing.T) {
	local := newLocal(t)
	s := NewStore(&fakeRemote{}, local, log.NewNop())

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "user-entered"))

	key, err := s.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-entered", key)

	// Durable: a fresh store with no remote still finds it.
	s2 := NewStore(nil, local, log.NewNop())
	key, err = s2.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-entered", key)
	assert.True(t, s2.Has(ctx))
}
