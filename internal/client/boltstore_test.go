package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	store, err := OpenBoltStore(path)
	require.NoError(t, err)

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, tokens)

	require.NoError(t, store.Save(Tokens{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, store.SetAccessToken("a2"))
	require.NoError(t, store.Close())

	reopened, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	tokens, err = reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{AccessToken: "a2", RefreshToken: "r1"}, tokens)

	require.NoError(t, reopened.Clear())
	tokens, err = reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, tokens)
}

func TestStoresSatisfyInterface(t *testing.T) {
	var _ TokenStore = (*MemoryStore)(nil)
	var _ TokenStore = (*BoltStore)(nil)
}
