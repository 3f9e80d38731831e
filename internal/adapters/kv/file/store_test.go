package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

func TestStoreRejectsInvalidKeys(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	testCases := []struct {
		name    string
		key     string
		wantErr string
	}{
		{name: "empty", key: "", wantErr: "store key is empty"},
		{name: "whitespace", key: "  ", wantErr: "store key is empty"},
		{name: "absolute", key: "/etc/passwd", wantErr: "invalid store key"},
		{name: "traversal", key: "../outside", wantErr: "invalid store key"},
		{name: "dot", key: ".", wantErr: "invalid store key"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Put(context.Background(), tc.key, "value")
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestStoreRoundTripUsesPrivatePermissions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	key := "tgkz/auth/access_token"

	require.NoError(t, store.Put(context.Background(), key, "header.payload.sig"))
	require.NoError(t, store.Put(context.Background(), key, "rotated.payload.sig"))

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "rotated.payload.sig", got)

	info, err := os.Stat(filepath.Join(root, key))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(fileMode), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Join(root, "tgkz", "auth"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(dirMode), dirInfo.Mode().Perm())

	entries, err := os.ReadDir(filepath.Join(root, "tgkz", "auth"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestStoreGetMissingKeyIsKeyNotFound(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	_, err := store.Get(context.Background(), "tgkz/auth/user")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	key := "tgkz/auth/refresh_token"
	require.NoError(t, store.Put(context.Background(), key, "r1"))

	require.NoError(t, store.Delete(context.Background(), key))
	require.NoError(t, store.Delete(context.Background(), key))

	_, err := store.Get(context.Background(), key)
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestStoreHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewStore(t.TempDir())
	require.ErrorIs(t, store.Put(ctx, "tgkz/auth/token", "x"), context.Canceled)
	_, err := store.Get(ctx, "tgkz/auth/token")
	require.ErrorIs(t, err, context.Canceled)
}
