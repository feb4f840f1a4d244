package blob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"itemdb/internal/blob/core"
	"itemdb/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	fsStore, err := Open(ctx, config.BlobConfig{Driver: config.BlobFilesystem, FSRoot: t.TempDir()})
	require.NoError(t, err)
	memStore, err := Open(ctx, config.BlobConfig{Driver: config.BlobMemory})
	require.NoError(t, err)
	return map[string]Store{
		"fs":     fsStore,
		"memory": memStore,
		"s3":     NewMockS3ForTests(),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, _, err := store.Get(ctx, "log/missing")
			assert.ErrorIs(t, err, core.ErrNotFound)
			_, err = store.Head(ctx, "log/missing")
			assert.ErrorIs(t, err, core.ErrNotFound)

			info, err := store.Put(ctx, "log/b", bytes.NewReader([]byte("second")), core.PutOptions{ContentType: "application/json"})
			require.NoError(t, err)
			assert.Equal(t, "log/b", info.Key)
			assert.EqualValues(t, 6, info.Size)
			_, err = store.Put(ctx, "log/a", bytes.NewReader([]byte("first")), core.PutOptions{})
			require.NoError(t, err)
			_, err = store.Put(ctx, "users/current", bytes.NewReader([]byte("{}")), core.PutOptions{})
			require.NoError(t, err)

			_, err = store.Put(ctx, "log/a", bytes.NewReader([]byte("again")), core.PutOptions{})
			assert.ErrorIs(t, err, core.ErrExists, "keys are create-only")

			_, rc, err := store.Get(ctx, "log/a")
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "first", string(body))

			list, err := store.List(ctx, "log/")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "log/a", list[0].Key)
			assert.Equal(t, "log/b", list[1].Key)

			ok, err := store.Delete(ctx, "log/a")
			require.NoError(t, err)
			assert.True(t, ok)
			list, err = store.List(ctx, "log/")
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestFilesystemRejectsEscapingKeys(t *testing.T) {
	store, err := Open(context.Background(), config.BlobConfig{Driver: config.BlobFilesystem, FSRoot: t.TempDir()})
	require.NoError(t, err)
	for _, key := range []string{"", "../x", "/abs", "a/../../b", "x.meta"} {
		_, err := store.Put(context.Background(), key, bytes.NewReader(nil), core.PutOptions{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.BlobConfig{Driver: config.BlobMemory})
	require.NoError(t, err)
	assert.Equal(t, core.DriverMemory, s.Driver())

	s, err = Open(ctx, config.BlobConfig{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, core.DriverFilesystem, s.Driver())

	_, err = Open(ctx, config.BlobConfig{Driver: config.BlobS3})
	assert.Error(t, err, "bucket is required")

	_, err = Open(ctx, config.BlobConfig{Driver: "ftp"})
	assert.Error(t, err)
}
