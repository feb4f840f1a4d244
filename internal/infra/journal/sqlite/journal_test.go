package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"itemdb/internal/archive"
	"itemdb/internal/infra/journal/sqljournal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ archive.Journal = (*sqljournal.Journal)(nil)

func TestJournalPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "itemdb.db")

	j, err := Open(ctx, path)
	require.NoError(t, err)
	users, err := j.Users(ctx)
	require.NoError(t, err)
	assert.Nil(t, users)

	require.NoError(t, j.Append(ctx, []byte("[1]")))
	require.NoError(t, j.Append(ctx, []byte("[2]")))
	require.NoError(t, j.ReplaceUsers(ctx, []byte("first")))
	require.NoError(t, j.ReplaceUsers(ctx, []byte("second")))
	require.NoError(t, j.Close())

	j, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()
	frags, err := j.Fragments(ctx)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "[1]", string(frags[0]))
	assert.Equal(t, "[2]", string(frags[1]))
	users, err = j.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(users))
}

func TestInMemoryDatabase(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer func() { _ = j.Close() }()
	require.NoError(t, j.Append(ctx, []byte("[]")))
	frags, err := j.Fragments(ctx)
	require.NoError(t, err)
	assert.Len(t, frags, 1)
}

func TestClosedJournalFails(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	require.NoError(t, j.Close())
	assert.Error(t, j.Append(ctx, []byte("[]")))
	_, err = j.Fragments(ctx)
	assert.Error(t, err)
}
