package httpjournal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"itemdb/internal/archive"
	"itemdb/pkg/domain"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ archive.Journal = (*Client)(nil)

var epoch = time.UnixMilli(1118000000000).UTC()

func newServer(t *testing.T) (*Client, *archive.MemoryJournal) {
	t.Helper()
	backing := archive.NewMemoryJournal()
	logger, _ := logtest.NewNullLogger()
	mux := http.NewServeMux()
	NewHandler(backing, WithLogger(logger), WithClock(func() time.Time { return epoch })).RegisterHTTPHandlers("", mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", WithTimeout(5*time.Second)), backing
}

func records() []domain.Record {
	user, book := uuid.New(), uuid.New()
	stamp := domain.Stamp{Userstamp: user, Timestamp: epoch}
	return []domain.Record{
		domain.ItemRecord{ID: user, Stamp: stamp},
		domain.User{ID: user, Stamp: stamp},
		domain.ItemRecord{ID: book, Stamp: stamp},
		domain.Entry{ID: uuid.New(), Stamp: stamp, Item: book, Attribute: domain.AttrName, Value: domain.Text("Dune")},
	}
}

func TestArchiveRoundTripOverHTTP(t *testing.T) {
	ctx := context.Background()
	client, backing := newServer(t)
	a := archive.NewTransactionLogArchive(client, archive.WithSynchronousFlush())

	recs := records()
	user := recs[1].(domain.User)
	user.PasswordHash = domain.HashPassword("pw")
	require.NoError(t, a.Save(ctx, domain.Transaction{Records: recs[:2]}, []domain.User{user}))
	require.NoError(t, a.Save(ctx, domain.Transaction{Records: recs[2:]}, nil))
	require.NoError(t, a.Flush(ctx))

	frags, err := backing.Fragments(ctx)
	require.NoError(t, err)
	assert.Len(t, frags, 2, "server stores fragments as sent")

	got, users, err := archive.NewLogArchive(client).Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(recs))
	for i := range recs {
		assert.Equal(t, recs[i].RecordID(), got[i].RecordID())
	}
	require.NotEmpty(t, users)
	assert.True(t, users[0].CheckPassword("pw"))
}

func TestDumpArchiveReloadsOverHTTP(t *testing.T) {
	ctx := context.Background()
	client, backing := newServer(t)
	a := archive.NewDumpArchive(client, archive.WithSynchronousFlush())

	recs := records()
	require.NoError(t, a.Save(ctx, domain.Transaction{Records: recs[:2]}, []domain.User{recs[1].(domain.User)}))
	require.NoError(t, a.Save(ctx, domain.Transaction{Records: recs[2:]}, nil))
	require.NoError(t, a.Flush(ctx))

	frags, err := backing.Fragments(ctx)
	require.NoError(t, err)
	require.Len(t, frags, 2, "each save stores a complete revision")

	got, users, err := archive.NewDumpArchive(client).Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(recs))
	for i := range recs {
		assert.Equal(t, recs[i].RecordID(), got[i].RecordID())
	}
	require.Len(t, users, 1)
	assert.Equal(t, recs[1].RecordID(), users[0].ID)
}

func TestUsersMissingIsNil(t *testing.T) {
	client, _ := newServer(t)
	doc, err := client.Users(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestServerRejectsMalformedUploads(t *testing.T) {
	ctx := context.Background()
	client, backing := newServer(t)

	err := client.Append(ctx, []byte(`[{"Bogus": {}}]`))
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, se.Code)

	err = client.ReplaceUsers(ctx, []byte(`{"format": "2005_JUNE_CHRONOLOGICAL_LIST", "timestamp": "1", "records": []}`))
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code, "user list must use the user list format")

	frags, err := backing.Fragments(ctx)
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestServerReportsBackendFailure(t *testing.T) {
	client, backing := newServer(t)
	backing.SetFailure(errors.New("disk full"))
	err := client.Append(context.Background(), []byte(`[]`))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Contains(t, se.Error(), "disk full")
}

func TestEmptyLogIsAnEmptyDump(t *testing.T) {
	client, _ := newServer(t)
	frags, err := client.Fragments(context.Background())
	require.NoError(t, err)
	require.Len(t, frags, 1)
	log, err := archive.DecodeAny(frags[0])
	require.NoError(t, err)
	assert.Equal(t, archive.Current, log.Format)
	assert.Empty(t, log.Records)
	assert.True(t, epoch.Equal(log.Timestamp))
}
