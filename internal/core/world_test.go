package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.UnixMilli(1118000000000).UTC()

// steppingClock advances one millisecond per reading.
func steppingClock() ClockFunc {
	now := epoch
	return func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
}

// recordingArchive keeps every saved transaction in memory.
type recordingArchive struct {
	txs   []domain.Transaction
	users [][]domain.User
	err   error
}

func (a *recordingArchive) Load(context.Context) ([]domain.Record, []domain.User, error) {
	var out []domain.Record
	for _, tx := range a.txs {
		out = append(out, tx.Records...)
	}
	return out, nil, nil
}

func (a *recordingArchive) Save(_ context.Context, tx domain.Transaction, users []domain.User) error {
	if a.err != nil {
		return a.err
	}
	a.txs = append(a.txs, tx)
	a.users = append(a.users, users)
	return nil
}

func newWorld(t *testing.T, opts ...Option) (*World, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts = append([]Option{WithClock(steppingClock()), WithLogger(logger)}, opts...)
	w, err := New(opts...)
	require.NoError(t, err)
	return w, hook
}

// loggedIn returns a world with a fresh user logged in.
func loggedIn(t *testing.T, opts ...Option) *World {
	t.Helper()
	w, _ := newWorld(t, opts...)
	_, err := w.NewUser("alice", "secret")
	require.NoError(t, err)
	return w
}

func mustItem(t *testing.T, w *World, name string) *Item {
	t.Helper()
	it, err := w.NewItem(name)
	require.NoError(t, err)
	return it
}

func ids(items []*Item) []uuid.UUID {
	out := make([]uuid.UUID, len(items))
	for i, it := range items {
		out[i] = it.ID()
	}
	return out
}

func TestNewWorldHoldsAxioms(t *testing.T) {
	w, _ := newWorld(t)
	for _, id := range domain.AxiomaticItems() {
		it, ok := w.Item(id)
		require.True(t, ok, "axiom %s", id)
		assert.NotEmpty(t, it.Name())
	}
	attr, _ := w.Item(domain.AttrName)
	assert.Equal(t, "name", attr.Name())
	inverse, ok := w.inverseOf(domain.AttrCategory)
	require.True(t, ok)
	assert.Equal(t, domain.AttrItemsInCategory, inverse)
	assert.Empty(t, w.Records(), "axioms are never persisted")
	assert.Equal(t, domain.LastEditWins, w.Filter())
}

func TestNewUserCommitsOneTransaction(t *testing.T) {
	arc := &recordingArchive{}
	w, _ := newWorld(t, WithArchive(arc))
	u, err := w.NewUser("alice", "secret")
	require.NoError(t, err)

	require.Len(t, arc.txs, 1)
	kinds := make([]domain.RecordKind, 0)
	for _, rec := range arc.txs[0].Records {
		kinds = append(kinds, rec.Kind())
		assert.Equal(t, u.ID, rec.RecordStamp().Userstamp, "stamped by the new user")
	}
	assert.Equal(t, []domain.RecordKind{domain.KindItem, domain.KindUser, domain.KindEntry, domain.KindEntry}, kinds)
	require.Len(t, arc.users[0], 1, "user list is saved with the transaction")
	assert.True(t, arc.users[0][0].CheckPassword("secret"))

	current, ok := w.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, u.ID, current.ID)
	it, ok := w.Item(u.ID)
	require.True(t, ok)
	assert.Equal(t, "alice", it.Name())
	assert.True(t, it.IsInCategory(domain.CategoryUser))
	assert.Contains(t, ids(w.ItemsInCategory(domain.CategoryUser)), u.ID)
}

func TestLoginIsExclusive(t *testing.T) {
	w, _ := newWorld(t)
	alice, err := w.NewUser("alice", "secret")
	require.NoError(t, err)

	assert.ErrorIs(t, w.Login(alice.ID, "secret"), domain.ErrAlreadyLoggedIn)
	_, err = w.NewUser("bob", "pw")
	assert.ErrorIs(t, err, domain.ErrAlreadyLoggedIn)

	require.NoError(t, w.Logout())
	assert.ErrorIs(t, w.Logout(), domain.ErrNoUserLoggedIn)
	_, ok := w.CurrentUser()
	assert.False(t, ok)

	assert.ErrorIs(t, w.Login(alice.ID, "wrong"), domain.ErrBadPassword)
	err = w.Login(uuid.New(), "secret")
	var nf domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.KindUser, nf.Kind)
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	require.NoError(t, w.Login(alice.ID, "secret"))
	assert.Len(t, w.Users(), 1)
}

func TestMutationsRequireUser(t *testing.T) {
	w, _ := newWorld(t)
	_, err := w.NewItem("orphan")
	assert.ErrorIs(t, err, domain.ErrNoUserLoggedIn)
	_, err = w.NewProvisionalItem()
	assert.ErrorIs(t, err, domain.ErrNoUserLoggedIn)
	_, err = w.NewVote(domain.AttrName, false)
	assert.ErrorIs(t, err, domain.ErrNoUserLoggedIn)
	assert.Empty(t, w.Records())
}

func TestProvisionalItemPromotion(t *testing.T) {
	arc := &recordingArchive{}
	w := loggedIn(t, WithArchive(arc))
	commits := 0
	w.Observe(ObserverFunc(func([]uuid.UUID) { commits++ }))

	p, err := w.NewProvisionalItem()
	require.NoError(t, err)
	assert.True(t, p.IsProvisional())
	assert.NotContains(t, ids(w.Items()), p.ID())
	_, ok := p.Record()
	assert.False(t, ok)
	assert.Zero(t, commits, "provisional items are not committed")

	_, err = p.AddEntry(domain.AttrName, domain.Text("draft"))
	require.NoError(t, err)
	assert.False(t, p.IsProvisional())
	assert.Contains(t, ids(w.Items()), p.ID())
	assert.Equal(t, 1, commits)

	last := arc.txs[len(arc.txs)-1].Records
	require.Len(t, last, 2)
	assert.Equal(t, domain.KindItem, last[0].Kind(), "item record precedes the entry that promoted it")
	assert.Equal(t, p.ID(), last[0].RecordID())
	assert.Equal(t, domain.KindEntry, last[1].Kind())
}

func TestRetrievalFilterSwitching(t *testing.T) {
	w := loggedIn(t)
	book := mustItem(t, w, "Dune")
	first := book.EntriesForAttribute(domain.AttrName)[0]
	_, err := book.ReplaceEntry(first.ID, domain.Text("Dune Messiah"))
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", book.Name())

	for _, f := range []domain.RetrievalFilter{domain.SingleUser, domain.Democratic} {
		err := w.SetRetrievalFilter(f)
		assert.ErrorIs(t, err, domain.ErrUnsupportedFilter, f.String())
		assert.ErrorIs(t, err, domain.ErrInvariant)
	}
	assert.Equal(t, domain.LastEditWins, w.Filter())

	require.NoError(t, w.SetRetrievalFilter(domain.Unabridged))
	assert.Len(t, book.EntriesForAttribute(domain.AttrName), 2, "unabridged keeps superseded entries")
	require.NoError(t, w.SetRetrievalFilter(domain.LastEditWins))
	assert.Len(t, book.EntriesForAttribute(domain.AttrName), 1)
}

func TestStatsCountsIndexedRecords(t *testing.T) {
	w := loggedIn(t)
	before := w.Stats()
	book := mustItem(t, w, "Dune")
	_, err := book.Delete()
	require.NoError(t, err)
	_, err = book.SetOrdinal(1)
	require.NoError(t, err)

	after := w.Stats()
	assert.Equal(t, before.Items+1, after.Items)
	assert.Equal(t, before.Entries+1, after.Entries)
	assert.Equal(t, before.Votes+1, after.Votes)
	assert.Equal(t, before.Ordinals+1, after.Ordinals)
	assert.Equal(t, 1, after.Users)
}

func TestCommitReportsArchiveFailure(t *testing.T) {
	arc := &recordingArchive{}
	w := loggedIn(t, WithArchive(arc))
	arc.err = errors.New("disk full")

	_, err := w.NewItem("Dune")
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, w.Records(), 6, "records stay in memory when the archive fails")
}
