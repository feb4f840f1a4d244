package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewStampTruncatesToMillis(t *testing.T) {
	at := time.Date(2005, 6, 1, 12, 0, 0, 123456789, time.FixedZone("x", 7200))
	s := NewStamp(uuid.Nil, at)
	assert.Equal(t, 123000000, s.Timestamp.Nanosecond())
	assert.Equal(t, time.UTC, s.Timestamp.Location())
}

func TestEntryEndpoints(t *testing.T) {
	item, attr := uuid.New(), uuid.New()
	plain := Entry{ID: uuid.New(), Item: item, Attribute: attr, Value: Text("x")}
	assert.Equal(t, []Endpoint{{Item: item, Attribute: attr}}, plain.Endpoints())
	assert.False(t, plain.IsConnection())
	assert.False(t, plain.HasPrevious())

	other, otherAttr := uuid.New(), uuid.New()
	conn := Entry{ID: uuid.New(), Item: item, Attribute: attr, Previous: plain.ID,
		Value: Connection{Items: [2]uuid.UUID{item, other}, Attributes: [2]uuid.UUID{attr, otherAttr}}}
	assert.True(t, conn.IsConnection())
	assert.True(t, conn.HasPrevious())
	assert.Len(t, conn.Endpoints(), 2)
	assert.Equal(t, Endpoint{Item: other, Attribute: otherAttr}, conn.Endpoints()[1])
}

func TestTransactionIDsAndUsers(t *testing.T) {
	u := User{ID: uuid.New()}
	item := ItemRecord{ID: u.ID}
	tx := Transaction{Records: []Record{item, u, Vote{ID: uuid.New(), Target: u.ID, Retain: true}}}
	assert.Equal(t, []uuid.UUID{u.ID, u.ID, tx.Records[2].RecordID()}, tx.IDs())
	assert.Equal(t, []User{u}, tx.Users())
	assert.Equal(t, KindVote, tx.Records[2].Kind())
}

func TestUserPasswords(t *testing.T) {
	open := User{ID: uuid.New()}
	assert.True(t, open.CheckPassword(""))
	assert.True(t, open.CheckPassword("anything"))

	locked := User{ID: uuid.New(), PasswordHash: HashPassword("secret")}
	assert.Equal(t, "5ebe2294ecd0e0f08eab7690d2a6ee69", locked.PasswordHash)
	assert.True(t, locked.CheckPassword("secret"))
	assert.False(t, locked.CheckPassword("Secret"))
	assert.Equal(t, "", HashPassword(""))
}

func TestUserNode(t *testing.T) {
	u := User{ID: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")}
	assert.Equal(t, "00c04fd430c8", u.Node())
}

func TestRetrievalFilterParsing(t *testing.T) {
	f, err := ParseRetrievalFilter("")
	assert.NoError(t, err)
	assert.Equal(t, LastEditWins, f)
	f, err = ParseRetrievalFilter("unabridged")
	assert.NoError(t, err)
	assert.Equal(t, Unabridged, f)
	assert.True(t, f.Supported())
	f, err = ParseRetrievalFilter("DEMOCRATIC")
	assert.NoError(t, err)
	assert.False(t, f.Supported())
	_, err = ParseRetrievalFilter("MOST_RECENT")
	assert.Error(t, err)
	assert.Equal(t, "SINGLE_USER", SingleUser.String())
	assert.Equal(t, "RetrievalFilter(9)", RetrievalFilter(9).String())
}

func TestErrorClasses(t *testing.T) {
	assert.True(t, errors.Is(ErrNoUserLoggedIn, ErrPrecondition))
	assert.True(t, errors.Is(ErrAlreadyLoggedIn, ErrPrecondition))
	assert.True(t, errors.Is(ErrUnsupportedFilter, ErrInvariant))
	assert.False(t, errors.Is(ErrUnsupportedFilter, ErrPrecondition))

	nf := ErrNotFound{Kind: KindEntry, ID: uuid.Nil}
	assert.True(t, errors.Is(nf, ErrPrecondition))
	assert.Contains(t, nf.Error(), "Entry 00000000-0000-0000-0000-000000000000 not found")
}

func TestAxiomaticItems(t *testing.T) {
	seen := map[uuid.UUID]bool{}
	for _, id := range AxiomaticItems() {
		assert.False(t, seen[id], "duplicate axiom %s", id)
		seen[id] = true
		assert.True(t, IsAxiomatic(id))
	}
	assert.False(t, IsAxiomatic(uuid.New()))
}
