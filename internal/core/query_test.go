package core

import (
	"testing"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateQueryMatchesValues(t *testing.T) {
	w := loggedIn(t)
	genre := mustItem(t, w, "genre")
	dune := mustItem(t, w, "Dune")
	emma := mustItem(t, w, "Emma")
	plain := mustItem(t, w, "Untagged")
	_, err := dune.AddEntry(genre.ID(), domain.Text("sf"))
	require.NoError(t, err)
	_, err = emma.AddEntry(genre.ID(), domain.Text("romance"))
	require.NoError(t, err)

	q, err := w.NewQuery("science fiction", genre.ID(), domain.Text("sf"))
	require.NoError(t, err)
	assert.True(t, q.IsInCategory(domain.CategoryQuery))
	assert.Equal(t, []uuid.UUID{dune.ID()}, ids(w.EvaluateQuery(q)))

	hasGenre, err := w.NewQuery("has genre", genre.ID())
	require.NoError(t, err)
	got := ids(w.EvaluateQuery(hasGenre))
	assert.Equal(t, []uuid.UUID{dune.ID(), emma.ID()}, got)
	assert.NotContains(t, got, plain.ID())

	assert.Nil(t, w.EvaluateQuery(plain), "not a query")
}

func TestCategoryQueryReadsMembers(t *testing.T) {
	w := loggedIn(t)
	books := mustItem(t, w, "Books")
	dune := mustItem(t, w, "Dune")
	emma := mustItem(t, w, "Emma")
	_, err := dune.AssignToCategory(books.ID())
	require.NoError(t, err)

	q, err := w.NewQuery("all books", domain.AttrCategory, domain.ItemRef{Item: books.ID()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{dune.ID()}, ids(w.EvaluateQuery(q)))

	added, err := w.SetItemToBeIncludedInQueryResultList(emma, q)
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, emma.IsInCategory(books.ID()))
	assert.Equal(t, []uuid.UUID{dune.ID(), emma.ID()}, ids(w.EvaluateQuery(q)))

	added, err = w.SetItemToBeIncludedInQueryResultList(emma, q)
	require.NoError(t, err)
	assert.False(t, added, "already matching")
}

func TestCategoryQueryWithoutValuesMatchesAnyCategorised(t *testing.T) {
	w := loggedIn(t)
	books := mustItem(t, w, "Books")
	dune := mustItem(t, w, "Dune")
	emma := mustItem(t, w, "Emma")
	_, err := dune.AssignToCategory(books.ID())
	require.NoError(t, err)

	q, err := w.NewQuery("filed anywhere", domain.AttrCategory)
	require.NoError(t, err)
	got := ids(w.EvaluateQuery(q))
	assert.Contains(t, got, dune.ID())
	assert.Contains(t, got, q.ID(), "queries are filed under the query category")
	assert.NotContains(t, got, emma.ID())
}

func TestIncludeItemWithoutValuesWritesEmptyText(t *testing.T) {
	w := loggedIn(t)
	genre := mustItem(t, w, "genre")
	dune := mustItem(t, w, "Dune")
	q, err := w.NewQuery("has genre", genre.ID())
	require.NoError(t, err)

	added, err := w.SetItemToBeIncludedInQueryResultList(dune, q)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []domain.Value{domain.Text("")}, dune.Values(genre.ID()))

	_, err = w.SetItemToBeIncludedInQueryResultList(dune, dune)
	var nf domain.ErrNotFound
	assert.ErrorAs(t, err, &nf, "dune is not a query")

	require.NoError(t, w.Logout())
	_, err = w.SetItemToBeIncludedInQueryResultList(dune, q)
	assert.ErrorIs(t, err, domain.ErrNoUserLoggedIn)
}

func TestLiveQueryTracksCommits(t *testing.T) {
	w := loggedIn(t)
	genre := mustItem(t, w, "genre")
	dune := mustItem(t, w, "Dune")
	emma := mustItem(t, w, "Emma")
	q, err := w.NewQuery("science fiction", genre.ID(), domain.Text("sf"))
	require.NoError(t, err)

	var changes [][]uuid.UUID
	lq := w.RegisterQuery(q, ObserverFunc(func(ids []uuid.UUID) { changes = append(changes, ids) }))
	assert.Empty(t, lq.Results())

	_, err = dune.AddEntry(genre.ID(), domain.Text("sf"))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{dune.ID()}, ids(lq.Results()))
	require.Len(t, changes, 1)
	assert.Equal(t, []uuid.UUID{dune.ID()}, changes[0])

	_, err = emma.AddEntry(genre.ID(), domain.Text("romance"))
	require.NoError(t, err)
	assert.Len(t, changes, 1, "non-matching edits are not reported")

	_, err = dune.Delete()
	require.NoError(t, err)
	assert.Empty(t, lq.Results())
	require.Len(t, changes, 2)
	assert.Equal(t, []uuid.UUID{dune.ID()}, changes[1])
	_, err = dune.Restore()
	require.NoError(t, err)
	assert.Len(t, lq.Results(), 1)

	_, err = q.AddEntry(domain.AttrMatchingValue, domain.Text("romance"))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{dune.ID(), emma.ID()}, ids(lq.Results()), "editing the query re-evaluates it")
	assert.Equal(t, []uuid.UUID{emma.ID()}, changes[len(changes)-1])

	lq.Cancel()
	before := len(changes)
	_, err = emma.Delete()
	require.NoError(t, err)
	assert.Len(t, changes, before)
}
