package core

import (
	"cmp"
	"slices"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// NewQuery creates a query item matching items whose attr holds any of
// values. The query is itself filed under the query category.
func (w *World) NewQuery(name string, attr uuid.UUID, values ...domain.Value) (*Item, error) {
	var q *Item
	err := w.mutate(func() error {
		var err error
		if q, err = w.NewItem(name); err != nil {
			return err
		}
		if _, err = q.AssignToCategory(domain.CategoryQuery); err != nil {
			return err
		}
		if _, err = q.AddEntry(domain.AttrMatchingAttribute, domain.ItemRef{Item: attr}); err != nil {
			return err
		}
		for _, v := range values {
			if _, err = q.AddEntry(domain.AttrMatchingValue, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

type criteria struct {
	attr   uuid.UUID
	values []domain.Value
}

// criteriaOf reads a query item's matching attribute and values.
func criteriaOf(query *Item) (criteria, bool) {
	for _, v := range query.Values(domain.AttrMatchingAttribute) {
		ref, ok := v.(domain.ItemRef)
		if !ok {
			continue
		}
		return criteria{attr: ref.Item, values: query.Values(domain.AttrMatchingValue)}, true
	}
	return criteria{}, false
}

func (c criteria) matches(it *Item) bool {
	if it.placeholder || it.provisional || it.IsDeleted() {
		return false
	}
	values := it.Values(c.attr)
	if len(c.values) == 0 {
		return len(values) > 0
	}
	for _, v := range values {
		for _, want := range c.values {
			if domain.Matches(v, want) {
				return true
			}
		}
	}
	return false
}

// EvaluateQuery returns the items the query currently matches, sorted by
// ordinal and then creation order. Category queries read the category's
// member index; other queries, and category queries naming no category,
// scan every item.
func (w *World) EvaluateQuery(query *Item) []*Item {
	c, ok := criteriaOf(query)
	if !ok {
		return nil
	}
	var out []*Item
	if c.attr == domain.AttrCategory && len(c.values) > 0 {
		seen := make(map[uuid.UUID]struct{})
		for _, v := range c.values {
			ref, ok := v.(domain.ItemRef)
			if !ok {
				continue
			}
			for _, it := range w.membersOf(ref.Item) {
				if _, dup := seen[it.id]; dup || !c.matches(it) {
					continue
				}
				seen[it.id] = struct{}{}
				out = append(out, it)
			}
		}
	} else {
		for _, it := range w.itemOrder {
			if c.matches(it) {
				out = append(out, it)
			}
		}
	}
	w.sortItems(out)
	return out
}

// ItemsInCategory returns the live members of category, each once.
func (w *World) ItemsInCategory(category uuid.UUID) []*Item {
	var out []*Item
	seen := make(map[uuid.UUID]struct{})
	for _, it := range w.membersOf(category) {
		if _, dup := seen[it.id]; dup || it.IsDeleted() {
			continue
		}
		seen[it.id] = struct{}{}
		out = append(out, it)
	}
	w.sortItems(out)
	return out
}

func (w *World) membersOf(category uuid.UUID) []*Item {
	cat, ok := w.items[category]
	if !ok {
		return nil
	}
	var out []*Item
	for _, v := range cat.Values(domain.AttrItemsInCategory) {
		if ref, ok := v.(domain.ItemRef); ok {
			if it, ok := w.items[ref.Item]; ok {
				out = append(out, it)
			}
		}
	}
	return out
}

// SetItemToBeIncludedInQueryResultList edits item so the query matches it,
// adding the query's first matching value. It reports false when the item
// already matches and nothing was written.
func (w *World) SetItemToBeIncludedInQueryResultList(item, query *Item) (bool, error) {
	if err := w.requireUser(); err != nil {
		return false, err
	}
	c, ok := criteriaOf(query)
	if !ok {
		return false, domain.ErrNotFound{Kind: domain.KindEntry, ID: query.id}
	}
	if c.matches(item) {
		return false, nil
	}
	var value domain.Value = domain.Text("")
	if len(c.values) > 0 {
		value = c.values[0]
	}
	e, err := item.AddEntry(c.attr, value)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// LiveQuery keeps a query's result set current as transactions commit.
type LiveQuery struct {
	world   *World
	query   *Item
	obs     Observer
	members map[uuid.UUID]struct{}
}

// RegisterQuery evaluates query and keeps its result set up to date. o, when
// not nil, is called with the IDs of items that entered or left the set.
func (w *World) RegisterQuery(query *Item, o Observer) *LiveQuery {
	lq := &LiveQuery{world: w, query: query, obs: o, members: make(map[uuid.UUID]struct{})}
	for _, it := range w.EvaluateQuery(query) {
		lq.members[it.id] = struct{}{}
	}
	w.queries = append(w.queries, lq)
	return lq
}

// Results returns the current result set in query order.
func (q *LiveQuery) Results() []*Item {
	out := make([]*Item, 0, len(q.members))
	for id := range q.members {
		out = append(out, q.world.items[id])
	}
	q.world.sortItems(out)
	return out
}

// Cancel stops maintaining the query.
func (q *LiveQuery) Cancel() {
	q.world.queries = slices.DeleteFunc(q.world.queries, func(l *LiveQuery) bool { return l == q })
}

// refreshQueries re-tests only the items a commit touched. A change to the
// query item itself forces a full evaluation.
func (w *World) refreshQueries(touched map[uuid.UUID][]uuid.UUID) {
	for _, lq := range slices.Clone(w.queries) {
		var changed []uuid.UUID
		if _, ok := touched[lq.query.id]; ok {
			changed = lq.reevaluate()
		} else {
			c, ok := criteriaOf(lq.query)
			if !ok {
				continue
			}
			for _, it := range w.touchedItems(touched) {
				_, was := lq.members[it.id]
				is := c.matches(it)
				switch {
				case is && !was:
					lq.members[it.id] = struct{}{}
				case was && !is:
					delete(lq.members, it.id)
				default:
					continue
				}
				changed = append(changed, it.id)
			}
		}
		if len(changed) > 0 && lq.obs != nil {
			lq.obs.OnChanged(changed)
		}
	}
}

func (q *LiveQuery) reevaluate() []uuid.UUID {
	next := make(map[uuid.UUID]struct{})
	for _, it := range q.world.EvaluateQuery(q.query) {
		next[it.id] = struct{}{}
	}
	var changed []uuid.UUID
	for _, it := range q.world.itemOrder {
		_, was := q.members[it.id]
		_, is := next[it.id]
		if was != is {
			changed = append(changed, it.id)
		}
	}
	q.members = next
	return changed
}

// touchedItems returns the items a commit touched in creation order.
func (w *World) touchedItems(touched map[uuid.UUID][]uuid.UUID) []*Item {
	out := make([]*Item, 0, len(touched))
	for id := range touched {
		if it, ok := w.items[id]; ok {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b *Item) int { return cmp.Compare(a.seq, b.seq) })
	return out
}
