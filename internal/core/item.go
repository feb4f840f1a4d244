package core

import (
	"cmp"
	"fmt"
	"slices"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// Item is the World's live handle on one item: its record, the entries filed
// under each attribute and its provisional state. Handles stay valid for the
// lifetime of the World.
type Item struct {
	world       *World
	id          uuid.UUID
	record      domain.ItemRecord
	recordSeq   uint64
	seq         uint64
	provisional bool
	// placeholder marks an item that is only known by reference so far.
	placeholder bool
	attrs       map[uuid.UUID][]uuid.UUID
}

// ID returns the item's UUID.
func (it *Item) ID() uuid.UUID { return it.id }

// IsProvisional reports whether the item exists only in memory.
func (it *Item) IsProvisional() bool { return it.provisional }

// Record returns the persisted item record. ok is false for provisional items
// and for items only known by reference.
func (it *Item) Record() (domain.ItemRecord, bool) {
	if it.provisional || it.placeholder {
		return domain.ItemRecord{}, false
	}
	return it.record, true
}

// Attributes lists the attributes that have at least one current entry, in
// the order they were first used.
func (it *Item) Attributes() []uuid.UUID {
	var out []uuid.UUID
	for attr := range it.attrs {
		if len(it.EntriesForAttribute(attr)) > 0 {
			out = append(out, attr)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return cmp.Compare(it.world.entries[it.attrs[a][0]].seq, it.world.entries[it.attrs[b][0]].seq)
	})
	return out
}

// EntriesForAttribute resolves the current entries for attr under the active
// retrieval filter, sorted by ordinal and then by creation order. The result is
// cached until a record touching the item invalidates it.
func (it *Item) EntriesForAttribute(attr uuid.UUID) []domain.Entry {
	key := cacheKey{item: it.id, attribute: attr}
	if cached, ok := it.world.cache.Get(key); ok {
		return slices.Clone(cached)
	}
	resolved := it.world.resolve(it, attr)
	it.world.cache.Add(key, resolved)
	return slices.Clone(resolved)
}

// Values returns the current values for attr. Connections are reported as a
// reference to the item at the other end.
func (it *Item) Values(attr uuid.UUID) []domain.Value {
	entries := it.EntriesForAttribute(attr)
	out := make([]domain.Value, 0, len(entries))
	for _, e := range entries {
		out = append(out, it.valueOf(e))
	}
	return out
}

func (it *Item) valueOf(e domain.Entry) domain.Value {
	if c, ok := e.Value.(domain.Connection); ok {
		if other, ok := c.Other(it.id); ok {
			return domain.ItemRef{Item: other.Item}
		}
	}
	return e.Value
}

// Name returns the first current name value, or "".
func (it *Item) Name() string {
	for _, v := range it.Values(domain.AttrName) {
		return v.String()
	}
	return ""
}

// IsDeleted reports whether the item's latest vote is a delete vote.
func (it *Item) IsDeleted() bool { return it.world.isDeleted(it.id) }

// Ordinal returns the item's latest sort position.
func (it *Item) Ordinal() (float64, bool) { return it.world.ordinalOf(it.id) }

// SetOrdinal records a new sort position for the item.
func (it *Item) SetOrdinal(position float64) (domain.Ordinal, error) {
	return it.world.NewOrdinal(it.id, position)
}

// Delete votes the item deleted.
func (it *Item) Delete() (domain.Vote, error) { return it.world.NewVote(it.id, false) }

// Restore votes the item retained.
func (it *Item) Restore() (domain.Vote, error) { return it.world.NewVote(it.id, true) }

// AddEntry adds value under attr. When attr has an inverse attribute and value
// references an item, a connection entry is created instead so both sides stay
// in step. A nil entry with a nil error means an identical value was already
// present.
func (it *Item) AddEntry(attr uuid.UUID, value domain.Value) (*domain.Entry, error) {
	value = domain.Canonical(value)
	if ref, ok := value.(domain.ItemRef); ok {
		if inverse, ok := it.world.inverseOf(attr); ok {
			return it.AddConnection(attr, ref.Item, inverse)
		}
	}
	for _, e := range it.EntriesForAttribute(attr) {
		if domain.SameValue(it.valueOf(e), value) {
			return nil, nil
		}
	}
	e, err := it.world.NewEntry(it.id, uuid.Nil, attr, value)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ReplaceEntry supersedes previous, one of this item's entries, with value.
// Replacing with an identical value is a no-op returning (nil, nil).
func (it *Item) ReplaceEntry(previous uuid.UUID, value domain.Value) (*domain.Entry, error) {
	prev, err := it.ownEntry(previous)
	if err != nil {
		return nil, err
	}
	value = domain.Canonical(value)
	if domain.SameValue(prev.Value, value) {
		return nil, nil
	}
	if ref, ok := value.(domain.ItemRef); ok && prev.IsConnection() {
		other, _ := prev.Value.(domain.Connection).Other(it.id)
		return it.ReplaceConnection(previous, ref.Item, other.Attribute)
	}
	e, err := it.world.NewEntry(it.id, previous, prev.Attribute, value)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SetValue makes value the single current value of attr, replacing the
// existing entry when there is exactly one.
func (it *Item) SetValue(attr uuid.UUID, value domain.Value) (*domain.Entry, error) {
	current := it.EntriesForAttribute(attr)
	if len(current) == 1 {
		return it.ReplaceEntry(current[0].ID, value)
	}
	return it.AddEntry(attr, value)
}

// AddConnection links the item under attr to other under otherAttr. An
// existing identical link makes this a no-op returning (nil, nil).
func (it *Item) AddConnection(attr, other, otherAttr uuid.UUID) (*domain.Entry, error) {
	want := domain.Endpoint{Item: other, Attribute: otherAttr}
	for _, e := range it.EntriesForAttribute(attr) {
		c, ok := e.Value.(domain.Connection)
		if !ok {
			continue
		}
		if end, ok := c.Other(it.id); ok && end == want {
			return nil, nil
		}
	}
	e, err := it.world.NewConnectionEntry(uuid.Nil, it.id, attr, other, otherAttr)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ReplaceConnection supersedes the connection previous with a link to other.
func (it *Item) ReplaceConnection(previous, other, otherAttr uuid.UUID) (*domain.Entry, error) {
	prev, err := it.ownEntry(previous)
	if err != nil {
		return nil, err
	}
	c, ok := prev.Value.(domain.Connection)
	if !ok {
		return nil, fmt.Errorf("%w: entry %s is not a connection", domain.ErrChainMismatch, previous)
	}
	end, _ := c.Other(it.id)
	if end == (domain.Endpoint{Item: other, Attribute: otherAttr}) {
		return nil, nil
	}
	attr := prev.Attribute
	if prev.Item != it.id {
		attr = c.Attributes[1]
	}
	e, err := it.world.NewConnectionEntry(previous, it.id, attr, other, otherAttr)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// AssignToCategory files the item under category. The link is a connection
// between the item's category attribute and the category's items-in-category
// attribute, so ItemsInCategory sees the item without a second write.
func (it *Item) AssignToCategory(category uuid.UUID) (*domain.Entry, error) {
	return it.AddEntry(domain.AttrCategory, domain.ItemRef{Item: category})
}

// IsInCategory reports whether the item is currently filed under category.
func (it *Item) IsInCategory(category uuid.UUID) bool {
	want := domain.ItemRef{Item: category}
	for _, v := range it.Values(domain.AttrCategory) {
		if domain.SameValue(v, want) {
			return true
		}
	}
	return false
}

// Observe registers o for every commit that touches the item.
func (it *Item) Observe(o Observer) *Subscription {
	return it.world.subs.add([]uuid.UUID{it.id}, o)
}

func (it *Item) ownEntry(id uuid.UUID) (domain.Entry, error) {
	n, ok := it.world.entries[id]
	if !ok {
		return domain.Entry{}, domain.ErrNotFound{Kind: domain.KindEntry, ID: id}
	}
	for _, ep := range n.rec.Endpoints() {
		if ep.Item == it.id {
			return n.rec, nil
		}
	}
	return domain.Entry{}, fmt.Errorf("%w: entry %s is not filed under item %s", domain.ErrChainMismatch, id, it.id)
}
