package core

import (
	"errors"
	"fmt"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// NewItem creates a real item, optionally named, in the current transaction.
func (w *World) NewItem(name string) (*Item, error) {
	var it *Item
	err := w.mutate(func() error {
		rec := domain.ItemRecord{ID: w.newID(), Stamp: w.stamp()}
		if err := w.applyItem(rec); err != nil {
			return err
		}
		w.record(rec)
		it = w.items[rec.ID]
		if name == "" {
			return nil
		}
		_, err := w.NewEntry(rec.ID, uuid.Nil, domain.AttrName, domain.Text(name))
		return err
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

// NewProvisionalItem creates an item that lives only in memory until its
// first entry is added, at which point it is persisted like any other.
func (w *World) NewProvisionalItem() (*Item, error) {
	if err := w.requireUser(); err != nil {
		return nil, err
	}
	it := w.bootstrapItem(w.newID())
	it.placeholder = false
	it.provisional = true
	it.record = domain.ItemRecord{ID: it.id, Stamp: w.stamp()}
	return it, nil
}

// NewEntry assigns value to (item, attribute), superseding previous when it is
// not uuid.Nil. Connections go through NewConnectionEntry.
func (w *World) NewEntry(item, previous, attribute uuid.UUID, value domain.Value) (domain.Entry, error) {
	if err := w.requireUser(); err != nil {
		return domain.Entry{}, err
	}
	if value == nil {
		return domain.Entry{}, errors.New("core: entry value is nil")
	}
	if _, ok := value.(domain.Connection); ok {
		return domain.Entry{}, errors.New("core: connection values need NewConnectionEntry")
	}
	e := domain.Entry{Item: item, Attribute: attribute, Previous: previous, Value: domain.Canonical(value)}
	if err := w.checkEntry(e); err != nil {
		return domain.Entry{}, err
	}
	err := w.mutate(func() error {
		if err := w.promote(item); err != nil {
			return err
		}
		e.ID = w.newID()
		e.Stamp = w.stamp()
		if err := w.applyEntry(e); err != nil {
			return err
		}
		w.record(e)
		return nil
	})
	return e, err
}

// NewConnectionEntry links itemA under attrA with itemB under attrB in a single
// entry filed under both items.
func (w *World) NewConnectionEntry(previous, itemA, attrA, itemB, attrB uuid.UUID) (domain.Entry, error) {
	if err := w.requireUser(); err != nil {
		return domain.Entry{}, err
	}
	e := domain.Entry{
		Item:      itemA,
		Attribute: attrA,
		Previous:  previous,
		Value: domain.Connection{
			Items:      [2]uuid.UUID{itemA, itemB},
			Attributes: [2]uuid.UUID{attrA, attrB},
		},
	}
	if err := w.checkEntry(e); err != nil {
		return domain.Entry{}, err
	}
	if _, ok := w.items[itemB]; !ok {
		return domain.Entry{}, domain.ErrNotFound{Kind: domain.KindItem, ID: itemB}
	}
	err := w.mutate(func() error {
		for _, id := range []uuid.UUID{itemA, itemB} {
			if err := w.promote(id); err != nil {
				return err
			}
		}
		e.ID = w.newID()
		e.Stamp = w.stamp()
		if err := w.applyEntry(e); err != nil {
			return err
		}
		w.record(e)
		return nil
	})
	return e, err
}

// NewVote marks target retained or deleted.
func (w *World) NewVote(target uuid.UUID, retain bool) (domain.Vote, error) {
	if err := w.requireUser(); err != nil {
		return domain.Vote{}, err
	}
	if !w.recordExists(target) {
		return domain.Vote{}, domain.ErrNotFound{Kind: w.kindOf(target), ID: target}
	}
	v := domain.Vote{Target: target, Retain: retain}
	err := w.mutate(func() error {
		v.ID = w.newID()
		v.Stamp = w.stamp()
		if err := w.applyVote(v); err != nil {
			return err
		}
		w.record(v)
		return nil
	})
	return v, err
}

// NewOrdinal assigns a sort position to target.
func (w *World) NewOrdinal(target uuid.UUID, position float64) (domain.Ordinal, error) {
	if err := w.requireUser(); err != nil {
		return domain.Ordinal{}, err
	}
	if !w.recordExists(target) {
		return domain.Ordinal{}, domain.ErrNotFound{Kind: w.kindOf(target), ID: target}
	}
	o := domain.Ordinal{Target: target, Position: position}
	err := w.mutate(func() error {
		o.ID = w.newID()
		o.Stamp = w.stamp()
		if err := w.applyOrdinal(o); err != nil {
			return err
		}
		w.record(o)
		return nil
	})
	return o, err
}

// checkEntry validates an entry before it is created: its items must exist and
// its previous entry, if any, must belong to the same chain.
func (w *World) checkEntry(e domain.Entry) error {
	if _, ok := w.items[e.Item]; !ok {
		return domain.ErrNotFound{Kind: domain.KindItem, ID: e.Item}
	}
	if !e.HasPrevious() {
		return nil
	}
	prev, ok := w.entries[e.Previous]
	if !ok {
		return domain.ErrNotFound{Kind: domain.KindEntry, ID: e.Previous}
	}
	if !sameChain(prev.rec, e) {
		return fmt.Errorf("%w: entry %s", domain.ErrChainMismatch, e.Previous)
	}
	return nil
}

// sameChain reports whether next may supersede prev. Plain entries must share
// item and attribute. Connections must share at least one endpoint, since
// re-pointing a link changes the item at its far end.
func sameChain(prev, next domain.Entry) bool {
	if prev.IsConnection() != next.IsConnection() {
		return false
	}
	if !prev.IsConnection() {
		return prev.Item == next.Item && prev.Attribute == next.Attribute
	}
	for _, a := range prev.Endpoints() {
		for _, b := range next.Endpoints() {
			if a == b {
				return true
			}
		}
	}
	return false
}

// promote turns a provisional item into a real one, recording its item
// record ahead of the entry that caused the promotion.
func (w *World) promote(id uuid.UUID) error {
	it, ok := w.items[id]
	if !ok || !it.provisional {
		return nil
	}
	rec := domain.ItemRecord{ID: id, Stamp: w.stamp()}
	if err := w.applyItem(rec); err != nil {
		return err
	}
	w.record(rec)
	w.log.WithField("item", id).Debug("provisional item promoted")
	return nil
}

func (w *World) record(rec domain.Record) {
	w.txRecords = append(w.txRecords, rec)
}

func (w *World) kindOf(id uuid.UUID) domain.RecordKind {
	if k, ok := w.recordIDs[id]; ok {
		return k
	}
	return domain.KindItem
}

// mutate runs fn inside a transaction on behalf of the logged-in user.
func (w *World) mutate(fn func() error) error {
	if err := w.requireUser(); err != nil {
		return err
	}
	return w.RunInTransaction(fn)
}
