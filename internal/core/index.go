package core

import (
	"fmt"
	"slices"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// bootstrapItem returns the item with the given UUID, creating a placeholder
// for it when the UUID has not been seen yet. Placeholders let records refer
// to items whose own record arrives later in the log.
func (w *World) bootstrapItem(id uuid.UUID) *Item {
	if it, ok := w.items[id]; ok {
		return it
	}
	it := &Item{
		world:       w,
		id:          id,
		seq:         w.nextSeq(),
		placeholder: true,
		attrs:       make(map[uuid.UUID][]uuid.UUID),
	}
	w.items[id] = it
	w.itemOrder = append(w.itemOrder, it)
	return it
}

func (w *World) applyItem(rec domain.ItemRecord) error {
	it := w.bootstrapItem(rec.ID)
	if !it.placeholder && !it.provisional {
		return fmt.Errorf("%w: item %s", domain.ErrDuplicateRecord, rec.ID)
	}
	it.record = rec
	it.recordSeq = w.nextSeq()
	it.placeholder = false
	it.provisional = false
	w.recordIDs[rec.ID] = domain.KindItem
	w.touch(rec.ID, rec.ID)
	return nil
}

func (w *World) applyEntry(e domain.Entry) error {
	if _, exists := w.entries[e.ID]; exists {
		return fmt.Errorf("%w: entry %s", domain.ErrDuplicateRecord, e.ID)
	}
	w.entries[e.ID] = &entryNode{rec: e, seq: w.nextSeq()}
	w.recordIDs[e.ID] = domain.KindEntry
	for _, ep := range e.Endpoints() {
		it := w.bootstrapItem(ep.Item)
		w.bootstrapItem(ep.Attribute)
		it.attrs[ep.Attribute] = append(it.attrs[ep.Attribute], e.ID)
		w.cache.Remove(cacheKey{item: ep.Item, attribute: ep.Attribute})
		w.touch(ep.Item, e.ID)
	}
	if ref, ok := e.Value.(domain.ItemRef); ok {
		w.bootstrapItem(ref.Item)
	}
	if e.HasPrevious() {
		w.successors[e.Previous] = append(w.successors[e.Previous], e.ID)
		// A re-pointed connection also changes the item it used to reach.
		if prev, ok := w.entries[e.Previous]; ok {
			for _, ep := range prev.rec.Endpoints() {
				w.cache.Remove(cacheKey{item: ep.Item, attribute: ep.Attribute})
				if !slices.Contains(w.txTouched[ep.Item], e.ID) {
					w.touch(ep.Item, e.ID)
				}
			}
		}
	}
	return nil
}

func (w *World) applyVote(v domain.Vote) error {
	if _, exists := w.recordIDs[v.ID]; exists {
		return fmt.Errorf("%w: vote %s", domain.ErrDuplicateRecord, v.ID)
	}
	w.votes[v.Target] = append(w.votes[v.Target], voteNode{rec: v, seq: w.nextSeq()})
	w.recordIDs[v.ID] = domain.KindVote
	w.touchTarget(v.Target, v.ID)
	return nil
}

func (w *World) applyOrdinal(o domain.Ordinal) error {
	if _, exists := w.recordIDs[o.ID]; exists {
		return fmt.Errorf("%w: ordinal %s", domain.ErrDuplicateRecord, o.ID)
	}
	w.ordinals[o.Target] = append(w.ordinals[o.Target], ordinalNode{rec: o, seq: w.nextSeq()})
	w.recordIDs[o.ID] = domain.KindOrdinal
	w.touchTarget(o.Target, o.ID)
	return nil
}

// applyUser merges a user into the user table. Records from the log carry the
// stamp; the separate user list carries the password hash.
func (w *World) applyUser(u domain.User) {
	w.bootstrapItem(u.ID)
	n, ok := w.users[u.ID]
	if !ok {
		w.users[u.ID] = &userNode{rec: u, seq: w.nextSeq()}
		w.userOrder = append(w.userOrder, u.ID)
		w.touch(u.ID, u.ID)
		return
	}
	if n.rec.Timestamp.IsZero() && !u.Timestamp.IsZero() {
		n.rec.Stamp = u.Stamp
		n.seq = w.nextSeq()
	}
	if u.PasswordHash != "" {
		n.rec.PasswordHash = u.PasswordHash
	}
}

func (w *World) apply(rec domain.Record) error {
	switch r := rec.(type) {
	case domain.ItemRecord:
		return w.applyItem(r)
	case domain.Entry:
		return w.applyEntry(r)
	case domain.Vote:
		return w.applyVote(r)
	case domain.Ordinal:
		return w.applyOrdinal(r)
	case domain.User:
		w.applyUser(r)
		return nil
	default:
		return fmt.Errorf("%w: unknown record type %T", domain.ErrInvariant, rec)
	}
}

// touch notes that a record affected an item during the open transaction.
func (w *World) touch(item, record uuid.UUID) {
	w.txTouched[item] = append(w.txTouched[item], record)
}

// touchTarget resolves a vote or ordinal target to the items it affects.
func (w *World) touchTarget(target, record uuid.UUID) {
	if n, ok := w.entries[target]; ok {
		for _, ep := range n.rec.Endpoints() {
			w.cache.Remove(cacheKey{item: ep.Item, attribute: ep.Attribute})
			w.touch(ep.Item, record)
		}
		return
	}
	w.touch(target, record)
}

func (w *World) recordExists(id uuid.UUID) bool {
	if _, ok := w.recordIDs[id]; ok {
		return true
	}
	it, ok := w.items[id]
	return ok && !it.provisional
}
