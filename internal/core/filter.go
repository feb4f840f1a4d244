package core

import (
	"cmp"
	"fmt"
	"slices"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// resolve applies the active retrieval filter to the entries filed under
// (it, attr) and sorts the survivors.
func (w *World) resolve(it *Item, attr uuid.UUID) []domain.Entry {
	ids := it.attrs[attr]
	out := make([]domain.Entry, 0, len(ids))
	switch w.filter {
	case domain.Unabridged:
		for _, id := range ids {
			out = append(out, w.entries[id].rec)
		}
	case domain.LastEditWins:
		for _, id := range ids {
			if w.entryLive(id) {
				out = append(out, w.entries[id].rec)
			}
		}
	default:
		panic(fmt.Sprintf("core: retrieval filter %s has no implementation", w.filter))
	}
	w.sortEntries(out)
	return out
}

// entryLive reports whether an entry survives LAST_EDIT_WINS: nothing
// supersedes it and its latest vote is not a delete.
func (w *World) entryLive(id uuid.UUID) bool {
	if len(w.successors[id]) > 0 {
		return false
	}
	return !w.votedDeleted(id)
}

// isDeleted reports whether target is deleted under the active filter.
func (w *World) isDeleted(target uuid.UUID) bool {
	switch w.filter {
	case domain.Unabridged:
		return false
	case domain.LastEditWins:
		return w.votedDeleted(target)
	default:
		panic(fmt.Sprintf("core: retrieval filter %s has no implementation", w.filter))
	}
}

func (w *World) votedDeleted(target uuid.UUID) bool {
	votes := w.votes[target]
	if len(votes) == 0 {
		return false
	}
	latest := votes[0]
	for _, v := range votes[1:] {
		if laterThan(v.rec.Stamp, v.seq, latest.rec.Stamp, latest.seq) {
			latest = v
		}
	}
	return !latest.rec.Retain
}

// ordinalOf returns the latest sort position assigned to target.
func (w *World) ordinalOf(target uuid.UUID) (float64, bool) {
	ords := w.ordinals[target]
	if len(ords) == 0 {
		return 0, false
	}
	latest := ords[0]
	for _, o := range ords[1:] {
		if laterThan(o.rec.Stamp, o.seq, latest.rec.Stamp, latest.seq) {
			latest = o
		}
	}
	return latest.rec.Position, true
}

// laterThan orders records by timestamp, falling back to creation order.
func laterThan(a domain.Stamp, aSeq uint64, b domain.Stamp, bSeq uint64) bool {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c > 0
	}
	return aSeq > bSeq
}

// sortKey places records with an ordinal at that position and everything else
// at its creation sequence.
func (w *World) sortKey(id uuid.UUID, seq uint64) float64 {
	if pos, ok := w.ordinalOf(id); ok {
		return pos
	}
	return float64(seq)
}

func (w *World) sortEntries(entries []domain.Entry) {
	slices.SortStableFunc(entries, func(a, b domain.Entry) int {
		sa, sb := w.entries[a.ID].seq, w.entries[b.ID].seq
		if c := cmp.Compare(w.sortKey(a.ID, sa), w.sortKey(b.ID, sb)); c != 0 {
			return c
		}
		return cmp.Compare(sa, sb)
	})
}

func (w *World) sortItems(items []*Item) {
	slices.SortStableFunc(items, func(a, b *Item) int {
		if c := cmp.Compare(w.sortKey(a.id, a.seq), w.sortKey(b.id, b.seq)); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

// inverseOf returns the attribute paired with attr through an
// inverse-attribute connection.
func (w *World) inverseOf(attr uuid.UUID) (uuid.UUID, bool) {
	it, ok := w.items[attr]
	if !ok {
		return uuid.Nil, false
	}
	for _, e := range it.EntriesForAttribute(domain.AttrInverseAttribute) {
		switch v := e.Value.(type) {
		case domain.Connection:
			if end, ok := v.Other(attr); ok {
				return end.Item, true
			}
		case domain.ItemRef:
			return v.Item, true
		}
	}
	return uuid.Nil, false
}
