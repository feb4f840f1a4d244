package core

import (
	"cmp"
	"fmt"
	"slices"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoadRecords replays decoded records into the World. References to UUIDs
// that have not been seen yet create placeholders, so records may arrive in
// any order. users carries the password list kept beside the log.
//
// Loading does not notify observers and does not write to the archive.
func (w *World) LoadRecords(records []domain.Record, users []domain.User) error {
	if w.txDepth > 0 {
		return fmt.Errorf("%w: load inside an open transaction", domain.ErrPrecondition)
	}
	for _, rec := range records {
		if err := w.apply(rec); err != nil {
			return fmt.Errorf("load %s %s: %w", rec.Kind(), rec.RecordID(), err)
		}
	}
	for _, u := range users {
		w.applyUser(u)
	}
	w.txRecords = nil
	w.txTouched = make(map[uuid.UUID][]uuid.UUID)
	w.cache.Purge()
	if err := w.checkChains(); err != nil {
		return err
	}
	w.log.WithFields(logrus.Fields{"records": len(records), "users": len(users)}).Info("records loaded")
	return nil
}

// checkChains verifies every previous-entry link once all records are in.
// A link to an entry that never arrived is tolerated; a link across items or
// attributes is corrupt data.
func (w *World) checkChains() error {
	nodes := make([]*entryNode, 0, len(w.entries))
	for _, n := range w.entries {
		if n.rec.HasPrevious() {
			nodes = append(nodes, n)
		}
	}
	slices.SortFunc(nodes, func(a, b *entryNode) int { return cmp.Compare(a.seq, b.seq) })
	for _, n := range nodes {
		prev, ok := w.entries[n.rec.Previous]
		if !ok {
			w.log.WithFields(logrus.Fields{"entry": n.rec.ID, "previous": n.rec.Previous}).
				Warn("previous entry missing from log")
			continue
		}
		if !sameChain(prev.rec, n.rec) {
			return fmt.Errorf("%w: entry %s supersedes %s", domain.ErrChainMismatch, n.rec.ID, prev.rec.ID)
		}
	}
	return nil
}
