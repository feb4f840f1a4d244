package core

import (
	"errors"
	"fmt"

	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// BeginTransaction opens a transaction or nests inside the open one. Nested
// transactions fold into the outermost batch.
func (w *World) BeginTransaction() error {
	if w.notifying {
		return domain.ErrReentrantTransaction
	}
	w.txDepth++
	return nil
}

// EndTransaction closes the innermost transaction. Closing the outermost one
// commits the batch: the records go to the archive and every affected
// observer and live query is notified once.
func (w *World) EndTransaction() error {
	if w.txDepth == 0 {
		return domain.ErrNoOpenTransaction
	}
	w.txDepth--
	if w.txDepth > 0 {
		return nil
	}
	return w.commit()
}

// InTransaction reports whether a transaction is open.
func (w *World) InTransaction() bool { return w.txDepth > 0 }

// RunInTransaction wraps fn in Begin/EndTransaction. Records created before fn
// fails are committed anyway; records are never retracted.
func (w *World) RunInTransaction(fn func() error) error {
	if err := w.BeginTransaction(); err != nil {
		return err
	}
	fnErr := fn()
	endErr := w.EndTransaction()
	return errors.Join(fnErr, endErr)
}

func (w *World) commit() error {
	records, touched := w.txRecords, w.txTouched
	w.txRecords = nil
	w.txTouched = make(map[uuid.UUID][]uuid.UUID)
	if len(records) == 0 && len(touched) == 0 {
		return nil
	}
	start := w.clock.Now()
	tx := domain.Transaction{Records: records}

	var saveErr error
	if w.archive != nil && len(records) > 0 {
		var users []domain.User
		if len(tx.Users()) > 0 {
			users = w.Users()
		}
		if err := w.archive.Save(w.ctx, tx, users); err != nil {
			saveErr = fmt.Errorf("save transaction: %w", err)
			w.log.WithError(err).WithField("records", len(records)).Error("archive rejected transaction")
		}
	}
	w.countRecords(records)

	w.notifying = true
	defer func() { w.notifying = false }()
	w.subs.notify(tx.IDs(), touched)
	w.refreshQueries(touched)

	w.metrics.Observe(w.ctx, "commit", saveErr == nil, w.clock.Now().Sub(start))
	w.log.WithField("records", len(records)).Debug("transaction committed")
	return saveErr
}

func (w *World) countRecords(records []domain.Record) {
	counter, ok := w.metrics.(RecordCounter)
	if !ok {
		return
	}
	counts := make(map[domain.RecordKind]int)
	for _, r := range records {
		counts[r.Kind()]++
	}
	for kind, n := range counts {
		counter.CountRecords(kind, n)
	}
}
