package archive

import (
	"context"
	"errors"
	"sync"
)

// Journal is the durable side of an archive: an append-only sequence of
// fragments plus a separately replaced user list document.
type Journal interface {
	// Fragments returns every appended fragment in append order.
	Fragments(ctx context.Context) ([][]byte, error)
	// Append adds a fragment after all existing ones.
	Append(ctx context.Context, fragment []byte) error
	// Users returns the stored user list document, or nil when none exists.
	Users(ctx context.Context) ([]byte, error)
	// ReplaceUsers overwrites the user list document.
	ReplaceUsers(ctx context.Context, doc []byte) error
	Close() error
}

// ErrJournalClosed is returned by a closed MemoryJournal.
var ErrJournalClosed = errors.New("archive: journal closed")

// MemoryJournal keeps fragments in process memory. It backs tests and
// single-process tools.
type MemoryJournal struct {
	mu        sync.Mutex
	fragments [][]byte
	users     []byte
	closed    bool
	fail      error
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal { return &MemoryJournal{} }

// Fragments implements Journal.
func (j *MemoryJournal) Fragments(context.Context) ([][]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrJournalClosed
	}
	out := make([][]byte, len(j.fragments))
	for i, f := range j.fragments {
		out[i] = append([]byte(nil), f...)
	}
	return out, nil
}

// Append implements Journal.
func (j *MemoryJournal) Append(_ context.Context, fragment []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.closed:
		return ErrJournalClosed
	case j.fail != nil:
		return j.fail
	}
	j.fragments = append(j.fragments, append([]byte(nil), fragment...))
	return nil
}

// Users implements Journal.
func (j *MemoryJournal) Users(context.Context) ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrJournalClosed
	}
	if j.users == nil {
		return nil, nil
	}
	return append([]byte(nil), j.users...), nil
}

// ReplaceUsers implements Journal.
func (j *MemoryJournal) ReplaceUsers(_ context.Context, doc []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.closed:
		return ErrJournalClosed
	case j.fail != nil:
		return j.fail
	}
	j.users = append([]byte(nil), doc...)
	return nil
}

// SetFailure makes later writes fail with err, or succeed again when err is nil.
func (j *MemoryJournal) SetFailure(err error) {
	j.mu.Lock()
	j.fail = err
	j.mu.Unlock()
}

// Close implements Journal.
func (j *MemoryJournal) Close() error {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	return nil
}

var _ Journal = (*MemoryJournal)(nil)
