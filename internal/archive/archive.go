package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"itemdb/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Archive loads the persisted log at startup and appends committed
// transactions. Save returns once the records are encoded; the journal write
// happens in the background and Flush waits for it.
type Archive interface {
	Load(ctx context.Context) ([]domain.Record, []domain.User, error)
	Save(ctx context.Context, tx domain.Transaction, users []domain.User) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// Kind selects an archive variant.
type Kind string

// Archive variants.
const (
	// KindDump rewrites the whole world as one document on every save.
	KindDump Kind = "dump"
	// KindLog appends each transaction's records as a fragment.
	KindLog Kind = "log"
	// KindTxLog appends each transaction wrapped in a Transaction record.
	KindTxLog Kind = "txlog"
)

// Option configures an archive.
type Option func(*options)

type options struct {
	log  logrus.FieldLogger
	reg  prometheus.Registerer
	sync bool
	now  func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

// WithRegisterer registers the flush metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option { return func(o *options) { o.reg = reg } }

// WithSynchronousFlush makes Save write to the journal before returning.
// Failures are still only logged; Flush reports them.
func WithSynchronousFlush() Option { return func(o *options) { o.sync = true } }

// WithClock sets the time source for document timestamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func buildOptions(kind Kind, opts []Option) options {
	o := options{log: logrus.StandardLogger(), now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.WithFields(logrus.Fields{"component": "archive", "kind": string(kind)})
	return o
}

// Open builds the archive variant named by kind on top of j.
func Open(kind Kind, j Journal, opts ...Option) (Archive, error) {
	switch kind {
	case KindDump:
		return NewDumpArchive(j, opts...), nil
	case KindLog, "":
		return NewLogArchive(j, opts...), nil
	case KindTxLog:
		return NewTransactionLogArchive(j, opts...), nil
	default:
		return nil, fmt.Errorf("unknown archive kind %q", kind)
	}
}

// LogArchive is the chronological append-only variant.
type LogArchive struct {
	journal   Journal
	txMarkers bool
	flush     *flusher
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewLogArchive appends each saved transaction as a plain record fragment.
func NewLogArchive(j Journal, opts ...Option) *LogArchive {
	return newLogArchive(KindLog, j, false, opts)
}

// NewTransactionLogArchive appends each saved transaction as a single
// Transaction record.
func NewTransactionLogArchive(j Journal, opts ...Option) *LogArchive {
	return newLogArchive(KindTxLog, j, true, opts)
}

func newLogArchive(kind Kind, j Journal, tx bool, opts []Option) *LogArchive {
	o := buildOptions(kind, opts)
	return &LogArchive{
		journal:   j,
		txMarkers: tx,
		flush:     newFlusher(j, o.log, newFlushMetrics(o.reg), !o.sync),
		log:       o.log,
		now:       o.now,
	}
}

// Load implements Archive. Fragments are decoded in append order and the
// separate user list, when present, is merged in after them.
func (a *LogArchive) Load(ctx context.Context) ([]domain.Record, []domain.User, error) {
	frags, err := a.journal.Fragments(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read journal: %w", err)
	}
	var records []domain.Record
	var users []domain.User
	for i, frag := range frags {
		recs, us, err := DecodeFragment(frag)
		if err != nil {
			return nil, nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		records = append(records, recs...)
		users = append(users, us...)
	}
	listed, err := loadUserList(ctx, a.journal)
	if err != nil {
		return nil, nil, err
	}
	users = append(users, listed...)
	a.log.WithFields(logrus.Fields{"fragments": len(frags), "records": len(records)}).Debug("log loaded")
	return records, users, nil
}

// Save implements Archive.
func (a *LogArchive) Save(_ context.Context, tx domain.Transaction, users []domain.User) error {
	encode := EncodeFragment
	if a.txMarkers {
		encode = EncodeTransaction
	}
	frag, err := encode(tx.Records)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	var doc []byte
	if users != nil {
		if doc, err = EncodeUserList(users, a.now()); err != nil {
			return fmt.Errorf("encode user list: %w", err)
		}
	}
	a.flush.enqueue(frag, doc)
	return nil
}

// Flush implements Archive.
func (a *LogArchive) Flush(ctx context.Context) error { return a.flush.drain(ctx) }

// Pending reports how many fragments have not reached the journal yet.
func (a *LogArchive) Pending() int { return a.flush.pending() }

// Close implements Archive. It flushes, then closes the journal.
func (a *LogArchive) Close(ctx context.Context) error {
	flushErr := a.flush.close(ctx)
	if err := a.journal.Close(); err != nil {
		return err
	}
	return flushErr
}

// DumpArchive keeps the entire world as one document. Each save appends a
// complete new revision; Load reads the newest.
type DumpArchive struct {
	journal Journal
	flush   *flusher
	log     logrus.FieldLogger
	now     func() time.Time

	mu      sync.Mutex
	records []domain.Record
	users   []domain.User
}

// NewDumpArchive returns the whole-document variant.
func NewDumpArchive(j Journal, opts ...Option) *DumpArchive {
	o := buildOptions(KindDump, opts)
	return &DumpArchive{
		journal: j,
		flush:   newFlusher(j, o.log, newFlushMetrics(o.reg), !o.sync),
		log:     o.log,
		now:     o.now,
	}
}

// Load implements Archive.
func (a *DumpArchive) Load(ctx context.Context) ([]domain.Record, []domain.User, error) {
	frags, err := a.journal.Fragments(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read journal: %w", err)
	}
	var records []domain.Record
	var users []domain.User
	if len(frags) > 0 {
		if records, users, err = DecodeFragment(frags[len(frags)-1]); err != nil {
			return nil, nil, fmt.Errorf("latest revision: %w", err)
		}
	}
	listed, err := loadUserList(ctx, a.journal)
	if err != nil {
		return nil, nil, err
	}
	users = append(users, listed...)
	a.mu.Lock()
	a.records = append([]domain.Record(nil), records...)
	a.users = append([]domain.User(nil), users...)
	a.mu.Unlock()
	a.log.WithFields(logrus.Fields{"revisions": len(frags), "records": len(records)}).Debug("dump loaded")
	return records, users, nil
}

// Save implements Archive.
func (a *DumpArchive) Save(_ context.Context, tx domain.Transaction, users []domain.User) error {
	a.mu.Lock()
	a.records = append(a.records, tx.Records...)
	if users != nil {
		a.users = append([]domain.User(nil), users...)
	}
	doc, err := EncodeDump(a.records, a.users, a.now())
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	a.flush.enqueue(doc, nil)
	return nil
}

// Flush implements Archive.
func (a *DumpArchive) Flush(ctx context.Context) error { return a.flush.drain(ctx) }

// Close implements Archive.
func (a *DumpArchive) Close(ctx context.Context) error {
	flushErr := a.flush.close(ctx)
	if err := a.journal.Close(); err != nil {
		return err
	}
	return flushErr
}

func loadUserList(ctx context.Context, j Journal) ([]domain.User, error) {
	doc, err := j.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("read user list: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	log, err := DecodeAny(doc)
	if err != nil {
		return nil, fmt.Errorf("user list: %w", err)
	}
	return log.Users, nil
}

var (
	_ Archive = (*LogArchive)(nil)
	_ Archive = (*DumpArchive)(nil)
)
