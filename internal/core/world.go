// Package core holds the World: the live in-memory index over every record,
// the login session, the transaction coordinator that batches mutations and
// fans out change notifications, and the query evaluator.
package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"itemdb/internal/idgen"
	"itemdb/pkg/domain"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// Archive persists committed transactions and replays them at startup.
// Save must not block on the network; durability may complete after it
// returns.
type Archive interface {
	Load(ctx context.Context) ([]domain.Record, []domain.User, error)
	// Save receives each committed transaction. users is the full user list
	// when the transaction created a user, nil otherwise.
	Save(ctx context.Context, tx domain.Transaction, users []domain.User) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

const defaultCacheSize = 4096

// Option configures a World.
type Option func(*World)

// WithClock overrides the time source for stamps and UUIDs.
func WithClock(c Clock) Option { return func(w *World) { w.clock = c } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(w *World) { w.log = l } }

// WithArchive attaches a persistence adapter.
func WithArchive(a Archive) Option { return func(w *World) { w.archive = a } }

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option { return func(w *World) { w.metrics = m } }

// WithGenerator supplies the UUID generator.
func WithGenerator(g *idgen.Generator) Option { return func(w *World) { w.gen = g } }

// WithContext sets the context handed to the archive on commit.
func WithContext(ctx context.Context) Option { return func(w *World) { w.ctx = ctx } }

// WithCacheSize bounds the number of cached (item, attribute) resolutions.
func WithCacheSize(n int) Option { return func(w *World) { w.cacheSize = n } }

type entryNode struct {
	rec       domain.Entry
	seq       uint64
	axiomatic bool
}

type voteNode struct {
	rec domain.Vote
	seq uint64
}

type ordinalNode struct {
	rec domain.Ordinal
	seq uint64
}

type userNode struct {
	rec domain.User
	seq uint64
}

type cacheKey struct {
	item      uuid.UUID
	attribute uuid.UUID
}

// World is the live index over all records. It is not safe for concurrent
// use: every call must come from the same goroutine, and observer callbacks
// must not open transactions.
type World struct {
	ctx       context.Context
	gen       *idgen.Generator
	clock     Clock
	log       logrus.FieldLogger
	metrics   MetricsRecorder
	archive   Archive
	filter    domain.RetrievalFilter
	cacheSize int

	items      map[uuid.UUID]*Item
	itemOrder  []*Item
	entries    map[uuid.UUID]*entryNode
	successors map[uuid.UUID][]uuid.UUID
	votes      map[uuid.UUID][]voteNode
	ordinals   map[uuid.UUID][]ordinalNode
	recordIDs  map[uuid.UUID]domain.RecordKind
	users      map[uuid.UUID]*userNode
	userOrder  []uuid.UUID
	current    *domain.User
	seq        uint64

	txDepth   int
	txRecords []domain.Record
	txTouched map[uuid.UUID][]uuid.UUID
	notifying bool

	subs    subscriptions
	queries []*LiveQuery

	cache *lru.Cache[cacheKey, []domain.Entry]
}

// New constructs a World holding only the axiomatic items.
func New(opts ...Option) (*World, error) {
	w := &World{
		ctx:        context.Background(),
		clock:      systemClock{},
		log:        logrus.StandardLogger(),
		metrics:    noopMetrics{},
		filter:     domain.LastEditWins,
		cacheSize:  defaultCacheSize,
		items:      make(map[uuid.UUID]*Item),
		entries:    make(map[uuid.UUID]*entryNode),
		successors: make(map[uuid.UUID][]uuid.UUID),
		votes:      make(map[uuid.UUID][]voteNode),
		ordinals:   make(map[uuid.UUID][]ordinalNode),
		recordIDs:  make(map[uuid.UUID]domain.RecordKind),
		users:      make(map[uuid.UUID]*userNode),
		txTouched:  make(map[uuid.UUID][]uuid.UUID),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithField("component", "world")
	if w.gen == nil {
		gen, err := idgen.New(idgen.WithClock(w.clock.Now))
		if err != nil {
			return nil, err
		}
		w.gen = gen
	}
	cache, err := lru.New[cacheKey, []domain.Entry](w.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("entry cache: %w", err)
	}
	w.cache = cache
	w.bootstrapAxioms()
	return w, nil
}

// Open builds a World and replays the archive into it.
func Open(ctx context.Context, archive Archive, opts ...Option) (*World, error) {
	opts = append([]Option{WithContext(ctx), WithArchive(archive)}, opts...)
	w, err := New(opts...)
	if err != nil {
		return nil, err
	}
	start := w.clock.Now()
	records, users, err := archive.Load(ctx)
	if err == nil {
		err = w.LoadRecords(records, users)
	}
	w.metrics.Observe(ctx, "load", err == nil, w.clock.Now().Sub(start))
	if err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}
	return w, nil
}

func (w *World) bootstrapAxioms() {
	stamp := domain.Stamp{Userstamp: domain.AxiomaticUser}
	for _, id := range domain.AxiomaticItems() {
		it := w.bootstrapItem(id)
		it.record = domain.ItemRecord{ID: id, Stamp: stamp}
		it.placeholder = false
	}
	names := map[uuid.UUID]string{
		domain.AxiomaticUser:         "axiomatic user",
		domain.AttrName:              "name",
		domain.AttrCategory:          "category",
		domain.AttrItemsInCategory:   "items in category",
		domain.AttrInverseAttribute:  "inverse attribute",
		domain.AttrMatchingAttribute: "matching attribute",
		domain.AttrMatchingValue:     "matching value",
		domain.CategoryCategory:      "category",
		domain.CategoryAttribute:     "attribute",
		domain.CategoryQuery:         "query",
		domain.CategoryUser:          "user",
	}
	for _, id := range domain.AxiomaticItems() {
		w.applyEntry(domain.Entry{
			ID:        axiomEntryID(id, 0),
			Stamp:     stamp,
			Item:      id,
			Attribute: domain.AttrName,
			Value:     domain.Text(names[id]),
		})
		w.entries[axiomEntryID(id, 0)].axiomatic = true
	}
	inverses := [][2]uuid.UUID{{domain.AttrCategory, domain.AttrItemsInCategory}}
	for _, pair := range inverses {
		w.applyEntry(domain.Entry{
			ID:        axiomEntryID(pair[0], 1),
			Stamp:     stamp,
			Item:      pair[0],
			Attribute: domain.AttrInverseAttribute,
			Value: domain.Connection{
				Items:      [2]uuid.UUID{pair[0], pair[1]},
				Attributes: [2]uuid.UUID{domain.AttrInverseAttribute, domain.AttrInverseAttribute},
			},
		})
		w.entries[axiomEntryID(pair[0], 1)].axiomatic = true
	}
	w.txTouched = make(map[uuid.UUID][]uuid.UUID)
}

// axiomEntryID derives a stable entry UUID for the axiomatic name and inverse
// entries.
func axiomEntryID(item uuid.UUID, n byte) uuid.UUID {
	id := item
	id[9] = 0x01 + n
	return id
}

// Filter returns the active retrieval filter.
func (w *World) Filter() domain.RetrievalFilter { return w.filter }

// SetRetrievalFilter switches the resolution policy. Modes without an
// implementation are rejected.
func (w *World) SetRetrievalFilter(f domain.RetrievalFilter) error {
	if !f.Supported() {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedFilter, f)
	}
	if f != w.filter {
		w.filter = f
		w.cache.Purge()
	}
	return nil
}

// Item returns the item with the given UUID.
func (w *World) Item(id uuid.UUID) (*Item, bool) {
	it, ok := w.items[id]
	return it, ok
}

// Items returns every known item in creation order, excluding provisional ones.
func (w *World) Items() []*Item {
	out := make([]*Item, 0, len(w.itemOrder))
	for _, it := range w.itemOrder {
		if !it.provisional {
			out = append(out, it)
		}
	}
	return out
}

// Entry returns the entry with the given UUID.
func (w *World) Entry(id uuid.UUID) (domain.Entry, bool) {
	n, ok := w.entries[id]
	if !ok {
		return domain.Entry{}, false
	}
	return n.rec, true
}

// Stats summarises the index.
type Stats struct {
	Items    int
	Entries  int
	Votes    int
	Ordinals int
	Users    int
}

// Stats counts the records currently indexed, axiomatic items included.
func (w *World) Stats() Stats {
	s := Stats{Items: len(w.items), Entries: len(w.entries), Users: len(w.users)}
	for _, vs := range w.votes {
		s.Votes += len(vs)
	}
	for _, os := range w.ordinals {
		s.Ordinals += len(os)
	}
	return s
}

// Records returns every persisted record in creation order: what a full dump
// of the world contains. Axiomatic records are omitted.
func (w *World) Records() []domain.Record {
	type seqRecord struct {
		seq uint64
		rec domain.Record
	}
	var all []seqRecord
	for _, it := range w.itemOrder {
		if it.provisional || it.placeholder || domain.IsAxiomatic(it.id) {
			continue
		}
		all = append(all, seqRecord{it.recordSeq, it.record})
	}
	for _, n := range w.entries {
		if n.axiomatic {
			continue
		}
		all = append(all, seqRecord{n.seq, n.rec})
	}
	for _, vs := range w.votes {
		for _, v := range vs {
			all = append(all, seqRecord{v.seq, v.rec})
		}
	}
	for _, os := range w.ordinals {
		for _, o := range os {
			all = append(all, seqRecord{o.seq, o.rec})
		}
	}
	for _, id := range w.userOrder {
		u := w.users[id]
		if u.rec.Timestamp.IsZero() {
			continue
		}
		all = append(all, seqRecord{u.seq, u.rec})
	}
	slices.SortStableFunc(all, func(a, b seqRecord) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]domain.Record, len(all))
	for i, r := range all {
		out[i] = r.rec
	}
	return out
}

func (w *World) nextSeq() uint64 {
	w.seq++
	return w.seq
}

func (w *World) stamp() domain.Stamp {
	var user uuid.UUID
	if w.current != nil {
		user = w.current.ID
	}
	return domain.NewStamp(user, w.clock.Now())
}

func (w *World) newID() uuid.UUID {
	node := ""
	if w.current != nil {
		node = w.current.Node()
	}
	id, err := w.gen.Next(node)
	if err != nil {
		// User UUIDs always carry a valid node, so this is unreachable.
		panic(fmt.Errorf("mint uuid: %w", err))
	}
	return id
}

func (w *World) requireUser() error {
	if w.current == nil {
		return domain.ErrNoUserLoggedIn
	}
	return nil
}
