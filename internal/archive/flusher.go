package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type flushMetrics struct {
	attempts prometheus.Counter
	failures prometheus.Counter
	queued   prometheus.Gauge
}

// newFlushMetrics registers the flusher collectors on reg. A nil reg yields
// working but unregistered collectors.
func newFlushMetrics(reg prometheus.Registerer) *flushMetrics {
	factory := promauto.With(reg)
	return &flushMetrics{
		attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "itemdb",
			Subsystem: "archive",
			Name:      "flush_attempts_total",
			Help:      "Journal writes attempted.",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "itemdb",
			Subsystem: "archive",
			Name:      "flush_failures_total",
			Help:      "Journal writes that failed and stayed queued.",
		}),
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "itemdb",
			Subsystem: "archive",
			Name:      "queued_fragments",
			Help:      "Fragments waiting to be written to the journal.",
		}),
	}
}

// flusher writes encoded fragments to a journal in order. Writes that fail
// stay queued and are retried on the next kick; the first failure of a
// session is logged as a warning and later ones only counted.
type flusher struct {
	journal Journal
	log     logrus.FieldLogger
	metrics *flushMetrics
	async   bool

	mu       sync.Mutex
	queue    [][]byte
	users    []byte
	usersGen uint64
	warned   bool

	drainMu sync.Mutex
	kick    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newFlusher(j Journal, log logrus.FieldLogger, m *flushMetrics, async bool) *flusher {
	f := &flusher{
		journal: j,
		log:     log,
		metrics: m,
		async:   async,
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if async {
		go f.run()
	} else {
		close(f.done)
	}
	return f
}

// enqueue schedules a fragment append and, when users is not nil, a user list
// replacement. Only the latest pending user list is kept.
func (f *flusher) enqueue(fragment, users []byte) {
	f.mu.Lock()
	if fragment != nil {
		f.queue = append(f.queue, fragment)
	}
	if users != nil {
		f.users = users
		f.usersGen++
	}
	f.metrics.queued.Set(float64(len(f.queue)))
	f.mu.Unlock()
	if !f.async {
		_ = f.drain(context.Background())
		return
	}
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

func (f *flusher) run() {
	defer close(f.done)
	for {
		select {
		case <-f.stop:
			return
		case <-f.kick:
			_ = f.drain(context.Background())
		}
	}
}

// drain writes everything queued, stopping at the first failure.
func (f *flusher) drain(ctx context.Context) error {
	f.drainMu.Lock()
	defer f.drainMu.Unlock()
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			break
		}
		next := f.queue[0]
		f.mu.Unlock()

		f.metrics.attempts.Inc()
		if err := f.journal.Append(ctx, next); err != nil {
			return f.failed(err)
		}
		f.mu.Lock()
		f.queue = f.queue[1:]
		f.metrics.queued.Set(float64(len(f.queue)))
		f.mu.Unlock()
	}

	f.mu.Lock()
	users, gen := f.users, f.usersGen
	f.mu.Unlock()
	if users == nil {
		return nil
	}
	f.metrics.attempts.Inc()
	if err := f.journal.ReplaceUsers(ctx, users); err != nil {
		return f.failed(err)
	}
	f.mu.Lock()
	if f.usersGen == gen {
		f.users = nil
	}
	f.mu.Unlock()
	return nil
}

func (f *flusher) failed(err error) error {
	f.metrics.failures.Inc()
	f.mu.Lock()
	first := !f.warned
	f.warned = true
	pending := len(f.queue)
	f.mu.Unlock()
	if first {
		f.log.WithError(err).WithField("queued", pending).
			Warn("journal unreachable; records stay queued and the store keeps working in memory")
	}
	return fmt.Errorf("flush journal: %w", err)
}

// pending reports how many fragments are waiting.
func (f *flusher) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// close stops the background goroutine and makes a last synchronous attempt.
func (f *flusher) close(ctx context.Context) error {
	f.once.Do(func() { close(f.stop) })
	<-f.done
	return f.drain(ctx)
}
