package idgen

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2005, 6, 1, 12, 0, 0, 0, time.UTC)

// frozenClock returns t for the first n reads, then moves forward one
// millisecond per read.
func frozenClock(t time.Time, n int) func() time.Time {
	var mu sync.Mutex
	calls := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= n {
			return t
		}
		return t.Add(time.Duration(calls-n) * time.Millisecond)
	}
}

func TestNextIsVersionOneRFC4122(t *testing.T) {
	g := MustNew(WithClock(func() time.Time { return epoch }))
	u, err := g.Next("")
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(1), u.Version())
	assert.Equal(t, uuid.RFC4122, u.Variant())
	assert.Len(t, u.String(), 36)
	assert.Equal(t, epoch, TimeOf(u))
	assert.Equal(t, g.PseudoNode(), u.String()[24:])
}

func TestPseudoNodeFlagged(t *testing.T) {
	g := MustNew(WithRandom(bytes.NewReader(make([]byte, 8))))
	assert.Equal(t, "800000000000", g.PseudoNode())
	assert.Equal(t, uint16(0), g.clockSeq)
}

func TestMonotonicAndUniqueAcrossMillisecondOverflow(t *testing.T) {
	const total = MaxPerMilli + 5000
	g := MustNew(WithClock(frozenClock(epoch, total+100)))

	seen := make(map[uuid.UUID]struct{}, total)
	var last uint64
	for i := 0; i < total; i++ {
		u, err := g.Next("")
		require.NoError(t, err)
		_, dup := seen[u]
		require.False(t, dup, "duplicate uuid at %d", i)
		seen[u] = struct{}{}
		ticks := Ticks(u)
		require.Greater(t, ticks, last, "timestamp went backwards at %d", i)
		last = ticks
	}
	// The first MaxPerMilli ids share the frozen millisecond; the rest were
	// issued only after the generator waited for the clock to move on.
	assert.True(t, TimeOf(uuidAt(t, g)).After(epoch))
}

func uuidAt(t *testing.T, g *Generator) uuid.UUID {
	t.Helper()
	u, err := g.Next("")
	require.NoError(t, err)
	return u
}

func TestCounterStaysWithinMillisecond(t *testing.T) {
	g := MustNew(WithClock(frozenClock(epoch, 2*MaxPerMilli)))
	first := uuidAt(t, g)
	var lastInMilli uuid.UUID
	for i := 1; i < MaxPerMilli; i++ {
		lastInMilli = uuidAt(t, g)
	}
	assert.Equal(t, uint64(MaxPerMilli-1), Ticks(lastInMilli)-Ticks(first))
	assert.Equal(t, epoch, TimeOf(lastInMilli).Truncate(time.Millisecond))
}

func TestClockSteppingBackStaysMonotonic(t *testing.T) {
	times := []time.Time{epoch, epoch.Add(-time.Second), epoch.Add(-time.Second)}
	i := 0
	g := MustNew(WithClock(func() time.Time {
		t := times[i%len(times)]
		i++
		return t
	}))
	a, b, c := uuidAt(t, g), uuidAt(t, g), uuidAt(t, g)
	assert.Less(t, Ticks(a), Ticks(b))
	assert.Less(t, Ticks(b), Ticks(c))
}

func TestExplicitNode(t *testing.T) {
	g := MustNew()
	u, err := g.Next("0011113ae5d6")
	require.NoError(t, err)
	assert.Equal(t, "0011113ae5d6", u.String()[24:])

	u, err = g.Next("00:11:11:3a:e5:d6")
	require.NoError(t, err)
	assert.Equal(t, "0011113ae5d6", u.String()[24:])

	_, err = g.Next("xyz")
	require.Error(t, err)
	_, err = g.Next("zz11113ae5d6")
	require.Error(t, err)
}

func TestConcurrentCallersNeverCollide(t *testing.T) {
	g := MustNew()
	const workers, each = 8, 500
	out := make(chan uuid.UUID, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				u, err := g.Next("")
				if err != nil {
					t.Error(err)
					return
				}
				out <- u
			}
		}()
	}
	wg.Wait()
	close(out)
	seen := map[uuid.UUID]bool{}
	for u := range out {
		require.False(t, seen[u])
		seen[u] = true
	}
	assert.Len(t, seen, workers*each)
}

func TestFixedPoint(t *testing.T) {
	assert.Equal(t, gregorianOffset, fixedPoint(0, 0))
	assert.Equal(t, uint64(122192928000000000), gregorianOffset)
	assert.Equal(t, gregorianOffset+10_000+7, fixedPoint(1, 7))
	assert.Panics(t, func() { fixedPoint(1<<62, 0) })
	assert.Panics(t, func() { fixedPoint(1<<50, 0) })
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestNewSeedFailure(t *testing.T) {
	_, err := New(WithRandom(failingReader{}))
	require.Error(t, err)
	assert.Panics(t, func() { MustNew(WithRandom(failingReader{})) })
}
