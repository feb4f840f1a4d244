// Package idgen mints time-ordered version-1 UUIDs. Each Generator owns its
// clock sequence, pseudo-node and intra-millisecond counter; there is no
// package-level state.
//
// Timestamps are computed in uint64 with math/bits carry checks rather than
// as a multi-limb bignum, since Go integers hold the 60-bit tick count
// exactly. A carry out of range panics.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// gregorianOffset is the number of 100ns ticks between 1582-10-15 and the
	// Unix epoch (3,394,248 hours).
	gregorianOffset uint64 = 3394248 * 3600 * 10_000_000
	ticksPerMilli   uint64 = 10_000
	// MaxPerMilli is how many UUIDs fit in one millisecond before the
	// generator waits for the clock to move on.
	MaxPerMilli = 10_000
)

// Generator produces monotonically increasing version-1 UUIDs. It is safe for
// concurrent use.
type Generator struct {
	mu         sync.Mutex
	clockSeq   uint16
	pseudoNode [6]byte
	lastMillis int64
	issued     int
	now        func() time.Time
	rand       io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRandom overrides the entropy source used for the clock sequence and the
// pseudo-node.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.rand = r }
}

// New returns a generator with a random clock sequence and pseudo-node.
func New(opts ...Option) (*Generator, error) {
	g := &Generator{
		now:        time.Now,
		rand:       rand.Reader,
		lastMillis: -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	var seed [8]byte
	if _, err := io.ReadFull(g.rand, seed[:]); err != nil {
		return nil, fmt.Errorf("seed uuid generator: %w", err)
	}
	g.clockSeq = (uint16(seed[0])<<8 | uint16(seed[1])) & 0x3fff
	copy(g.pseudoNode[:], seed[2:])
	// Flag the node as not being a hardware address.
	g.pseudoNode[0] |= 0x80
	return g, nil
}

// MustNew is New that panics on failure.
func MustNew(opts ...Option) *Generator {
	g, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return g
}

// PseudoNode returns the generator's random node as 12 hex digits.
func (g *Generator) PseudoNode() string {
	return hex.EncodeToString(g.pseudoNode[:])
}

// Next mints a UUID. node is either empty, selecting the pseudo-node, or 12
// hex digits that are used verbatim.
func (g *Generator) Next(node string) (uuid.UUID, error) {
	n := g.pseudoNode
	if node != "" {
		parsed, err := ParseNode(node)
		if err != nil {
			return uuid.Nil, err
		}
		n = parsed
	}
	g.mu.Lock()
	ticks := g.tick()
	seq := g.clockSeq
	g.mu.Unlock()
	return layout(ticks, seq, n), nil
}

// tick returns the next timestamp. Callers hold g.mu.
func (g *Generator) tick() uint64 {
	for {
		ms := g.now().UnixMilli()
		if ms < g.lastMillis {
			// The wall clock stepped back; stay on the last millisecond so the
			// sequence keeps increasing.
			ms = g.lastMillis
		}
		if ms != g.lastMillis {
			g.lastMillis = ms
			g.issued = 1
			return fixedPoint(uint64(ms), 0)
		}
		if g.issued < MaxPerMilli {
			count := g.issued
			g.issued++
			return fixedPoint(uint64(ms), uint64(count))
		}
		runtime.Gosched()
	}
}

// fixedPoint converts milliseconds since the Unix epoch plus an intra-millisecond
// counter into 100ns ticks since the Gregorian epoch. A carry out of 64 bits is a
// programming error.
func fixedPoint(ms, counter uint64) uint64 {
	hi, lo := bits.Mul64(ms, ticksPerMilli)
	if hi != 0 {
		panic("idgen: timestamp multiply overflow")
	}
	sum, carry := bits.Add64(lo, gregorianOffset, 0)
	if carry != 0 {
		panic("idgen: timestamp add overflow")
	}
	sum, carry = bits.Add64(sum, counter, 0)
	if carry != 0 {
		panic("idgen: timestamp add overflow")
	}
	if sum>>60 != 0 {
		panic("idgen: timestamp exceeds 60 bits")
	}
	return sum
}

func layout(ticks uint64, seq uint16, node [6]byte) uuid.UUID {
	var u uuid.UUID
	timeLow := uint32(ticks)
	timeMid := uint16(ticks >> 32)
	timeHi := uint16(ticks>>48) & 0x0fff
	u[0] = byte(timeLow >> 24)
	u[1] = byte(timeLow >> 16)
	u[2] = byte(timeLow >> 8)
	u[3] = byte(timeLow)
	u[4] = byte(timeMid >> 8)
	u[5] = byte(timeMid)
	u[6] = byte(timeHi>>8) | 0x10
	u[7] = byte(timeHi)
	u[8] = byte(seq>>8)&0x3f | 0x80
	u[9] = byte(seq)
	copy(u[10:], node[:])
	return u
}

// ParseNode decodes a 12 hex digit node value.
func ParseNode(s string) ([6]byte, error) {
	var node [6]byte
	s = strings.ReplaceAll(s, ":", "")
	if len(s) != 12 {
		return node, fmt.Errorf("node %q: want 12 hex digits", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return node, fmt.Errorf("node %q: %w", s, err)
	}
	copy(node[:], b)
	return node, nil
}

// Ticks returns the 60-bit timestamp embedded in a version-1 UUID.
func Ticks(u uuid.UUID) uint64 {
	return uint64(u.Time())
}

// TimeOf returns the wall-clock time embedded in a version-1 UUID.
func TimeOf(u uuid.UUID) time.Time {
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}
