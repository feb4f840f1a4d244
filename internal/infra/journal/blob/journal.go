// Package blob keeps an archive journal in a blob store. Every fragment and
// every user list revision is its own create-only object named by a ULID,
// so lexical key order is write order.
package blob

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"itemdb/internal/blob/core"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

const (
	fragmentDir = "log/"
	usersDir    = "users/"
	contentType = "application/json"

	defaultFetchLimit = 8
)

// Option configures a Journal.
type Option func(*Journal)

// WithPrefix namespaces every key.
func WithPrefix(p string) Option { return func(j *Journal) { j.prefix = p } }

// WithFetchLimit bounds concurrent Gets while reading fragments.
func WithFetchLimit(n int) Option { return func(j *Journal) { j.fetchLimit = n } }

// WithClock sets the time source for key timestamps.
func WithClock(now func() time.Time) Option { return func(j *Journal) { j.now = now } }

// Journal implements the archive journal over a core.Store.
type Journal struct {
	store      core.Store
	prefix     string
	fetchLimit int
	now        func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New wraps store.
func New(store core.Store, opts ...Option) *Journal {
	j := &Journal{
		store:      store,
		fetchLimit: defaultFetchLimit,
		now:        time.Now,
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Journal) nextKey(dir string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(j.now()), j.entropy)
	if err != nil {
		return "", fmt.Errorf("mint key: %w", err)
	}
	return j.prefix + dir + id.String(), nil
}

// Fragments implements archive.Journal. Objects are fetched concurrently and
// returned in key order.
func (j *Journal) Fragments(ctx context.Context) ([][]byte, error) {
	infos, err := j.store.List(ctx, j.prefix+fragmentDir)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}
	out := make([][]byte, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.fetchLimit)
	for i, info := range infos {
		g.Go(func() error {
			b, err := j.read(gctx, info.Key)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Append implements archive.Journal.
func (j *Journal) Append(ctx context.Context, fragment []byte) error {
	key, err := j.nextKey(fragmentDir)
	if err != nil {
		return err
	}
	if _, err := j.store.Put(ctx, key, bytes.NewReader(fragment), core.PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("append fragment: %w", err)
	}
	return nil
}

// Users implements archive.Journal.
func (j *Journal) Users(ctx context.Context) ([]byte, error) {
	infos, err := j.store.List(ctx, j.prefix+usersDir)
	if err != nil {
		return nil, fmt.Errorf("list user lists: %w", err)
	}
	// A revision deleted between List and Get falls back to the previous one.
	for i := len(infos) - 1; i >= 0; i-- {
		b, err := j.read(ctx, infos[i].Key)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		return b, err
	}
	return nil, nil
}

// ReplaceUsers implements archive.Journal. The new revision is written
// before older ones are removed.
func (j *Journal) ReplaceUsers(ctx context.Context, doc []byte) error {
	key, err := j.nextKey(usersDir)
	if err != nil {
		return err
	}
	if _, err := j.store.Put(ctx, key, bytes.NewReader(doc), core.PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("write user list: %w", err)
	}
	infos, err := j.store.List(ctx, j.prefix+usersDir)
	if err != nil {
		return fmt.Errorf("list user lists: %w", err)
	}
	for _, info := range infos {
		if info.Key >= key {
			continue
		}
		if _, err := j.store.Delete(ctx, info.Key); err != nil {
			return fmt.Errorf("prune user list %s: %w", info.Key, err)
		}
	}
	return nil
}

// Close implements archive.Journal.
func (j *Journal) Close() error { return nil }

func (j *Journal) read(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := j.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}
