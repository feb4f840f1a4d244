package core

import (
	"context"
	"fmt"

	"itemdb/internal/archive"
	"itemdb/internal/blob"
	"itemdb/internal/config"
	blobjournal "itemdb/internal/infra/journal/blob"
	"itemdb/internal/infra/journal/httpjournal"
	"itemdb/internal/infra/journal/postgres"
	"itemdb/internal/infra/journal/sqlite"
)

// OpenJournal selects the journal backend named by cfg.Journal.Driver.
func OpenJournal(ctx context.Context, cfg *config.Config) (archive.Journal, error) {
	switch cfg.Journal.Driver {
	case config.JournalMemory:
		return archive.NewMemoryJournal(), nil
	case config.JournalSQLite, "":
		return sqlite.Open(ctx, cfg.Journal.SQLitePath)
	case config.JournalPostgres:
		return postgres.Open(ctx, cfg.Journal.PostgresDSN)
	case config.JournalBlob:
		store, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return blobjournal.New(store, blobjournal.WithPrefix(cfg.Journal.Prefix)), nil
	case config.JournalHTTP:
		return httpjournal.NewClient(cfg.Journal.HTTPURL, httpjournal.WithTimeout(cfg.Journal.HTTPTimeout)), nil
	default:
		return nil, fmt.Errorf("unknown journal driver %s", cfg.Journal.Driver)
	}
}

// OpenArchive opens the configured journal and wraps it in the configured
// archive variant.
func OpenArchive(ctx context.Context, cfg *config.Config, opts ...archive.Option) (archive.Archive, error) {
	j, err := OpenJournal(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Archive.Synchronous {
		opts = append(opts, archive.WithSynchronousFlush())
	}
	a, err := archive.Open(archive.Kind(cfg.Archive.Kind), j, opts...)
	if err != nil {
		_ = j.Close()
		return nil, err
	}
	return a, nil
}

// OpenWorld replays a into a new World using the configured retrieval
// filter and cache size.
func OpenWorld(ctx context.Context, cfg *config.Config, a archive.Archive, opts ...Option) (*World, error) {
	opts = append([]Option{WithCacheSize(cfg.World.CacheSize)}, opts...)
	w, err := Open(ctx, a, opts...)
	if err != nil {
		return nil, err
	}
	if err := w.SetRetrievalFilter(cfg.Filter()); err != nil {
		return nil, err
	}
	return w, nil
}
