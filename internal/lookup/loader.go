package lookup

import (
	"context"
	"log/slog"
	"time"
)

const bumpTimeout = time.Second

// Store reads option lists from the system of record.
type Store interface {
	Options(ctx context.Context, source Source) ([]Option, error)
}

// Loader serves option lists, preferring Redis and falling back to the store
// whenever the cache misbehaves.
type Loader struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
}

// NewLoader constructs a Loader. cache may be nil.
func NewLoader(store Store, cache *Cache, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, cache: cache, logger: logger}
}

// Options returns the option list for the named source.
func (l *Loader) Options(ctx context.Context, name string) ([]Option, error) {
	source, err := ParseSource(name)
	if err != nil {
		return nil, err
	}
	if !l.cache.enabled() {
		return l.store.Options(ctx, source)
	}
	key, err := l.cache.Key(ctx, source)
	if err != nil {
		l.logger.Warn("lookup cache key", slog.String("source", string(source)), slog.Any("error", err))
		return l.store.Options(ctx, source)
	}
	var cached []Option
	hit, err := l.cache.Get(ctx, key, &cached)
	if err != nil {
		l.logger.Warn("lookup cache read", slog.String("source", string(source)), slog.Any("error", err))
	}
	if hit {
		return cached, nil
	}
	options, err := l.store.Options(ctx, source)
	if err != nil {
		return nil, err
	}
	if err := l.cache.Set(ctx, key, options); err != nil {
		l.logger.Warn("lookup cache write", slog.String("source", string(source)), slog.Any("error", err))
	}
	return options, nil
}

// Invalidate drops cached option lists. It satisfies the role invalidation
// target contract so role mutations refresh select boxes.
func (l *Loader) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), bumpTimeout)
	defer cancel()
	if err := l.cache.Bump(ctx); err != nil {
		l.logger.Warn("lookup cache bump", slog.Any("error", err))
	}
}
