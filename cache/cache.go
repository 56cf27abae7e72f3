// Package cache provides a TTL cache of JSON values over badger.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json"
)

// Cache is a key-value cache with per-entry expiry.
// A nil *Cache is a cache that never hits.
type Cache struct {
	db *badger.DB
}

// Open opens a cache in the given directory.
// An empty dir opens an in-memory cache.
func Open(dir string, lg *slog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(Logger{lg})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("couldn't open cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// New wraps an open badger DB.
func New(db *badger.DB) *Cache {
	return &Cache{db: db}
}

// Close closes the underlying DB.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Get loads the value at key into v.
// The result is false with a nil error if the key is absent or expired.
func Get[T any](c *Cache, key string, v *T) (bool, error) {
	if c == nil {
		return false, nil
	}
	var b []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		b, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("couldn't read cache entry %q: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		// A stale format is as good as a miss.
		return false, nil
	}
	return true, nil
}

// Set stores v at key for the given duration.
func Set[T any](c *Cache, key string, v T, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("couldn't encode cache entry %q: %w", key, err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), b).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("couldn't write cache entry %q: %w", key, err)
	}
	return nil
}

// RunGC runs value log garbage collection on an interval until the context
// is canceled. It does nothing for in-memory caches.
func (c *Cache) RunGC(ctx context.Context, interval time.Duration) error {
	if c == nil || c.db.Opts().InMemory {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		// Collect until there is nothing left to rewrite.
		for c.db.RunValueLogGC(0.5) == nil {
		}
	}
}

// Logger adapts an slog.Logger to badger's logger interface.
type Logger struct {
	L *slog.Logger
}

func (l Logger) Errorf(f string, args ...any) {
	l.L.Error(fmt.Sprintf(f, args...), slog.String("from", "badger"))
}

func (l Logger) Warningf(f string, args ...any) {
	l.L.Warn(fmt.Sprintf(f, args...), slog.String("from", "badger"))
}

func (l Logger) Infof(f string, args ...any) {
	l.L.Debug(fmt.Sprintf(f, args...), slog.String("from", "badger"))
}

func (l Logger) Debugf(f string, args ...any) {
	l.L.Debug(fmt.Sprintf(f, args...), slog.String("from", "badger"))
}
