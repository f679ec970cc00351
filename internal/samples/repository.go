// Package samples loads and decodes audio assets by path, caching decoded
// buffers for the lifetime of a Repository.
package samples

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cbegin/audiograph-go/internal/buffer"
)

// Option configures a Repository.
type Option func(*Repository)

// WithRegistry replaces the default decoder registry.
func WithRegistry(reg *Registry) Option {
	return func(r *Repository) {
		if reg != nil {
			r.registry = reg
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPreloadLimit bounds the number of concurrent loads in Preload.
func WithPreloadLimit(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.limit = n
		}
	}
}

// Repository is safe for concurrent use. Only successful loads are cached;
// concurrent loads of one path share a single fetch.
type Repository struct {
	fetcher  Fetcher
	registry *Registry
	logger   *slog.Logger
	limit    int

	mu    sync.RWMutex
	cache map[string]*buffer.Buffer

	group   singleflight.Group
	fetches atomic.Int64
}

func NewRepository(f Fetcher, opts ...Option) *Repository {
	r := &Repository{
		fetcher:  f,
		registry: DefaultRegistry(),
		logger:   slog.New(slog.DiscardHandler),
		limit:    8,
		cache:    make(map[string]*buffer.Buffer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns the decoded buffer for path. If ctx ends while a shared fetch
// is in flight, Load returns ctx.Err() and the fetch carries on for the other
// callers.
func (r *Repository) Load(ctx context.Context, path string) (*buffer.Buffer, error) {
	if buf, ok := r.cached(path); ok {
		return buf, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := r.group.DoChan(path, func() (any, error) {
		return r.load(context.WithoutCancel(ctx), path)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*buffer.Buffer), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Repository) cached(path string) (*buffer.Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buf, ok := r.cache[path]
	return buf, ok
}

func (r *Repository) load(ctx context.Context, path string) (*buffer.Buffer, error) {
	if buf, ok := r.cached(path); ok {
		return buf, nil
	}
	dec, err := r.registry.ForPath(path)
	if err != nil {
		return nil, &AssetDecodeError{Path: path, Err: err}
	}
	began := time.Now()
	r.fetches.Add(1)
	data, err := r.fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, &AssetFetchError{Path: path, Err: err}
	}
	buf, err := dec.Decode(data)
	if err != nil {
		return nil, &AssetDecodeError{Path: path, Err: err}
	}
	r.mu.Lock()
	r.cache[path] = buf
	r.mu.Unlock()
	r.logger.Debug("loaded sample",
		"path", path,
		"bytes", len(data),
		"channels", buf.NumChannels(),
		"frames", buf.Frames(),
		"elapsed", time.Since(began))
	return buf, nil
}

// Preload loads every path concurrently and returns the first error.
func (r *Repository) Preload(ctx context.Context, paths ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for _, p := range paths {
		g.Go(func() error {
			_, err := r.Load(ctx, p)
			return err
		})
	}
	return g.Wait()
}

// Fetches counts the fetch operations issued so far.
func (r *Repository) Fetches() int64 { return r.fetches.Load() }

// Len is the number of cached buffers.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
