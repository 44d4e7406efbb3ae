// Package cache memoizes blame lookups for long-running hosts. Entries are
// keyed on the file's content and the repository HEAD, so editing the file or
// committing makes old entries unreachable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/kokistudios/blame/internal/blame"
)

// DefaultSize is the number of entries kept when Options.Size is zero.
const DefaultSize = 128

// Source is what the cache wraps. *blame.Resolver satisfies it.
type Source interface {
	blame.LineResolver
	HeadRevision(ctx context.Context, path string) (string, error)
}

// Options configures a Resolver.
type Options struct {
	Size   int
	Logger *log.Logger
}

// Stats are cumulative counters since the cache was created.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Resolver is a LineResolver that answers repeated queries from memory.
type Resolver struct {
	src    Source
	lru    *lru.Cache
	logger *log.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

var _ Source = (*Resolver)(nil)

// New wraps src in an LRU cache.
func New(src Source, opts Options) (*Resolver, error) {
	size := opts.Size
	if size == 0 {
		size = DefaultSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating blame cache of size %d: %w", size, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resolver{src: src, lru: c, logger: logger}, nil
}

// ResolveLine implements blame.LineResolver.
func (r *Resolver) ResolveLine(ctx context.Context, path string, line int, skip blame.SkipList, mode blame.ModeMetadata) (blame.Record, error) {
	fp, ok := r.fingerprint(ctx, path)
	if !ok {
		return r.src.ResolveLine(ctx, path, line, skip, mode)
	}
	key := fp.key("line", strconv.Itoa(line), mode.Key, strings.Join(skip, ","))
	if v, ok := r.lru.Get(key); ok {
		r.hit(path)
		return v.(blame.Record), nil
	}
	r.misses.Add(1)

	rec, err := r.src.ResolveLine(ctx, path, line, skip, mode)
	if err != nil {
		return blame.Record{}, err
	}
	r.lru.Add(key, rec)
	return rec, nil
}

// ResolveFile implements blame.LineResolver. Callers get their own copy of
// the cached slice.
func (r *Resolver) ResolveFile(ctx context.Context, path string, mode blame.ModeMetadata) ([]blame.Record, error) {
	fp, ok := r.fingerprint(ctx, path)
	if !ok {
		return r.src.ResolveFile(ctx, path, mode)
	}
	key := fp.key("file", mode.Key)
	if v, ok := r.lru.Get(key); ok {
		r.hit(path)
		return append([]blame.Record(nil), v.([]blame.Record)...), nil
	}
	r.misses.Add(1)

	recs, err := r.src.ResolveFile(ctx, path, mode)
	if err != nil {
		return nil, err
	}
	r.lru.Add(key, append([]blame.Record(nil), recs...))
	return recs, nil
}

// HeadRevision is passed through uncached; it is part of every key.
func (r *Resolver) HeadRevision(ctx context.Context, path string) (string, error) {
	return r.src.HeadRevision(ctx, path)
}

// Purge drops every entry.
func (r *Resolver) Purge() {
	r.lru.Purge()
}

// Stats returns the hit and miss counters and the current entry count.
func (r *Resolver) Stats() Stats {
	return Stats{
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Entries: r.lru.Len(),
	}
}

func (r *Resolver) hit(path string) {
	r.hits.Add(1)
	r.logger.Debug("blame cache hit", "path", path)
}

type fingerprint struct {
	path    string
	content string
	head    string
}

func (f fingerprint) key(parts ...string) string {
	return strings.Join(append([]string{f.path, f.content, f.head}, parts...), "\x00")
}

// fingerprint identifies the state a query would run against. When it cannot
// be computed the query bypasses the cache.
func (r *Resolver) fingerprint(ctx context.Context, path string) (fingerprint, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fingerprint{}, false
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		r.logger.Debug("blame cache bypassed", "path", abs, "err", err)
		return fingerprint{}, false
	}
	head, err := r.src.HeadRevision(ctx, abs)
	if err != nil {
		r.logger.Debug("blame cache bypassed", "path", abs, "err", err)
		return fingerprint{}, false
	}
	sum := sha256.Sum256(data)
	return fingerprint{path: abs, content: hex.EncodeToString(sum[:]), head: head}, true
}
