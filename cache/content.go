package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/gofhir/igpack/pkg/logger"
)

// maxNameStem bounds the readable part of generated file names.
const maxNameStem = 150

// DecodeError reports a cache entry that exists but cannot be decoded.
// It is never treated as a miss.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("corrupt cache entry %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Content persists resources of one kind under a root location. Entries are
// addressed by (resourceType, url, version). There is no locking around
// writes: concurrent writers of one key race. Put a Guard in front when
// computing entries concurrently.
type Content[T any] struct {
	fs         afs.Service
	root       string
	kind       Kind[T]
	codec      Codec
	cacheDraft bool
	memory     *Memory[Key, T]

	hits    atomic.Uint64
	misses  atomic.Uint64
	writes  atomic.Uint64
	skipped atomic.Uint64
}

// ContentOption configures a Content cache.
type ContentOption func(*contentOptions)

type contentOptions struct {
	fs             afs.Service
	codec          Codec
	cacheDraft     bool
	memoryCapacity int
}

// WithCodec sets the compression codec. The default is gzip.
func WithCodec(codec Codec) ContentOption {
	return func(o *contentOptions) {
		o.codec = codec
	}
}

// WithCacheDraft controls whether draft resources are persisted. Default true.
func WithCacheDraft(enable bool) ContentOption {
	return func(o *contentOptions) {
		o.cacheDraft = enable
	}
}

// WithFileSystem sets the storage service. The default is afs.New().
func WithFileSystem(fs afs.Service) ContentOption {
	return func(o *contentOptions) {
		o.fs = fs
	}
}

// WithMemory fronts the cache with an in-memory LRU of the given capacity.
func WithMemory(capacity int) ContentOption {
	return func(o *contentOptions) {
		o.memoryCapacity = capacity
	}
}

// NewContent creates a cache rooted at root, a local path or an afs URL.
func NewContent[T any](root string, kind Kind[T], opts ...ContentOption) (*Content[T], error) {
	if root == "" {
		return nil, fmt.Errorf("cache root for %s must not be empty", kind.ResourceType)
	}
	if kind.ResourceType == "" || kind.URL == nil || kind.Version == nil || kind.Marshal == nil || kind.Unmarshal == nil {
		return nil, fmt.Errorf("incomplete cache kind %q", kind.ResourceType)
	}

	o := &contentOptions{cacheDraft: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = afs.New()
	}
	if o.codec == nil {
		o.codec = Gzip(kind.Ext + ".gz")
	}

	c := &Content[T]{
		fs:         o.fs,
		root:       root,
		kind:       kind,
		codec:      o.codec,
		cacheDraft: o.cacheDraft,
	}
	if o.memoryCapacity > 0 {
		c.memory = NewMemory[Key, T](o.memoryCapacity)
	}
	return c, nil
}

// Kind returns the resource kind handled by this cache.
func (c *Content[T]) Kind() Kind[T] {
	return c.kind
}

// Key builds a key for url and version.
func (c *Content[T]) Key(resourceURL, version string) Key {
	return Key{ResourceType: c.kind.ResourceType, URL: resourceURL, Version: version}
}

// Path returns the storage location of key.
func (c *Content[T]) Path(key Key) string {
	return url.Join(c.root, key.ResourceType+"/"+fileName(key)+c.codec.Suffix())
}

// fileName is a readable stem of the key followed by a digest of the exact
// url and version, so distinct keys never share a file.
func fileName(key Key) string {
	stem := sanitize(key.URL) + "@" + sanitize(key.Version)
	if len(stem) > maxNameStem {
		stem = stem[:maxNameStem]
	}
	sum := sha256.Sum256([]byte(key.URL + "|" + key.Version))
	return stem + "-" + hex.EncodeToString(sum[:6])
}

func sanitize(s string) string {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// Read returns the cached entry for url and version. A missing entry yields
// false; an undecodable entry yields a *DecodeError.
func (c *Content[T]) Read(ctx context.Context, resourceURL, version string) (T, bool, error) {
	var zero T
	key := c.Key(resourceURL, version)
	if err := key.Validate(); err != nil {
		return zero, false, err
	}

	if c.memory != nil {
		if v, ok := c.memory.Get(key); ok {
			c.hits.Add(1)
			return v, true, nil
		}
	}

	path := c.Path(key)
	exists, err := c.fs.Exists(ctx, path)
	if err != nil {
		return zero, false, errors.Wrapf(err, "failed to check cache entry %v", path)
	}
	if !exists {
		c.misses.Add(1)
		logger.Debug("Cache miss %s", key)
		return zero, false, nil
	}

	data, err := c.fs.DownloadWithURL(ctx, path)
	if err != nil {
		return zero, false, errors.Wrapf(err, "failed to read cache entry %v", path)
	}

	v, err := c.decode(key, data)
	if err != nil {
		return zero, false, &DecodeError{Path: path, Err: err}
	}

	c.hits.Add(1)
	logger.Debug("Cache hit %s", key)
	if c.memory != nil {
		c.memory.Set(key, v)
	}
	return v, true, nil
}

// Write persists resource and returns the form that was cached, which is what
// later reads will yield. Draft resources are returned unchanged without
// being written when draft caching is disabled.
func (c *Content[T]) Write(ctx context.Context, resource T) (T, error) {
	key := c.kind.KeyOf(resource)
	if c.kind.IsDraft != nil && !c.cacheDraft && c.kind.IsDraft(resource) {
		c.skipped.Add(1)
		logger.Info("Not writing %s with status draft to cache", key)
		return resource, nil
	}

	var zero T
	if err := key.Validate(); err != nil {
		return zero, err
	}

	data, err := c.kind.Marshal(resource)
	if err != nil {
		return zero, errors.Wrapf(err, "failed to encode %v", key)
	}

	var buf bytes.Buffer
	w, err := c.codec.NewWriter(&buf)
	if err != nil {
		return zero, errors.Wrapf(err, "failed to compress %v", key)
	}
	if _, err := w.Write(data); err != nil {
		return zero, errors.Wrapf(err, "failed to compress %v", key)
	}
	if err := w.Close(); err != nil {
		return zero, errors.Wrapf(err, "failed to compress %v", key)
	}

	path := c.Path(key)
	if err := c.fs.Upload(ctx, path, file.DefaultFileOsMode, &buf); err != nil {
		return zero, errors.Wrapf(err, "failed to write cache entry %v", path)
	}
	c.writes.Add(1)
	logger.Debug("Wrote %s to cache %s", key, path)

	cached, err := c.kind.Unmarshal(key, data)
	if err != nil {
		return zero, errors.Wrapf(err, "failed to decode written %v", key)
	}
	if c.memory != nil {
		c.memory.Set(key, cached)
	}
	return cached, nil
}

// Delete removes the entry for url and version if present.
func (c *Content[T]) Delete(ctx context.Context, resourceURL, version string) error {
	key := c.Key(resourceURL, version)
	if c.memory != nil {
		c.memory.Delete(key)
	}
	path := c.Path(key)
	exists, err := c.fs.Exists(ctx, path)
	if err != nil || !exists {
		return err
	}
	return c.fs.Delete(ctx, path)
}

func (c *Content[T]) decode(key Key, data []byte) (T, error) {
	var zero T
	r, err := c.codec.NewReader(bytes.NewReader(data))
	if err != nil {
		return zero, err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return zero, err
	}
	return c.kind.Unmarshal(key, raw)
}

// ContentStats holds cache counters.
type ContentStats struct {
	Hits          uint64
	Misses        uint64
	Writes        uint64
	SkippedDrafts uint64
}

// Stats returns the cache counters.
func (c *Content[T]) Stats() ContentStats {
	return ContentStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Writes:        c.writes.Load(),
		SkippedDrafts: c.skipped.Load(),
	}
}
