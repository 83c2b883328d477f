// Package cache stores retrieval results on disk, one JSON file per (query, backend) pair.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/models"
)

const (
	entryExt     = ".json"
	lockFileName = ".lock"
)

// errCorruptEntry marks an entry file that exists but cannot be decoded.
var errCorruptEntry = errors.New("corrupt cache entry")

// Entry is a persisted cache record. It is valid only while it is younger than the TTL and
// its backend has not changed since CreatedAt.
type Entry struct {
	Key       string                 `json:"key"`
	Query     string                 `json:"query"`
	Backend   models.Backend         `json:"backend"`
	CreatedAt time.Time              `json:"created_at"`
	Items     []models.RetrievedItem `json:"items"`
}

// Stats reports cache contents and hit rate.
type Stats struct {
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Fingerprint reports when a backend's underlying data last changed.
type Fingerprint interface {
	LastModified() (time.Time, error)
}

// FingerprintFunc adapts a function to Fingerprint.
type FingerprintFunc func() (time.Time, error)

// LastModified calls f.
func (f FingerprintFunc) LastModified() (time.Time, error) { return f() }

// Cache is an exact-match result cache. Reads share, writes exclude, both within the process
// and across processes through an advisory lock file in the cache directory.
type Cache struct {
	dir          string
	ttl          time.Duration
	backends     map[models.Backend]bool
	fingerprints map[models.Backend]Fingerprint
	now          func() time.Time
	logger       *zap.Logger

	mu    sync.RWMutex
	flock *flock.Flock

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBackends restricts caching to the given backends. By default only the relational
// backend is cached.
func WithBackends(backends ...models.Backend) Option {
	return func(c *Cache) {
		c.backends = make(map[models.Backend]bool, len(backends))
		for _, b := range backends {
			c.backends[b] = true
		}
	}
}

// WithFingerprint registers the change detector for a backend.
func WithFingerprint(backend models.Backend, fp Fingerprint) Option {
	return func(c *Cache) {
		c.fingerprints[backend] = fp
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string, ttl time.Duration, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &Cache{
		dir:          dir,
		ttl:          ttl,
		backends:     map[models.Backend]bool{models.BackendRelational: true},
		fingerprints: make(map[models.Backend]Fingerprint),
		now:          time.Now,
		logger:       zap.NewNop(),
		flock:        flock.New(filepath.Join(dir, lockFileName)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key returns the cache key for a query routed to backend.
func Key(query string, backend models.Backend) string {
	sum := sha256.Sum256([]byte(query + "\x00" + string(backend)))
	return hex.EncodeToString(sum[:])
}

// Cacheable reports whether results from backend are cached.
func (c *Cache) Cacheable(backend models.Backend) bool {
	return c.backends[backend]
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+entryExt)
}

// Get returns the cached items for (query, backend). Expired, stale, and corrupt entries are
// deleted and reported as a miss. Lock and I/O failures are logged and reported as a miss
// without touching the entry.
func (c *Cache) Get(query string, backend models.Backend) ([]models.RetrievedItem, bool) {
	if !c.Cacheable(backend) {
		return nil, false
	}
	key := Key(query, backend)

	c.mu.RLock()
	entry, err := c.read(key)
	c.mu.RUnlock()

	if err != nil {
		switch {
		case errors.Is(err, errCorruptEntry):
			c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
			c.remove(key)
		case !errors.Is(err, os.ErrNotExist):
			c.logger.Warn("cache entry unreadable", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}
	if reason := c.invalid(entry); reason != "" {
		c.logger.Debug("cache entry invalid", zap.String("key", key), zap.String("reason", reason))
		c.remove(key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	c.logger.Debug("cache hit", zap.String("backend", string(backend)), zap.String("key", key))
	return entry.Items, true
}

// Set stores items for (query, backend). Empty item lists and uncached backends are ignored.
// Write failures are logged, never returned.
func (c *Cache) Set(query string, backend models.Backend, items []models.RetrievedItem) {
	if len(items) == 0 || !c.Cacheable(backend) {
		return
	}
	entry := Entry{
		Key:       Key(query, backend),
		Query:     query,
		Backend:   backend,
		CreatedAt: c.now(),
		Items:     items,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flock.Lock(); err != nil {
		c.logger.Warn("cache lock failed", zap.Error(err))
		return
	}
	defer c.flock.Unlock()

	// Write then rename so readers never observe a partial entry.
	tmp := c.path(entry.Key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", entry.Key), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, c.path(entry.Key)); err != nil {
		c.logger.Warn("cache rename failed", zap.String("key", entry.Key), zap.Error(err))
		_ = os.Remove(tmp)
	}
}

// read loads an entry. Caller holds c.mu for reading.
func (c *Cache) read(key string) (*Entry, error) {
	if err := c.flock.RLock(); err != nil {
		return nil, fmt.Errorf("lock cache: %w", err)
	}
	defer c.flock.Unlock()
	return readEntry(c.path(key))
}

func readEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptEntry, err)
	}
	if entry.CreatedAt.IsZero() || !entry.Backend.Valid() {
		return nil, fmt.Errorf("%w: missing created_at or backend", errCorruptEntry)
	}
	return &entry, nil
}

// invalid returns a non-empty reason when the entry must not be served.
func (c *Cache) invalid(e *Entry) string {
	if c.now().Sub(e.CreatedAt) >= c.ttl {
		return "expired"
	}
	fp, ok := c.fingerprints[e.Backend]
	if !ok {
		return ""
	}
	modified, err := fp.LastModified()
	if err != nil {
		c.logger.Debug("fingerprint unavailable", zap.String("backend", string(e.Backend)), zap.Error(err))
		return ""
	}
	if modified.After(e.CreatedAt) {
		return "stale"
	}
	return ""
}

func (c *Cache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flock.Lock(); err != nil {
		c.logger.Warn("cache lock failed", zap.Error(err))
		return
	}
	defer c.flock.Unlock()
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) entryFiles() ([]string, error) {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, de := range des {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entryExt) {
			continue
		}
		files = append(files, filepath.Join(c.dir, de.Name()))
	}
	return files, nil
}

// Stats returns the number and total size of entries on disk plus hit/miss counters.
func (c *Cache) Stats() (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	files, err := c.entryFiles()
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	st := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		st.Entries++
		st.Bytes += info.Size()
	}
	return st, nil
}

// Clear removes cache entries and returns how many were deleted. When expiredOnly is true,
// only entries that are expired, stale, or corrupt are removed.
func (c *Cache) Clear(expiredOnly bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flock.Lock(); err != nil {
		return 0, fmt.Errorf("lock cache: %w", err)
	}
	defer c.flock.Unlock()

	files, err := c.entryFiles()
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	removed := 0
	for _, f := range files {
		if expiredOnly {
			entry, err := readEntry(f)
			if err == nil && c.invalid(entry) == "" {
				continue
			}
		}
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("cache delete failed", zap.String("path", f), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
