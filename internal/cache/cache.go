// Package cache implements C4: a content-addressed, two-tier cache of
// branch analyses with TTL and graceful degradation when the remote tier
// is unavailable (spec §4.4).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// SchemaVersion is stamped on every entry this cache writes; a stored
// entry whose version differs is treated as a miss (§4.4).
const SchemaVersion = "1"

// RemoteStore is the opaque key/value interface a remote cache backend
// satisfies (spec §6: "any protocol"). HTTPRemoteStore (httpremote.go) is
// the plain-HTTP implementation cmd/analyzer wires in; tests use the
// in-memory MemRemoteStore (memremote.go).
type RemoteStore interface {
	Get(key string) (value []byte, found bool, err error)
	Set(key string, value []byte, ttl time.Duration) error
	Expire(keyPrefix string) error
}

// Key derives the SHA-256 hex digest cache key from §4.4's recipe.
func Key(repoURL, branchRef, modelID, promptVersion string) string {
	h := sha256.Sum256([]byte(repoURL + "|" + branchRef + "|" + modelID + "|" + promptVersion))
	return hex.EncodeToString(h[:])
}

// Cache is the two-tier store: a local LRU that every Put writes to,
// backed optionally by a RemoteStore that Get consults first. The two branches
// of a pair (§5/§4.6) run AnalyzeBranch concurrently against one shared
// Analyzer, so both ends of this cache are hit from two goroutines at
// once; mu guards remoteDown and the local tier's check-then-evict
// compound against that concurrent access.
type Cache struct {
	remote RemoteStore
	local  *lru.Cache[string, entry]
	log    *logrus.Logger

	mu         sync.RWMutex
	remoteDown bool
}

type entry struct {
	value     types.CachedAnalysis
	expiresAt time.Time
}

// New builds a Cache. remote may be nil, meaning local-only (§6:
// "CACHE_URL absent => local-only"). localSize bounds the in-process LRU.
func New(remote RemoteStore, localSize int, log *logrus.Logger) (*Cache, error) {
	if localSize <= 0 {
		localSize = 1024
	}
	local, err := lru.New[string, entry](localSize)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
	}
	return &Cache{remote: remote, local: local, log: log}, nil
}

// Get returns the cached BranchAnalysis for key, if any fresh, correctly
// versioned entry exists. A stale, version-mismatched, or absent entry is
// reported as a miss, never an error.
func (c *Cache) Get(key string) (types.BranchAnalysis, bool, *types.Warning) {
	if c.remote != nil && !c.degraded() {
		if raw, found, err := c.remote.Get(key); err != nil {
			c.markRemoteDown(err)
		} else if found {
			if ca, ok := decodeCached(raw); ok && c.fresh(ca) && time.Now().Unix() < ca.ExpiresAt {
				return ca.Value, true, nil
			}
		}
	}

	c.mu.Lock()
	e, ok := c.local.Get(key)
	if ok {
		if c.fresh(e.value) && time.Now().Before(e.expiresAt) {
			c.mu.Unlock()
			return e.value.Value, true, nil
		}
		c.local.Remove(key)
	}
	c.mu.Unlock()

	var warn *types.Warning
	if c.degraded() {
		warn = &types.Warning{
			Kind:    types.WarningCacheDegraded,
			Message: "remote cache tier unreachable; serving from local tier only",
		}
	}
	return types.BranchAnalysis{}, false, warn
}

// Put stores value under key with the given ttl. The local tier write is
// synchronous and always happens; the remote tier
// write is fire-and-forget (§4.4) — its failure only marks the tier down
// for subsequent Gets, it never fails the Put itself.
func (c *Cache) Put(key string, value types.BranchAnalysis, ttl time.Duration) {
	ca := types.CachedAnalysis{
		Key:           key,
		Value:         value,
		ExpiresAt:     time.Now().Add(ttl).Unix(),
		SchemaVersion: SchemaVersion,
	}
	c.mu.Lock()
	c.local.Add(key, entry{value: ca, expiresAt: time.Now().Add(ttl)})
	c.mu.Unlock()

	if c.remote != nil && !c.degraded() {
		raw, err := encodeCached(ca)
		if err == nil {
			if err := c.remote.Set(key, raw, ttl); err != nil {
				c.markRemoteDown(err)
			}
		}
	}
}

// Invalidate removes every local entry whose key starts with keyPrefix and
// asks the remote tier to expire everything sharing that prefix.
func (c *Cache) Invalidate(keyPrefix string) {
	c.mu.Lock()
	for _, k := range c.local.Keys() {
		if len(k) >= len(keyPrefix) && k[:len(keyPrefix)] == keyPrefix {
			c.local.Remove(k)
		}
	}
	c.mu.Unlock()

	if c.remote != nil && !c.degraded() {
		if err := c.remote.Expire(keyPrefix); err != nil {
			c.markRemoteDown(err)
		}
	}
}

func (c *Cache) fresh(ca types.CachedAnalysis) bool {
	return ca.SchemaVersion == SchemaVersion
}

// markRemoteDown logs the degradation once and disables remote reads/writes
// for the life of this Cache; it never surfaces as an error (§4.4).
func (c *Cache) markRemoteDown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteDown {
		c.log.WithError(err).Warn("remote cache tier unreachable, falling back to local tier only")
	}
	c.remoteDown = true
}

func (c *Cache) degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteDown
}

// RemoteDegraded reports whether the remote tier has been marked down this
// session, for callers assembling a ComparisonResult's warnings (§8
// Scenario 6).
func (c *Cache) RemoteDegraded() bool {
	return c.degraded()
}
