// Package cache holds per-document analysis state. The DocumentCache is
// the single source of truth for analysis results: feature providers read
// from it but never mutate it; mutation is reserved to the incremental
// driver and the memory manager.
package cache

import (
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/tabcalc/tablang/internal/symbol"
)

// CachedDocument is the cached state for one document URI.
type CachedDocument struct {
	URI          string
	Text         string
	Version      int32
	Parsed       *symbol.ParsedDocument
	LastAccess   time.Time
	AccessCount  int64
	Active       bool // editor currently holds the document open
	ByteSize     int  // estimate maintained by the memory manager
	ChangedLines map[int]struct{}
	OverCap      bool // active document flagged for exceeding the per-document cap
}

// PriorityFunc scores a document for eviction; higher scores are evicted
// first. Active documents must score zero.
type PriorityFunc func(*CachedDocument) float64

// EvictHook is called after a document leaves the cache, with the reason.
type EvictHook func(uri string, reason string)

// DocumentCache maps document URIs to cached analysis state with bounded
// capacity. It permits concurrent readers between mutations; all mutation
// happens under an exclusive lock.
type DocumentCache struct {
	mu        sync.RWMutex
	docs      map[string]*CachedDocument
	capacity  int
	priority  PriorityFunc
	onEvict   EvictHook
	evictions int64
	log       commonlog.Logger
}

// New creates a DocumentCache bounded to capacity entries.
func New(capacity int) *DocumentCache {
	if capacity <= 0 {
		capacity = 50
	}
	return &DocumentCache{
		docs:     make(map[string]*CachedDocument),
		capacity: capacity,
		priority: defaultPriority,
		log:      commonlog.GetLogger("tablang.cache"),
	}
}

// defaultPriority orders eviction by recency until the memory manager
// installs its weighted scorer.
func defaultPriority(d *CachedDocument) float64 {
	if d.Active {
		return 0
	}
	return time.Since(d.LastAccess).Seconds()
}

// SetPriorityFunc installs the eviction scorer. The memory manager calls
// this once at startup.
func (c *DocumentCache) SetPriorityFunc(fn PriorityFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn != nil {
		c.priority = fn
	}
}

// SetEvictHook installs the eviction callback used to invalidate provider
// caches keyed on the departing document.
func (c *DocumentCache) SetEvictHook(hook EvictHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = hook
}

// Get returns the cached document for uri.
func (c *DocumentCache) Get(uri string) (*CachedDocument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[uri]
	return doc, ok
}

// Put inserts or replaces the cached document, evicting the worst inactive
// entry when capacity is exceeded. Active documents are never evicted; the
// cache is allowed to run over capacity when everything in it is active.
func (c *DocumentCache) Put(doc *CachedDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc.LastAccess = time.Now()
	c.docs[doc.URI] = doc

	for len(c.docs) > c.capacity {
		victim := c.worstInactiveLocked()
		if victim == nil {
			return
		}
		c.evictLocked(victim.URI, "capacity")
	}
}

// Delete removes the document for uri, firing the eviction hook.
func (c *DocumentCache) Delete(uri string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[uri]; !ok {
		return false
	}
	c.evictLocked(uri, "delete")
	return true
}

// MarkActive flags the document as open in the editor, protecting it from
// eviction.
func (c *DocumentCache) MarkActive(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc, ok := c.docs[uri]; ok {
		doc.Active = true
	}
}

// MarkInactive clears the active flag, making the document an eviction
// candidate again.
func (c *DocumentCache) MarkInactive(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc, ok := c.docs[uri]; ok {
		doc.Active = false
	}
}

// Touch updates the access time and count for uri.
func (c *DocumentCache) Touch(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc, ok := c.docs[uri]; ok {
		doc.LastAccess = time.Now()
		doc.AccessCount++
	}
}

// Iterate visits every cached document until fn returns false. The cache
// lock is held for the duration; fn must not call back into the cache.
func (c *DocumentCache) Iterate(fn func(*CachedDocument) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, doc := range c.docs {
		if !fn(doc) {
			return
		}
	}
}

// Len returns the number of cached documents.
func (c *DocumentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Evictions returns the number of evictions performed so far.
func (c *DocumentCache) Evictions() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.evictions
}

// EvictBatch removes the given URIs, skipping any that turned active since
// they were selected. Returns how many were removed. The memory manager
// computes its candidate list off the lock and applies it here.
func (c *DocumentCache) EvictBatch(uris []string, reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, uri := range uris {
		doc, ok := c.docs[uri]
		if !ok || doc.Active {
			continue
		}
		c.evictLocked(uri, reason)
		removed++
	}
	return removed
}

func (c *DocumentCache) worstInactiveLocked() *CachedDocument {
	var worst *CachedDocument
	var worstScore float64
	for _, doc := range c.docs {
		if doc.Active {
			continue
		}
		score := c.priority(doc)
		if score > 0 && (worst == nil || score > worstScore) {
			worst = doc
			worstScore = score
		}
	}
	return worst
}

func (c *DocumentCache) evictLocked(uri, reason string) {
	delete(c.docs, uri)
	c.evictions++
	c.log.Debugf("evicted %s (%s)", uri, reason)
	if c.onEvict != nil {
		c.onEvict(uri, reason)
	}
}
