// Package memory implements the memory manager: it estimates per-document
// cache footprints, watches process memory, and evicts cache entries when
// thresholds are crossed. Active documents are never evicted.
package memory

import (
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/config"
)

// Eviction priority weights. Older, rarely touched, larger documents are
// evicted first.
const (
	weightTime   = 1.0
	weightAccess = 2.0
	weightSize   = 0.5
)

// Rough per-entry overheads for the size estimate.
const (
	bytesPerSymbol    = 128
	bytesPerIndexLine = 64
)

// Manager watches the document cache and process memory, evicting inactive
// documents when the configured thresholds are exceeded.
type Manager struct {
	cache *cache.DocumentCache
	cfg   config.Memory
	log   commonlog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	normalPasses     atomic.Int64
	aggressivePasses atomic.Int64
}

// New creates a Manager and installs its eviction scorer on the cache.
func New(documents *cache.DocumentCache, cfg config.Memory) *Manager {
	m := &Manager{
		cache: documents,
		cfg:   cfg,
		log:   commonlog.GetLogger("tablang.memory"),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	documents.SetPriorityFunc(m.Priority)
	return m
}

// Priority computes the removal-priority score for a document. Active
// documents are pinned at zero and never evicted.
func (m *Manager) Priority(d *cache.CachedDocument) float64 {
	if d.Active {
		return 0
	}
	ageMinutes := time.Since(d.LastAccess).Minutes()
	accesses := d.AccessCount
	if accesses < 1 {
		accesses = 1
	}
	sizeMB := float64(d.ByteSize) / (1 << 20)
	return weightTime*ageMinutes + weightAccess/float64(accesses) + weightSize*sizeMB
}

// EstimateSize returns the byte-size estimate for a document: two bytes
// per text code unit plus flat costs per symbol and per indexed line.
func EstimateSize(d *cache.CachedDocument) int {
	size := len(d.Text) * 2
	if d.Parsed != nil {
		size += d.Parsed.SymbolCount() * bytesPerSymbol
		size += d.Parsed.LineIndexSize() * bytesPerIndexLine
	}
	return size
}

// Observe refreshes a document's size estimate after a parse and applies
// the per-document cap: inactive offenders are evicted immediately, active
// offenders are flagged and reported but preserved so the editor never
// loses analysis for a file the user is looking at.
func (m *Manager) Observe(d *cache.CachedDocument) {
	d.ByteSize = EstimateSize(d)
	capBytes := m.cfg.PerDocumentCapMB << 20
	if capBytes <= 0 || d.ByteSize <= capBytes {
		d.OverCap = false
		return
	}
	if d.Active {
		if !d.OverCap {
			d.OverCap = true
			m.log.Warningf("document %s exceeds the per-document cap (%d MB) but is active; preserved",
				d.URI, m.cfg.PerDocumentCapMB)
		}
		return
	}
	m.log.Infof("evicting %s: %d bytes over the per-document cap", d.URI, d.ByteSize)
	m.cache.EvictBatch([]string{d.URI}, "per-document-cap")
}

// Start launches the periodic check loop.
func (m *Manager) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Check()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop terminates the periodic loop and waits for it to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// UsedMemoryMB returns the current process heap usage plus the cache's own
// byte estimate, in megabytes.
func (m *Manager) UsedMemoryMB() int {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	cacheBytes := 0
	m.cache.Iterate(func(d *cache.CachedDocument) bool {
		cacheBytes += d.ByteSize
		return true
	})
	return int((stats.HeapAlloc + uint64(cacheBytes)) >> 20)
}

// Check is the on-demand path: it compares usage against the thresholds
// and runs the appropriate cleanup pass. Candidate selection happens off
// the cache's write lock so the request path is never blocked for more
// than the eviction application itself.
func (m *Manager) Check() {
	used := m.UsedMemoryMB()
	switch {
	case used >= m.cfg.AggressiveThresholdMB:
		m.log.Infof("memory %d MB over aggressive threshold; running aggressive cleanup", used)
		m.RunCleanup(true)
	case used >= m.cfg.CleanupThresholdMB:
		m.log.Debugf("memory %d MB over cleanup threshold; running cleanup", used)
		m.RunCleanup(false)
	}
}

// RunCleanup evicts the top share of eviction candidates: 30% of non-zero
// priority entries in a normal pass, 50% in an aggressive pass. Aggressive
// passes additionally ask the runtime to return unused memory to the OS.
func (m *Manager) RunCleanup(aggressive bool) int {
	type candidate struct {
		uri   string
		score float64
	}
	var candidates []candidate
	m.cache.Iterate(func(d *cache.CachedDocument) bool {
		if score := m.Priority(d); score > 0 {
			candidates = append(candidates, candidate{uri: d.URI, score: score})
		}
		return true
	})
	if len(candidates) == 0 {
		return 0
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	share := 0.3
	if aggressive {
		share = 0.5
	}
	count := int(float64(len(candidates)) * share)
	if count < 1 {
		count = 1
	}

	uris := make([]string, 0, count)
	for _, c := range candidates[:count] {
		uris = append(uris, c.uri)
	}

	reason := "cleanup"
	if aggressive {
		reason = "aggressive-cleanup"
	}
	removed := m.cache.EvictBatch(uris, reason)

	if aggressive {
		m.aggressivePasses.Add(1)
		debug.FreeOSMemory()
	} else {
		m.normalPasses.Add(1)
	}
	m.log.Infof("cleanup pass (%s) removed %d of %d candidates", reason, removed, len(candidates))
	return removed
}

// Stats reports how many cleanup passes have run.
func (m *Manager) Stats() (normal, aggressive int64) {
	return m.normalPasses.Load(), m.aggressivePasses.Load()
}
