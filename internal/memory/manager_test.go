package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/config"
	"github.com/tabcalc/tablang/internal/parser"
	"github.com/tabcalc/tablang/internal/symbol"
)

func testManager(capacity int) (*Manager, *cache.DocumentCache) {
	documents := cache.New(capacity)
	cfg := config.Default().Memory
	cfg.CheckInterval = time.Hour // the ticker stays quiet during tests
	return New(documents, cfg), documents
}

func TestActiveDocumentsScoreZero(t *testing.T) {
	m, _ := testManager(10)

	doc := &cache.CachedDocument{URI: "file:///a.twbl", Active: true, LastAccess: time.Now().Add(-time.Hour)}
	assert.Zero(t, m.Priority(doc))

	doc.Active = false
	assert.Greater(t, m.Priority(doc), 0.0)
}

func TestOlderAndLargerScoreHigher(t *testing.T) {
	m, _ := testManager(10)

	fresh := &cache.CachedDocument{LastAccess: time.Now(), AccessCount: 10, ByteSize: 1 << 10}
	stale := &cache.CachedDocument{LastAccess: time.Now().Add(-30 * time.Minute), AccessCount: 1, ByteSize: 20 << 20}

	assert.Greater(t, m.Priority(stale), m.Priority(fresh))
}

func TestEstimateSize(t *testing.T) {
	text := "IF [Sales] > 100 THEN 1 END"
	doc := &cache.CachedDocument{
		Text:   text,
		Parsed: symbol.NewParsedDocument(parser.Parse(text), nil),
	}

	size := EstimateSize(doc)
	assert.GreaterOrEqual(t, size, len(text)*2, "estimate must cover the text at two bytes per unit")
	assert.Greater(t, size, len(text)*2, "estimate must include symbol overhead")
}

func TestObserveEvictsInactiveOverCap(t *testing.T) {
	documents := cache.New(10)
	cfg := config.Default().Memory
	cfg.CheckInterval = time.Hour
	cfg.PerDocumentCapMB = 1
	m := New(documents, cfg)

	big := &cache.CachedDocument{
		URI:  "file:///big.twbl",
		Text: string(make([]byte, 2<<20)), // 2 MB of text → 4 MB estimate
	}
	big.Parsed = symbol.NewParsedDocument(nil, nil)
	documents.Put(big)

	m.Observe(big)

	_, ok := documents.Get("file:///big.twbl")
	assert.False(t, ok, "inactive document over the per-document cap must be evicted")
}

func TestObservePreservesActiveOverCap(t *testing.T) {
	documents := cache.New(10)
	cfg := config.Default().Memory
	cfg.CheckInterval = time.Hour
	cfg.PerDocumentCapMB = 1
	m := New(documents, cfg)

	big := &cache.CachedDocument{
		URI:    "file:///big.twbl",
		Text:   string(make([]byte, 2<<20)),
		Active: true,
	}
	big.Parsed = symbol.NewParsedDocument(nil, nil)
	documents.Put(big)

	m.Observe(big)

	doc, ok := documents.Get("file:///big.twbl")
	require.True(t, ok, "active document must survive the per-document cap")
	assert.True(t, doc.OverCap, "active offender should be flagged")
}

func TestRunCleanupShares(t *testing.T) {
	m, documents := testManager(100)

	for i := 0; i < 10; i++ {
		doc := &cache.CachedDocument{
			URI:         fmt.Sprintf("file:///%d.twbl", i),
			AccessCount: 1,
		}
		doc.Parsed = symbol.NewParsedDocument(nil, nil)
		documents.Put(doc)
		doc.LastAccess = time.Now().Add(-time.Duration(i+1) * time.Minute)
	}

	removed := m.RunCleanup(false)
	assert.Equal(t, 3, removed, "normal pass removes 30 percent of candidates")
	assert.Equal(t, 7, documents.Len())

	removed = m.RunCleanup(true)
	assert.Equal(t, 3, removed, "aggressive pass removes 50 percent of the remaining 7")

	normal, aggressive := m.Stats()
	assert.Equal(t, int64(1), normal)
	assert.Equal(t, int64(1), aggressive)
}

func TestRunCleanupSparesActive(t *testing.T) {
	m, documents := testManager(100)

	active := &cache.CachedDocument{URI: "file:///active.twbl", Active: true}
	active.Parsed = symbol.NewParsedDocument(nil, nil)
	documents.Put(active)
	active.LastAccess = time.Now().Add(-time.Hour)

	removed := m.RunCleanup(true)
	assert.Zero(t, removed)

	_, ok := documents.Get("file:///active.twbl")
	assert.True(t, ok)
}

func TestStartStop(t *testing.T) {
	m, _ := testManager(10)
	m.Start()
	m.Stop()
}
