// Package provider implements the feature providers: pure functions over
// (request params, cached document) answering diagnostics, hover,
// completion, signature help, semantic tokens, formatting, symbols,
// navigation and code actions. Providers read the document cache and never
// mutate it.
package provider

import (
	"fmt"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/catalog"
	"github.com/tabcalc/tablang/internal/config"
	"github.com/tabcalc/tablang/pkg/token"
)

// Providers bundles the feature providers over their shared dependencies.
type Providers struct {
	Catalog   *catalog.Catalogue
	Config    *config.Config
	Documents *cache.DocumentCache

	derived *derivedCache
	index   *SymbolIndex
}

// New creates the provider set.
func New(cat *catalog.Catalogue, cfg *config.Config, documents *cache.DocumentCache) *Providers {
	return &Providers{
		Catalog:   cat,
		Config:    cfg,
		Documents: documents,
		derived:   newDerivedCache(),
		index:     NewSymbolIndex(),
	}
}

// Index returns the shared workspace symbol-name index.
func (p *Providers) Index() *SymbolIndex {
	return p.index
}

// InvalidateDocument drops the derived results cached for a document; the
// symbol index is maintained separately through Index(). Wired to the
// incremental driver's post-commit hook and the cache's eviction hook.
func (p *Providers) InvalidateDocument(uri string) {
	p.derived.Invalidate(uri)
}

// derivedCache unifies the providers' per-document result caches behind a
// single interface: invalidation drops one per-document map instead of
// reaching into several caches.
type derivedCache struct {
	mu      sync.Mutex
	entries map[string]map[string]derivedEntry // uri → key → entry
}

type derivedEntry struct {
	version int32
	value   any
}

func newDerivedCache() *derivedCache {
	return &derivedCache{entries: make(map[string]map[string]derivedEntry)}
}

func (c *derivedCache) get(uri string, version int32, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[uri][key]
	if !ok || entry.version != version {
		return nil, false
	}
	return entry.value, true
}

func (c *derivedCache) put(uri string, version int32, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	perDoc, ok := c.entries[uri]
	if !ok {
		perDoc = make(map[string]derivedEntry)
		c.entries[uri] = perDoc
	}
	perDoc[key] = derivedEntry{version: version, value: value}
}

func (c *derivedCache) Invalidate(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, uri)
}

// positionKey renders an LSP position for coalescing and cache keys.
func positionKey(pos protocol.Position) string {
	return fmt.Sprintf("%d:%d", pos.Line, pos.Character)
}

// fromLSP converts a 0-based LSP position to the 1-based line/column used
// by token ranges.
func fromLSP(pos protocol.Position) (line, column int) {
	return int(pos.Line) + 1, int(pos.Character) + 1
}

// toLSPRange converts a token range to a 0-based LSP range.
func toLSPRange(r token.Range) protocol.Range {
	return protocol.Range{
		Start: toLSPPosition(r.Start),
		End:   toLSPPosition(r.End),
	}
}

func toLSPPosition(pos token.Position) protocol.Position {
	line := pos.Line - 1
	column := pos.Column - 1
	if line < 0 {
		line = 0
	}
	if column < 0 {
		column = 0
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(column)}
}
