package provider

import (
	"sort"
	"strings"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/symbol"
	"github.com/tabcalc/tablang/pkg/token"
)

// IndexEntry is one occurrence of a named symbol in some document.
type IndexEntry struct {
	URI   string
	Range token.Range
}

// SymbolIndex is the shared cross-document name index: field references
// by name as written and function calls by uppercased name. It backs
// workspace symbols,
// definition and references. This is the full extent of cross-document
// semantics; there is no deeper linking.
type SymbolIndex struct {
	mu     sync.RWMutex
	fields map[string]map[string][]token.Range // field name → uri → occurrences
	calls  map[string]map[string][]token.Range // function name → uri → occurrences
}

// NewSymbolIndex creates an empty index.
func NewSymbolIndex() *SymbolIndex {
	return &SymbolIndex{
		fields: make(map[string]map[string][]token.Range),
		calls:  make(map[string]map[string][]token.Range),
	}
}

// Update replaces the index entries contributed by uri.
func (x *SymbolIndex) Update(uri string, symbols []*symbol.Symbol) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(uri)
	symbol.WalkAll(symbols, func(s *symbol.Symbol) bool {
		switch s.Kind {
		case symbol.KindFieldReference:
			addEntry(x.fields, s.Name, uri, s.Range)
		case symbol.KindFunctionCall:
			addEntry(x.calls, s.Name, uri, s.Range)
		}
		return true
	})
}

// RemoveDocument drops all entries for uri, e.g. after eviction.
func (x *SymbolIndex) RemoveDocument(uri string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(uri)
}

func (x *SymbolIndex) removeLocked(uri string) {
	for name, perURI := range x.fields {
		delete(perURI, uri)
		if len(perURI) == 0 {
			delete(x.fields, name)
		}
	}
	for name, perURI := range x.calls {
		delete(perURI, uri)
		if len(perURI) == 0 {
			delete(x.calls, name)
		}
	}
}

func addEntry(index map[string]map[string][]token.Range, name, uri string, r token.Range) {
	perURI, ok := index[name]
	if !ok {
		perURI = make(map[string][]token.Range)
		index[name] = perURI
	}
	perURI[uri] = append(perURI[uri], r)
}

// References returns every indexed occurrence of the field name.
func (x *SymbolIndex) References(name string) []IndexEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return collect(x.fields[name])
}

// CallSites returns every indexed call of the function name.
func (x *SymbolIndex) CallSites(name string) []IndexEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return collect(x.calls[strings.ToUpper(name)])
}

// FieldNames returns all indexed field names, sorted.
func (x *SymbolIndex) FieldNames() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	names := make([]string, 0, len(x.fields))
	for name := range x.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func collect(perURI map[string][]token.Range) []IndexEntry {
	var entries []IndexEntry
	var uris []string
	for uri := range perURI {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	for _, uri := range uris {
		for _, r := range perURI[uri] {
			entries = append(entries, IndexEntry{URI: uri, Range: r})
		}
	}
	return entries
}

// DocumentSymbols returns the hierarchical outline of a document.
func (p *Providers) DocumentSymbols(doc *cache.CachedDocument) []protocol.DocumentSymbol {
	cacheKey := "documentSymbols"
	if cached, ok := p.derived.get(doc.URI, doc.Version, cacheKey); ok {
		if out, ok := cached.([]protocol.DocumentSymbol); ok {
			return out
		}
	}

	out := documentSymbolsFor(doc.Parsed.Symbols)
	p.derived.put(doc.URI, doc.Version, cacheKey, out)
	return out
}

func documentSymbolsFor(symbols []*symbol.Symbol) []protocol.DocumentSymbol {
	var out []protocol.DocumentSymbol
	for _, s := range symbols {
		ds, ok := documentSymbol(s)
		if !ok {
			continue
		}
		out = append(out, ds)
	}
	return out
}

func documentSymbol(s *symbol.Symbol) (protocol.DocumentSymbol, bool) {
	var kind protocol.SymbolKind
	name := s.Name

	switch s.Kind {
	case symbol.KindConditionalBlock:
		kind = protocol.SymbolKindNamespace
	case symbol.KindBranch:
		kind = protocol.SymbolKindKey
	case symbol.KindFunctionCall:
		kind = protocol.SymbolKindFunction
	case symbol.KindFieldReference:
		kind = protocol.SymbolKindField
		name = "[" + s.Name + "]"
	case symbol.KindLodExpression:
		kind = protocol.SymbolKindObject
		if name == "" {
			name = "LOD"
		}
	default:
		return protocol.DocumentSymbol{}, false
	}

	ds := protocol.DocumentSymbol{
		Name:           name,
		Kind:           kind,
		Range:          toLSPRange(s.Range),
		SelectionRange: toLSPRange(s.Range),
		Children:       documentSymbolsFor(s.Children),
	}
	return ds, true
}

// WorkspaceSymbols searches the shared name index for fields and functions
// matching the query (case-insensitive substring; empty matches all).
func (p *Providers) WorkspaceSymbols(query string) []protocol.SymbolInformation {
	query = strings.ToUpper(query)

	var out []protocol.SymbolInformation
	for _, name := range p.index.FieldNames() {
		if query != "" && !strings.Contains(strings.ToUpper(name), query) {
			continue
		}
		for _, entry := range p.index.References(name) {
			out = append(out, protocol.SymbolInformation{
				Name: "[" + name + "]",
				Kind: protocol.SymbolKindField,
				Location: protocol.Location{
					URI:   entry.URI,
					Range: toLSPRange(entry.Range),
				},
			})
		}
	}
	p.index.mu.RLock()
	var callNames []string
	for name := range p.index.calls {
		if query == "" || strings.Contains(name, query) {
			callNames = append(callNames, name)
		}
	}
	p.index.mu.RUnlock()
	sort.Strings(callNames)
	for _, name := range callNames {
		for _, entry := range p.index.CallSites(name) {
			loc := protocol.Location{URI: entry.URI, Range: toLSPRange(entry.Range)}
			out = append(out, protocol.SymbolInformation{Name: name, Kind: protocol.SymbolKindFunction, Location: loc})
		}
	}
	return out
}
