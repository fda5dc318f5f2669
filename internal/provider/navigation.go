package provider

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/symbol"
)

// Definition resolves the symbol under the cursor to its defining
// occurrence: for a field reference, the first occurrence of that field
// across open documents (the current document first).
func (p *Providers) Definition(doc *cache.CachedDocument, pos protocol.Position) []protocol.Location {
	line, column := fromLSP(pos)
	s := doc.Parsed.SymbolAt(line, column)
	if s == nil {
		return nil
	}

	switch s.Kind {
	case symbol.KindFieldReference:
		entries := p.index.References(s.Name)
		if len(entries) == 0 {
			return nil
		}
		// prefer the first occurrence in the current document
		for _, entry := range entries {
			if entry.URI == doc.URI {
				return []protocol.Location{{URI: entry.URI, Range: toLSPRange(entry.Range)}}
			}
		}
		return []protocol.Location{{URI: entries[0].URI, Range: toLSPRange(entries[0].Range)}}
	default:
		return nil
	}
}

// References returns every occurrence of the field or function under the
// cursor across open documents.
func (p *Providers) References(doc *cache.CachedDocument, pos protocol.Position) []protocol.Location {
	line, column := fromLSP(pos)
	s := doc.Parsed.SymbolAt(line, column)
	if s == nil {
		return nil
	}

	var entries []IndexEntry
	switch s.Kind {
	case symbol.KindFieldReference:
		entries = p.index.References(s.Name)
	case symbol.KindFunctionCall:
		entries = p.index.CallSites(s.Name)
	default:
		return nil
	}

	locations := make([]protocol.Location, 0, len(entries))
	for _, entry := range entries {
		locations = append(locations, protocol.Location{
			URI:   entry.URI,
			Range: toLSPRange(entry.Range),
		})
	}
	return locations
}
