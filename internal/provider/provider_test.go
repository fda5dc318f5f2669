package provider

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/catalog"
	"github.com/tabcalc/tablang/internal/config"
	"github.com/tabcalc/tablang/internal/parser"
	"github.com/tabcalc/tablang/internal/symbol"
)

// testProviders builds the provider set over the embedded catalogue.
func testProviders() *Providers {
	cfg := config.Default()
	return New(catalog.LoadDefault(), &cfg, cache.New(10))
}

// testDocument parses text into a cached document ready for providers.
func testDocument(uri, text string) *cache.CachedDocument {
	symbols := parser.Parse(text)
	return &cache.CachedDocument{
		URI:     uri,
		Text:    text,
		Version: 1,
		Parsed:  symbol.NewParsedDocument(symbols, nil),
	}
}

// at builds a 0-based LSP position from 1-based line/column, matching how
// the tests reason about source text.
func at(line, column int) protocol.Position {
	return protocol.Position{Line: protocol.UInteger(line - 1), Character: protocol.UInteger(column - 1)}
}
