package provider

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/format"
	"github.com/tabcalc/tablang/internal/parser"
)

// Formatting formats the whole document and returns a single edit
// replacing its full range. Returns nil when the text is already
// formatted.
func (p *Providers) Formatting(doc *cache.CachedDocument, opts protocol.FormattingOptions) []protocol.TextEdit {
	formatOpts := format.DefaultOptions()
	if tabSize, ok := opts[protocol.FormattingOptionTabSize].(float64); ok && tabSize > 0 {
		formatOpts.IndentSize = int(tabSize)
	}
	if insertSpaces, ok := opts[protocol.FormattingOptionInsertSpaces].(bool); ok {
		formatOpts.UseTabs = !insertSpaces
	}

	formatted := format.Format(doc.Text, formatOpts)
	if formatted == doc.Text {
		return nil
	}

	lines := parser.SplitLines(doc.Text)
	lastLine := len(lines)
	lastColumn := utf16Length(lines[lastLine-1]) + 1

	return []protocol.TextEdit{{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 0},
			End:   protocol.Position{Line: protocol.UInteger(lastLine - 1), Character: protocol.UInteger(lastColumn - 1)},
		},
		NewText: formatted,
	}}
}
