package provider

import (
	"fmt"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/catalog"
	"github.com/tabcalc/tablang/internal/symbol"
)

// keywordDocs holds the short hover texts for the block and logical
// keywords.
var keywordDocs = map[string]string{
	"IF":      "Opens a conditional block: `IF <condition> THEN <value> [ELSEIF ...] [ELSE ...] END`.",
	"CASE":    "Opens a matching block: `CASE <expression> WHEN <value> THEN <result> ... END`.",
	"AND":     "Logical conjunction. True when both operands are true.",
	"OR":      "Logical disjunction. True when either operand is true.",
	"NOT":     "Logical negation.",
	"IN":      "Membership test: `<value> IN (<candidates>)`.",
	"FIXED":   "LOD scope: computes the aggregation at exactly the listed dimensions.",
	"INCLUDE": "LOD scope: adds the listed dimensions to the view's grouping.",
	"EXCLUDE": "LOD scope: removes the listed dimensions from the view's grouping.",
}

// Hover returns hover content for the innermost symbol at the position, or
// nil when there is nothing useful to say.
func (p *Providers) Hover(doc *cache.CachedDocument, pos protocol.Position) *protocol.Hover {
	cacheKey := "hover|" + positionKey(pos)
	if cached, ok := p.derived.get(doc.URI, doc.Version, cacheKey); ok {
		hover, _ := cached.(*protocol.Hover)
		return hover
	}

	line, column := fromLSP(pos)
	s := doc.Parsed.SymbolAt(line, column)
	hover := p.hoverFor(s)

	p.derived.put(doc.URI, doc.Version, cacheKey, hover)
	return hover
}

func (p *Providers) hoverFor(s *symbol.Symbol) *protocol.Hover {
	if s == nil {
		return nil
	}

	var text string
	switch s.Kind {
	case symbol.KindFunctionCall:
		sig := p.Catalog.Lookup(s.Name)
		if sig == nil {
			return nil
		}
		text = renderSignature(sig)
	case symbol.KindFieldReference:
		text = fmt.Sprintf("**[%s]**\n\nField reference.", s.Name)
		if refs := p.index.References(s.Name); len(refs) > 1 {
			text += fmt.Sprintf(" Used in %d places across open documents.", len(refs))
		}
	case symbol.KindLodExpression:
		doc, ok := keywordDocs[s.Name]
		if !ok {
			return nil
		}
		text = fmt.Sprintf("**{ %s ... }**\n\n%s", s.Name, doc)
	case symbol.KindKeyword, symbol.KindConditionalBlock:
		doc, ok := keywordDocs[s.Name]
		if !ok {
			return nil
		}
		text = fmt.Sprintf("**%s**\n\n%s", s.Name, doc)
	default:
		return nil
	}

	rng := toLSPRange(s.Range)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: text,
		},
		Range: &rng,
	}
}

// renderSignature renders a catalogue signature as hover markdown.
func renderSignature(sig *catalog.FunctionSignature) string {
	var sb strings.Builder
	sb.WriteString("```tabcalc\n")
	sb.WriteString(sig.Label)
	sb.WriteString("\n```\n")

	if sig.Deprecated != "" {
		sb.WriteString("\n*Deprecated: ")
		sb.WriteString(sig.Deprecated)
		sb.WriteString("*\n")
	}
	if sig.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(sig.Description)
		sb.WriteString("\n")
	}

	if len(sig.Parameters) > 0 {
		sb.WriteString("\n")
		for _, param := range sig.Parameters {
			sb.WriteString("- `")
			sb.WriteString(param.Name)
			if param.Type != "" {
				sb.WriteString(": ")
				sb.WriteString(param.Type)
			}
			sb.WriteString("`")
			if param.Description != "" {
				sb.WriteString(" — ")
				sb.WriteString(param.Description)
			}
			if param.Default != "" {
				sb.WriteString(" (default ")
				sb.WriteString(param.Default)
				sb.WriteString(")")
			}
			sb.WriteString("\n")
		}
	}

	if sig.ReturnType != "" || sig.ReturnDoc != "" {
		sb.WriteString("\nReturns `")
		sb.WriteString(sig.ReturnType)
		sb.WriteString("`")
		if sig.ReturnDoc != "" {
			sb.WriteString(" — ")
			sb.WriteString(sig.ReturnDoc)
		}
		sb.WriteString("\n")
	}

	for _, example := range sig.Examples {
		sb.WriteString("\n```tabcalc\n")
		sb.WriteString(example)
		sb.WriteString("\n```\n")
	}

	if sig.Since != "" {
		sb.WriteString("\n*Since ")
		sb.WriteString(sig.Since)
		sb.WriteString("*")
	}
	return sb.String()
}
