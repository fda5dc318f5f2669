package provider

import (
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/symbol"
)

// SignatureHelp returns parameter help at the position. Inside a function
// call's argument list it returns the catalogue signature with the active
// parameter computed from the cursor's argument slot. Otherwise, inside an
// IF or CASE block, it returns a synthetic signature whose parameters are
// the block's branch lines with the cursor's branch highlighted; the
// innermost enclosing block wins.
func (p *Providers) SignatureHelp(doc *cache.CachedDocument, pos protocol.Position) *protocol.SignatureHelp {
	line, column := fromLSP(pos)

	if call := enclosingCall(doc.Parsed.Symbols, line, column); call != nil {
		if help := p.callSignature(call, line, column); help != nil {
			return help
		}
	}

	if block := symbol.InnermostBlock(doc.Parsed.Symbols, line, column); block != nil {
		return blockSignature(block, line)
	}
	return nil
}

// enclosingCall finds the innermost function call whose argument list
// contains the position.
func enclosingCall(symbols []*symbol.Symbol, line, column int) *symbol.Symbol {
	var best *symbol.Symbol
	symbol.WalkAll(symbols, func(s *symbol.Symbol) bool {
		if !s.Contains(line, column) {
			return false
		}
		if s.Kind == symbol.KindFunctionCall {
			// the cursor must be past the opening parenthesis
			openColumn := s.Range.Start.Column + len(s.Name)
			if line > s.Range.Start.Line || column > openColumn {
				best = s
			}
		}
		return true
	})
	return best
}

func (p *Providers) callSignature(call *symbol.Symbol, line, column int) *protocol.SignatureHelp {
	sig := p.Catalog.Lookup(call.Name)
	if sig == nil {
		return nil
	}

	active := activeArgument(call, line, column)
	if len(sig.Parameters) > 0 && active >= len(sig.Parameters) {
		// clamp to the last declared parameter; for variadic signatures
		// that is the tail every extra argument binds to
		active = len(sig.Parameters) - 1
	}

	params := make([]protocol.ParameterInformation, 0, len(sig.Parameters))
	for _, param := range sig.Parameters {
		label := param.Name
		if param.Type != "" {
			label += ": " + param.Type
		}
		info := protocol.ParameterInformation{Label: label}
		if param.Description != "" {
			info.Documentation = param.Description
		}
		params = append(params, info)
	}

	information := protocol.SignatureInformation{
		Label:      sig.Label,
		Parameters: params,
	}
	if sig.Description != "" {
		information.Documentation = protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: sig.Description,
		}
	}

	activeSignature := protocol.UInteger(0)
	activeParameter := protocol.UInteger(active)
	return &protocol.SignatureHelp{
		Signatures:      []protocol.SignatureInformation{information},
		ActiveSignature: &activeSignature,
		ActiveParameter: &activeParameter,
	}
}

// activeArgument counts which argument slot contains the cursor: the
// number of top-level argument boundaries before it.
func activeArgument(call *symbol.Symbol, line, column int) int {
	if len(call.Arguments) == 0 {
		return 0
	}
	for i, arg := range call.Arguments {
		if arg.Range.Contains(line, column) {
			return i
		}
	}
	// between or after arguments: count the ones that ended before the cursor
	active := 0
	for _, arg := range call.Arguments {
		if arg.Range.Before(line, column) {
			active++
		}
	}
	if active >= len(call.Arguments) {
		active = len(call.Arguments) - 1
	}
	return active
}

// blockSignature renders an IF/CASE block as a synthetic multi-line
// signature: one parameter per branch, the branch containing the cursor
// active.
func blockSignature(block *symbol.Symbol, line int) *protocol.SignatureHelp {
	var branches []*symbol.Symbol
	for _, child := range block.Children {
		if child.Kind == symbol.KindBranch {
			branches = append(branches, child)
		}
	}
	if len(branches) == 0 {
		return nil
	}

	var labels []string
	active := 0
	for i, branch := range branches {
		labels = append(labels, firstLine(branch.Text))
		if line >= branch.Range.Start.Line && line <= branch.Range.End.Line {
			active = i
		}
	}

	params := make([]protocol.ParameterInformation, 0, len(labels))
	for _, label := range labels {
		params = append(params, protocol.ParameterInformation{Label: label})
	}

	label := block.Name + " " + strings.Join(labels, " ") + " END"
	activeSignature := protocol.UInteger(0)
	activeParameter := protocol.UInteger(active)
	return &protocol.SignatureHelp{
		Signatures: []protocol.SignatureInformation{{
			Label:      label,
			Parameters: params,
		}},
		ActiveSignature: &activeSignature,
		ActiveParameter: &activeParameter,
	}
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
