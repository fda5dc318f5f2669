package provider

import (
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/symbol"
)

// CodeActions offers fixes and rewrites for the requested range: adding a
// missing END, wrapping the selection in ZN(), and converting an IF chain
// over one field into a CASE block.
func (p *Providers) CodeActions(doc *cache.CachedDocument, rng protocol.Range) []protocol.CodeAction {
	var actions []protocol.CodeAction

	startLine, startColumn := fromLSP(rng.Start)
	endLine, endColumn := fromLSP(rng.End)

	if action := p.missingEndAction(doc, startLine, startColumn); action != nil {
		actions = append(actions, *action)
	}
	if action := wrapInZNAction(doc, rng, startLine, startColumn, endLine, endColumn); action != nil {
		actions = append(actions, *action)
	}
	if action := ifToCaseAction(doc, startLine, startColumn); action != nil {
		actions = append(actions, *action)
	}
	return actions
}

// missingEndAction offers to append the END of an incomplete block at the
// cursor.
func (p *Providers) missingEndAction(doc *cache.CachedDocument, line, column int) *protocol.CodeAction {
	block := symbol.InnermostBlock(doc.Parsed.Symbols, line, column)
	for block != nil && !block.Incomplete {
		block = parentBlock(block)
	}
	if block == nil {
		return nil
	}

	insertAt := toLSPPosition(block.Range.End)
	edit := protocol.TextEdit{
		Range:   protocol.Range{Start: insertAt, End: insertAt},
		NewText: "\nEND",
	}
	kind := protocol.CodeActionKindQuickFix
	preferred := true
	return &protocol.CodeAction{
		Title:       "Add missing END",
		Kind:        &kind,
		IsPreferred: &preferred,
		Edit: &protocol.WorkspaceEdit{
			Changes: map[protocol.DocumentUri][]protocol.TextEdit{
				doc.URI: {edit},
			},
		},
	}
}

func parentBlock(s *symbol.Symbol) *symbol.Symbol {
	for p := s.Parent; p != nil; p = p.Parent {
		if p.Kind == symbol.KindConditionalBlock {
			return p
		}
	}
	return nil
}

// wrapInZNAction wraps a non-empty single-line selection in ZN(); the
// selected text is not checked for being numeric.
func wrapInZNAction(doc *cache.CachedDocument, rng protocol.Range, startLine, startColumn, endLine, endColumn int) *protocol.CodeAction {
	if startLine != endLine || startColumn >= endColumn {
		return nil
	}
	selected := lineSlice(doc.Text, startLine, startColumn, endColumn)
	if strings.TrimSpace(selected) == "" {
		return nil
	}

	kind := protocol.CodeActionKindRefactorRewrite
	return &protocol.CodeAction{
		Title: "Wrap in ZN()",
		Kind:  &kind,
		Edit: &protocol.WorkspaceEdit{
			Changes: map[protocol.DocumentUri][]protocol.TextEdit{
				doc.URI: {{
					Range:   rng,
					NewText: "ZN(" + selected + ")",
				}},
			},
		},
	}
}

// ifToCaseAction converts an IF/ELSEIF chain testing one field against
// literals into the equivalent CASE block. The shape must be exact: every
// condition `[Field] = <literal>`, the same field throughout.
func ifToCaseAction(doc *cache.CachedDocument, line, column int) *protocol.CodeAction {
	block := symbol.InnermostBlock(doc.Parsed.Symbols, line, column)
	if block == nil || block.Name != "IF" || block.Incomplete {
		return nil
	}

	caseText, ok := rewriteAsCase(block)
	if !ok {
		return nil
	}

	kind := protocol.CodeActionKindRefactorRewrite
	return &protocol.CodeAction{
		Title: "Convert IF to CASE",
		Kind:  &kind,
		Edit: &protocol.WorkspaceEdit{
			Changes: map[protocol.DocumentUri][]protocol.TextEdit{
				doc.URI: {{
					Range:   toLSPRange(block.Range),
					NewText: caseText,
				}},
			},
		},
	}
}

// rewriteAsCase rebuilds an IF block as CASE text when every branch
// condition compares the same field to a literal.
func rewriteAsCase(block *symbol.Symbol) (string, bool) {
	type arm struct {
		literal string
		result  string
	}
	var arms []arm
	var elseResult string
	var field string

	// the IF condition is the content before the first branch
	condition := conditionOf(block)
	branches := branchesOf(block)
	if len(branches) == 0 {
		return "", false
	}

	for _, branch := range branches {
		switch branch.Name {
		case "THEN":
			fieldName, literal, ok := fieldEqualsLiteral(condition)
			if !ok {
				return "", false
			}
			if field == "" {
				field = fieldName
			} else if field != fieldName {
				return "", false
			}
			arms = append(arms, arm{literal: literal, result: branchResult(branch)})
		case "ELSEIF":
			// the ELSEIF condition lives in the branch itself, before THEN
			fieldName, literal, ok := fieldEqualsLiteral(branch.Children)
			if !ok {
				return "", false
			}
			if field != fieldName {
				return "", false
			}
			arms = append(arms, arm{literal: literal, result: branchResult(branch)})
		case "ELSE":
			elseResult = branchResult(branch)
		case "WHEN":
			return "", false // already a CASE-shaped block
		}
	}

	if field == "" || len(arms) == 0 {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString("CASE [" + field + "]\n")
	for _, a := range arms {
		sb.WriteString("WHEN " + a.literal + " THEN " + a.result + "\n")
	}
	if elseResult != "" {
		sb.WriteString("ELSE " + elseResult + "\n")
	}
	sb.WriteString("END")
	return sb.String(), true
}

// conditionOf returns the block's condition symbols: children before the
// first branch.
func conditionOf(block *symbol.Symbol) []*symbol.Symbol {
	var condition []*symbol.Symbol
	for _, child := range block.Children {
		if child.Kind == symbol.KindBranch || (child.Kind == symbol.KindKeyword && child.Name == "END") {
			break
		}
		condition = append(condition, child)
	}
	return condition
}

func branchesOf(block *symbol.Symbol) []*symbol.Symbol {
	var branches []*symbol.Symbol
	for _, child := range block.Children {
		if child.Kind == symbol.KindBranch {
			branches = append(branches, child)
		}
	}
	return branches
}

// fieldEqualsLiteral matches a condition starting [Field] = <literal>.
// The '=' operator produces no symbol of its own; the field and literal
// must be the first two symbols of the condition.
func fieldEqualsLiteral(symbols []*symbol.Symbol) (field, literal string, ok bool) {
	if len(symbols) < 2 {
		return "", "", false
	}
	if symbols[0].Kind != symbol.KindFieldReference || symbols[1].Kind != symbol.KindLiteral {
		return "", "", false
	}
	return symbols[0].Name, symbols[1].Text, true
}

// branchResult renders a branch's value expression: the branch text after
// its keyword (and, for ELSEIF arms, after the THEN).
func branchResult(branch *symbol.Symbol) string {
	text := strings.TrimSpace(branch.Text)
	for _, prefix := range []string{"THEN", "ELSEIF", "ELSE", "WHEN", "then", "elseif", "else", "when"} {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}
	if branch.Name == "ELSEIF" {
		if i := strings.Index(strings.ToUpper(text), "THEN"); i >= 0 {
			text = strings.TrimSpace(text[i+len("THEN"):])
		}
	}
	if text == "" {
		text = "NULL"
	}
	return text
}

// lineSlice extracts [startColumn, endColumn) of a line in UTF-16 columns.
func lineSlice(text string, line, startColumn, endColumn int) string {
	lines := strings.Split(text, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	content := strings.TrimSuffix(lines[line-1], "\r")

	startByte := -1
	endByte := len(content)
	col := 1
	for i, r := range content {
		if col >= startColumn && startByte < 0 {
			startByte = i
		}
		if col >= endColumn {
			endByte = i
			break
		}
		if r >= 0x10000 {
			col += 2
		} else {
			col++
		}
	}
	if startByte < 0 {
		if col >= startColumn {
			startByte = len(content)
		} else {
			return ""
		}
	}
	if startByte > endByte {
		return ""
	}
	return content[startByte:endByte]
}
