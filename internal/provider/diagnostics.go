package provider

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tabcalc/tablang/internal/lexer"
	"github.com/tabcalc/tablang/internal/symbol"
	"github.com/tabcalc/tablang/pkg/token"
)

// aggregateFunctions are the aggregating functions of the calculation
// language; nesting one inside another is flagged as an advisory because
// the intent is almost always a LOD expression.
var aggregateFunctions = map[string]bool{
	"SUM": true, "AVG": true, "MIN": true, "MAX": true,
	"COUNT": true, "COUNTD": true, "MEDIAN": true, "ATTR": true,
	"STDEV": true, "STDEVP": true, "VAR": true, "VARP": true,
	"PERCENTILE": true, "CORR": true, "COVAR": true, "COVARP": true,
}

// ComputeDiagnostics produces the complete diagnostic set for a document
// from its text and symbol forest. The incremental driver calls this after
// every commit, full parse or splice alike, so diagnostics always reflect
// cross-region effects.
func (p *Providers) ComputeDiagnostics(text string, symbols []*symbol.Symbol) []symbol.Diagnostic {
	var diags []symbol.Diagnostic

	if strings.TrimSpace(text) == "" {
		return []symbol.Diagnostic{{
			Range:    token.Range{Start: token.Position{Line: 1, Column: 1}, End: token.Position{Line: 1, Column: 1}},
			Severity: symbol.SeverityInformation,
			Code:     symbol.CodeEmptyCalculation,
			Message:  "Empty calculation",
		}}
	}

	diags = append(diags, lexicalDiagnostics(text)...)
	diags = append(diags, p.structuralDiagnostics(symbols)...)
	diags = append(diags, p.signatureDiagnostics(symbols)...)
	diags = append(diags, p.nestingDiagnostics(symbols)...)
	diags = append(diags, trailingOperatorDiagnostics(text, symbols)...)

	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i].Range.Start, diags[j].Range.Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return diags
}

// lexicalDiagnostics re-runs the lexer and reports malformed lexemes.
func lexicalDiagnostics(text string) []symbol.Diagnostic {
	var diags []symbol.Diagnostic
	lex := lexer.New(text)
	covered := make(map[int]bool)

	for {
		tok := lex.NextToken()
		if tok.Type == token.EOF {
			break
		}
		if tok.Type != token.UNEXPECTED {
			continue
		}
		covered[tok.Pos.Offset] = true
		code := symbol.CodeUnexpectedToken
		message := "Unexpected token: " + tok.Literal
		switch {
		case strings.HasPrefix(tok.Literal, "'") || strings.HasPrefix(tok.Literal, "\""):
			code = symbol.CodeUnterminatedString
			message = "Unterminated string literal"
		case strings.HasPrefix(tok.Literal, "["):
			code = symbol.CodeUnterminatedField
			message = "Unterminated field reference"
		}
		diags = append(diags, symbol.Diagnostic{
			Range:    tok.Range(),
			Severity: symbol.SeverityError,
			Code:     code,
			Message:  message,
		})
	}

	// scan errors without a covering token, e.g. an unterminated comment
	for _, scanErr := range lex.Errors() {
		if covered[scanErr.Pos.Offset] {
			continue
		}
		end := scanErr.Pos
		end.Column++
		end.Offset++
		diags = append(diags, symbol.Diagnostic{
			Range:    token.Range{Start: scanErr.Pos, End: end},
			Severity: symbol.SeverityError,
			Code:     symbol.CodeUnexpectedToken,
			Message:  strings.ToUpper(scanErr.Message[:1]) + scanErr.Message[1:],
		})
	}
	return diags
}

// structuralDiagnostics reports block and LOD malformations derivable from
// the symbol tree.
func (p *Providers) structuralDiagnostics(symbols []*symbol.Symbol) []symbol.Diagnostic {
	var diags []symbol.Diagnostic
	symbol.WalkAll(symbols, func(s *symbol.Symbol) bool {
		switch s.Kind {
		case symbol.KindConditionalBlock:
			if s.Incomplete {
				diags = append(diags, symbol.Diagnostic{
					Range:    keywordRange(s),
					Severity: symbol.SeverityError,
					Code:     symbol.CodeMissingEnd,
					Message:  s.Name + " block is missing its END",
				})
			}
		case symbol.KindKeyword:
			switch s.Name {
			case "THEN", "ELSEIF", "ELSE", "WHEN":
				diags = append(diags, symbol.Diagnostic{
					Range:    s.Range,
					Severity: symbol.SeverityError,
					Code:     symbol.CodeBranchOutsideBlock,
					Message:  s.Name + " outside an IF or CASE block",
				})
			case "END":
				if s.Parent == nil || s.Parent.EndKeyword != s {
					diags = append(diags, symbol.Diagnostic{
						Range:    s.Range,
						Severity: symbol.SeverityError,
						Code:     symbol.CodeMismatchedEnd,
						Message:  "END without a matching IF or CASE",
					})
				}
			}
		case symbol.KindLodExpression:
			switch {
			case s.Name == "":
				diags = append(diags, symbol.Diagnostic{
					Range:    s.Range,
					Severity: symbol.SeverityError,
					Code:     symbol.CodeLodMissingColon,
					Message:  "LOD expression is missing its scoping type (FIXED, INCLUDE or EXCLUDE)",
				})
			case !s.LodColon:
				diags = append(diags, symbol.Diagnostic{
					Range:    s.Range,
					Severity: symbol.SeverityError,
					Code:     symbol.CodeLodMissingColon,
					Message:  s.Name + " expression is missing the ':' separating dimensions from the aggregation",
				})
			case !s.LodBody:
				diags = append(diags, symbol.Diagnostic{
					Range:    s.Range,
					Severity: symbol.SeverityError,
					Code:     symbol.CodeLodMissingBody,
					Message:  s.Name + " expression has no aggregation after the ':'",
				})
			}
		}
		return true
	})
	return diags
}

// signatureDiagnostics checks function calls against the catalogue: arity
// out of bounds (warning, suppressed for multi-line calls with no parsed
// arguments, which usually means typing in progress), unknown names that
// look like functions (information), and nested aggregations (advisory).
func (p *Providers) signatureDiagnostics(symbols []*symbol.Symbol) []symbol.Diagnostic {
	var diags []symbol.Diagnostic
	symbol.WalkAll(symbols, func(s *symbol.Symbol) bool {
		if s.Kind != symbol.KindFunctionCall {
			return true
		}

		sig := p.Catalog.Lookup(s.Name)
		if sig == nil {
			// judge the name as written, not the uppercased symbol name
			raw := s.Text
			if i := strings.IndexByte(raw, '('); i >= 0 {
				raw = strings.TrimSpace(raw[:i])
			}
			if looksLikeFunction(raw) {
				diags = append(diags, symbol.Diagnostic{
					Range:    keywordRange(s),
					Severity: symbol.SeverityInformation,
					Code:     symbol.CodeUnknownFunction,
					Message:  "Unknown function " + raw,
				})
			}
			return true
		}

		argc := len(s.Arguments)
		multiLine := s.Range.End.Line > s.Range.Start.Line
		if argc == 0 && (multiLine || s.Incomplete) {
			// likely still being typed; stay quiet
		} else if argc < sig.MinArgs || (sig.MaxArgs != -1 && argc > sig.MaxArgs) {
			diags = append(diags, symbol.Diagnostic{
				Range:    keywordRange(s),
				Severity: symbol.SeverityWarning,
				Code:     symbol.CodeArgumentCount,
				Message:  arityMessage(s.Name, argc, sig.MinArgs, sig.MaxArgs),
			})
		}

		if aggregateFunctions[s.Name] && containsAggregate(s.Children) {
			diags = append(diags, symbol.Diagnostic{
				Range:    keywordRange(s),
				Severity: symbol.SeverityInformation,
				Code:     symbol.CodeNestedAggregation,
				Message:  "Nested aggregation; consider a LOD expression instead",
			})
		}
		return true
	})
	return diags
}

func containsAggregate(children []*symbol.Symbol) bool {
	found := false
	symbol.WalkAll(children, func(s *symbol.Symbol) bool {
		if found {
			return false
		}
		if s.Kind == symbol.KindFunctionCall && aggregateFunctions[s.Name] {
			found = true
			return false
		}
		return true
	})
	return found
}

// looksLikeFunction reports whether an unknown name is probably meant as a
// function: all uppercase or containing an underscore.
func looksLikeFunction(name string) bool {
	if name == "" {
		return false
	}
	return name == strings.ToUpper(name) || strings.Contains(name, "_")
}

func arityMessage(name string, argc, min, max int) string {
	switch {
	case max == -1:
		return name + " expects at least " + strconv.Itoa(min) + " argument(s), got " + strconv.Itoa(argc)
	case min == max:
		return name + " expects " + strconv.Itoa(min) + " argument(s), got " + strconv.Itoa(argc)
	default:
		return name + " expects between " + strconv.Itoa(min) + " and " + strconv.Itoa(max) + " argument(s), got " + strconv.Itoa(argc)
	}
}

// nestingDiagnostics flags conditional blocks and LOD expressions nested
// beyond the configured depth, and overall calculations past the
// complexity threshold.
func (p *Providers) nestingDiagnostics(symbols []*symbol.Symbol) []symbol.Diagnostic {
	var diags []symbol.Diagnostic
	maxDepth := p.Config.Analysis.MaxNestingDepth
	symbol.WalkAll(symbols, func(s *symbol.Symbol) bool {
		if s.Kind != symbol.KindConditionalBlock && s.Kind != symbol.KindLodExpression {
			return true
		}
		if s.Depth() >= maxDepth {
			diags = append(diags, symbol.Diagnostic{
				Range:    keywordRange(s),
				Severity: symbol.SeverityInformation,
				Code:     symbol.CodeDeepNesting,
				Message:  "Nesting deeper than " + strconv.Itoa(maxDepth) + " levels; consider simplifying",
			})
			return false // one report per chain is enough
		}
		return true
	})

	if count := symbol.Count(symbols); count > p.Config.Analysis.ComplexityThreshold && len(symbols) > 0 {
		diags = append(diags, symbol.Diagnostic{
			Range:    keywordRange(symbols[0]),
			Severity: symbol.SeverityInformation,
			Code:     symbol.CodeDeepNesting,
			Message:  "Calculation has " + strconv.Itoa(count) + " elements; consider splitting it into intermediate fields",
		})
	}
	return diags
}

// trailingOperatorDiagnostics reports lines ending in a binary operator,
// unless the line is part of a multi-line construct that legitimately
// continues (a spanning call, LOD or block).
func trailingOperatorDiagnostics(text string, symbols []*symbol.Symbol) []symbol.Diagnostic {
	var diags []symbol.Diagnostic
	lastOnLine := make(map[int]token.Token)
	for _, tok := range lexer.Tokenize(text) {
		if tok.Type == token.EOF {
			continue
		}
		lastOnLine[tok.End.Line] = tok
	}

	var lines []int
	for line := range lastOnLine {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	for _, line := range lines {
		tok := lastOnLine[line]
		if !token.IsBinaryOperator(tok.Type) {
			continue
		}
		if inMultiLineConstruct(symbols, line, tok.Pos.Column) {
			continue
		}
		diags = append(diags, symbol.Diagnostic{
			Range:    tok.Range(),
			Severity: symbol.SeverityInformation,
			Code:     symbol.CodeIncompleteLine,
			Message:  "Line ends with '" + tok.Literal + "'; expression may be incomplete",
		})
	}
	return diags
}

// inMultiLineConstruct reports whether a position sits inside a symbol
// spanning more than one line.
func inMultiLineConstruct(symbols []*symbol.Symbol, line, column int) bool {
	found := false
	symbol.WalkAll(symbols, func(s *symbol.Symbol) bool {
		if found {
			return false
		}
		if !s.Contains(line, column) {
			return false
		}
		if s.Range.End.Line > s.Range.Start.Line {
			switch s.Kind {
			case symbol.KindFunctionCall, symbol.KindLodExpression, symbol.KindConditionalBlock, symbol.KindBranch:
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// keywordRange narrows a symbol's range to its leading keyword so the
// squiggle lands on the construct's head, not its whole body.
func keywordRange(s *symbol.Symbol) token.Range {
	end := s.Range.Start
	width := len(s.Name)
	if width == 0 {
		width = 1
	}
	end.Column += width
	end.Offset += width
	if s.Range.End.Line == s.Range.Start.Line && end.Column > s.Range.End.Column {
		end = s.Range.End
	}
	return token.Range{Start: s.Range.Start, End: end}
}
