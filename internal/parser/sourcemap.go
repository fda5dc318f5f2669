package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/tabcalc/tablang/internal/lexer"
	"github.com/tabcalc/tablang/internal/symbol"
	"github.com/tabcalc/tablang/pkg/token"
)

// sourceMap converts between (line, UTF-16 column) positions and byte
// offsets so symbols can carry raw text slices.
type sourceMap struct {
	src        string
	lineStarts []int // byte offset of each line start, 0-based index = line-1
}

func newSourceMap(src string) *sourceMap {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &sourceMap{src: src, lineStarts: starts}
}

// byteOffset maps a position to a byte offset, clamping to line bounds.
func (m *sourceMap) byteOffset(pos token.Position) int {
	if pos.Line < 1 {
		return 0
	}
	if pos.Line > len(m.lineStarts) {
		return len(m.src)
	}
	b := m.lineStarts[pos.Line-1]
	col := 1
	for col < pos.Column && b < len(m.src) {
		r, size := utf8.DecodeRuneInString(m.src[b:])
		if r == '\n' {
			break
		}
		b += size
		if r >= 0x10000 {
			col += 2
		} else {
			col++
		}
	}
	return b
}

// slice returns the raw source text covered by the range.
func (m *sourceMap) slice(r token.Range) string {
	start := m.byteOffset(r.Start)
	end := m.byteOffset(r.End)
	if start > end {
		return ""
	}
	return m.src[start:end]
}

// LineHasBlockKeyword reports whether the line contains a block-structuring
// keyword (IF/THEN/ELSEIF/ELSE/END/CASE/WHEN) outside strings and comments.
// The incremental driver uses it to decide when a region reparse is unsafe.
func LineHasBlockKeyword(line string) bool {
	for _, tok := range tokenizeLine(line) {
		if token.IsBlockKeyword(tok.Type) {
			return true
		}
	}
	return false
}

// LineOpensContinuation reports whether the line begins a multi-line span:
// it ends with an unclosed paren or brace, a trailing binary operator, a
// continuation keyword (AND/OR) or a trailing comma.
func LineOpensContinuation(line string) bool {
	toks := tokenizeLine(line)
	if len(toks) == 0 {
		return false
	}
	depth := 0
	for _, tok := range toks {
		switch tok.Type {
		case token.LPAREN, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACE:
			depth--
		}
	}
	if depth > 0 {
		return true
	}
	last := toks[len(toks)-1].Type
	return token.IsBinaryOperator(last) || last == token.AND || last == token.OR || last == token.COMMA
}

// tokenizeLine scans a single line of text, dropping the EOF marker.
func tokenizeLine(line string) []token.Token {
	toks := lexer.Tokenize(line)
	if len(toks) > 0 && toks[len(toks)-1].Type == token.EOF {
		toks = toks[:len(toks)-1]
	}
	return toks
}

// ParseRegion parses a slice of document text that begins at startLine
// (1-based) in the full document, shifting every produced range so line
// numbers are document-relative. Column numbers are unaffected because
// regions always start at a line boundary. UTF-16 offsets inside the
// shifted ranges are region-relative; consumers of spliced trees use
// line/column only.
func ParseRegion(regionText string, startLine int) []*symbol.Symbol {
	symbols := Parse(regionText)
	delta := startLine - 1
	if delta != 0 {
		symbol.WalkAll(symbols, func(s *symbol.Symbol) bool {
			s.Range.Start.Line += delta
			s.Range.End.Line += delta
			for i := range s.Arguments {
				s.Arguments[i].Range.Start.Line += delta
				s.Arguments[i].Range.End.Line += delta
			}
			return true
		})
	}
	return symbols
}

// SplitLines splits text into lines without the trailing newline
// characters, matching the line numbering used by token positions.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
