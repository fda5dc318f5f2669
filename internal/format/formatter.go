// Package format implements the TabCalc formatter. It re-tokenizes the
// source (keeping comments) and emits a fresh string: keywords uppercased,
// binary operators padded, block keywords opening their own lines with
// indentation tracked per block, and complex argument lists broken one
// argument per line. Formatting is idempotent.
package format

import (
	"strings"

	"github.com/tabcalc/tablang/internal/lexer"
	"github.com/tabcalc/tablang/internal/parser"
	"github.com/tabcalc/tablang/internal/symbol"
	"github.com/tabcalc/tablang/pkg/token"
)

// Options controls indentation.
type Options struct {
	IndentSize int
	UseTabs    bool
}

// DefaultOptions returns the formatter defaults: four spaces.
func DefaultOptions() Options {
	return Options{IndentSize: 4}
}

func (o Options) unit() string {
	if o.UseTabs {
		return "\t"
	}
	size := o.IndentSize
	if size <= 0 {
		size = 4
	}
	return strings.Repeat(" ", size)
}

// An argument list is complex when it has more than this many arguments or
// contains a nested call; complex lists break one argument per line.
const inlineArgLimit = 2

type parenFrame struct {
	multiline bool
	call      bool
}

type printer struct {
	b          strings.Builder
	opts       Options
	indent     int
	lineOpen   bool
	suppress   bool // no separator before the next token
	blockBases []int
	parens     []parenFrame
	prevType   token.TokenType
	prevLine   int
	havePrev   bool

	lastIdentPos token.Position // source position of the last emitted identifier
}

// Format formats TabCalc source text. Malformed input formats on a
// best-effort basis; the token stream is never rejected.
func Format(src string, opts Options) string {
	toks := lexer.Tokenize(src, lexer.WithPreserveComments(true))
	complexCalls := findComplexCalls(src)

	p := &printer{opts: opts}
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if tok.Type == token.EOF {
			break
		}
		var next token.Token
		if i+1 < len(toks) {
			next = toks[i+1]
		}
		p.emit(tok, next, complexCalls)
	}

	out := strings.TrimRight(p.b.String(), " \t\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

// findComplexCalls parses the source and returns the start positions of
// function calls whose argument lists should break across lines.
func findComplexCalls(src string) map[token.Position]bool {
	complexCalls := make(map[token.Position]bool)
	symbol.WalkAll(parser.Parse(src), func(s *symbol.Symbol) bool {
		if s.Kind != symbol.KindFunctionCall {
			return true
		}
		nestedCall := false
		for _, child := range s.Children {
			if child.Kind == symbol.KindFunctionCall {
				nestedCall = true
				break
			}
		}
		if len(s.Arguments) > inlineArgLimit || nestedCall {
			complexCalls[s.Range.Start] = true
		}
		return true
	})
	return complexCalls
}

func (p *printer) emit(tok token.Token, next token.Token, complexCalls map[token.Position]bool) {
	switch {
	case tok.Type == token.IF || tok.Type == token.CASE:
		p.newline()
		p.write(tok.Type.String(), false)
		p.blockBases = append(p.blockBases, p.indent)

	case tok.Type == token.THEN:
		p.write("THEN", true)
		p.newline()
		p.indent = p.blockBase() + 1

	case tok.Type == token.ELSEIF || tok.Type == token.WHEN:
		p.newline()
		p.indent = p.blockBase()
		p.write(tok.Type.String(), false)

	case tok.Type == token.ELSE:
		p.newline()
		p.indent = p.blockBase()
		p.write("ELSE", false)
		p.newline()
		p.indent = p.blockBase() + 1

	case tok.Type == token.END:
		p.newline()
		p.indent = p.blockBase()
		if len(p.blockBases) > 0 {
			p.blockBases = p.blockBases[:len(p.blockBases)-1]
		}
		p.write("END", false)
		p.newline()

	case tok.Type == token.IDENT && next.Type == token.LPAREN:
		p.write(strings.ToUpper(tok.Literal), p.needSpace(tok.Type))
		p.lastIdentPos = tok.Pos
		p.suppress = true // the parenthesis hugs the name

	case tok.Type == token.LPAREN:
		isCall := p.havePrev && p.prevType == token.IDENT
		multiline := false
		if isCall {
			// the call started at the identifier before this paren
			multiline = p.callIsComplex(complexCalls)
		}
		p.write("(", p.needSpace(tok.Type))
		p.parens = append(p.parens, parenFrame{multiline: multiline, call: isCall})
		if multiline {
			p.newline()
			p.indent++
		} else {
			p.suppress = true
		}

	case tok.Type == token.RPAREN:
		frame := p.popParen()
		if frame.multiline {
			p.newline()
			p.indent--
			p.write(")", false)
		} else {
			p.suppress = true
			p.write(")", false)
		}

	case tok.Type == token.COMMA:
		p.suppress = true
		p.write(",", false)
		if p.topParenMultiline() {
			p.newline()
		}

	case tok.Type == token.LBRACE:
		p.write("{", p.needSpace(tok.Type))

	case tok.Type == token.RBRACE:
		p.write("}", true)

	case tok.Type == token.COLON:
		p.write(":", true)

	case tok.Type == token.MINUS && p.minusIsUnary():
		p.write("-", p.needSpace(tok.Type))
		p.suppress = true

	case token.IsBinaryOperator(tok.Type):
		p.write(tok.Literal, true)

	case tok.Type == token.FIELD:
		p.write("["+tok.Literal+"]", p.needSpace(tok.Type))

	case token.IsKeyword(tok.Type):
		p.write(token.GetKeywordLiteral(tok.Type), p.needSpace(tok.Type))

	case tok.Type == token.COMMENT:
		if p.havePrev && tok.Pos.Line == p.prevLine && p.lineOpen {
			p.b.WriteString("  ")
			p.b.WriteString(tok.Literal)
		} else {
			p.newline()
			p.write(tok.Literal, false)
		}
		p.newline()

	default:
		p.write(tok.Literal, p.needSpace(tok.Type))
	}

	p.prevType = tok.Type
	p.prevLine = tok.End.Line
	p.havePrev = true
}

// callIsComplex reports whether the call whose '(' is being emitted was
// marked complex by the pre-parse. Complexity is keyed on the call
// identifier's source position, recorded when the identifier was emitted.
func (p *printer) callIsComplex(complexCalls map[token.Position]bool) bool {
	return complexCalls[p.lastIdentPos]
}

func (p *printer) blockBase() int {
	if len(p.blockBases) == 0 {
		return 0
	}
	return p.blockBases[len(p.blockBases)-1]
}

func (p *printer) popParen() parenFrame {
	if len(p.parens) == 0 {
		return parenFrame{}
	}
	frame := p.parens[len(p.parens)-1]
	p.parens = p.parens[:len(p.parens)-1]
	return frame
}

func (p *printer) topParenMultiline() bool {
	return len(p.parens) > 0 && p.parens[len(p.parens)-1].multiline
}

// minusIsUnary reports whether a '-' negates rather than subtracts.
func (p *printer) minusIsUnary() bool {
	if !p.havePrev {
		return true
	}
	switch {
	case token.IsBinaryOperator(p.prevType):
		return true
	case p.prevType == token.LPAREN, p.prevType == token.LBRACE,
		p.prevType == token.COMMA, p.prevType == token.COLON:
		return true
	case token.IsKeyword(p.prevType):
		return true
	}
	return false
}

// needSpace decides whether a separator precedes the token being written.
func (p *printer) needSpace(token.TokenType) bool {
	if !p.havePrev || !p.lineOpen {
		return false
	}
	return p.prevType != token.LPAREN
}

func (p *printer) newline() {
	if p.lineOpen {
		p.b.WriteByte('\n')
		p.lineOpen = false
	}
	p.suppress = false
}

func (p *printer) write(text string, spaceBefore bool) {
	if !p.lineOpen {
		for i := 0; i < p.indent; i++ {
			p.b.WriteString(p.opts.unit())
		}
		p.lineOpen = true
	} else if spaceBefore && !p.suppress {
		p.b.WriteByte(' ')
	}
	p.suppress = false
	p.b.WriteString(text)
}
