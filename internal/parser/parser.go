// Package parser turns TabCalc token streams into symbol trees. It is a
// block-structured parser driven by keyword recognition, with expression
// scanning inside each branch.
//
// The parser never fails: malformed constructs become best-effort symbols
// (later surfaced as diagnostics) and the returned forest always satisfies
// the structural invariants checked by symbol.ParsedDocument.Verify.
package parser

import (
	"strings"

	"github.com/tabcalc/tablang/internal/lexer"
	"github.com/tabcalc/tablang/internal/symbol"
	"github.com/tabcalc/tablang/pkg/token"
)

// blockEntry tracks one open conditional block and its open branch, if any.
type blockEntry struct {
	block  *symbol.Symbol
	branch *symbol.Symbol
}

// Parser consumes a token stream and builds the symbol forest.
type Parser struct {
	src     string
	smap    *sourceMap
	tokens  []token.Token
	pos     int
	roots   []*symbol.Symbol
	stack   []blockEntry
	lastEnd token.Position // end of the last consumed non-EOF token
}

// Parse scans and parses src, returning the symbol forest. Diagnostics are
// computed separately (see the diagnostics provider); Parse itself records
// structure only.
func Parse(src string) []*symbol.Symbol {
	p := &Parser{
		src:     src,
		smap:    newSourceMap(src),
		tokens:  lexer.Tokenize(src),
		lastEnd: token.Position{Line: 1, Column: 1},
	}
	p.parseStream()
	p.closeDanglingBlocks()
	p.fillText(p.roots)
	return p.roots
}

// current returns the token at the cursor.
func (p *Parser) current() token.Token {
	return p.tokens[p.pos]
}

// peek returns the token after the cursor.
func (p *Parser) peek() token.Token {
	if p.pos+1 >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) atEOF() bool {
	return p.current().Type == token.EOF
}

// advance consumes the current token.
func (p *Parser) advance() {
	if !p.atEOF() {
		p.lastEnd = p.current().End
		p.pos++
	}
}

// attach adds a symbol to the current container: the open branch of the
// innermost block, the block itself before its first branch, or the root
// forest.
func (p *Parser) attach(s *symbol.Symbol) {
	if len(p.stack) > 0 {
		entry := &p.stack[len(p.stack)-1]
		if entry.branch != nil {
			entry.branch.AddChild(s)
		} else {
			entry.block.AddChild(s)
		}
		return
	}
	p.roots = append(p.roots, s)
}

// parseStream is the main token loop. Block keywords drive structure;
// everything else is expression content of the current container.
func (p *Parser) parseStream() {
	for !p.atEOF() {
		tok := p.current()
		switch {
		case tok.Type == token.IF || tok.Type == token.CASE:
			p.openBlock(tok)
		case token.IsBranchKeyword(tok.Type):
			p.openBranch(tok)
		case tok.Type == token.END:
			p.closeBlock(tok)
		default:
			p.parseExpressionToken()
		}
	}
}

// openBlock starts a new IF or CASE block at tok.
func (p *Parser) openBlock(tok token.Token) {
	blk := &symbol.Symbol{
		Name:  strings.ToUpper(tok.Literal),
		Kind:  symbol.KindConditionalBlock,
		Range: tok.Range(),
	}
	p.attach(blk)
	p.stack = append(p.stack, blockEntry{block: blk})
	p.advance()
}

// openBranch attaches a THEN/ELSEIF/ELSE/WHEN branch to the innermost open
// block. A branch keyword outside any block becomes a plain Keyword symbol;
// the diagnostics pass reports it.
func (p *Parser) openBranch(tok token.Token) {
	if len(p.stack) == 0 {
		p.attach(&symbol.Symbol{
			Name:  strings.ToUpper(tok.Literal),
			Kind:  symbol.KindKeyword,
			Range: tok.Range(),
		})
		p.advance()
		return
	}

	entry := &p.stack[len(p.stack)-1]

	// THEN after WHEN or ELSEIF is the result marker of that branch, not a
	// new branch: `WHEN "N" THEN 1` is one branch.
	if tok.Type == token.THEN && entry.branch != nil &&
		(entry.branch.Name == "WHEN" || entry.branch.Name == "ELSEIF") {
		p.advance()
		return
	}

	p.finishBranch(entry)
	branch := &symbol.Symbol{
		Name:  strings.ToUpper(tok.Literal),
		Kind:  symbol.KindBranch,
		Range: tok.Range(),
	}
	entry.block.AddChild(branch)
	entry.branch = branch
	p.advance()
}

// finishBranch seals the open branch's range at the last consumed token.
func (p *Parser) finishBranch(entry *blockEntry) {
	if entry.branch != nil {
		entry.branch.Range.End = p.lastEnd
		entry.branch = nil
	}
}

// closeBlock closes the innermost open block at an END token. A mismatched
// END (no open block) becomes a plain Keyword symbol for the diagnostics
// pass to report.
func (p *Parser) closeBlock(tok token.Token) {
	endSym := &symbol.Symbol{
		Name:  "END",
		Kind:  symbol.KindKeyword,
		Range: tok.Range(),
	}
	if len(p.stack) == 0 {
		p.attach(endSym)
		p.advance()
		return
	}

	entry := &p.stack[len(p.stack)-1]
	p.finishBranch(entry)
	entry.block.AddChild(endSym)
	entry.block.EndKeyword = endSym
	entry.block.Range.End = tok.End
	p.stack = p.stack[:len(p.stack)-1]
	p.advance()
}

// closeDanglingBlocks marks blocks still open at EOF as incomplete and
// seals their ranges at the last consumed token.
func (p *Parser) closeDanglingBlocks() {
	for i := len(p.stack) - 1; i >= 0; i-- {
		entry := &p.stack[i]
		p.finishBranch(entry)
		entry.block.Incomplete = true
		entry.block.Range.End = p.lastEnd
	}
	p.stack = nil
}

// parseExpressionToken handles one token of expression content.
func (p *Parser) parseExpressionToken() {
	tok := p.current()
	switch {
	case tok.Type == token.IDENT && p.peek().Type == token.LPAREN:
		p.attach(p.parseFunctionCall())
	case token.IsLogicalKeyword(tok.Type):
		// AND/OR/NOT/IN are keywords, never function calls, even
		// when followed by an opening parenthesis.
		p.attach(&symbol.Symbol{
			Name:  strings.ToUpper(tok.Literal),
			Kind:  symbol.KindKeyword,
			Range: tok.Range(),
		})
		p.advance()
	case tok.Type == token.LBRACE:
		p.attach(p.parseLodExpression())
	case tok.Type == token.FIELD:
		p.attach(&symbol.Symbol{
			Name:  tok.Literal,
			Kind:  symbol.KindFieldReference,
			Range: tok.Range(),
		})
		p.advance()
	case token.IsLiteral(tok.Type):
		p.attach(&symbol.Symbol{
			Name:  tok.Literal,
			Kind:  symbol.KindLiteral,
			Range: tok.Range(),
		})
		p.advance()
	case tok.Type == token.COMMENT:
		p.attach(&symbol.Symbol{
			Name:  tok.Literal,
			Kind:  symbol.KindComment,
			Range: tok.Range(),
		})
		p.advance()
	default:
		// operators, grouping parens, unexpected input: no symbol
		p.advance()
	}
}

// parseFunctionCall parses NAME ( args ) from the stream. Arguments are
// split on top-level commas, respecting nested parens, braces and string
// literals (strings are single tokens by the time they reach the parser).
// If the parentheses never balance, the argument list is left empty.
func (p *Parser) parseFunctionCall() *symbol.Symbol {
	nameTok := p.current()
	call := &symbol.Symbol{
		Name:  strings.ToUpper(nameTok.Literal),
		Kind:  symbol.KindFunctionCall,
		Range: nameTok.Range(),
	}
	p.advance() // name
	p.advance() // (

	depth := 1
	balanced := false
	var args []symbol.Argument
	var argStart, argEnd token.Position
	argOpen := false
	sawComma := false

	beginArg := func(pos token.Position) {
		if !argOpen {
			argStart = pos
			argOpen = true
		}
	}
	finishArg := func() {
		if argOpen {
			args = append(args, symbol.Argument{
				Range: token.Range{Start: argStart, End: argEnd},
			})
		} else {
			// empty slot between commas still counts as an argument
			args = append(args, symbol.Argument{})
		}
		argOpen = false
	}

	for {
		tok := p.current()
		if tok.Type == token.EOF || token.IsBlockKeyword(tok.Type) {
			// unbalanced call: stop before block structure is swallowed
			break
		}

		switch tok.Type {
		case token.RPAREN:
			depth--
			if depth == 0 {
				if argOpen || sawComma {
					finishArg()
				}
				call.Range.End = tok.End
				p.advance()
				balanced = true
			} else {
				argEnd = tok.End
				p.advance()
			}
		case token.LPAREN:
			depth++
			beginArg(tok.Pos)
			argEnd = tok.End
			p.advance()
		case token.COMMA:
			if depth == 1 {
				finishArg()
				sawComma = true
			} else {
				argEnd = tok.End
			}
			p.advance()
		case token.LBRACE:
			beginArg(tok.Pos)
			child := p.parseLodExpression()
			call.AddChild(child)
			argEnd = child.Range.End
		default:
			beginArg(tok.Pos)
			if tok.Type == token.IDENT && p.peek().Type == token.LPAREN {
				child := p.parseFunctionCall()
				call.AddChild(child)
				argEnd = child.Range.End
			} else {
				p.parseNestedExpressionToken(call)
				argEnd = p.lastEnd
			}
		}

		if balanced {
			break
		}
	}

	if !balanced {
		// arguments are unreliable when the parens never closed
		call.Arguments = nil
		call.Range.End = p.lastEnd
		call.Incomplete = true
		return call
	}

	for i := range args {
		args[i].Text = p.smap.slice(args[i].Range)
	}
	call.Arguments = args
	return call
}

// parseNestedExpressionToken attaches one token of expression content to a
// parent symbol (a function call or LOD body) instead of the container
// stack.
func (p *Parser) parseNestedExpressionToken(parent *symbol.Symbol) {
	tok := p.current()
	switch {
	case token.IsLogicalKeyword(tok.Type):
		parent.AddChild(&symbol.Symbol{
			Name:  strings.ToUpper(tok.Literal),
			Kind:  symbol.KindKeyword,
			Range: tok.Range(),
		})
	case tok.Type == token.FIELD:
		parent.AddChild(&symbol.Symbol{
			Name:  tok.Literal,
			Kind:  symbol.KindFieldReference,
			Range: tok.Range(),
		})
	case token.IsLiteral(tok.Type):
		parent.AddChild(&symbol.Symbol{
			Name:  tok.Literal,
			Kind:  symbol.KindLiteral,
			Range: tok.Range(),
		})
	}
	p.advance()
}

// parseLodExpression parses { FIXED|INCLUDE|EXCLUDE dims : aggregate }.
// Malformations are recorded on the symbol (missing type, colon or body)
// for the diagnostics pass.
func (p *Parser) parseLodExpression() *symbol.Symbol {
	lbrace := p.current()
	lod := &symbol.Symbol{
		Kind:  symbol.KindLodExpression,
		Range: lbrace.Range(),
	}
	p.advance() // {

	if token.IsLodKeyword(p.current().Type) {
		lod.Name = strings.ToUpper(p.current().Literal)
		p.advance()
	}

	for {
		tok := p.current()
		if tok.Type == token.EOF || token.IsBlockKeyword(tok.Type) {
			lod.Range.End = p.lastEnd
			lod.Incomplete = true
			return lod
		}

		switch tok.Type {
		case token.RBRACE:
			lod.Range.End = tok.End
			p.advance()
			return lod
		case token.COLON:
			lod.LodColon = true
			p.advance()
		case token.LBRACE:
			lod.AddChild(p.parseLodExpression())
		case token.COMMA:
			p.advance()
		default:
			if tok.Type == token.IDENT && p.peek().Type == token.LPAREN {
				child := p.parseFunctionCall()
				lod.AddChild(child)
				if lod.LodColon {
					lod.LodBody = true
				}
			} else {
				before := len(lod.Children)
				p.parseNestedExpressionToken(lod)
				if lod.LodColon && len(lod.Children) > before {
					lod.LodBody = true
				}
			}
		}
	}
}

// fillText sets each symbol's raw text slice from the source.
func (p *Parser) fillText(symbols []*symbol.Symbol) {
	symbol.WalkAll(symbols, func(s *symbol.Symbol) bool {
		s.Text = p.smap.slice(s.Range)
		return true
	})
}
