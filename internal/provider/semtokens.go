package provider

import (
	"strings"
	"unicode/utf16"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/lexer"
	"github.com/tabcalc/tablang/pkg/token"
)

// SemanticTokenTypes is the legend advertised in the server capabilities.
// Token type indices in the encoded data refer to this order.
var SemanticTokenTypes = []string{
	"keyword", "function", "variable", "constant", "operator", "string", "comment",
}

const (
	semKeyword = iota
	semFunction
	semVariable
	semConstant
	semOperator
	semString
	semComment
)

// SemanticTokens re-runs the lexer over the document and encodes every
// non-trivia token for highlighting. Identifiers map to "function" exactly
// when the catalogue knows the uppercased name, otherwise to "variable".
func (p *Providers) SemanticTokens(doc *cache.CachedDocument) *protocol.SemanticTokens {
	cacheKey := "semanticTokens"
	if cached, ok := p.derived.get(doc.URI, doc.Version, cacheKey); ok {
		if out, ok := cached.(*protocol.SemanticTokens); ok {
			return out
		}
	}

	var data []protocol.UInteger
	prevLine, prevCol := 1, 1

	emit := func(line, col, length, tokenType int) {
		if length <= 0 {
			return
		}
		deltaLine := line - prevLine
		deltaCol := col - 1
		if deltaLine == 0 {
			deltaCol = col - prevCol
		}
		data = append(data,
			protocol.UInteger(deltaLine),
			protocol.UInteger(deltaCol),
			protocol.UInteger(length),
			protocol.UInteger(tokenType),
			0)
		prevLine, prevCol = line, col
	}

	lex := lexer.New(doc.Text, lexer.WithPreserveComments(true))
	for {
		tok := lex.NextToken()
		if tok.Type == token.EOF {
			break
		}
		tokenType, ok := p.semanticType(tok)
		if !ok {
			continue
		}
		// split multi-line lexemes; a semantic token must not cross lines
		if tok.End.Line > tok.Pos.Line {
			raw := rawText(tok)
			line := tok.Pos.Line
			col := tok.Pos.Column
			for _, part := range strings.Split(raw, "\n") {
				emit(line, col, utf16Length(part), tokenType)
				line++
				col = 1
			}
			continue
		}
		emit(tok.Pos.Line, tok.Pos.Column, tok.End.Offset-tok.Pos.Offset, tokenType)
	}

	out := &protocol.SemanticTokens{Data: data}
	p.derived.put(doc.URI, doc.Version, cacheKey, out)
	return out
}

// semanticType maps a lexical token to a legend index.
func (p *Providers) semanticType(tok token.Token) (int, bool) {
	switch {
	case tok.Type == token.COMMENT:
		return semComment, true
	case tok.Type == token.STRING:
		return semString, true
	case tok.Type == token.NUMBER, tok.Type == token.TRUE, tok.Type == token.FALSE, tok.Type == token.NULL:
		return semConstant, true
	case tok.Type == token.FIELD:
		return semVariable, true
	case tok.Type == token.IDENT:
		if p.Catalog.Has(tok.Literal) {
			return semFunction, true
		}
		return semVariable, true
	case token.IsKeyword(tok.Type):
		return semKeyword, true
	case token.IsBinaryOperator(tok.Type):
		return semOperator, true
	default:
		return 0, false
	}
}

// rawText reconstructs the raw text of a token. FIELD literals drop their
// brackets during scanning; everything else keeps its raw text.
func rawText(tok token.Token) string {
	if tok.Type == token.FIELD {
		return "[" + tok.Literal + "]"
	}
	return tok.Literal
}

func utf16Length(s string) int {
	return len(utf16.Encode([]rune(s)))
}
