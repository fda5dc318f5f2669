package lexer

import (
	"testing"

	"github.com/tabcalc/tablang/pkg/token"
)

func TestNextToken(t *testing.T) {
	input := `IF [Sales] > 100 THEN "High" ELSE "Low" END`

	tests := []struct {
		expectedLiteral string
		expectedType    token.TokenType
	}{
		{"IF", token.IF},
		{"Sales", token.FIELD},
		{">", token.GREATER},
		{"100", token.NUMBER},
		{"THEN", token.THEN},
		{`"High"`, token.STRING},
		{"ELSE", token.ELSE},
		{`"Low"`, token.STRING},
		{"END", token.END},
		{"", token.EOF},
	}

	l := New(input)

	for i, tt := range tests {
		tok := l.NextToken()

		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (literal=%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}

		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestKeywordsCaseInsensitive(t *testing.T) {
	input := `if Then ELSEIF else end CASE when and OR not In fixed INCLUDE exclude true FALSE null`

	expected := []token.TokenType{
		token.IF, token.THEN, token.ELSEIF, token.ELSE, token.END,
		token.CASE, token.WHEN, token.AND, token.OR, token.NOT, token.IN,
		token.FIXED, token.INCLUDE, token.EXCLUDE,
		token.TRUE, token.FALSE, token.NULL,
		token.EOF,
	}

	l := New(input)
	for i, want := range expected {
		tok := l.NextToken()
		if tok.Type != want {
			t.Fatalf("tokens[%d] - expected %q, got %q (literal=%q)", i, want, tok.Type, tok.Literal)
		}
	}
}

func TestOperators(t *testing.T) {
	tests := []struct {
		input        string
		expectedType token.TokenType
	}{
		{"+", token.PLUS},
		{"-", token.MINUS},
		{"*", token.ASTERISK},
		{"/", token.SLASH},
		{"%", token.PERCENT},
		{"^", token.CARET},
		{"=", token.EQ},
		{"==", token.EQ_EQ},
		{"!=", token.NOT_EQ},
		{"<", token.LESS},
		{">", token.GREATER},
		{"<=", token.LESS_EQ},
		{">=", token.GREATER_EQ},
	}

	for _, tt := range tests {
		l := New(tt.input)
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Errorf("input %q - expected %q, got %q", tt.input, tt.expectedType, tok.Type)
		}
		if tok.Literal != tt.input {
			t.Errorf("input %q - literal wrong, got %q", tt.input, tok.Literal)
		}
		if next := l.NextToken(); next.Type != token.EOF {
			t.Errorf("input %q - expected EOF after operator, got %q", tt.input, next.Type)
		}
	}
}

func TestBareExclamationIsUnexpected(t *testing.T) {
	l := New("!")
	tok := l.NextToken()
	if tok.Type != token.UNEXPECTED {
		t.Fatalf("expected UNEXPECTED, got %q", tok.Type)
	}
	if len(l.Errors()) != 1 {
		t.Fatalf("expected one scan error, got %d", len(l.Errors()))
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0", "0"},
		{"123", "123"},
		{"123.45", "123.45"},
		{"0.5", "0.5"},
	}

	for _, tt := range tests {
		l := New(tt.input)
		tok := l.NextToken()
		if tok.Type != token.NUMBER {
			t.Errorf("input %q - expected NUMBER, got %q", tt.input, tok.Type)
		}
		if tok.Literal != tt.expected {
			t.Errorf("input %q - literal wrong, got %q", tt.input, tok.Literal)
		}
	}
}

func TestNumberWithoutTrailingDigitsStopsAtDot(t *testing.T) {
	l := New("123.foo")
	tok := l.NextToken()
	if tok.Type != token.NUMBER || tok.Literal != "123" {
		t.Fatalf("expected NUMBER 123, got %q %q", tok.Type, tok.Literal)
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		input   string
		literal string
	}{
		{`'hello'`, `'hello'`},
		{`"hello"`, `"hello"`},
		{`'it\'s'`, `'it\'s'`},
		{`"a \" quote"`, `"a \" quote"`},
		{`'mixed "quotes"'`, `'mixed "quotes"'`},
	}

	for _, tt := range tests {
		l := New(tt.input)
		tok := l.NextToken()
		if tok.Type != token.STRING {
			t.Errorf("input %q - expected STRING, got %q", tt.input, tok.Type)
			continue
		}
		if tok.Literal != tt.literal {
			t.Errorf("input %q - literal wrong, got %q", tt.input, tok.Literal)
		}
	}
}

func TestUnterminatedStringNeverAborts(t *testing.T) {
	l := New("'never closed")
	tok := l.NextToken()
	if tok.Type != token.UNEXPECTED {
		t.Fatalf("expected UNEXPECTED, got %q", tok.Type)
	}
	if len(l.Errors()) == 0 {
		t.Fatal("expected a scan error for the unterminated string")
	}
	if next := l.NextToken(); next.Type != token.EOF {
		t.Fatalf("expected EOF after unterminated string, got %q", next.Type)
	}
}

func TestFieldReferences(t *testing.T) {
	l := New("[Sales] [Order Date]")

	tok := l.NextToken()
	if tok.Type != token.FIELD || tok.Literal != "Sales" {
		t.Fatalf("expected FIELD Sales, got %q %q", tok.Type, tok.Literal)
	}

	tok = l.NextToken()
	if tok.Type != token.FIELD || tok.Literal != "Order Date" {
		t.Fatalf("expected FIELD with spaces preserved, got %q %q", tok.Type, tok.Literal)
	}
}

func TestUnterminatedFieldReference(t *testing.T) {
	l := New("[Sales")
	tok := l.NextToken()
	if tok.Type != token.UNEXPECTED {
		t.Fatalf("expected UNEXPECTED, got %q", tok.Type)
	}
	if tok.Literal != "[Sales" {
		t.Fatalf("expected literal to span to EOF, got %q", tok.Literal)
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	input := "1 // line comment\n/* block\ncomment */ 2"
	l := New(input)

	tok := l.NextToken()
	if tok.Type != token.NUMBER || tok.Literal != "1" {
		t.Fatalf("expected NUMBER 1, got %q %q", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != token.NUMBER || tok.Literal != "2" {
		t.Fatalf("expected NUMBER 2 after comments, got %q %q", tok.Type, tok.Literal)
	}
}

func TestPreserveComments(t *testing.T) {
	l := New("// hello\n1", WithPreserveComments(true))
	tok := l.NextToken()
	if tok.Type != token.COMMENT || tok.Literal != "// hello" {
		t.Fatalf("expected COMMENT, got %q %q", tok.Type, tok.Literal)
	}
}

func TestUnterminatedBlockComment(t *testing.T) {
	l := New("/* never closed")
	tok := l.NextToken()
	if tok.Type != token.EOF {
		t.Fatalf("expected EOF, got %q", tok.Type)
	}
	if len(l.Errors()) != 1 {
		t.Fatalf("expected one scan error, got %d", len(l.Errors()))
	}
}

func TestPositions(t *testing.T) {
	input := "IF x\n  [Sales]"
	l := New(input)

	tok := l.NextToken() // IF
	if tok.Pos.Line != 1 || tok.Pos.Column != 1 || tok.Pos.Offset != 0 {
		t.Fatalf("IF position wrong: %+v", tok.Pos)
	}
	tok = l.NextToken() // x
	if tok.Pos.Line != 1 || tok.Pos.Column != 4 {
		t.Fatalf("x position wrong: %+v", tok.Pos)
	}
	tok = l.NextToken() // [Sales]
	if tok.Pos.Line != 2 || tok.Pos.Column != 3 {
		t.Fatalf("[Sales] position wrong: %+v", tok.Pos)
	}
	if tok.End.Column != 10 {
		t.Fatalf("[Sales] end column wrong: %+v", tok.End)
	}
}

func TestUTF16Offsets(t *testing.T) {
	// the emoji is a single rune but two UTF-16 code units
	input := "'🚀' + 1"
	l := New(input)

	str := l.NextToken()
	if str.Type != token.STRING {
		t.Fatalf("expected STRING, got %q", str.Type)
	}
	// quote + surrogate pair + quote = 4 UTF-16 units
	if got := str.End.Offset - str.Pos.Offset; got != 4 {
		t.Fatalf("expected string to span 4 UTF-16 units, got %d", got)
	}

	plus := l.NextToken()
	if plus.Type != token.PLUS {
		t.Fatalf("expected PLUS, got %q", plus.Type)
	}
	if plus.Pos.Column != 6 {
		t.Fatalf("expected PLUS at UTF-16 column 6, got %d", plus.Pos.Column)
	}
}

func TestBOMIsStripped(t *testing.T) {
	l := New("\xEF\xBB\xBF1")
	tok := l.NextToken()
	if tok.Type != token.NUMBER || tok.Literal != "1" {
		t.Fatalf("expected NUMBER 1 after BOM, got %q %q", tok.Type, tok.Literal)
	}
}

func TestTokenizeAlwaysTerminates(t *testing.T) {
	inputs := []string{
		"",
		"   \t\n  ",
		"'unterminated",
		"[unterminated",
		"/* unterminated",
		"@#$&",
		"IF IF IF (((",
	}

	for _, input := range inputs {
		toks := Tokenize(input)
		if len(toks) == 0 {
			t.Fatalf("input %q - no tokens returned", input)
		}
		if toks[len(toks)-1].Type != token.EOF {
			t.Fatalf("input %q - token stream does not end in EOF", input)
		}
	}
}
