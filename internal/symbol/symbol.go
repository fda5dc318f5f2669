// Package symbol defines the parse tree produced by the TabCalc parser:
// symbols, diagnostics and the per-document analysis snapshot consumed by
// the feature providers.
package symbol

import (
	"fmt"

	"github.com/tabcalc/tablang/pkg/token"
)

// Kind discriminates symbol node types. Provider dispatch on Kind is a
// closed switch, not virtual dispatch.
type Kind int

const (
	KindCalculationRoot Kind = iota
	KindKeyword
	KindConditionalBlock
	KindBranch
	KindFunctionCall
	KindFieldReference
	KindLodExpression
	KindExpression
	KindLiteral
	KindComment
)

var kindNames = map[Kind]string{
	KindCalculationRoot:  "CalculationRoot",
	KindKeyword:          "Keyword",
	KindConditionalBlock: "ConditionalBlock",
	KindBranch:           "Branch",
	KindFunctionCall:     "FunctionCall",
	KindFieldReference:   "FieldReference",
	KindLodExpression:    "LodExpression",
	KindExpression:       "Expression",
	KindLiteral:          "Literal",
	KindComment:          "Comment",
}

// String returns the name of the symbol kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Argument is one argument of a function call: its raw text and span.
type Argument struct {
	Text  string
	Range token.Range
}

// Symbol is a node of the parse tree. Ownership is strictly by the parent's
// Children slice; Parent and EndKeyword are non-owning back-pointers and
// must never be treated as owning references.
type Symbol struct {
	Name       string // uppercased where applicable (keywords, function names)
	Kind       Kind
	Range      token.Range
	Text       string     // raw source slice
	Arguments  []Argument // function calls only
	Children   []*Symbol
	Parent     *Symbol // non-owning
	EndKeyword *Symbol // non-owning; END child of a block
	Incomplete bool    // block whose END was never seen, or construct cut off at EOF
	TypeHint   string  // catalogue type annotation, when known

	// LOD expression payload
	LodColon bool // a top-level colon was seen
	LodBody  bool // an aggregation expression follows the colon
}

// AddChild appends a child and sets its non-owning parent pointer.
func (s *Symbol) AddChild(child *Symbol) {
	child.Parent = s
	s.Children = append(s.Children, child)
}

// Contains reports whether the symbol's range contains the position.
func (s *Symbol) Contains(line, column int) bool {
	return s.Range.Contains(line, column)
}

// Depth returns the nesting depth of the symbol counted over enclosing
// conditional blocks and LOD expressions.
func (s *Symbol) Depth() int {
	depth := 0
	for p := s.Parent; p != nil; p = p.Parent {
		if p.Kind == KindConditionalBlock || p.Kind == KindLodExpression {
			depth++
		}
	}
	return depth
}

// String returns a compact debug representation.
func (s *Symbol) String() string {
	return fmt.Sprintf("%s(%s)@%d:%d", s.Kind, s.Name, s.Range.Start.Line, s.Range.Start.Column)
}

// Walk visits the symbol and all descendants in document order.
// Returning false from fn stops descent into that subtree.
func (s *Symbol) Walk(fn func(*Symbol) bool) {
	if !fn(s) {
		return
	}
	for _, child := range s.Children {
		child.Walk(fn)
	}
}

// WalkAll visits every symbol in the forest in document order.
func WalkAll(symbols []*Symbol, fn func(*Symbol) bool) {
	for _, s := range symbols {
		s.Walk(fn)
	}
}

// Count returns the total number of symbols in the forest.
func Count(symbols []*Symbol) int {
	n := 0
	WalkAll(symbols, func(*Symbol) bool {
		n++
		return true
	})
	return n
}

// Innermost returns the deepest symbol whose range contains the position,
// or nil when no symbol does.
func Innermost(symbols []*Symbol, line, column int) *Symbol {
	var best *Symbol
	WalkAll(symbols, func(s *Symbol) bool {
		if !s.Contains(line, column) {
			// children are contained in the parent; no need to descend
			return false
		}
		best = s
		return true
	})
	return best
}

// InnermostBlock returns the deepest conditional block containing the
// position. When a cursor sits inside nested IF/CASE blocks the innermost
// block wins.
func InnermostBlock(symbols []*Symbol, line, column int) *Symbol {
	var best *Symbol
	WalkAll(symbols, func(s *Symbol) bool {
		if !s.Contains(line, column) {
			return false
		}
		if s.Kind == KindConditionalBlock {
			best = s
		}
		return true
	})
	return best
}
