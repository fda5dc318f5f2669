package symbol

import (
	"fmt"

	"github.com/tabcalc/tablang/pkg/token"
)

// ParsedDocument is the analysis snapshot for one document: the symbol
// forest, its diagnostics and a derived line index. The line index maps a
// line number to the symbols starting on or intersecting that line and must
// be rebuilt whenever the symbol forest changes.
type ParsedDocument struct {
	Symbols     []*Symbol
	Diagnostics []Diagnostic
	lineIndex   map[int][]*Symbol
}

// NewParsedDocument builds a snapshot and its line index.
func NewParsedDocument(symbols []*Symbol, diagnostics []Diagnostic) *ParsedDocument {
	d := &ParsedDocument{
		Symbols:     symbols,
		Diagnostics: diagnostics,
	}
	d.RebuildLineIndex()
	return d
}

// RebuildLineIndex recomputes the line → symbols mapping from the current
// symbol forest. Every symbol appears under each line its range touches.
func (d *ParsedDocument) RebuildLineIndex() {
	index := make(map[int][]*Symbol)
	WalkAll(d.Symbols, func(s *Symbol) bool {
		for line := s.Range.Start.Line; line <= s.Range.End.Line; line++ {
			index[line] = append(index[line], s)
		}
		return true
	})
	d.lineIndex = index
}

// SymbolsOnLine returns the symbols starting on or intersecting the line.
func (d *ParsedDocument) SymbolsOnLine(line int) []*Symbol {
	return d.lineIndex[line]
}

// SymbolAt returns the innermost symbol containing the position, using the
// line index to restrict the search.
func (d *ParsedDocument) SymbolAt(line, column int) *Symbol {
	var best *Symbol
	for _, s := range d.lineIndex[line] {
		if !s.Contains(line, column) {
			continue
		}
		if best == nil || contains(best, s) {
			best = s
		}
	}
	return best
}

// contains reports whether inner lies strictly within outer's range.
func contains(outer, inner *Symbol) bool {
	if outer == inner {
		return false
	}
	o, i := outer.Range, inner.Range
	startsAfter := i.Start.Line > o.Start.Line ||
		(i.Start.Line == o.Start.Line && i.Start.Column >= o.Start.Column)
	endsBefore := i.End.Line < o.End.Line ||
		(i.End.Line == o.End.Line && i.End.Column <= o.End.Column)
	return startsAfter && endsBefore
}

// SymbolCount returns the number of symbols in the snapshot.
func (d *ParsedDocument) SymbolCount() int {
	return Count(d.Symbols)
}

// LineIndexSize returns the number of indexed lines; the memory manager
// uses it for its per-document size estimate.
func (d *ParsedDocument) LineIndexSize() int {
	return len(d.lineIndex)
}

// Verify checks the structural invariants of the symbol forest:
//
//  1. every non-incomplete conditional block has an END child lying
//     textually after all its branches;
//  2. Branch symbols occur only as children of a ConditionalBlock;
//  3. sibling ranges are non-empty, ascending and non-overlapping, and a
//     parent contains its children.
//
// The incremental driver falls back to a full parse when a splice would
// violate any of these.
func (d *ParsedDocument) Verify() error {
	return verifyForest(d.Symbols, nil)
}

func verifyForest(symbols []*Symbol, parent *Symbol) error {
	for i, s := range symbols {
		if s.Kind == KindBranch {
			if parent == nil || parent.Kind != KindConditionalBlock {
				return fmt.Errorf("branch %s outside a conditional block", s.Name)
			}
		}
		if s.Kind == KindConditionalBlock && !s.Incomplete {
			if s.EndKeyword == nil {
				return fmt.Errorf("block %s at line %d has no END and is not marked incomplete",
					s.Name, s.Range.Start.Line)
			}
			for _, child := range s.Children {
				if child.Kind == KindBranch && positionAfter(child.Range.Start, s.EndKeyword.Range.Start) {
					return fmt.Errorf("block %s has a branch after its END", s.Name)
				}
			}
		}
		if positionAfter(s.Range.Start, s.Range.End) {
			return fmt.Errorf("symbol %s has a negative range", s)
		}
		if i > 0 {
			prev := symbols[i-1]
			if positionAfter(prev.Range.End, s.Range.Start) {
				return fmt.Errorf("siblings %s and %s overlap", prev, s)
			}
		}
		for _, child := range s.Children {
			if positionAfter(s.Range.Start, child.Range.Start) || positionAfter(child.Range.End, s.Range.End) {
				return fmt.Errorf("child %s escapes parent %s", child, s)
			}
		}
		if err := verifyForest(s.Children, s); err != nil {
			return err
		}
	}
	return nil
}

func positionAfter(a, b token.Position) bool {
	if a.Line != b.Line {
		return a.Line > b.Line
	}
	return a.Column > b.Column
}
