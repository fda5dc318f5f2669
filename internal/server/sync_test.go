package server

import (
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

func rangeAt(startLine, startChar, endLine, endChar uint32) *protocol.Range {
	return &protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(startLine), Character: protocol.UInteger(startChar)},
		End:   protocol.Position{Line: protocol.UInteger(endLine), Character: protocol.UInteger(endChar)},
	}
}

func TestApplyWholeDocumentChange(t *testing.T) {
	got := applyChanges("old", []any{
		protocol.TextDocumentContentChangeEventWhole{Text: "new text"},
	})
	if got != "new text" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyRangedInsert(t *testing.T) {
	got := applyChanges("[Sales]", []any{
		protocol.TextDocumentContentChangeEvent{
			Range: rangeAt(0, 7, 0, 7),
			Text:  " + 1",
		},
	})
	if got != "[Sales] + 1" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyRangedReplaceAcrossLines(t *testing.T) {
	got := applyChanges("line one\nline two\nline three", []any{
		protocol.TextDocumentContentChangeEvent{
			Range: rangeAt(0, 5, 2, 5),
			Text:  "X",
		},
	})
	if got != "line Xthree" {
		t.Fatalf("got %q", got)
	}
}

func TestApplySequentialChanges(t *testing.T) {
	got := applyChanges("abc", []any{
		protocol.TextDocumentContentChangeEvent{Range: rangeAt(0, 3, 0, 3), Text: "d"},
		protocol.TextDocumentContentChangeEvent{Range: rangeAt(0, 0, 0, 1), Text: ""},
	})
	if got != "bcd" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyChangeWithUTF16Positions(t *testing.T) {
	// the emoji counts as two UTF-16 units, so the literal 1 sits at
	// character 7, not 6
	got := applyChanges("'🚀' + 1", []any{
		protocol.TextDocumentContentChangeEvent{
			Range: rangeAt(0, 7, 0, 8),
			Text:  "2",
		},
	})
	if got != "'🚀' + 2" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyChangeWithNilRangeReplacesAll(t *testing.T) {
	got := applyChanges("old", []any{
		protocol.TextDocumentContentChangeEvent{Text: "replacement"},
	})
	if got != "replacement" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyChangeClampsOutOfRange(t *testing.T) {
	got := applyChanges("ab", []any{
		protocol.TextDocumentContentChangeEvent{
			Range: rangeAt(5, 0, 6, 0),
			Text:  "!",
		},
	})
	if got != "ab!" {
		t.Fatalf("got %q", got)
	}
}
