package server

import (
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// applyChanges reconstructs document text from incremental content
// changes. Whole-document events replace the text; ranged events splice
// into it at UTF-16 positions.
func applyChanges(text string, changes []any) string {
	for _, change := range changes {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			text = c.Text
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				text = c.Text
				continue
			}
			start := byteOffsetAt(text, c.Range.Start)
			end := byteOffsetAt(text, c.Range.End)
			if start > len(text) {
				start = len(text)
			}
			if end > len(text) {
				end = len(text)
			}
			if start > end {
				start, end = end, start
			}
			text = text[:start] + c.Text + text[end:]
		}
	}
	return text
}

// byteOffsetAt converts a 0-based LSP position (UTF-16 character offset
// within its line) to a byte offset into text.
func byteOffsetAt(text string, pos protocol.Position) int {
	offset := 0
	line := 0
	for line < int(pos.Line) {
		next := strings.IndexByte(text[offset:], '\n')
		if next < 0 {
			return len(text)
		}
		offset += next + 1
		line++
	}

	units := 0
	for i, r := range text[offset:] {
		if units >= int(pos.Character) || r == '\n' {
			return offset + i
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return len(text)
}
