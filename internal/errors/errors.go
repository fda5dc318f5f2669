// Package errors renders analysis diagnostics for terminal output with
// source context and a caret pointing at the offending location. The CLI
// subcommands use it; the LSP path reports diagnostics over the wire
// instead.
package errors

import (
	"fmt"
	"strings"

	"github.com/tabcalc/tablang/internal/symbol"
)

// Render formats one diagnostic with its source line and a caret.
// If color is true, ANSI color codes are used for terminal output.
func Render(d symbol.Diagnostic, source, file string, color bool) string {
	var sb strings.Builder

	if file != "" {
		sb.WriteString(fmt.Sprintf("%s in %s:%d:%d\n", d.Severity, file, d.Range.Start.Line, d.Range.Start.Column))
	} else {
		sb.WriteString(fmt.Sprintf("%s at line %d:%d\n", d.Severity, d.Range.Start.Line, d.Range.Start.Column))
	}

	sourceLine := getSourceLine(source, d.Range.Start.Line)
	if sourceLine != "" {
		lineNumStr := fmt.Sprintf("%4d | ", d.Range.Start.Line)
		sb.WriteString(lineNumStr)
		sb.WriteString(sourceLine)
		sb.WriteString("\n")

		pad := len(lineNumStr) + d.Range.Start.Column - 1
		if pad < 0 {
			pad = 0
		}
		sb.WriteString(strings.Repeat(" ", pad))
		if color {
			sb.WriteString("\033[1;31m")
		}
		sb.WriteString("^")
		if color {
			sb.WriteString("\033[0m")
		}
		sb.WriteString("\n")
	}

	if color {
		sb.WriteString("\033[1m")
	}
	sb.WriteString(d.Message)
	if color {
		sb.WriteString("\033[0m")
	}
	return sb.String()
}

// RenderAll formats multiple diagnostics, each with source context.
func RenderAll(diagnostics []symbol.Diagnostic, source, file string, color bool) string {
	if len(diagnostics) == 0 {
		return ""
	}
	if len(diagnostics) == 1 {
		return Render(diagnostics[0], source, file, color)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d finding(s):\n\n", len(diagnostics)))
	for i, d := range diagnostics {
		sb.WriteString(fmt.Sprintf("[%d of %d]\n", i+1, len(diagnostics)))
		sb.WriteString(Render(d, source, file, color))
		if i < len(diagnostics)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// getSourceLine extracts a specific line from the source code.
// Lines are 1-indexed.
func getSourceLine(source string, lineNum int) string {
	if source == "" {
		return ""
	}
	lines := strings.Split(source, "\n")
	if lineNum < 1 || lineNum > len(lines) {
		return ""
	}
	return strings.TrimSuffix(lines[lineNum-1], "\r")
}
