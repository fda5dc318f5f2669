package incremental

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/config"
	"github.com/tabcalc/tablang/internal/memory"
	"github.com/tabcalc/tablang/internal/parser"
	"github.com/tabcalc/tablang/internal/symbol"
)

func testDriver() (*Driver, *cache.DocumentCache) {
	documents := cache.New(50)
	memCfg := config.Default().Memory
	memCfg.CheckInterval = time.Hour
	manager := memory.New(documents, memCfg)
	driver := New(documents, manager, config.Default().Incremental, func(text string, symbols []*symbol.Symbol) []symbol.Diagnostic {
		return nil
	})
	return driver, documents
}

// bigDocument builds a document long enough to take the incremental path:
// one simple expression per line.
func bigDocument(lines int) string {
	var sb strings.Builder
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&sb, "[Field%d] + %d\n", i, i)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// summarize flattens a forest for structural comparison, ignoring UTF-16
// offsets (the splice path keeps them region-relative).
func summarize(symbols []*symbol.Symbol) []string {
	var out []string
	symbol.WalkAll(symbols, func(s *symbol.Symbol) bool {
		out = append(out, fmt.Sprintf("%s:%s@%d:%d-%d:%d",
			s.Kind, s.Name,
			s.Range.Start.Line, s.Range.Start.Column,
			s.Range.End.Line, s.Range.End.Column))
		return true
	})
	return out
}

func TestFullParseOnFirstVersion(t *testing.T) {
	driver, documents := testDriver()

	doc := driver.Analyze("file:///a.twbl", "[Sales] + 1", 1)
	require.NotNil(t, doc)
	assert.Equal(t, int32(1), doc.Version)

	cached, ok := documents.Get("file:///a.twbl")
	require.True(t, ok)
	assert.Equal(t, doc, cached)
}

func TestSameVersionReusesSnapshot(t *testing.T) {
	driver, _ := testDriver()

	first := driver.Analyze("file:///a.twbl", "[Sales] + 1", 1)
	second := driver.Analyze("file:///a.twbl", "[Sales] + 1", 1)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), second.AccessCount, "same-version analyze should only touch")
}

func TestStaleVersionIsIgnored(t *testing.T) {
	driver, _ := testDriver()

	driver.Analyze("file:///a.twbl", "[Sales] + 1", 5)
	doc := driver.Analyze("file:///a.twbl", "completely different", 3)
	assert.Equal(t, int32(5), doc.Version, "older versions must never replace newer ones")
	assert.Equal(t, "[Sales] + 1", doc.Text)
}

func TestIncrementalEquivalence(t *testing.T) {
	driver, _ := testDriver()

	text := bigDocument(80)
	driver.Analyze("file:///a.twbl", text, 1)

	// change one plain line in the middle
	lines := parser.SplitLines(text)
	lines[40] = "[Changed] + 999"
	edited := strings.Join(lines, "\n")

	doc := driver.Analyze("file:///a.twbl", edited, 2)
	assert.Equal(t, int32(2), doc.Version)
	assert.Equal(t, summarize(parser.Parse(edited)), summarize(doc.Parsed.Symbols),
		"incremental result must match a full re-parse")
	assert.Contains(t, doc.ChangedLines, 41)
	assert.Zero(t, driver.Fallbacks())
}

func TestBlockKeywordForcesFullParse(t *testing.T) {
	driver, _ := testDriver()

	text := bigDocument(80)
	driver.Analyze("file:///a.twbl", text, 1)

	lines := parser.SplitLines(text)
	lines[40] = "IF [Changed] > 0 THEN 1 END"
	edited := strings.Join(lines, "\n")

	doc := driver.Analyze("file:///a.twbl", edited, 2)
	assert.Equal(t, summarize(parser.Parse(edited)), summarize(doc.Parsed.Symbols))
}

func TestShortDocumentAlwaysFullParses(t *testing.T) {
	driver, _ := testDriver()

	driver.Analyze("file:///a.twbl", "[A] + 1\n[B] + 2", 1)
	doc := driver.Analyze("file:///a.twbl", "[A] + 1\n[C] + 3", 2)
	assert.Equal(t, summarize(parser.Parse("[A] + 1\n[C] + 3")), summarize(doc.Parsed.Symbols))
}

func TestLineCountChangeFullParses(t *testing.T) {
	driver, _ := testDriver()

	text := bigDocument(80)
	driver.Analyze("file:///a.twbl", text, 1)

	edited := text + "\n[Appended] + 1"
	doc := driver.Analyze("file:///a.twbl", edited, 2)
	assert.Equal(t, summarize(parser.Parse(edited)), summarize(doc.Parsed.Symbols))
}

func TestManyChangedLinesFullParse(t *testing.T) {
	driver, _ := testDriver()

	text := bigDocument(80)
	driver.Analyze("file:///a.twbl", text, 1)

	lines := parser.SplitLines(text)
	for i := 10; i < 50; i++ {
		lines[i] = fmt.Sprintf("[Rewritten%d] * 2", i)
	}
	edited := strings.Join(lines, "\n")

	doc := driver.Analyze("file:///a.twbl", edited, 2)
	assert.Equal(t, summarize(parser.Parse(edited)), summarize(doc.Parsed.Symbols))
}

func TestCommitHookFires(t *testing.T) {
	driver, _ := testDriver()

	var committed []string
	driver.OnCommit(func(uri string, version int32) {
		committed = append(committed, fmt.Sprintf("%s@%d", uri, version))
	})

	driver.Analyze("file:///a.twbl", "[Sales]", 1)
	driver.Analyze("file:///a.twbl", "[Sales] + 1", 2)

	assert.Equal(t, []string{"file:///a.twbl@1", "file:///a.twbl@2"}, committed)
}

func TestDiagnosticsRecomputedOnEveryCommit(t *testing.T) {
	documents := cache.New(50)
	memCfg := config.Default().Memory
	memCfg.CheckInterval = time.Hour
	manager := memory.New(documents, memCfg)

	calls := 0
	driver := New(documents, manager, config.Default().Incremental, func(text string, symbols []*symbol.Symbol) []symbol.Diagnostic {
		calls++
		return []symbol.Diagnostic{{Message: "marker"}}
	})

	doc := driver.Analyze("file:///a.twbl", "[Sales]", 1)
	require.Len(t, doc.Parsed.Diagnostics, 1)

	text := bigDocument(80)
	driver.Analyze("file:///a.twbl", text, 2)

	lines := parser.SplitLines(text)
	lines[40] = "[Changed] + 999"
	driver.Analyze("file:///a.twbl", strings.Join(lines, "\n"), 3)

	assert.Equal(t, 3, calls, "diagnostics run from scratch on every commit, splice included")
}
