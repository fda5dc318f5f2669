package provider

import (
	"fmt"
	"sort"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/parser"
	"github.com/tabcalc/tablang/internal/symbol"
)

// Match quality scores; kind boosts break ties between sources.
const (
	scoreExact       = 1000
	scoreGlobalField = 0 // fields from other documents rank below local ones
	scorePrefix      = 800
	scoreSubsequence = 500
	scoreSubstring   = 300

	boostSnippet  = 50
	boostFunction = 40
	boostKeyword  = 30
	boostField    = 20
	boostOperator = 10
)

var completionKeywords = []string{
	"IF", "THEN", "ELSEIF", "ELSE", "END", "CASE", "WHEN",
	"AND", "OR", "NOT", "IN", "TRUE", "FALSE", "NULL",
	"FIXED", "INCLUDE", "EXCLUDE",
}

var completionOperators = []string{"+", "-", "*", "/", "%", "=", "==", "!=", "<", ">", "<=", ">="}

type candidate struct {
	item  protocol.CompletionItem
	kind  protocol.CompletionItemKind
	score int
}

// Completion computes completion items for the position. The line prefix
// selects one of three contexts: inside [...] offers field names only,
// after / offers snippet commands only, anything else offers the union of
// functions, keywords, fields, operators and snippets.
func (p *Providers) Completion(doc *cache.CachedDocument, pos protocol.Position) *protocol.CompletionList {
	line, column := fromLSP(pos)
	prefix := linePrefix(doc.Text, line, column)

	var candidates []candidate
	switch {
	case insideFieldReference(prefix):
		typed := afterLastBracket(prefix)
		candidates = p.fieldCandidates(doc, typed)
	case strings.HasPrefix(strings.TrimSpace(prefix), "/"):
		typed := strings.TrimPrefix(strings.TrimSpace(prefix), "/")
		candidates = p.snippetCandidates(typed)
	default:
		typed := trailingWord(prefix)
		candidates = append(candidates, p.functionCandidates(typed)...)
		candidates = append(candidates, keywordCandidates(typed)...)
		candidates = append(candidates, p.fieldCandidates(doc, typed)...)
		candidates = append(candidates, operatorCandidates(typed)...)
		candidates = append(candidates, p.snippetCandidates(typed)...)
	}

	candidates = dedupe(candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].item.Label < candidates[j].item.Label
	})

	maxItems := p.Config.Analysis.MaxCompletionItems
	incomplete := false
	if maxItems > 0 && len(candidates) > maxItems {
		candidates = candidates[:maxItems]
		incomplete = true
	}

	items := make([]protocol.CompletionItem, 0, len(candidates))
	for i := range candidates {
		item := candidates[i].item
		sortText := fmt.Sprintf("%04d", i)
		item.SortText = &sortText
		items = append(items, item)
	}

	return &protocol.CompletionList{
		IsIncomplete: incomplete,
		Items:        items,
	}
}

// insideFieldReference reports whether the cursor sits inside an open
// [...] on the current line.
func insideFieldReference(prefix string) bool {
	open := strings.LastIndex(prefix, "[")
	if open < 0 {
		return false
	}
	return !strings.Contains(prefix[open:], "]")
}

func afterLastBracket(prefix string) string {
	open := strings.LastIndex(prefix, "[")
	return prefix[open+1:]
}

// trailingWord extracts the partial identifier being typed at the end of
// the prefix.
func trailingWord(prefix string) string {
	end := len(prefix)
	start := end
	for start > 0 {
		ch := prefix[start-1]
		if ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9') {
			start--
			continue
		}
		break
	}
	return prefix[start:end]
}

func (p *Providers) functionCandidates(typed string) []candidate {
	var out []candidate
	kind := protocol.CompletionItemKindFunction
	for _, name := range p.Catalog.FunctionNames() {
		score := matchScore(name, typed)
		if score == 0 {
			continue
		}
		sig := p.Catalog.Lookup(name)
		insert := name + "($1)"
		format := protocol.InsertTextFormatSnippet
		if len(sig.Parameters) == 0 {
			insert = name + "()"
			format = protocol.InsertTextFormatPlainText
		}
		detail := sig.Label
		item := protocol.CompletionItem{
			Label:            name,
			Kind:             &kind,
			Detail:           &detail,
			InsertText:       &insert,
			InsertTextFormat: &format,
		}
		if sig.Description != "" {
			item.Documentation = protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: sig.Description,
			}
		}
		if sig.Deprecated != "" {
			deprecated := true
			item.Deprecated = &deprecated
		}
		out = append(out, candidate{item: item, kind: kind, score: score + boostFunction})
	}
	return out
}

func keywordCandidates(typed string) []candidate {
	var out []candidate
	kind := protocol.CompletionItemKindKeyword
	for _, keyword := range completionKeywords {
		score := matchScore(keyword, typed)
		if score == 0 {
			continue
		}
		out = append(out, candidate{
			item:  protocol.CompletionItem{Label: keyword, Kind: &kind},
			kind:  kind,
			score: score + boostKeyword,
		})
	}
	return out
}

// fieldCandidates offers field names seen in the current document first,
// then fields known from other open documents via the shared index.
func (p *Providers) fieldCandidates(doc *cache.CachedDocument, typed string) []candidate {
	var out []candidate
	kind := protocol.CompletionItemKindField

	local := make(map[string]bool)
	symbol.WalkAll(doc.Parsed.Symbols, func(s *symbol.Symbol) bool {
		if s.Kind == symbol.KindFieldReference {
			local[s.Name] = true
		}
		return true
	})

	add := func(name string, bonus int) {
		score := matchScore(name, typed)
		if score == 0 {
			return
		}
		insert := "[" + name + "]"
		detail := "Field"
		out = append(out, candidate{
			item: protocol.CompletionItem{
				Label:      insert,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &insert,
				FilterText: &insert,
			},
			kind:  kind,
			score: score + boostField + bonus,
		})
	}

	for name := range local {
		add(name, 5)
	}
	for _, name := range p.index.FieldNames() {
		if !local[name] {
			add(name, scoreGlobalField)
		}
	}
	return out
}

func operatorCandidates(typed string) []candidate {
	if typed != "" {
		return nil
	}
	var out []candidate
	kind := protocol.CompletionItemKindOperator
	for _, op := range completionOperators {
		out = append(out, candidate{
			item:  protocol.CompletionItem{Label: op, Kind: &kind},
			kind:  kind,
			score: scoreSubstring + boostOperator,
		})
	}
	return out
}

func (p *Providers) snippetCandidates(typed string) []candidate {
	var out []candidate
	kind := protocol.CompletionItemKindSnippet
	format := protocol.InsertTextFormatSnippet
	for _, snippet := range p.Catalog.Snippets() {
		score := matchScore(snippet.Prefix, typed)
		if score == 0 {
			continue
		}
		snippet := snippet
		item := protocol.CompletionItem{
			Label:            snippet.Prefix,
			Kind:             &kind,
			Detail:           &snippet.Description,
			InsertText:       &snippet.Body,
			InsertTextFormat: &format,
		}
		out = append(out, candidate{item: item, kind: kind, score: score + boostSnippet})
	}
	return out
}

// matchScore ranks label against the typed text: exact > prefix >
// subsequence > substring; zero means no match. An empty typed string
// matches everything at substring strength.
func matchScore(label, typed string) int {
	if typed == "" {
		return scoreSubstring
	}
	l := strings.ToUpper(label)
	t := strings.ToUpper(typed)
	switch {
	case l == t:
		return scoreExact
	case strings.HasPrefix(l, t):
		return scorePrefix
	case isSubsequence(t, l):
		return scoreSubsequence
	case strings.Contains(l, t):
		return scoreSubstring
	}
	return 0
}

// isSubsequence reports whether every rune of needle appears in order in
// haystack (fuzzy matching).
func isSubsequence(needle, haystack string) bool {
	runes := []rune(needle)
	if len(runes) == 0 {
		return true
	}
	i := 0
	for _, ch := range haystack {
		if runes[i] == ch {
			i++
			if i == len(runes) {
				return true
			}
		}
	}
	return false
}

// dedupe collapses duplicates by (label, kind), keeping the highest score.
func dedupe(candidates []candidate) []candidate {
	best := make(map[string]int) // key → index into out
	var out []candidate
	for _, c := range candidates {
		key := fmt.Sprintf("%s|%d", c.item.Label, c.kind)
		if i, ok := best[key]; ok {
			if c.score > out[i].score {
				out[i] = c
			}
			continue
		}
		best[key] = len(out)
		out = append(out, c)
	}
	return out
}

// linePrefix returns the text of the line up to the column (1-based,
// UTF-16 units).
func linePrefix(text string, line, column int) string {
	lines := parser.SplitLines(text)
	if line < 1 || line > len(lines) {
		return ""
	}
	content := lines[line-1]
	// walk to the column in UTF-16 units
	col := 1
	for i, r := range content {
		if col >= column {
			return content[:i]
		}
		if r >= 0x10000 {
			col += 2
		} else {
			col++
		}
	}
	return content
}
