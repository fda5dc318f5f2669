package provider

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

func labels(list *protocol.CompletionList) []string {
	out := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, item.Label)
	}
	return out
}

func TestCompletionInsideFieldReference(t *testing.T) {
	p := testProviders()
	doc := testDocument("file:///a.twbl", "[Sales] + [Profit] + [")

	list := p.Completion(doc, at(1, 23))
	if len(list.Items) == 0 {
		t.Fatal("expected field completions inside [")
	}
	for _, item := range list.Items {
		if item.Kind == nil || *item.Kind != protocol.CompletionItemKindField {
			t.Fatalf("inside [...] only fields are offered, got %v for %q", item.Kind, item.Label)
		}
	}
	found := false
	for _, label := range labels(list) {
		if label == "[Sales]" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected [Sales] among field completions, got %v", labels(list))
	}
}

func TestCompletionAfterSlashOffersSnippetsOnly(t *testing.T) {
	p := testProviders()
	doc := testDocument("file:///a.twbl", "/fix")

	list := p.Completion(doc, at(1, 5))
	if len(list.Items) == 0 {
		t.Fatal("expected snippet completions after /")
	}
	for _, item := range list.Items {
		if item.Kind == nil || *item.Kind != protocol.CompletionItemKindSnippet {
			t.Fatalf("after / only snippets are offered, got %v for %q", item.Kind, item.Label)
		}
	}
}

func TestCompletionGeneralContextMixesSources(t *testing.T) {
	p := testProviders()
	doc := testDocument("file:///a.twbl", "[Sales] + SU")

	list := p.Completion(doc, at(1, 13))
	kinds := map[protocol.CompletionItemKind]bool{}
	for _, item := range list.Items {
		if item.Kind != nil {
			kinds[*item.Kind] = true
		}
	}
	if !kinds[protocol.CompletionItemKindFunction] {
		t.Fatalf("expected function completions, got %v", labels(list))
	}

	// exact prefix match must rank SUM near the top
	top := labels(list)
	if len(top) > 3 {
		top = top[:3]
	}
	foundSum := false
	for _, label := range top {
		if label == "SUM" {
			foundSum = true
		}
	}
	if !foundSum {
		t.Fatalf("SUM should rank in the top results for prefix SU, got %v", labels(list))
	}
}

func TestCompletionExactBeatsPrefix(t *testing.T) {
	p := testProviders()
	doc := testDocument("file:///a.twbl", "SUM")

	list := p.Completion(doc, at(1, 4))
	if len(list.Items) == 0 {
		t.Fatal("expected completions")
	}
	if list.Items[0].Label != "SUM" {
		t.Fatalf("exact match must rank first, got %v", labels(list))
	}
}

func TestCompletionDeduplicates(t *testing.T) {
	p := testProviders()
	doc := testDocument("file:///a.twbl", "[Sales] + [Sales] + [Sales] + s")

	list := p.Completion(doc, at(1, 32))
	seen := map[string]int{}
	for _, item := range list.Items {
		key := item.Label
		if item.Kind != nil {
			key += "|" + string(rune(*item.Kind))
		}
		seen[key]++
	}
	for key, count := range seen {
		if count > 1 {
			t.Fatalf("duplicate completion %q offered %d times", key, count)
		}
	}
}

func TestCompletionCapSetsIncomplete(t *testing.T) {
	p := testProviders()
	p.Config.Analysis.MaxCompletionItems = 5
	doc := testDocument("file:///a.twbl", "")

	list := p.Completion(doc, at(1, 1))
	if len(list.Items) != 5 {
		t.Fatalf("expected the cap to bind at 5 items, got %d", len(list.Items))
	}
	if !list.IsIncomplete {
		t.Fatal("capped lists must set isIncomplete")
	}
}

func TestCompletionSnippetBodiesAreSnippets(t *testing.T) {
	p := testProviders()
	doc := testDocument("file:///a.twbl", "fixed")

	list := p.Completion(doc, at(1, 6))
	for _, item := range list.Items {
		if item.Kind != nil && *item.Kind == protocol.CompletionItemKindSnippet {
			if item.InsertTextFormat == nil || *item.InsertTextFormat != protocol.InsertTextFormatSnippet {
				t.Fatalf("snippet %q must use snippet insert format", item.Label)
			}
			if item.InsertText == nil || !strings.Contains(*item.InsertText, "${") {
				t.Fatalf("snippet %q should carry placeholder syntax", item.Label)
			}
			return
		}
	}
	t.Fatalf("expected a snippet for prefix 'fixed', got %v", labels(list))
}

func TestSubsequenceMatching(t *testing.T) {
	if !isSubsequence("WSUM", "WINDOW_SUM") {
		t.Fatal("WSUM should fuzzy-match WINDOW_SUM")
	}
	if isSubsequence("XYZ", "WINDOW_SUM") {
		t.Fatal("XYZ should not match WINDOW_SUM")
	}
	if !isSubsequence("", "ANYTHING") {
		t.Fatal("empty needle matches anything")
	}
}
