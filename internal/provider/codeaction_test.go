package provider

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

func actionTitles(actions []protocol.CodeAction) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Title)
	}
	return out
}

func TestAddMissingEndAction(t *testing.T) {
	p := testProviders()
	doc := testDocument("file:///a.twbl", `IF [Sales] > 100 THEN "High"`)

	actions := p.CodeActions(doc, protocol.Range{Start: at(1, 5), End: at(1, 5)})
	for _, action := range actions {
		if action.Title == "Add missing END" {
			edits := action.Edit.Changes[doc.URI]
			if len(edits) != 1 || !strings.Contains(edits[0].NewText, "END") {
				t.Fatalf("edit wrong: %+v", edits)
			}
			return
		}
	}
	t.Fatalf("expected the missing-END action, got %v", actionTitles(actions))
}

func TestNoMissingEndActionForCompleteBlock(t *testing.T) {
	p := testProviders()
	doc := testDocument("file:///a.twbl", `IF [Sales] > 100 THEN "High" END`)

	actions := p.CodeActions(doc, protocol.Range{Start: at(1, 5), End: at(1, 5)})
	for _, action := range actions {
		if action.Title == "Add missing END" {
			t.Fatal("complete block must not offer the missing-END action")
		}
	}
}

func TestWrapInZNAction(t *testing.T) {
	p := testProviders()
	doc := testDocument("file:///a.twbl", "SUM([Sales])")

	actions := p.CodeActions(doc, protocol.Range{Start: at(1, 1), End: at(1, 13)})
	for _, action := range actions {
		if action.Title == "Wrap in ZN()" {
			edits := action.Edit.Changes[doc.URI]
			if edits[0].NewText != "ZN(SUM([Sales]))" {
				t.Fatalf("wrap edit wrong: %q", edits[0].NewText)
			}
			return
		}
	}
	t.Fatalf("expected the ZN wrap action, got %v", actionTitles(actions))
}

func TestConvertIfToCase(t *testing.T) {
	p := testProviders()
	input := `IF [Region] = "N" THEN 1 ELSEIF [Region] = "S" THEN 2 ELSE 0 END`
	doc := testDocument("file:///a.twbl", input)

	actions := p.CodeActions(doc, protocol.Range{Start: at(1, 4), End: at(1, 4)})
	for _, action := range actions {
		if action.Title == "Convert IF to CASE" {
			text := action.Edit.Changes[doc.URI][0].NewText
			if !strings.HasPrefix(text, "CASE [Region]") {
				t.Fatalf("conversion wrong:\n%s", text)
			}
			if !strings.Contains(text, `WHEN "N" THEN 1`) || !strings.Contains(text, `WHEN "S" THEN 2`) {
				t.Fatalf("conversion arms wrong:\n%s", text)
			}
			if !strings.Contains(text, "ELSE 0") || !strings.HasSuffix(text, "END") {
				t.Fatalf("conversion tail wrong:\n%s", text)
			}
			return
		}
	}
	t.Fatalf("expected the IF→CASE action, got %v", actionTitles(actions))
}

func TestNoCaseConversionForMixedConditions(t *testing.T) {
	p := testProviders()
	input := `IF [Region] = "N" THEN 1 ELSEIF [Profit] > 0 THEN 2 ELSE 0 END`
	doc := testDocument("file:///a.twbl", input)

	actions := p.CodeActions(doc, protocol.Range{Start: at(1, 4), End: at(1, 4)})
	for _, action := range actions {
		if action.Title == "Convert IF to CASE" {
			t.Fatal("conditions over different fields must not convert")
		}
	}
}
