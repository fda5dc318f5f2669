// Package incremental implements the analysis driver: on each document
// version it decides between a full parse and a region reparse, splices
// region symbols into the prior snapshot, and commits the result to the
// document cache.
package incremental

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/config"
	"github.com/tabcalc/tablang/internal/memory"
	"github.com/tabcalc/tablang/internal/parser"
	"github.com/tabcalc/tablang/internal/symbol"
)

// DiagnosticsFunc recomputes the full diagnostics for a document. The
// driver calls it after every commit; diagnostics are cheap relative to
// parsing and must reflect cross-region effects, so they are always
// computed from the complete text and tree.
type DiagnosticsFunc func(text string, symbols []*symbol.Symbol) []symbol.Diagnostic

// CommitHook observes committed analyses; providers subscribe to it to
// invalidate their per-document result caches.
type CommitHook func(uri string, version int32)

// Driver owns all mutation of the document cache's analysis state.
// Versions for a given URI are processed in strict ascending order.
type Driver struct {
	documents *cache.DocumentCache
	manager   *memory.Manager
	cfg       config.Incremental
	diagnose  DiagnosticsFunc
	log       commonlog.Logger

	mu        sync.Mutex // serializes analysis; the cache stays readable throughout
	hooks     []CommitHook
	fallbacks atomic.Int64
	splices   atomic.Int64
}

// New creates a Driver.
func New(documents *cache.DocumentCache, manager *memory.Manager, cfg config.Incremental, diagnose DiagnosticsFunc) *Driver {
	return &Driver{
		documents: documents,
		manager:   manager,
		cfg:       cfg,
		diagnose:  diagnose,
		log:       commonlog.GetLogger("tablang.incremental"),
	}
}

// OnCommit registers a post-commit hook. Hooks run synchronously after the
// cache holds the new snapshot.
func (d *Driver) OnCommit(hook CommitHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, hook)
}

// Fallbacks returns how many times a region reparse was abandoned for a
// full parse, either because splice refused the region or because the
// spliced tree violated an invariant.
func (d *Driver) Fallbacks() int64 {
	return d.fallbacks.Load()
}

// Analyze processes one document version and returns the committed
// snapshot. Stale versions (older than the cached one) return the cached
// snapshot untouched.
func (d *Driver) Analyze(uri, text string, version int32) *cache.CachedDocument {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.documents.Get(uri)
	if ok && version == prev.Version {
		d.documents.Touch(uri)
		return prev
	}
	if ok && version < prev.Version {
		d.log.Debugf("ignoring stale version %d for %s (cached %d)", version, uri, prev.Version)
		return prev
	}

	var symbols []*symbol.Symbol
	var changed map[int]struct{}

	if ok {
		symbols, changed = d.reuseOrReparse(prev, text)
	}
	if symbols == nil {
		symbols = parser.Parse(text)
	}

	diagnostics := d.diagnose(text, symbols)

	doc := &cache.CachedDocument{
		URI:          uri,
		Text:         text,
		Version:      version,
		Parsed:       symbol.NewParsedDocument(symbols, diagnostics),
		LastAccess:   time.Now(),
		Active:       true,
		ChangedLines: changed,
	}
	if ok {
		doc.AccessCount = prev.AccessCount + 1
		doc.Active = prev.Active
	}

	d.manager.Observe(doc)
	d.documents.Put(doc)

	for _, hook := range d.hooks {
		hook(uri, version)
	}
	return doc
}

// reuseOrReparse attempts the incremental path against the prior snapshot.
// It returns nil symbols when a full parse is required.
func (d *Driver) reuseOrReparse(prev *cache.CachedDocument, text string) ([]*symbol.Symbol, map[int]struct{}) {
	newLines := parser.SplitLines(text)
	if len(newLines) < d.cfg.MinLines {
		return nil, nil
	}

	oldLines := parser.SplitLines(prev.Text)
	if len(oldLines) != len(newLines) {
		// a changed line count shifts every following range; the splice
		// cannot preserve the invariants, so take the full parse
		return nil, nil
	}

	changed := diffLines(oldLines, newLines)
	if len(changed) == 0 {
		return prev.Parsed.Symbols, nil
	}
	if float64(len(changed)) > d.cfg.ChangedLineRatio*float64(len(newLines)) {
		return nil, changedSet(changed)
	}

	for _, line := range changed {
		if parser.LineHasBlockKeyword(oldLines[line-1]) || parser.LineHasBlockKeyword(newLines[line-1]) {
			return nil, changedSet(changed)
		}
		if parser.LineOpensContinuation(oldLines[line-1]) || parser.LineOpensContinuation(newLines[line-1]) {
			return nil, changedSet(changed)
		}
	}

	start := changed[0] - d.cfg.ContextWindow
	end := changed[len(changed)-1] + d.cfg.ContextWindow
	if start < 1 {
		start = 1
	}
	if end > len(newLines) {
		end = len(newLines)
	}

	// a continuation flowing into the region from above means the region
	// boundary would cut a multi-line span
	if start > 1 && parser.LineOpensContinuation(newLines[start-2]) {
		return nil, changedSet(changed)
	}

	spliced, ok := splice(prev.Parsed.Symbols, text, newLines, start, end)
	if !ok {
		d.fallbacks.Add(1)
		d.log.Debugf("splice fallback for %s (lines %d-%d)", prev.URI, start, end)
		return nil, changedSet(changed)
	}

	check := symbol.NewParsedDocument(spliced, nil)
	if err := check.Verify(); err != nil {
		d.fallbacks.Add(1)
		d.log.Infof("splice invariant violation for %s: %s; falling back to full parse", prev.URI, err)
		return nil, changedSet(changed)
	}

	d.splices.Add(1)
	return spliced, changedSet(changed)
}

// splice re-parses the [start, end] line region of the new text and
// replaces the prior top-level symbols starting inside it. It refuses
// (ok=false) when a prior symbol crosses the region boundary, which the
// line classification should already have prevented.
func splice(oldSymbols []*symbol.Symbol, text string, lines []string, start, end int) ([]*symbol.Symbol, bool) {
	for _, s := range oldSymbols {
		startsInside := s.Range.Start.Line >= start && s.Range.Start.Line <= end
		endsInside := s.Range.End.Line >= start && s.Range.End.Line <= end
		if startsInside != endsInside {
			return nil, false
		}
	}

	regionText := joinLines(lines[start-1 : end])
	fresh := parser.ParseRegion(regionText, start)

	var merged []*symbol.Symbol
	for _, s := range oldSymbols {
		if s.Range.Start.Line < start {
			merged = append(merged, s)
		}
	}
	merged = append(merged, fresh...)
	for _, s := range oldSymbols {
		if s.Range.Start.Line > end {
			merged = append(merged, s)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].Range.Start, merged[j].Range.Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return merged, true
}

// diffLines returns the 1-based indices of lines that differ.
func diffLines(oldLines, newLines []string) []int {
	var changed []int
	for i := range newLines {
		if oldLines[i] != newLines[i] {
			changed = append(changed, i+1)
		}
	}
	return changed
}

func changedSet(changed []int) map[int]struct{} {
	set := make(map[int]struct{}, len(changed))
	for _, line := range changed {
		set[line] = struct{}{}
	}
	return set
}

func joinLines(lines []string) string {
	total := 0
	for _, line := range lines {
		total += len(line) + 1
	}
	buf := make([]byte, 0, total)
	for i, line := range lines {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, line...)
	}
	return string(buf)
}
