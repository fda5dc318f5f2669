package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/provider"
	"github.com/tabcalc/tablang/internal/scheduler"
	"github.com/tabcalc/tablang/internal/symbol"
)

// buildHandler binds the protocol methods. Every feature handler re-reads
// the current cached snapshot when it finally runs, so a request scheduled
// against an older version never serves stale analysis.
func (s *Server) buildHandler() *protocol.Handler {
	return &protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.handleShutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.didOpen,
		TextDocumentDidChange: s.didChange,
		TextDocumentDidClose:  s.didClose,
		TextDocumentDidSave:   s.didSave,

		WorkspaceDidChangeConfiguration: s.didChangeConfiguration,

		TextDocumentHover:              s.hover,
		TextDocumentCompletion:         s.completion,
		TextDocumentSignatureHelp:      s.signatureHelp,
		TextDocumentSemanticTokensFull: s.semanticTokensFull,
		TextDocumentFormatting:         s.formatting,
		TextDocumentDocumentSymbol:     s.documentSymbol,
		WorkspaceSymbol:                s.workspaceSymbol,
		TextDocumentDefinition:         s.definition,
		TextDocumentReferences:         s.references,
		TextDocumentCodeAction:         s.codeAction,
	}
}

func (s *Server) initialize(glspCtx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	capabilities := s.capabilities()
	version := Version
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    Name,
			Version: &version,
		},
	}, nil
}

func (s *Server) capabilities() protocol.ServerCapabilities {
	openClose := true
	change := protocol.TextDocumentSyncKindIncremental

	capabilities := protocol.ServerCapabilities{
		TextDocumentSync: protocol.TextDocumentSyncOptions{
			OpenClose: &openClose,
			Change:    &change,
		},
		CompletionProvider: &protocol.CompletionOptions{
			TriggerCharacters: []string{".", "[", "(", " ", "\t"},
		},
		HoverProvider: true,
		SignatureHelpProvider: &protocol.SignatureHelpOptions{
			TriggerCharacters: []string{" ", "\t", "\n", "(", ")", ",", "A", "O", "E", "W", "T"},
		},
		SemanticTokensProvider: protocol.SemanticTokensOptions{
			Legend: protocol.SemanticTokensLegend{
				TokenTypes:     provider.SemanticTokenTypes,
				TokenModifiers: []string{},
			},
			Full: true,
		},
		DocumentSymbolProvider:  true,
		WorkspaceSymbolProvider: true,
		DefinitionProvider:      true,
		ReferencesProvider:      true,
		CodeActionProvider:      true,
	}
	if s.cfg.EnableFormatting {
		capabilities.DocumentFormattingProvider = true
	}
	return capabilities
}

func (s *Server) initialized(glspCtx *glsp.Context, params *protocol.InitializedParams) error {
	s.log.Infof("%s %s initialized", Name, Version)
	return nil
}

func (s *Server) handleShutdown(glspCtx *glsp.Context) error {
	s.shutdown()
	return nil
}

func (s *Server) setTrace(glspCtx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// --- document lifecycle ---

func (s *Server) didOpen(glspCtx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.analyzeAndPublish(glspCtx, uri, params.TextDocument.Text, params.TextDocument.Version)
	s.documents.MarkActive(uri)
	return nil
}

func (s *Server) didChange(glspCtx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	prev, ok := s.documents.Get(uri)
	base := ""
	if ok {
		base = prev.Text
	}
	text := applyChanges(base, params.ContentChanges)
	s.analyzeAndPublish(glspCtx, uri, text, params.TextDocument.Version)
	return nil
}

func (s *Server) didClose(glspCtx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.sched.ClearDocumentRequests(uri)
	s.documents.MarkInactive(uri)
	glspCtx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *Server) didSave(glspCtx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	return nil
}

func (s *Server) didChangeConfiguration(glspCtx *glsp.Context, params *protocol.DidChangeConfigurationParams) error {
	raw, err := json.Marshal(params.Settings)
	if err != nil {
		s.log.Warningf("cannot read configuration payload: %s", err)
		return nil
	}
	s.cfg.ApplySettings(raw)
	s.log.Infof("configuration updated")
	return nil
}

// analyzeAndPublish schedules the critical diagnostics request: analyze
// the new version and push its diagnostics.
func (s *Server) analyzeAndPublish(glspCtx *glsp.Context, uri, text string, version int32) {
	s.sched.Schedule(requestContext(glspCtx), scheduler.Request{
		Type: scheduler.TypeDiagnostics,
		URI:  uri,
		Handler: func(ctx context.Context) (any, error) {
			doc := s.driver.Analyze(uri, text, version)
			s.publishDiagnostics(glspCtx, doc)
			return nil, nil
		},
	})
}

func (s *Server) publishDiagnostics(glspCtx *glsp.Context, doc *cache.CachedDocument) {
	diagnostics := make([]protocol.Diagnostic, 0, len(doc.Parsed.Diagnostics))
	for _, d := range doc.Parsed.Diagnostics {
		diagnostics = append(diagnostics, toProtocolDiagnostic(d))
	}
	glspCtx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         doc.URI,
		Diagnostics: diagnostics,
	})
}

func toProtocolDiagnostic(d symbol.Diagnostic) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverity(d.Severity)
	source := Name
	diagnostic := protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{
				Line:      protocol.UInteger(max(d.Range.Start.Line-1, 0)),
				Character: protocol.UInteger(max(d.Range.Start.Column-1, 0)),
			},
			End: protocol.Position{
				Line:      protocol.UInteger(max(d.Range.End.Line-1, 0)),
				Character: protocol.UInteger(max(d.Range.End.Column-1, 0)),
			},
		},
		Severity: &severity,
		Source:   &source,
		Message:  d.Message,
	}
	if d.Code != "" {
		diagnostic.Code = &protocol.IntegerOrString{Value: d.Code}
	}
	return diagnostic
}

// --- feature requests ---

// snapshot returns the current cached document, touching its access
// stats. Handlers call this when they run, not when they are scheduled.
func (s *Server) snapshot(uri string) (*cache.CachedDocument, bool) {
	doc, ok := s.documents.Get(uri)
	if !ok {
		return nil, false
	}
	s.documents.Touch(uri)
	return doc, true
}

// await schedules a request and blocks for its outcome. Displaced and
// cancelled requests, and provider faults, all surface as empty results;
// providers never propagate errors to the transport.
func (s *Server) await(glspCtx *glsp.Context, req scheduler.Request) any {
	outcome := <-s.sched.Schedule(requestContext(glspCtx), req)
	if outcome.Err != nil {
		switch {
		case errors.Is(outcome.Err, scheduler.ErrSuperseded),
			errors.Is(outcome.Err, scheduler.ErrCancelled),
			errors.Is(outcome.Err, context.Canceled):
			// expected churn under typing; nothing to report
		default:
			s.log.Errorf("%s request failed: %s", req.Type, outcome.Err)
		}
		return nil
	}
	return outcome.Value
}

func requestContext(glspCtx *glsp.Context) context.Context {
	return context.Background()
}

func (s *Server) hover(glspCtx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	value := s.await(glspCtx, scheduler.Request{
		Type:        scheduler.TypeHover,
		URI:         params.TextDocument.URI,
		PositionKey: positionKey(params.Position),
		Handler: func(ctx context.Context) (any, error) {
			doc, ok := s.snapshot(params.TextDocument.URI)
			if !ok {
				return nil, nil
			}
			return s.providers.Hover(doc, params.Position), nil
		},
	})
	hover, _ := value.(*protocol.Hover)
	return hover, nil
}

func (s *Server) completion(glspCtx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	value := s.await(glspCtx, scheduler.Request{
		Type:        scheduler.TypeCompletion,
		URI:         params.TextDocument.URI,
		PositionKey: positionKey(params.Position),
		Handler: func(ctx context.Context) (any, error) {
			doc, ok := s.snapshot(params.TextDocument.URI)
			if !ok {
				return nil, nil
			}
			return s.providers.Completion(doc, params.Position), nil
		},
	})
	list, _ := value.(*protocol.CompletionList)
	if list == nil {
		return nil, nil
	}
	return list, nil
}

func (s *Server) signatureHelp(glspCtx *glsp.Context, params *protocol.SignatureHelpParams) (*protocol.SignatureHelp, error) {
	value := s.await(glspCtx, scheduler.Request{
		Type:        scheduler.TypeSignatureHelp,
		URI:         params.TextDocument.URI,
		PositionKey: positionKey(params.Position),
		Handler: func(ctx context.Context) (any, error) {
			doc, ok := s.snapshot(params.TextDocument.URI)
			if !ok {
				return nil, nil
			}
			return s.providers.SignatureHelp(doc, params.Position), nil
		},
	})
	help, _ := value.(*protocol.SignatureHelp)
	return help, nil
}

func (s *Server) semanticTokensFull(glspCtx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	value := s.await(glspCtx, scheduler.Request{
		Type: scheduler.TypeSemanticTokens,
		URI:  params.TextDocument.URI,
		Handler: func(ctx context.Context) (any, error) {
			doc, ok := s.snapshot(params.TextDocument.URI)
			if !ok {
				return nil, nil
			}
			return s.providers.SemanticTokens(doc), nil
		},
	})
	tokens, _ := value.(*protocol.SemanticTokens)
	return tokens, nil
}

func (s *Server) formatting(glspCtx *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	if !s.cfg.EnableFormatting {
		return nil, nil
	}
	value := s.await(glspCtx, scheduler.Request{
		Type: scheduler.TypeFormatting,
		URI:  params.TextDocument.URI,
		Handler: func(ctx context.Context) (any, error) {
			doc, ok := s.snapshot(params.TextDocument.URI)
			if !ok {
				return nil, nil
			}
			return s.providers.Formatting(doc, params.Options), nil
		},
	})
	edits, _ := value.([]protocol.TextEdit)
	return edits, nil
}

func (s *Server) documentSymbol(glspCtx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	value := s.await(glspCtx, scheduler.Request{
		Type: scheduler.TypeDocumentSymbols,
		URI:  params.TextDocument.URI,
		Handler: func(ctx context.Context) (any, error) {
			doc, ok := s.snapshot(params.TextDocument.URI)
			if !ok {
				return nil, nil
			}
			return s.providers.DocumentSymbols(doc), nil
		},
	})
	symbols, _ := value.([]protocol.DocumentSymbol)
	if symbols == nil {
		return nil, nil
	}
	return symbols, nil
}

func (s *Server) workspaceSymbol(glspCtx *glsp.Context, params *protocol.WorkspaceSymbolParams) ([]protocol.SymbolInformation, error) {
	value := s.await(glspCtx, scheduler.Request{
		Type: scheduler.TypeWorkspaceSymbols,
		URI:  "workspace",
		Handler: func(ctx context.Context) (any, error) {
			return s.providers.WorkspaceSymbols(params.Query), nil
		},
	})
	symbols, _ := value.([]protocol.SymbolInformation)
	return symbols, nil
}

func (s *Server) definition(glspCtx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	value := s.await(glspCtx, scheduler.Request{
		Type:        scheduler.TypeDefinition,
		URI:         params.TextDocument.URI,
		PositionKey: positionKey(params.Position),
		Handler: func(ctx context.Context) (any, error) {
			doc, ok := s.snapshot(params.TextDocument.URI)
			if !ok {
				return nil, nil
			}
			return s.providers.Definition(doc, params.Position), nil
		},
	})
	locations, _ := value.([]protocol.Location)
	if locations == nil {
		return nil, nil
	}
	return locations, nil
}

func (s *Server) references(glspCtx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	value := s.await(glspCtx, scheduler.Request{
		Type:        scheduler.TypeReferences,
		URI:         params.TextDocument.URI,
		PositionKey: positionKey(params.Position),
		Handler: func(ctx context.Context) (any, error) {
			doc, ok := s.snapshot(params.TextDocument.URI)
			if !ok {
				return nil, nil
			}
			return s.providers.References(doc, params.Position), nil
		},
	})
	locations, _ := value.([]protocol.Location)
	return locations, nil
}

func (s *Server) codeAction(glspCtx *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	value := s.await(glspCtx, scheduler.Request{
		Type:        scheduler.TypeCodeAction,
		URI:         params.TextDocument.URI,
		PositionKey: positionKey(params.Range.Start),
		Handler: func(ctx context.Context) (any, error) {
			doc, ok := s.snapshot(params.TextDocument.URI)
			if !ok {
				return nil, nil
			}
			return s.providers.CodeActions(doc, params.Range), nil
		},
	})
	actions, _ := value.([]protocol.CodeAction)
	if actions == nil {
		return nil, nil
	}
	return actions, nil
}

func positionKey(pos protocol.Position) string {
	return fmt.Sprintf("%d:%d", pos.Line, pos.Character)
}
