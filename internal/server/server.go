// Package server wires the analysis engine to the Language Server
// Protocol: it owns the subsystem lifecycles (catalogue, cache, memory
// manager, scheduler, incremental driver, providers) and translates LSP
// requests into scheduled feature queries.
package server

import (
	"github.com/tliron/commonlog"
	glspserver "github.com/tliron/glsp/server"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/catalog"
	"github.com/tabcalc/tablang/internal/config"
	"github.com/tabcalc/tablang/internal/incremental"
	"github.com/tabcalc/tablang/internal/memory"
	"github.com/tabcalc/tablang/internal/provider"
	"github.com/tabcalc/tablang/internal/scheduler"
)

// Name and language identity advertised to clients.
const (
	Name       = "tablang"
	LanguageID = "twbl"
)

// Version is set by the build.
var Version = "0.1.0-dev"

// Server is the TabCalc language server.
type Server struct {
	cfg       *config.Config
	catalog   *catalog.Catalogue
	documents *cache.DocumentCache
	manager   *memory.Manager
	driver    *incremental.Driver
	sched     *scheduler.Scheduler
	providers *provider.Providers
	log       commonlog.Logger
}

// New assembles a Server: subsystems are explicit objects created here,
// before any document is processed, and torn down in Shutdown after the
// scheduler flush.
func New(cfg *config.Config) *Server {
	log := commonlog.GetLogger("tablang.server")

	cat := loadCatalogue(cfg, log)

	documents := cache.New(cfg.Memory.CacheCapacity)
	manager := memory.New(documents, cfg.Memory)
	providers := provider.New(cat, cfg, documents)

	driver := incremental.New(documents, manager, cfg.Incremental, providers.ComputeDiagnostics)

	s := &Server{
		cfg:       cfg,
		catalog:   cat,
		documents: documents,
		manager:   manager,
		driver:    driver,
		sched:     scheduler.New(cfg.Scheduler),
		providers: providers,
		log:       log,
	}

	// provider caches and the name index follow the document lifecycle
	driver.OnCommit(func(uri string, version int32) {
		providers.InvalidateDocument(uri)
		if doc, ok := documents.Get(uri); ok {
			providers.Index().Update(uri, doc.Parsed.Symbols)
		}
	})
	documents.SetEvictHook(func(uri string, reason string) {
		providers.InvalidateDocument(uri)
		providers.Index().RemoveDocument(uri)
	})

	return s
}

// loadCatalogue loads the configured definition file, degrading to the
// embedded defaults when it cannot be read: startup never fails on a bad
// definition path.
func loadCatalogue(cfg *config.Config, log commonlog.Logger) *catalog.Catalogue {
	var cat *catalog.Catalogue
	if cfg.DefinitionsPath != "" {
		loaded, err := catalog.Load(cfg.DefinitionsPath)
		if err != nil {
			log.Warningf("cannot load definition file: %s; using embedded definitions", err)
		} else {
			cat = loaded
		}
	}
	if cat == nil {
		cat = catalog.LoadDefault()
	}
	if len(cfg.SnippetPaths) > 0 {
		if err := cat.LoadSnippets(cfg.SnippetPaths...); err != nil {
			log.Warningf("cannot load snippet files: %s; using embedded snippets", err)
		}
	}
	log.Infof("catalogue loaded: %d functions, %d snippets", cat.Len(), len(cat.Snippets()))
	return cat
}

// RunStdio serves LSP over standard input/output until the client
// disconnects.
func (s *Server) RunStdio() error {
	handler := s.buildHandler()
	srv := glspserver.NewServer(handler, Name, false)
	s.manager.Start()
	return srv.RunStdio()
}

// shutdown flushes the scheduler and stops the background tasks.
func (s *Server) shutdown() {
	s.sched.FlushAll()
	s.manager.Stop()
}
