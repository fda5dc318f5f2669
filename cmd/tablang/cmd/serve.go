package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/tabcalc/tablang/internal/config"
	"github.com/tabcalc/tablang/internal/server"
)

var (
	serveLogFile     string
	serveConfigFile  string
	serveDefinitions string
	serveSnippets    []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the language server over stdio",
	Long: `Run the TabCalc language server, speaking the Language Server
Protocol over standard input and output.

stdout carries JSON-RPC framing, so log output goes to stderr or, with
--log-file, to a file.

Configuration defaults live in code and can be overlaid from a YAML file
(by default under the XDG config home) and from the editor's tableau.*
settings via workspace/didChangeConfiguration.

Examples:
  # Serve with defaults
  tablang serve

  # Serve with verbose logging to a file
  tablang serve -v --log-file /tmp/tablang.log

  # Serve with a custom definition catalogue
  tablang serve --definitions ./my-functions.twbl`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "write logs to this file instead of stderr")
	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "path to a YAML config file (default: XDG config home)")
	serveCmd.Flags().StringVar(&serveDefinitions, "definitions", "", "path to the function definition file")
	serveCmd.Flags().StringSliceVar(&serveSnippets, "snippets", nil, "paths to snippet JSON files")
}

func runServe(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	verbosity := 1
	if verbose {
		verbosity = 2
	}
	if serveLogFile != "" {
		commonlog.Configure(verbosity, &serveLogFile)
	} else {
		commonlog.Configure(verbosity, nil)
	}

	cfg := config.Default()

	path := serveConfigFile
	if path == "" {
		if discovered, err := config.FilePath(); err == nil {
			path = discovered
		}
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			commonlog.GetLogger("tablang").Warningf("config file ignored: %s", err)
		}
	}

	if serveDefinitions != "" {
		cfg.DefinitionsPath = serveDefinitions
	}
	if len(serveSnippets) > 0 {
		cfg.SnippetPaths = serveSnippets
	}

	server.Version = Version
	return server.New(&cfg).RunStdio()
}
