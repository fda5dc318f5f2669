// Package config holds the server configuration: analysis thresholds,
// memory limits, scheduler windows and the editor-facing tableau.*
// settings. Defaults live in code; a YAML config file and LSP
// didChangeConfiguration payloads overlay them.
package config

import (
	"os"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	// Editor-facing switches on the tableau.* namespace.
	EnableFormatting bool     `yaml:"enableFormatting"`
	CodeLens         CodeLens `yaml:"codeLens"`

	// Catalogue sources. Empty paths fall back to the embedded defaults.
	DefinitionsPath string   `yaml:"definitionsPath"`
	SnippetPaths    []string `yaml:"snippetPaths"`

	Analysis    Analysis    `yaml:"analysis"`
	Memory      Memory      `yaml:"memory"`
	Scheduler   Scheduler   `yaml:"scheduler"`
	Incremental Incremental `yaml:"incremental"`
}

// CodeLens mirrors the editor-side lens switches. The server stores them
// and advertises nothing extra; lens rendering is an editor concern.
type CodeLens struct {
	Enabled          bool `yaml:"enabled"`
	FormatExpression bool `yaml:"formatExpression"`
	ExplainLOD       bool `yaml:"explainLOD"`
	ShowFunctionHelp bool `yaml:"showFunctionHelp"`
	CopyWithComment  bool `yaml:"copyWithComment"`
}

// Analysis carries diagnostic thresholds.
type Analysis struct {
	MaxNestingDepth     int `yaml:"maxNestingDepth"`     // Information diagnostic beyond this
	ComplexityThreshold int `yaml:"complexityThreshold"` // symbols per calculation before advisory
	MaxCompletionItems  int `yaml:"maxCompletionItems"`
}

// Memory carries the memory manager's thresholds.
type Memory struct {
	CleanupThresholdMB    int           `yaml:"cleanupThresholdMB"`
	AggressiveThresholdMB int           `yaml:"aggressiveThresholdMB"`
	PerDocumentCapMB      int           `yaml:"perDocumentCapMB"`
	CheckInterval         time.Duration `yaml:"checkInterval"`
	CacheCapacity         int           `yaml:"cacheCapacity"`
}

// Scheduler carries the request scheduler's debounce windows.
type Scheduler struct {
	HighDelay   time.Duration `yaml:"highDelay"`
	MediumDelay time.Duration `yaml:"mediumDelay"`
	LowDelay    time.Duration `yaml:"lowDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
	MinDelay    time.Duration `yaml:"minDelay"`
	BatchSize   int           `yaml:"batchSize"`
}

// Incremental carries the incremental driver's decision thresholds.
type Incremental struct {
	MinLines         int     `yaml:"minLines"`         // below this, always full-parse
	ChangedLineRatio float64 `yaml:"changedLineRatio"` // above this, fall back to full parse
	ContextWindow    int     `yaml:"contextWindow"`    // lines of context around the changed region
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		EnableFormatting: false,
		CodeLens: CodeLens{
			Enabled:          true,
			FormatExpression: true,
			ExplainLOD:       true,
			ShowFunctionHelp: true,
			CopyWithComment:  true,
		},
		Analysis: Analysis{
			MaxNestingDepth:     5,
			ComplexityThreshold: 25,
			MaxCompletionItems:  100,
		},
		Memory: Memory{
			CleanupThresholdMB:    80,
			AggressiveThresholdMB: 120,
			PerDocumentCapMB:      50,
			CheckInterval:         30 * time.Second,
			CacheCapacity:         50,
		},
		Scheduler: Scheduler{
			HighDelay:   100 * time.Millisecond,
			MediumDelay: 200 * time.Millisecond,
			LowDelay:    400 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			MinDelay:    50 * time.Millisecond,
			BatchSize:   5,
		},
		Incremental: Incremental{
			MinLines:         50,
			ChangedLineRatio: 0.3,
			ContextWindow:    3,
		},
	}
}

// FilePath returns the well-known config file location under the XDG
// config home, creating parent directories as needed.
func FilePath() (string, error) {
	return xdg.ConfigFile("tablang/config.yaml")
}

// LoadFile overlays the YAML file at path onto c. Fields absent from the
// file keep their current values. A missing file is not an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parsing config file %s", path)
	}
	return nil
}

// ApplySettings overlays an LSP workspace/didChangeConfiguration payload.
// The payload is the raw JSON settings object; recognized keys live on the
// tableau.* namespace. Unknown keys are ignored.
func (c *Config) ApplySettings(settings []byte) {
	root := gjson.GetBytes(settings, "tableau")
	if !root.Exists() {
		root = gjson.ParseBytes(settings)
	}

	if v := root.Get("enableFormatting"); v.Exists() {
		c.EnableFormatting = v.Bool()
	}
	if v := root.Get("codeLens.enabled"); v.Exists() {
		c.CodeLens.Enabled = v.Bool()
	}
	if v := root.Get("codeLens.formatExpression"); v.Exists() {
		c.CodeLens.FormatExpression = v.Bool()
	}
	if v := root.Get("codeLens.explainLOD"); v.Exists() {
		c.CodeLens.ExplainLOD = v.Bool()
	}
	if v := root.Get("codeLens.showFunctionHelp"); v.Exists() {
		c.CodeLens.ShowFunctionHelp = v.Bool()
	}
	if v := root.Get("codeLens.copyWithComment"); v.Exists() {
		c.CodeLens.CopyWithComment = v.Bool()
	}
	if v := root.Get("definitionsPath"); v.Exists() {
		c.DefinitionsPath = v.String()
	}
	if v := root.Get("maxNestingDepth"); v.Exists() {
		c.Analysis.MaxNestingDepth = int(v.Int())
	}
	if v := root.Get("complexityThreshold"); v.Exists() {
		c.Analysis.ComplexityThreshold = int(v.Int())
	}
}
