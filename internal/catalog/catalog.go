// Package catalog loads the TabCalc definition catalogue: function
// signatures and type documentation parsed from a static definition file,
// plus completion snippets. The catalogue is immutable after load and safe
// for unsynchronized concurrent reads.
package catalog

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
)

// Unbounded marks a signature with no upper argument limit.
const Unbounded = -1

// Parameter describes one declared parameter of a catalogue function, or
// one property of a typedef.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Default     string
	Optional    bool
	Variadic    bool
}

// FunctionSignature is the catalogue entry for one function.
type FunctionSignature struct {
	Name        string // uppercased
	Label       string // declaration as written, e.g. "SUM(expression: Number) => Number"
	Description string
	Parameters  []Parameter
	MinArgs     int
	MaxArgs     int // Unbounded when variadic
	ReturnType  string
	ReturnDoc   string
	Examples    []string
	Since       string
	Author      string
	Deprecated  string // deprecation note; empty when not deprecated
}

// TypeDef is a named type extracted from an @typedef block.
type TypeDef struct {
	Name        string
	Base        string
	Description string
	Templates   []string
	Properties  []Parameter
}

// Catalogue holds the loaded definition file. Lookup is by uppercased name.
type Catalogue struct {
	functions map[string]*FunctionSignature
	typedefs  map[string]*TypeDef
	names     []string // sorted function names for completion
	snippets  []Snippet
}

// Lookup returns the signature for name (case-insensitive), or nil.
func (c *Catalogue) Lookup(name string) *FunctionSignature {
	return c.functions[strings.ToUpper(name)]
}

// LookupType returns the typedef for name (case-insensitive), or nil.
func (c *Catalogue) LookupType(name string) *TypeDef {
	return c.typedefs[strings.ToUpper(name)]
}

// Has reports whether name is a known function.
func (c *Catalogue) Has(name string) bool {
	return c.Lookup(name) != nil
}

// FunctionNames returns all function names in sorted order.
func (c *Catalogue) FunctionNames() []string {
	return c.names
}

// Snippets returns the loaded completion snippets.
func (c *Catalogue) Snippets() []Snippet {
	return c.snippets
}

// Len returns the number of catalogue functions.
func (c *Catalogue) Len() int {
	return len(c.functions)
}

// Load parses a definition file from disk and attaches the embedded
// default snippets.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading definition file %s", path)
	}
	c := ParseDefinitions(string(data), commonlog.GetLogger("tablang.catalog"))
	c.snippets = defaultSnippets()
	return c, nil
}

// LoadDefault builds the catalogue from the embedded definition file and
// snippet documents.
func LoadDefault() *Catalogue {
	c := ParseDefinitions(defaultDefinitions, commonlog.GetLogger("tablang.catalog"))
	c.snippets = defaultSnippets()
	return c
}

func newCatalogue() *Catalogue {
	return &Catalogue{
		functions: make(map[string]*FunctionSignature),
		typedefs:  make(map[string]*TypeDef),
	}
}

func (c *Catalogue) add(sig *FunctionSignature) {
	c.functions[sig.Name] = sig
}

func (c *Catalogue) finish() {
	c.names = c.names[:0]
	for name := range c.functions {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
}
