package catalog

import _ "embed"

// Embedded defaults so the server degrades gracefully when no definition
// file is configured or the configured one cannot be read.

//go:embed assets/tabcalc.d.twbl
var defaultDefinitions string

//go:embed assets/snippets.json
var calcSnippetsJSON []byte

//go:embed assets/lod_snippets.json
var lodSnippetsJSON []byte
