package catalog

import (
	"regexp"
	"strings"

	"github.com/tliron/commonlog"
)

// The definition file contains stub declarations of the form
//
//	NAME(param: Type, ...) => ReturnType
//
// each preceded by a JSDoc-style block comment. Malformed entries log a
// warning and are skipped; the rest of the file still loads.

var (
	declPattern     = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\((.*)\)\s*=>\s*(\S.*?)\s*$`)
	paramTagPattern = regexp.MustCompile(`^\{([^}]*)\}\s+(\S+)(?:\s*-?\s*(.*))?$`)
	typedefPattern  = regexp.MustCompile(`^\{([^}]*)\}\s+(\S+)\s*$`)
	returnsPattern  = regexp.MustCompile(`^\{([^}]*)\}\s*(.*)$`)
)

// docBlock accumulates one JSDoc comment before a declaration.
type docBlock struct {
	description []string
	params      map[string]Parameter
	paramOrder  []string
	returnType  string
	returnDoc   string
	examples    []string
	since       string
	author      string
	deprecated  string
	typedefName string
	typedefBase string
	templates   []string
	properties  []Parameter
}

// ParseDefinitions parses the definition file text into a catalogue.
func ParseDefinitions(src string, log commonlog.Logger) *Catalogue {
	c := newCatalogue()
	lines := strings.Split(src, "\n")

	var doc *docBlock
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case strings.HasPrefix(line, "/**"):
			var block *docBlock
			block, i = readDocBlock(lines, i)
			if block.typedefName != "" {
				c.typedefs[strings.ToUpper(block.typedefName)] = &TypeDef{
					Name:        block.typedefName,
					Base:        block.typedefBase,
					Description: strings.TrimSpace(strings.Join(block.description, "\n")),
					Templates:   block.templates,
					Properties:  block.properties,
				}
				doc = nil
				continue
			}
			doc = block
		case line == "" || strings.HasPrefix(line, "//"):
			continue
		default:
			sig, ok := parseDeclaration(line)
			if !ok {
				log.Warningf("skipping malformed definition entry: %q", line)
				doc = nil
				continue
			}
			if doc != nil {
				applyDoc(sig, doc)
				doc = nil
			}
			c.add(sig)
		}
	}

	c.finish()
	return c
}

// readDocBlock consumes a /** ... */ comment starting at index i and
// returns the parsed block and the index of its closing line.
func readDocBlock(lines []string, i int) (*docBlock, int) {
	block := &docBlock{params: make(map[string]Parameter)}
	var exampleBuf []string
	inExample := false

	flushExample := func() {
		if inExample {
			text := strings.TrimRight(strings.Join(exampleBuf, "\n"), "\n ")
			if text != "" {
				block.examples = append(block.examples, text)
			}
			exampleBuf = nil
			inExample = false
		}
	}

	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		line = strings.TrimPrefix(line, "/**")
		closed := strings.HasSuffix(line, "*/")
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))

		switch {
		case strings.HasPrefix(line, "@param "):
			flushExample()
			parseParamTag(block, strings.TrimSpace(strings.TrimPrefix(line, "@param ")))
		case strings.HasPrefix(line, "@returns ") || strings.HasPrefix(line, "@return "):
			flushExample()
			rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "@returns"), "@return"))
			if m := returnsPattern.FindStringSubmatch(rest); m != nil {
				block.returnType = m[1]
				block.returnDoc = strings.TrimSpace(m[2])
			} else {
				block.returnDoc = rest
			}
		case line == "@example" || strings.HasPrefix(line, "@example "):
			flushExample()
			inExample = true
			if rest := strings.TrimSpace(strings.TrimPrefix(line, "@example")); rest != "" {
				exampleBuf = append(exampleBuf, rest)
			}
		case strings.HasPrefix(line, "@deprecated"):
			flushExample()
			block.deprecated = strings.TrimSpace(strings.TrimPrefix(line, "@deprecated"))
			if block.deprecated == "" {
				block.deprecated = "deprecated"
			}
		case strings.HasPrefix(line, "@since"):
			flushExample()
			block.since = strings.TrimSpace(strings.TrimPrefix(line, "@since"))
		case strings.HasPrefix(line, "@author"):
			flushExample()
			block.author = strings.TrimSpace(strings.TrimPrefix(line, "@author"))
		case strings.HasPrefix(line, "@typedef "):
			flushExample()
			if m := typedefPattern.FindStringSubmatch(strings.TrimSpace(strings.TrimPrefix(line, "@typedef "))); m != nil {
				block.typedefBase = m[1]
				block.typedefName = m[2]
			}
		case strings.HasPrefix(line, "@template "):
			flushExample()
			for _, t := range strings.Split(strings.TrimPrefix(line, "@template "), ",") {
				if t = strings.TrimSpace(t); t != "" {
					block.templates = append(block.templates, t)
				}
			}
		case strings.HasPrefix(line, "@property "):
			flushExample()
			if m := paramTagPattern.FindStringSubmatch(strings.TrimSpace(strings.TrimPrefix(line, "@property "))); m != nil {
				block.properties = append(block.properties, Parameter{
					Type:        m[1],
					Name:        m[2],
					Description: strings.TrimSpace(m[3]),
				})
			}
		case inExample:
			exampleBuf = append(exampleBuf, line)
		case line != "":
			block.description = append(block.description, line)
		}

		if closed {
			break
		}
	}

	flushExample()
	return block, i
}

// parseParamTag handles "@param {Type} name - desc" with JSDoc optional
// ([name], [name=default]) and variadic (...name) forms.
func parseParamTag(block *docBlock, rest string) {
	m := paramTagPattern.FindStringSubmatch(rest)
	if m == nil {
		return
	}
	param := Parameter{
		Type:        m[1],
		Description: strings.TrimSpace(m[3]),
	}
	name := m[2]
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		param.Optional = true
		name = strings.TrimSuffix(strings.TrimPrefix(name, "["), "]")
		if eq := strings.Index(name, "="); eq >= 0 {
			param.Default = name[eq+1:]
			name = name[:eq]
		}
	}
	if strings.HasPrefix(name, "...") {
		param.Variadic = true
		param.Optional = true
		name = strings.TrimPrefix(name, "...")
	}
	param.Name = name
	if _, seen := block.params[name]; !seen {
		block.paramOrder = append(block.paramOrder, name)
	}
	block.params[name] = param
}

// parseDeclaration parses "NAME(param: Type, ...) => ReturnType".
func parseDeclaration(line string) (*FunctionSignature, bool) {
	m := declPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	sig := &FunctionSignature{
		Name:       strings.ToUpper(m[1]),
		Label:      line,
		ReturnType: m[3],
	}

	paramList := strings.TrimSpace(m[2])
	if paramList == "" {
		return sig, true
	}

	for _, raw := range splitTopLevel(paramList) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		param := Parameter{}
		if strings.HasPrefix(raw, "...") {
			param.Variadic = true
			param.Optional = true
			raw = strings.TrimPrefix(raw, "...")
		}
		name := raw
		if colon := strings.Index(raw, ":"); colon >= 0 {
			name = strings.TrimSpace(raw[:colon])
			rest := strings.TrimSpace(raw[colon+1:])
			if eq := strings.Index(rest, "="); eq >= 0 {
				param.Default = strings.TrimSpace(rest[eq+1:])
				param.Optional = true
				rest = strings.TrimSpace(rest[:eq])
			}
			param.Type = rest
		}
		if strings.HasSuffix(name, "?") {
			param.Optional = true
			name = strings.TrimSuffix(name, "?")
		}
		param.Name = name
		sig.Parameters = append(sig.Parameters, param)
	}

	for _, param := range sig.Parameters {
		if !param.Optional && !param.Variadic {
			sig.MinArgs++
		}
	}
	sig.MaxArgs = len(sig.Parameters)
	for _, param := range sig.Parameters {
		if param.Variadic {
			sig.MaxArgs = Unbounded
			break
		}
	}

	return sig, true
}

// splitTopLevel splits on commas outside (), {} and [].
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, ch := range s {
		switch ch {
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// applyDoc merges a JSDoc block into a parsed declaration. The declaration
// wins on parameter order and optionality; the block contributes types,
// descriptions and the prose tags.
func applyDoc(sig *FunctionSignature, doc *docBlock) {
	sig.Description = strings.TrimSpace(strings.Join(doc.description, "\n"))
	sig.Examples = doc.examples
	sig.Since = doc.since
	sig.Author = doc.author
	sig.Deprecated = doc.deprecated
	if doc.returnType != "" {
		sig.ReturnType = doc.returnType
	}
	sig.ReturnDoc = doc.returnDoc

	for i := range sig.Parameters {
		if tagged, ok := doc.params[sig.Parameters[i].Name]; ok {
			if sig.Parameters[i].Type == "" {
				sig.Parameters[i].Type = tagged.Type
			}
			sig.Parameters[i].Description = tagged.Description
			if tagged.Default != "" && sig.Parameters[i].Default == "" {
				sig.Parameters[i].Default = tagged.Default
			}
		}
	}
}
