package catalog

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Snippet is one completion snippet loaded from a snippet document. Body
// uses VS Code placeholder syntax (${1:placeholder}, ${1|a,b|}).
type Snippet struct {
	ID          string
	Prefix      string
	Body        string
	Description string
}

// ParseSnippets reads a snippet JSON document keyed by snippet id. Each
// value carries prefix, body (string or array of strings) and description.
func ParseSnippets(data []byte) []Snippet {
	var snippets []Snippet
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		body := value.Get("body")
		var text string
		if body.IsArray() {
			var lines []string
			body.ForEach(func(_, line gjson.Result) bool {
				lines = append(lines, line.String())
				return true
			})
			text = strings.Join(lines, "\n")
		} else {
			text = body.String()
		}
		snippets = append(snippets, Snippet{
			ID:          key.String(),
			Prefix:      value.Get("prefix").String(),
			Body:        text,
			Description: value.Get("description").String(),
		})
		return true
	})
	return snippets
}

// LoadSnippets reads and parses snippet documents from disk, replacing the
// catalogue's embedded defaults.
func (c *Catalogue) LoadSnippets(paths ...string) error {
	var snippets []Snippet
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading snippet file %s", path)
		}
		snippets = append(snippets, ParseSnippets(data)...)
	}
	c.snippets = snippets
	return nil
}

func defaultSnippets() []Snippet {
	snippets := ParseSnippets(calcSnippetsJSON)
	return append(snippets, ParseSnippets(lodSnippetsJSON)...)
}
