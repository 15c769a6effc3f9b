// Package appearances reads the bulleted entity lists of an {{App}} template.
package appearances

import (
	"strings"

	"catalog-sync/pkg/wikitext"

	"github.com/rotisserie/eris"
)

// ErrMalformed is returned for list markup that cannot be read.
var ErrMalformed = eris.New("appearances: malformed list")

// citingTemplates qualify how an entity appears, e.g. first appearance or mention only.
var citingTemplates = map[string]bool{
	"1st":      true,
	"1stm":     true,
	"co":       true,
	"mo":       true,
	"imo":      true,
	"flash":    true,
	"1stid":    true,
	"hologram": true,
}

// Entry is one entity of an appearances list.
type Entry struct {
	Name string
	// Templates are the citing templates of the entry, lower-cased.
	Templates []string
	// Depth is the bullet depth, 1 for top-level items.
	Depth int
}

// List holds the entries of one template parameter in written order.
type List struct {
	Category string
	Entries  []Entry
}

// Parse reads every named parameter of the template as an entity list.
func Parse(t *wikitext.Template) ([]List, error) {
	var lists []List
	for _, p := range t.Params {
		if p.Name == "" {
			continue
		}
		entries, err := parseList(p.Value)
		if err != nil {
			return nil, eris.Wrapf(err, "parameter %q", p.Name)
		}
		lists = append(lists, List{Category: p.Name, Entries: entries})
	}
	return lists, nil
}

func parseList(raw string) ([]Entry, error) {
	var entries []Entry
	for _, line := range strings.Split(raw, "\n") {
		// {{!}} breaks the list into columns
		line = strings.TrimSpace(strings.ReplaceAll(line, "{{!}}", ""))
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "*") {
			return nil, eris.Wrapf(ErrMalformed, "line is not a list item: %q", line)
		}
		if !balanced(line, "[[", "]]") || !balanced(line, "{{", "}}") {
			return nil, eris.Wrapf(ErrMalformed, "unbalanced markup: %q", line)
		}

		depth := len(line) - len(strings.TrimLeft(line, "*"))
		content := strings.TrimSpace(line[depth:])

		entry := Entry{Depth: depth, Name: entityName(content)}
		if entry.Name == "" {
			continue
		}
		for _, tmpl := range wikitext.ParseTemplates(content) {
			name := strings.ToLower(tmpl.Name)
			if citingTemplates[name] {
				entry.Templates = append(entry.Templates, name)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// entityName returns the first linked page of an item, or its plain text.
func entityName(content string) string {
	v := wikitext.NewValue(content)
	if links := v.Links(); len(links) > 0 {
		return links[0].Page
	}
	return v.Text()
}

func balanced(s, open, close string) bool {
	return strings.Count(s, open) == strings.Count(s, close)
}
