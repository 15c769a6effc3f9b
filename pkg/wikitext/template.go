package wikitext

import (
	"strings"
)

// Param is one template parameter. Positional parameters have an empty Name
// and a 1-based Index.
type Param struct {
	Name  string
	Index int
	Value string
}

// Template is a parsed {{...}} transclusion.
type Template struct {
	Name   string
	Params []Param
	Raw    string
}

// Get returns the value of the named parameter.
func (t *Template) Get(name string) (string, bool) {
	name = normalizeKey(name)
	for _, p := range t.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Positional returns the i-th positional parameter (1-based).
func (t *Template) Positional(i int) string {
	for _, p := range t.Params {
		if p.Name == "" && p.Index == i {
			return p.Value
		}
	}
	return ""
}

// span is a half-open byte range of a top-level construct.
type span struct{ start, end int }

// scanTemplates returns the byte ranges of top-level templates in s,
// including their braces. Unbalanced braces end the scan.
func scanTemplates(s string) []span {
	var spans []span
	depth, start := 0, 0
	for i := 0; i+1 < len(s); i++ {
		switch {
		case s[i] == '{' && s[i+1] == '{':
			if depth == 0 {
				start = i
			}
			depth++
			i++
		case s[i] == '}' && s[i+1] == '}' && depth > 0:
			depth--
			i++
			if depth == 0 {
				spans = append(spans, span{start, i + 1})
			}
		}
	}
	return spans
}

// splitTopLevel splits s on sep bytes that are not nested inside templates or links.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	braces, brackets, last := 0, 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "{{"):
			braces++
			i++
		case strings.HasPrefix(s[i:], "}}") && braces > 0:
			braces--
			i++
		case strings.HasPrefix(s[i:], "[["):
			brackets++
			i++
		case strings.HasPrefix(s[i:], "]]") && brackets > 0:
			brackets--
			i++
		case s[i] == sep && braces == 0 && brackets == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

// parseTemplate parses the raw text of a template including braces.
func parseTemplate(raw string) *Template {
	inner := strings.TrimSuffix(strings.TrimPrefix(raw, "{{"), "}}")
	parts := splitTopLevel(inner, '|')
	t := &Template{Name: NormalizeName(parts[0]), Raw: raw}
	index := 0
	for _, part := range parts[1:] {
		if eq := topLevelEquals(part); eq >= 0 {
			t.Params = append(t.Params, Param{
				Name:  normalizeKey(part[:eq]),
				Value: strings.TrimSpace(part[eq+1:]),
			})
			continue
		}
		index++
		t.Params = append(t.Params, Param{Index: index, Value: strings.TrimSpace(part)})
	}
	return t
}

// ParseTemplates returns the top-level templates of s in document order.
func ParseTemplates(s string) []*Template {
	spans := scanTemplates(s)
	out := make([]*Template, 0, len(spans))
	for _, sp := range spans {
		out = append(out, parseTemplate(s[sp.start:sp.end]))
	}
	return out
}

// topLevelEquals returns the index of the first '=' outside nested markup.
func topLevelEquals(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "{{") || strings.HasPrefix(s[i:], "[["):
			depth++
			i++
		case (strings.HasPrefix(s[i:], "}}") || strings.HasPrefix(s[i:], "]]")) && depth > 0:
			depth--
			i++
		case s[i] == '=' && depth == 0:
			return i
		case s[i] == '\n' && depth == 0:
			// a named key never spans lines
			if strings.TrimSpace(s[:i]) != "" {
				return -1
			}
		}
	}
	return -1
}

// NormalizeName canonicalizes a template or page name: trimmed, underscores
// as spaces, first letter upper-cased.
func NormalizeName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(key, "_", " ")))
	return strings.Join(strings.Fields(key), " ")
}
