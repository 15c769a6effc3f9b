package wikitext

import (
	"regexp"
	"strings"
	"unicode"
)

// infoboxNames are the infobox templates used by media and series articles.
var infoboxNames = map[string]bool{
	"book":               true,
	"audiobook":          true,
	"comic book":         true,
	"comic collection":   true,
	"comic series":       true,
	"comic story":        true,
	"comic story arc":    true,
	"comic strip":        true,
	"book series":        true,
	"short story":        true,
	"magazine":           true,
	"magazine issue":     true,
	"movie":              true,
	"television series":  true,
	"television episode": true,
	"television season":  true,
	"video game":         true,
	"game":               true,
	"reference book":     true,
	"audio drama":        true,
	"webstrip":           true,
	"multimedia project": true,
	"toy line":           true,
	"web series":         true,
	"web series episode": true,
}

var (
	redirectRe = regexp.MustCompile(`(?i)^\s*#redirect\s*:?\s*\[\[([^\]|]+)`)
	categoryRe = regexp.MustCompile(`(?i)\[\[\s*category\s*:\s*([^\]|]+)(?:\|[^\]]*)?\]\]`)
	headingRe  = regexp.MustCompile(`(?m)^==.*==\s*$`)
	fileLinkRe = regexp.MustCompile(`(?i)^\[\[\s*(file|image)\s*:`)
)

// Infobox is the article's key/value summary panel.
type Infobox struct {
	// Type is the lower-cased template name, e.g. "comic strip".
	Type     string
	template *Template
}

// Get returns the field for the first alias with visible text. Keys are
// matched case-insensitively.
func (ib *Infobox) Get(aliases ...string) Value {
	if ib == nil {
		return Value{}
	}
	for _, alias := range aliases {
		if raw, ok := ib.template.Get(alias); ok {
			v := NewValue(raw)
			if !v.IsEmpty() {
				return v
			}
		}
	}
	return Value{}
}

// Has reports whether the infobox declares the key at all.
func (ib *Infobox) Has(key string) bool {
	if ib == nil {
		return false
	}
	_, ok := ib.template.Get(key)
	return ok
}

// Document is a parsed article.
type Document struct {
	title      string
	raw        string
	templates  []*Template
	categories []string
	redirect   *Link
	infobox    *Infobox
	sentences  []string
}

// Parse parses raw wikitext of the article title.
func Parse(title, raw string) *Document {
	d := &Document{title: title, raw: raw}

	if m := redirectRe.FindStringSubmatch(raw); m != nil {
		if link, ok := parseInternalLink(m[1]); ok {
			d.redirect = &link
		}
	}

	for _, m := range categoryRe.FindAllStringSubmatch(raw, -1) {
		d.categories = append(d.categories, NormalizeName(m[1]))
	}

	for _, sp := range scanTemplates(raw) {
		t := parseTemplate(raw[sp.start:sp.end])
		d.templates = append(d.templates, t)
		if d.infobox == nil && infoboxNames[strings.ToLower(t.Name)] {
			d.infobox = &Infobox{Type: strings.ToLower(t.Name), template: t}
		}
	}

	d.sentences = splitSentences(leadText(raw))
	return d
}

// Title returns the article title.
func (d *Document) Title() string {
	return d.title
}

// IsRedirect reports whether the article is a redirect stub.
func (d *Document) IsRedirect() bool {
	return d.redirect != nil
}

// RedirectTarget returns the redirect destination.
func (d *Document) RedirectTarget() Link {
	if d.redirect == nil {
		return Link{}
	}
	return *d.redirect
}

// IsDisambig reports whether the article is a disambiguation page.
func (d *Document) IsDisambig() bool {
	for _, t := range d.templates {
		switch strings.ToLower(t.Name) {
		case "disambig", "dab", "disambiguation":
			return true
		}
	}
	for _, c := range d.categories {
		if strings.Contains(strings.ToLower(c), "disambiguation") {
			return true
		}
	}
	return false
}

// Categories returns the article's categories in document order.
func (d *Document) Categories() []string {
	return d.categories
}

// HasCategory reports membership in the named category.
func (d *Document) HasCategory(name string) bool {
	for _, c := range d.categories {
		if c == name {
			return true
		}
	}
	return false
}

// Infobox returns the article's infobox, or nil.
func (d *Document) Infobox() *Infobox {
	return d.infobox
}

// Sentence returns the n-th sentence (0-based) of the lead as plain text.
func (d *Document) Sentence(n int) string {
	if n < 0 || n >= len(d.sentences) {
		return ""
	}
	return d.sentences[n]
}

// Template returns the first template with the given name anywhere in the
// article, including inside sections.
func (d *Document) Template(name string) (*Template, bool) {
	name = strings.ToLower(NormalizeName(name))
	for _, t := range d.templates {
		if strings.ToLower(t.Name) == name {
			return t, true
		}
	}
	return nil, false
}

// leadText returns the plain text of the first non-empty paragraph before the
// first heading.
func leadText(raw string) string {
	if loc := headingRe.FindStringIndex(raw); loc != nil {
		raw = raw[:loc[0]]
	}

	// drop top-level templates (infobox, quotes, notices) and file links
	var sb strings.Builder
	last := 0
	for _, sp := range scanTemplates(raw) {
		sb.WriteString(raw[last:sp.start])
		last = sp.end
	}
	sb.WriteString(raw[last:])
	body := sb.String()

	var kept strings.Builder
	for i := 0; i < len(body); {
		if fileLinkRe.MatchString(body[i:]) {
			if end := matchingClose(body, i, "[[", "]]"); end >= 0 {
				i = end + 2
				continue
			}
		}
		kept.WriteByte(body[i])
		i++
	}
	body = categoryRe.ReplaceAllString(kept.String(), "")

	for _, para := range strings.Split(body, "\n\n") {
		text := strings.Join(strings.Fields(NewValue(para).Text()), " ")
		if text != "" && !redirectRe.MatchString(para) {
			return text
		}
	}
	return ""
}

// splitSentences splits on terminal punctuation followed by whitespace and an
// upper-case letter or quote.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		if j >= len(runes) || !unicode.IsSpace(runes[j]) {
			continue
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j < len(runes) && (unicode.IsUpper(runes[j]) || runes[j] == '"' || runes[j] == '\'') {
			out = append(out, strings.TrimSpace(string(runes[start:i+1])))
			start = j
			i = j - 1
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}
