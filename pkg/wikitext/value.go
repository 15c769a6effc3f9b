package wikitext

import (
	"html"
	"regexp"
	"strings"
)

// TokenType names the kind of an inline token.
type TokenType int

const (
	TokenText TokenType = iota
	TokenInternalLink
	TokenExternalLink
)

// Token is one inline element of a value. Text tokens keep newlines, list
// stars, formatting quotes and ((note)) spans verbatim.
type Token struct {
	Type   TokenType
	Text   string
	Page   string
	Anchor string
	Site   string
}

// Link is an internal wiki link.
type Link struct {
	Page   string
	Anchor string
	Text   string
}

// Target returns the page with its anchor, if any.
func (l Link) Target() string {
	if l.Anchor == "" {
		return l.Page
	}
	return l.Page + "#" + l.Anchor
}

// Value is a wikitext fragment, typically an infobox field.
type Value struct {
	raw string
}

// NewValue wraps a raw fragment.
func NewValue(raw string) Value {
	return Value{raw: raw}
}

// Wikitext returns the raw fragment.
func (v Value) Wikitext() string {
	return v.raw
}

// IsEmpty reports whether the fragment has no visible text.
func (v Value) IsEmpty() bool {
	return strings.TrimSpace(v.Text()) == ""
}

// Text returns the visible text with formatting quotes removed.
func (v Value) Text() string {
	var sb strings.Builder
	for _, t := range v.Tokens() {
		sb.WriteString(t.Text)
	}
	return strings.TrimSpace(formattingRe.ReplaceAllString(sb.String(), ""))
}

// Links returns the internal links of the fragment in order.
func (v Value) Links() []Link {
	var links []Link
	for _, t := range v.Tokens() {
		if t.Type == TokenInternalLink {
			links = append(links, Link{Page: t.Page, Anchor: t.Anchor, Text: t.Text})
		}
	}
	return links
}

var (
	formattingRe = regexp.MustCompile(`'{2,}`)
	commentRe    = regexp.MustCompile(`(?s)<!--.*?-->`)
	refRe        = regexp.MustCompile(`(?is)<ref[^>/]*/>|<ref[^>]*>.*?</ref>`)
	brRe         = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe        = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	extLinkRe    = regexp.MustCompile(`^\[(https?://[^\s\]]+)(?:\s+([^\]]*))?\]`)
)

// Tokens splits the fragment into text and link tokens. Templates are
// rendered to text where they carry meaning and dropped otherwise.
func (v Value) Tokens() []Token {
	s := commentRe.ReplaceAllString(v.raw, "")
	s = refRe.ReplaceAllString(s, "")
	s = brRe.ReplaceAllString(s, "\n")
	s = renderTemplates(s)
	s = tagRe.ReplaceAllString(s, "")

	var tokens []Token
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, Token{Type: TokenText, Text: html.UnescapeString(text.String())})
			text.Reset()
		}
	}

	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "[[") {
			end := matchingClose(s, i, "[[", "]]")
			if end < 0 {
				text.WriteString(s[i:])
				break
			}
			if link, ok := parseInternalLink(s[i+2 : end]); ok {
				flush()
				tokens = append(tokens, Token{Type: TokenInternalLink, Text: link.Text, Page: link.Page, Anchor: link.Anchor})
			}
			i = end + 2
			continue
		}
		if s[i] == '[' {
			if m := extLinkRe.FindStringSubmatch(s[i:]); m != nil {
				flush()
				tokens = append(tokens, Token{Type: TokenExternalLink, Site: m[1], Text: html.UnescapeString(strings.TrimSpace(m[2]))})
				i += len(m[0])
				continue
			}
		}
		text.WriteByte(s[i])
		i++
	}
	flush()
	return tokens
}

// parseInternalLink parses the inside of [[...]]. File and category links are dropped.
func parseInternalLink(inner string) (Link, bool) {
	parts := splitTopLevel(inner, '|')
	target := strings.TrimSpace(parts[0])
	lower := strings.ToLower(target)
	for _, ns := range []string{"file:", "image:", "category:"} {
		if strings.HasPrefix(lower, ns) {
			return Link{}, false
		}
	}
	target = strings.TrimPrefix(target, ":")

	var link Link
	if idx := strings.IndexByte(target, '#'); idx >= 0 {
		link.Anchor = strings.TrimSpace(target[idx+1:])
		target = target[:idx]
	}
	link.Page = html.UnescapeString(NormalizeName(target))
	if len(parts) > 1 {
		link.Text = strings.TrimSpace(parts[len(parts)-1])
	}
	if link.Text == "" {
		link.Text = strings.TrimSpace(parts[0])
	}
	link.Text = html.UnescapeString(formattingRe.ReplaceAllString(link.Text, ""))
	return link, true
}

// matchingClose returns the index of the close marker balancing the open
// marker at start, or -1.
func matchingClose(s string, start int, open, close string) int {
	depth := 0
	for i := start; i+len(close) <= len(s); {
		switch {
		case strings.HasPrefix(s[i:], open):
			depth++
			i += len(open)
		case strings.HasPrefix(s[i:], close):
			depth--
			if depth == 0 {
				return i
			}
			i += len(close)
		default:
			i++
		}
	}
	return -1
}

// renderTemplates replaces templates with their textual rendering.
func renderTemplates(s string) string {
	spans := scanTemplates(s)
	if len(spans) == 0 {
		return s
	}
	var sb strings.Builder
	last := 0
	for _, sp := range spans {
		sb.WriteString(s[last:sp.start])
		sb.WriteString(renderTemplate(parseTemplate(s[sp.start:sp.end])))
		last = sp.end
	}
	sb.WriteString(s[last:])
	return sb.String()
}

func renderTemplate(t *Template) string {
	switch strings.ToLower(t.Name) {
	case "c":
		return "((" + renderTemplates(t.Positional(1)) + "))"
	case "circa":
		return "((Approximate date))"
	case "!":
		return "|"
	case "nowrap", "sort":
		// last positional carries the displayed text
		for i := len(t.Params) - 1; i >= 0; i-- {
			if t.Params[i].Name == "" {
				return renderTemplates(t.Params[i].Value)
			}
		}
	}
	return ""
}
