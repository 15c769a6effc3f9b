// Package texttree turns infobox wikitext fragments into trees of text, note,
// list and link nodes.
package texttree

import (
	"regexp"
	"strings"

	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/wikitext"
)

var (
	formattingRe = regexp.MustCompile(`'{2,}`)
	noteRe       = regexp.MustCompile(`\(\((.*?)\)\)`)
	leadingStars = regexp.MustCompile(`^\*+ *`)
)

type state int

const (
	inText state = iota
	inList
	inListItem
)

// entry is one arena slot. List entries address their items by arena index.
type entry struct {
	node  domain.Node
	items [][]int
}

type builder struct {
	arena  []entry
	root   []int
	state  state
	list   int
	breaks int
}

// Transform converts a fragment to a text tree. A fragment that reduces to a
// single text node comes back as a bare string. A fragment holding nothing
// but notes is empty.
func Transform(v wikitext.Value) domain.Rich {
	return FromTokens(v.Tokens())
}

// FromTokens converts an inline token stream to a text tree.
func FromTokens(tokens []wikitext.Token) domain.Rich {
	b := &builder{}
	for i, tok := range tokens {
		switch tok.Type {
		case wikitext.TokenInternalLink:
			b.push(domain.Node{Type: domain.NodeInternalLink, Text: tok.Text, Page: tok.Page, Anchor: tok.Anchor})
		case wikitext.TokenExternalLink:
			b.push(domain.Node{Type: domain.NodeExternalLink, Text: tok.Text, Site: tok.Site})
		default:
			b.text(tok.Text, i == 0)
		}
	}
	return b.result()
}

// text feeds one text token through the line state machine.
func (b *builder) text(s string, first bool) {
	s = formattingRe.ReplaceAllString(s, "")

	if first && strings.HasPrefix(s, "*") {
		b.openList()
		s = strings.TrimLeft(s, "*")
	}

	lines := strings.Split(s, "\n")
	if len(lines) == 1 {
		b.line(s)
		return
	}

	head := lines[0]
	if first {
		head = leadingStars.ReplaceAllString(head, "")
	}
	b.line(head)
	for _, line := range lines[1:] {
		if strings.HasPrefix(line, "*") {
			if b.state == inListItem {
				b.nextItem()
			} else {
				b.openList()
			}
		} else if b.state == inListItem {
			b.closeList()
		} else {
			b.breaks++
		}
		b.line(leadingStars.ReplaceAllString(line, ""))
	}
}

// line pushes the text and note nodes of one line.
func (b *builder) line(s string) {
	last := 0
	for _, m := range noteRe.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			b.push(domain.Node{Type: domain.NodeText, Text: s[last:m[0]]})
		}
		if m[3] > m[2] {
			b.push(domain.Node{Type: domain.NodeNote, Text: s[m[2]:m[3]]})
		}
		last = m[1]
	}
	if last < len(s) {
		b.push(domain.Node{Type: domain.NodeText, Text: s[last:]})
	}
}

func (b *builder) container() *[]int {
	if b.state == inListItem {
		items := b.arena[b.list].items
		return &items[len(items)-1]
	}
	return &b.root
}

func (b *builder) push(n domain.Node) {
	c := b.container()
	if n.Type == domain.NodeText && len(*c) > 0 {
		prev := &b.arena[(*c)[len(*c)-1]].node
		if prev.Type == domain.NodeText {
			prev.Text += strings.Repeat("\n", b.breaks) + n.Text
			b.breaks = 0
			return
		}
	}
	b.arena = append(b.arena, entry{node: n})
	*c = append(*c, len(b.arena)-1)
	b.breaks = 0
}

func (b *builder) openList() {
	b.arena = append(b.arena, entry{node: domain.Node{Type: domain.NodeList}})
	b.list = len(b.arena) - 1
	b.root = append(b.root, b.list)
	b.state = inList
	b.nextItem()
}

func (b *builder) nextItem() {
	b.arena[b.list].items = append(b.arena[b.list].items, []int{})
	b.state = inListItem
	b.breaks = 0
}

func (b *builder) closeList() {
	b.state = inText
	b.breaks = 0
}

func (b *builder) result() domain.Rich {
	nodes := b.materialize(b.root)
	onlyNotes := true
	for _, n := range nodes {
		if n.Type != domain.NodeNote {
			onlyNotes = false
			break
		}
	}
	if onlyNotes {
		return domain.Rich{}
	}
	return domain.Tree(nodes)
}

func (b *builder) materialize(ids []int) []domain.Node {
	out := make([]domain.Node, 0, len(ids))
	for _, id := range ids {
		e := b.arena[id]
		n := e.node
		for _, item := range e.items {
			n.Items = append(n.Items, b.materialize(item))
		}
		out = append(out, n)
	}
	return out
}
