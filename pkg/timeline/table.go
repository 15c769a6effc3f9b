// Package timeline turns the rendered timeline page into ordered media drafts.
package timeline

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

var (
	// ErrTableShape is returned when the timeline table no longer has the expected columns.
	ErrTableShape = eris.New("timeline: unexpected table shape")
	// ErrUnknownTemplate is returned when the timeline transcludes templates outside the allow-list.
	ErrUnknownTemplate = eris.New("timeline: unknown templates")
)

const (
	colYear     = "Year"
	colTitle    = "Title"
	colReleased = "Released"
	colWriters  = "Writer(s)"
)

// Row is one row of the timeline table.
type Row struct {
	Year     string
	TypeCode string
	// TitleText is the full visible text of the title cell, notes included.
	TitleText string
	// Article is the target of the first wiki link in the title cell, with
	// its anchor. Empty when the cell links nowhere.
	Article  string
	Writers  []string
	Released string
}

// ReadTable finds the timeline table in the rendered page by its header and
// returns its rows in order.
func ReadTable(html string) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "timeline: parse html")
	}

	// Footnote markers would otherwise leak into cell text
	doc.Find("sup.reference").Remove()

	var (
		table   *goquery.Selection
		columns map[string]int
	)
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if cols, ok := headerColumns(t); ok {
			table, columns = t, cols
			return false
		}
		return true
	})
	if table == nil {
		return nil, eris.Wrapf(ErrTableShape, "no table with %s, type, %s and %s columns", colYear, colTitle, colReleased)
	}

	var rows []Row
	var shapeErr error
	table.Find("tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return true
		}
		if cells.Length() != len(columns) {
			shapeErr = eris.Wrapf(ErrTableShape, "row %d has %d cells, want %d", i, cells.Length(), len(columns))
			return false
		}

		titleCell := cells.Eq(columns[colTitle])
		row := Row{
			Year:      cellText(cells.Eq(columns[colYear])),
			TypeCode:  cellText(cells.Eq(columns[""])),
			TitleText: cellText(titleCell),
			Released:  cellText(cells.Eq(columns[colReleased])),
		}
		if links := wikiLinks(titleCell); len(links) > 0 {
			row.Article = links[0]
		}
		if idx, ok := columns[colWriters]; ok {
			row.Writers = wikiLinks(cells.Eq(idx))
		}
		rows = append(rows, row)
		return true
	})
	if shapeErr != nil {
		return nil, shapeErr
	}
	return rows, nil
}

// headerColumns maps header labels to column indexes. The type code column
// has an empty header.
func headerColumns(table *goquery.Selection) (map[string]int, bool) {
	header := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.ChildrenFiltered("th").Length() > 0
	}).First()
	if header.Length() == 0 {
		return nil, false
	}

	cols := make(map[string]int)
	header.ChildrenFiltered("th").Each(func(i int, th *goquery.Selection) {
		label := cellText(th)
		if _, dup := cols[label]; !dup {
			cols[label] = i
		}
	})
	for _, required := range []string{colYear, "", colTitle, colReleased} {
		if _, ok := cols[required]; !ok {
			return nil, false
		}
	}
	return cols, true
}

func cellText(sel *goquery.Selection) string {
	return strings.TrimSpace(strings.Join(strings.Fields(sel.Text()), " "))
}

// wikiLinks returns the page targets of the wiki links in sel, including
// links to pages that do not exist yet.
func wikiLinks(sel *goquery.Selection) []string {
	var out []string
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if target := linkTarget(href); target != "" {
			out = append(out, target)
		}
	})
	return out
}

// linkTarget extracts the page title from an article or redlink href.
func linkTarget(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.Host != "" && !strings.HasSuffix(u.Host, "fandom.com") {
		return ""
	}

	var title string
	switch {
	case strings.HasPrefix(u.Path, "/wiki/"):
		title = strings.TrimPrefix(u.Path, "/wiki/")
	case u.Query().Get("title") != "":
		title = u.Query().Get("title")
	default:
		return ""
	}
	if strings.Contains(title, ":") && isNamespaced(title) {
		return ""
	}

	title = strings.ReplaceAll(title, "_", " ")
	if u.Fragment != "" {
		title += "#" + strings.ReplaceAll(u.Fragment, "_", " ")
	}
	return title
}

func isNamespaced(title string) bool {
	ns := strings.ToLower(title[:strings.IndexByte(title, ':')])
	switch ns {
	case "file", "image", "category", "template", "special", "help", "wookieepedia":
		return true
	}
	return false
}
