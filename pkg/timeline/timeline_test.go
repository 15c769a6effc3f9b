package timeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/wiki"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const sampleHTML = `<div class="mw-parser-output">
<table class="wikitable"><tr><th>Legend</th></tr><tr><td>C</td></tr></table>
<table class="wikitable sortable">
<tr><th>Year</th><th></th><th>Title</th><th>Writer(s)</th><th>Released</th></tr>
<tr><td>232 BBY</td><td>C</td><td><i><a href="/wiki/The_High_Republic_1" title="The High Republic 1">The High Republic 1</a></i></td><td><a href="/wiki/Cavan_Scott" title="Cavan Scott">Cavan Scott</a></td><td>2021-01-06</td></tr>
<tr><td>232 BBY</td><td>P</td><td>Promo</td><td></td><td>2021</td></tr>
<tr><td>232 BBY</td><td>Q</td><td>Weird</td><td></td><td>2021</td></tr>
<tr><td>19 BBY</td><td>N</td><td>"<a href="/wiki/Shared_Book">Part One</a>" †</td><td></td><td>2021</td></tr>
<tr><td>19 BBY</td><td>N</td><td>"<a href="/wiki/Shared_Book">Part Two</a>" *Novelization of the film</td><td></td><td>2099-05</td></tr>
<tr><td>4 ABY</td><td>JR</td><td><a href="/index.php?title=Unwritten_Book&amp;action=edit&amp;redlink=1" class="new">Unwritten Book</a><sup class="reference">[1]</sup></td><td></td><td>2024-??-??</td></tr>
<tr><td>4 ABY</td><td>TV</td><td>Untitled episode</td><td></td><td></td></tr>
</table>
</div>`

func TestReadTable(t *testing.T) {
	rows, err := ReadTable(sampleHTML)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(rows))
	}
	if rows[0].Article != "The High Republic 1" || rows[0].TypeCode != "C" || rows[0].Year != "232 BBY" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if len(rows[0].Writers) != 1 || rows[0].Writers[0] != "Cavan Scott" {
		t.Errorf("writers = %v", rows[0].Writers)
	}
	if rows[5].Article != "Unwritten Book" || rows[5].TitleText != "Unwritten Book" {
		t.Errorf("redlink row = %+v", rows[5])
	}
	if rows[6].Article != "" {
		t.Errorf("unlinked row should have no article, got %q", rows[6].Article)
	}
}

func TestReadTableShape(t *testing.T) {
	html := `<table><tr><th>Year</th><th>Title</th></tr><tr><td>1</td><td>x</td></tr></table>`
	if _, err := ReadTable(html); !errors.Is(err, ErrTableShape) {
		t.Errorf("expected ErrTableShape, got %v", err)
	}

	html = `<table><tr><th>Year</th><th></th><th>Title</th><th>Released</th></tr><tr><td>1</td><td>C</td></tr></table>`
	if _, err := ReadTable(html); !errors.Is(err, ErrTableShape) {
		t.Errorf("expected ErrTableShape for short row, got %v", err)
	}
}

func newTestDecomposer() (*Decomposer, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	d := NewDecomposer(zap.New(core))
	d.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return d, logs
}

func TestDecompose(t *testing.T) {
	rows, err := ReadTable(sampleHTML)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	d, logs := newTestDecomposer()
	ws := d.Decompose(rows, 0)

	if len(ws.Drafts) != 5 {
		t.Fatalf("expected 5 drafts, got %d", len(ws.Drafts))
	}

	first := ws.Drafts[0]
	if first.Title != "The High Republic 1" || first.Type != domain.Comic || first.Chronology != 0 {
		t.Errorf("unexpected first draft: %+v", first)
	}
	if first.ReleaseDateEffective != "2021-01-06" || first.Unreleased {
		t.Errorf("full past date should be released with effective date, got %+v", first)
	}

	one, two := ws.Drafts[1], ws.Drafts[2]
	if one.Title != "Part One" || two.Title != "Part Two" {
		t.Errorf("chapter titles = %q, %q", one.Title, two.Title)
	}
	if one.Href != "Shared Book" || two.Href != "Shared Book" || !one.NotUnique || !two.NotUnique {
		t.Errorf("chapters should share href and be notUnique: %+v %+v", one, two)
	}
	if one.Chronology != 3 || two.Chronology != 4 {
		t.Errorf("chronology = %d, %d", one.Chronology, two.Chronology)
	}
	if !one.ExactPlacementUnknown || one.ReleaseDateEffective != "" || one.Unreleased {
		t.Errorf("unexpected flags on first chapter: %+v", one)
	}
	if !two.Adaptation || !two.Unreleased {
		t.Errorf("second chapter should be an unreleased adaptation: %+v", two)
	}
	if got := two.TimelineNotes.String(); got != "Novelization of the film" {
		t.Errorf("timeline notes = %q", got)
	}

	jr := ws.Drafts[3]
	if jr.Type != domain.Book || jr.FullType != domain.BookJR || !jr.Unreleased {
		t.Errorf("unexpected JR draft: %+v", jr)
	}

	unlinked := ws.Drafts[4]
	if !unlinked.Redlink || unlinked.Title != "Untitled episode" {
		t.Errorf("unexpected unlinked draft: %+v", unlinked)
	}

	if idx, ok := ws.Lookup("Part Two"); !ok || idx != 2 {
		t.Errorf("Lookup(Part Two) = %d, %v", idx, ok)
	}
	if n := logs.FilterMessage("unknown type code, skipping row").Len(); n != 1 {
		t.Errorf("expected one unknown type warning, got %d", n)
	}
	if n := logs.FilterMessage("release date format invalid").Len(); n != 0 {
		t.Errorf("expected no date errors, got %d", n)
	}
}

func TestDecomposeLimit(t *testing.T) {
	rows := []Row{
		{TypeCode: "C", Article: "A", TitleText: "A"},
		{TypeCode: "C", Article: "B", TitleText: "B"},
		{TypeCode: "C", Article: "C", TitleText: "C"},
	}
	d, _ := newTestDecomposer()
	if ws := d.Decompose(rows, 2); len(ws.Drafts) != 2 {
		t.Errorf("expected 2 drafts, got %d", len(ws.Drafts))
	}
}

func TestDecomposeInvalidDate(t *testing.T) {
	d, logs := newTestDecomposer()
	ws := d.Decompose([]Row{{TypeCode: "F", Article: "Film", TitleText: "Film", Released: "Soon"}}, 0)
	if !ws.Drafts[0].Unreleased {
		t.Error("unparsable date should mark the draft unreleased")
	}
	if n := logs.FilterMessage("release date format invalid").Len(); n != 1 {
		t.Errorf("expected one date error, got %d", n)
	}
}

func TestUnscuffDate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2021", "2021-12-31"},
		{"2021-??-??", "2021-12-31"},
		{"2021-xx", "2021-12-31"},
		{"2021-06", "2021-06-30"},
		{"2020-02-??", "2020-02-29"},
		{"2021–06", "2021-06-30"},
		{"2021-03-04", "2021-03-04"},
		{"TBA", "TBA"},
	}
	for _, tt := range tests {
		if got := UnscuffDate(tt.in); got != tt.want {
			t.Errorf("UnscuffDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fakeParser struct {
	page *wiki.ParsedPage
}

func (f fakeParser) ParsedPage(ctx context.Context, title string) (*wiki.ParsedPage, error) {
	return f.page, nil
}

func TestFetchUnknownTemplates(t *testing.T) {
	parser := fakeParser{page: &wiki.ParsedPage{
		HTML:      sampleHTML,
		Templates: []string{"Top", "Mystery", "C", "Another", "Mystery"},
	}}
	_, err := Fetch(context.Background(), parser, "Timeline of canon media", []string{"Top", "C"})
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
	if !strings.Contains(err.Error(), "Another, Mystery") {
		t.Errorf("error should name every unknown template: %v", err)
	}

	parser.page.Templates = []string{"Top"}
	rows, err := Fetch(context.Background(), parser, "Timeline of canon media", []string{"Top", "C"})
	if err != nil || len(rows) != 7 {
		t.Errorf("Fetch() = %d rows, %v", len(rows), err)
	}
}
