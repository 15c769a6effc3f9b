package series

import (
	"context"
	"errors"
	"testing"

	"catalog-sync/pkg/articles"
	"catalog-sync/pkg/classify"
	"catalog-sync/pkg/config"
	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/wikitext"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeDocs struct {
	pages   map[string]string
	fetched [][]string
}

func (f *fakeDocs) Get(_ context.Context, title string) (*articles.Article, error) {
	raw, ok := f.pages[title]
	if !ok {
		return &articles.Article{Title: title, Missing: true}, nil
	}
	return &articles.Article{Title: title, PageID: int64(len(title)), Doc: wikitext.Parse(title, raw)}, nil
}

func (f *fakeDocs) Fetch(ctx context.Context, titles []string) (map[string]*articles.Article, error) {
	f.fetched = append(f.fetched, titles)
	out := make(map[string]*articles.Article, len(titles))
	for _, t := range titles {
		out[t], _ = f.Get(ctx, t)
	}
	return out, nil
}

func newTestResolver(docs *fakeDocs, suppress []string) (*Resolver, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	c := classify.NewClassifier(docs, config.Suppress{}, logger)
	return NewResolver(docs, c, suppress, false, logger), logs
}

func TestResolve(t *testing.T) {
	docs := &fakeDocs{pages: map[string]string{
		"The High Republic": "{{Book series\n|publisher=[[Del Rey]]\n}}\n'''The High Republic''' is a multimedia project.\n[[Category:Multimedia projects]]",
		"Adventures":        "{{Comic series}}\n'''Adventures''' is a comic book series of short stories.",
		"Stories":           "'''Stories''' is a series of short stories.",
		"Andor":             "{{Television series}}\n'''Andor''' is a series.\n[[Category:Canon live-action television series]]",
		"Novels":            "{{Book series}}\n'''Novels''' is a series of young-adult novels.",
	}}
	r, logs := newTestResolver(docs, nil)

	ws := domain.NewWorkingSet()
	for _, title := range []string{"The High Republic", "Adventures", "Stories", "Andor", "Novels", "Novels#Phase I"} {
		ws.SeriesFor(title)
	}

	if err := r.Resolve(context.Background(), ws); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	tests := []struct {
		title    string
		typ      domain.MediaType
		fullType domain.FullType
	}{
		{"The High Republic", domain.Multimedia, ""},
		{"Adventures", domain.ShortStory, ""},
		{"Stories", domain.ShortStory, ""},
		{"Andor", domain.TV, domain.TVLiveAction},
		{"Novels", domain.Book, domain.BookYA},
		{"Novels#Phase I", domain.Book, domain.BookYA},
	}
	for _, tt := range tests {
		s, _ := ws.LookupSeries(tt.title)
		if s.Type != tt.typ || s.FullType != tt.fullType {
			t.Errorf("%s: got %q/%q, want %q/%q", tt.title, s.Type, s.FullType, tt.typ, tt.fullType)
		}
	}

	if len(docs.fetched) != 1 || len(docs.fetched[0]) != 5 {
		t.Errorf("series should be fetched in one batch without anchors, got %v", docs.fetched)
	}
	anchored, _ := ws.LookupSeries("Novels#Phase I")
	if anchored.DisplayTitle != "Novels Phase I" {
		t.Errorf("DisplayTitle = %q", anchored.DisplayTitle)
	}
	hr, _ := ws.LookupSeries("The High Republic")
	if len(hr.Publisher) != 1 || hr.Publisher[0] != "Del Rey" {
		t.Errorf("infobox content should fill the series, got %+v", hr)
	}
	if n := logs.FilterMessage("multiple type patterns match the opening sentence, the latter takes priority").Len(); n != 1 {
		t.Errorf("expected one multiple-match warning, got %d", n)
	}
}

func TestResolveMultipleMatchesSuppressed(t *testing.T) {
	docs := &fakeDocs{pages: map[string]string{
		"Adventures": "{{Comic series}}\n'''Adventures''' is a comic book series of short stories.",
	}}
	r, logs := newTestResolver(docs, []string{"Adventures"})
	ws := domain.NewWorkingSet()
	ws.SeriesFor("Adventures")

	if err := r.Resolve(context.Background(), ws); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if logs.FilterLevelExact(zap.WarnLevel).Len() != 0 {
		t.Error("suppressed series should not warn")
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		page string
		want error
	}{
		{"unknown infobox", "{{Toy line}}\n'''X''' is a toy line.", ErrUnknownSeriesInfobox},
		{"untyped", "'''X''' is a thing.", ErrSeriesUntyped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := &fakeDocs{pages: map[string]string{"X": tt.page}}
			r, _ := newTestResolver(docs, nil)
			ws := domain.NewWorkingSet()
			ws.SeriesFor("X")
			if err := r.Resolve(context.Background(), ws); !errors.Is(err, tt.want) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRedlinkInference(t *testing.T) {
	docs := &fakeDocs{pages: map[string]string{
		"A1": "{{Comic book}}\n'''A1''' is a comic.\n[[Category:Canon manga]]",
		"A2": "{{Comic book}}\n'''A2''' is a comic.\n[[Category:Canon manga]]",
		"B1": "{{Comic book}}\n'''B1''' is a comic.\n[[Category:Canon manga]]",
		"B2": "{{Comic book}}\n'''B2''' is a comic.",
	}}
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	c := classify.NewClassifier(docs, config.Suppress{}, logger)
	r := NewResolver(docs, c, nil, false, logger)

	ws := domain.NewWorkingSet()
	ws.Add(&domain.Draft{Title: "A1", PageID: 1, Type: domain.Comic, Series: []string{"Redlink Manga"}})
	ws.Add(&domain.Draft{Title: "A2", PageID: 2, Type: domain.Comic, Series: []string{"Redlink Manga"}})
	ws.Add(&domain.Draft{Title: "B1", PageID: 3, Type: domain.Comic, Series: []string{"Split Full"}})
	ws.Add(&domain.Draft{Title: "B2", PageID: 4, Type: domain.Comic, Series: []string{"Split Full"}})
	ws.Add(&domain.Draft{Title: "C1", Type: domain.Comic, Series: []string{"Mixed"}})
	ws.Add(&domain.Draft{Title: "C2", Type: domain.Book, Series: []string{"Mixed"}})
	for _, title := range []string{"Redlink Manga", "Split Full", "Mixed"} {
		ws.SeriesFor(title)
	}

	ctx := context.Background()
	if err := r.Resolve(ctx, ws); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := c.Run(ctx, ws); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	InferRedlinkFullTypes(ws, logger)

	manga, _ := ws.LookupSeries("Redlink Manga")
	if !manga.Redlink || manga.Type != domain.Comic || manga.FullType != domain.ComicManga {
		t.Errorf("Redlink Manga = %+v", manga)
	}
	split, _ := ws.LookupSeries("Split Full")
	if split.Type != domain.Comic || split.FullType != "" {
		t.Errorf("Split Full = %+v", split)
	}
	mixed, _ := ws.LookupSeries("Mixed")
	if mixed.Type != domain.Unknown || mixed.FullType != "" {
		t.Errorf("Mixed = %+v", mixed)
	}
	if n := logs.FilterMessage("failed to infer the type of a redlink series, setting unknown").Len(); n != 1 {
		t.Errorf("expected one unknown-type warning, got %d", n)
	}
	if n := logs.FilterMessage("inferred redlink series full type from its members").Len(); n != 1 {
		t.Errorf("expected one full type inference, got %d", n)
	}
}

func TestInferRedlinkFullTypesSkipsResolved(t *testing.T) {
	ws := domain.NewWorkingSet()
	ws.Add(&domain.Draft{Title: "J1", Type: domain.Book, FullType: domain.BookAdult, Series: []string{"Known"}})
	known := ws.SeriesFor("Known")
	known.Type, known.FullType = domain.Book, domain.BookJR

	InferRedlinkFullTypes(ws, zap.NewNop())

	if known.FullType != domain.BookJR {
		t.Errorf("non-redlink series changed: %+v", known)
	}
}

func TestAdjustBookTypes(t *testing.T) {
	ws := domain.NewWorkingSet()
	ws.Add(&domain.Draft{Title: "R1", Type: domain.YR, Series: []string{"Readers"}})
	ws.Add(&domain.Draft{Title: "R2", Type: domain.YR, Series: []string{"Readers"}})
	ws.Add(&domain.Draft{Title: "N1", Type: domain.YR, Series: []string{"Mixed"}})
	ws.Add(&domain.Draft{Title: "N2", Type: domain.Book, Series: []string{"Mixed"}})
	readers := ws.SeriesFor("Readers")
	readers.Type, readers.FullType = domain.Book, domain.BookJR
	mixed := ws.SeriesFor("Mixed")
	mixed.Type, mixed.FullType = domain.Book, domain.BookJR

	AdjustBookTypes(ws, zap.NewNop())

	if readers.Type != domain.YR || readers.FullType != "" {
		t.Errorf("Readers = %+v", readers)
	}
	if mixed.Type != domain.Book || mixed.FullType != domain.BookJR {
		t.Errorf("Mixed = %+v", mixed)
	}
}
