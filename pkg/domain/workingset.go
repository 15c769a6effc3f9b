package domain

import "sort"

// WorkingSet is the run's single collection of drafts and series. The
// pipeline driver owns it and hands it to each stage by pointer.
type WorkingSet struct {
	Drafts []*Draft
	Series []*SeriesDraft

	// Appearances is filled by article enrichment.
	Appearances AppearanceIndex

	byTitle  map[string]int
	bySeries map[string]int
}

// NewWorkingSet returns an empty working set.
func NewWorkingSet() *WorkingSet {
	return &WorkingSet{
		Appearances: make(AppearanceIndex),
		byTitle:     make(map[string]int),
		bySeries:    make(map[string]int),
	}
}

// Add appends a draft and indexes it by title. It returns the draft's index.
func (ws *WorkingSet) Add(d *Draft) int {
	ws.Drafts = append(ws.Drafts, d)
	idx := len(ws.Drafts) - 1
	ws.byTitle[d.Title] = idx
	return idx
}

// Lookup returns the index of the draft last added under title.
func (ws *WorkingSet) Lookup(title string) (int, bool) {
	idx, ok := ws.byTitle[title]
	return idx, ok
}

// Reindex rebuilds the title index after titles changed.
func (ws *WorkingSet) Reindex() {
	ws.byTitle = make(map[string]int, len(ws.Drafts))
	for i, d := range ws.Drafts {
		ws.byTitle[d.Title] = i
	}
}

// ByArticle groups draft indexes by the article title backing them, in
// first-seen order.
func (ws *WorkingSet) ByArticle() ([]string, map[string][]int) {
	var order []string
	groups := make(map[string][]int)
	for i, d := range ws.Drafts {
		t := d.ArticleTitle()
		if _, ok := groups[t]; !ok {
			order = append(order, t)
		}
		groups[t] = append(groups[t], i)
	}
	return order, groups
}

// Finalize drops empty values so they are not persisted.
func (ws *WorkingSet) Finalize() {
	for _, d := range ws.Drafts {
		d.Fields = compact(d.Fields)
		if len(d.Publisher) == 0 {
			d.Publisher = nil
		}
		if len(d.Series) == 0 {
			d.Series = nil
		}
		if len(d.Writer) == 0 {
			d.Writer = nil
		}
	}
	for _, s := range ws.Series {
		s.Fields = compact(s.Fields)
		if len(s.Publisher) == 0 {
			s.Publisher = nil
		}
		if len(s.Series) == 0 {
			s.Series = nil
		}
	}
}

func compact(fields map[string]Rich) map[string]Rich {
	for k, v := range fields {
		if v.IsZero() {
			delete(fields, k)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// SeriesFor returns the series draft for title, creating it on first reference.
func (ws *WorkingSet) SeriesFor(title string) *SeriesDraft {
	if idx, ok := ws.bySeries[title]; ok {
		return ws.Series[idx]
	}
	s := &SeriesDraft{Title: title}
	ws.Series = append(ws.Series, s)
	ws.bySeries[title] = len(ws.Series) - 1
	return s
}

// LookupSeries returns an existing series draft.
func (ws *WorkingSet) LookupSeries(title string) (*SeriesDraft, bool) {
	idx, ok := ws.bySeries[title]
	if !ok {
		return nil, false
	}
	return ws.Series[idx], true
}

// Members returns the drafts that reference the series title.
func (ws *WorkingSet) Members(title string) []*Draft {
	var out []*Draft
	for _, d := range ws.Drafts {
		for _, s := range d.Series {
			if s == title {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// AppearanceRef points from an appearance entry to the citing media item.
type AppearanceRef struct {
	PageID    int64    `bson:"pageid"`
	Templates []string `bson:"t,omitempty"`
}

// AppearanceIndex maps category to entity name to the media citing it.
type AppearanceIndex map[string]map[string][]AppearanceRef

// Add records that ref cites name within category.
func (ix AppearanceIndex) Add(category, name string, ref AppearanceRef) {
	entities, ok := ix[category]
	if !ok {
		entities = make(map[string][]AppearanceRef)
		ix[category] = entities
	}
	entities[name] = append(entities[name], ref)
}

// Categories returns the category names in sorted order.
func (ix AppearanceIndex) Categories() []string {
	out := make([]string, 0, len(ix))
	for c := range ix {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
