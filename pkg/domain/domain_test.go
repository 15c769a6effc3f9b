package domain

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestTreeCollapsesSingleText(t *testing.T) {
	r := Tree([]Node{{Type: NodeText, Text: "Del Rey"}})
	if !r.IsPlain() || r.String() != "Del Rey" {
		t.Errorf("single text node should collapse, got %+v", r)
	}
	linked := Tree([]Node{{Type: NodeInternalLink, Page: "Del Rey"}, {Type: NodeText, Text: " Books"}})
	if linked.IsPlain() || linked.String() != "Del Rey Books" {
		t.Errorf("String() = %q", linked.String())
	}
	if !Tree(nil).IsZero() {
		t.Error("empty tree should be zero")
	}
}

func TestRichMarshalBSON(t *testing.T) {
	doc, err := bson.Marshal(bson.M{"plain": Plain("x"), "tree": Tree([]Node{{Type: NodeInternalLink, Page: "P"}})})
	if err != nil {
		t.Fatal(err)
	}
	raw := bson.Raw(doc)
	if s, ok := raw.Lookup("plain").StringValueOK(); !ok || s != "x" {
		t.Errorf("plain value should be a string, got %v", raw.Lookup("plain"))
	}
	if _, ok := raw.Lookup("tree").ArrayOK(); !ok {
		t.Errorf("tree value should be an array, got %v", raw.Lookup("tree"))
	}
}

func TestFinalize(t *testing.T) {
	ws := NewWorkingSet()
	d := &Draft{
		Title:     "Book",
		Publisher: []string{},
		Fields:    map[string]Rich{"isbn": {}, "pages": Plain("320")},
	}
	empty := &Draft{Title: "Empty", Fields: map[string]Rich{"isbn": {}}}
	ws.Add(d)
	ws.Add(empty)
	s := ws.SeriesFor("Saga")
	s.Series = []string{}

	ws.Finalize()

	if d.Publisher != nil || len(d.Fields) != 1 || d.Fields["pages"].String() != "320" {
		t.Errorf("unexpected draft after Finalize: %+v", d)
	}
	if empty.Fields != nil {
		t.Errorf("an all-empty field map should be dropped, got %v", empty.Fields)
	}
	if s.Series != nil {
		t.Error("empty series list should be dropped")
	}
}

func TestByArticleGroupsChapters(t *testing.T) {
	ws := NewWorkingSet()
	ws.Add(&Draft{Title: "Part 1", Href: "Book"})
	ws.Add(&Draft{Title: "Other"})
	ws.Add(&Draft{Title: "Part 2", Href: "Book"})

	order, groups := ws.ByArticle()
	if len(order) != 2 || order[0] != "Book" || order[1] != "Other" {
		t.Errorf("order = %v", order)
	}
	if len(groups["Book"]) != 2 || groups["Book"][1] != 2 {
		t.Errorf("groups = %v", groups)
	}
}

func TestAppearanceIndex(t *testing.T) {
	ix := make(AppearanceIndex)
	ix.Add("organisms", "Gundark", AppearanceRef{PageID: 1})
	ix.Add("characters", "Anakin Skywalker", AppearanceRef{PageID: 1, Templates: []string{"1st"}})
	ix.Add("characters", "Anakin Skywalker", AppearanceRef{PageID: 2})

	if got := ix.Categories(); len(got) != 2 || got[0] != "characters" {
		t.Errorf("Categories() = %v", got)
	}
	if len(ix["characters"]["Anakin Skywalker"]) != 2 {
		t.Error("refs should accumulate per entity")
	}
}
