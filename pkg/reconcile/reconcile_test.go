package reconcile

import (
	"testing"
	"time"

	"catalog-sync/pkg/domain"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var runTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestReconciler(ignore ...string) (*Reconciler, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	r := New(ignore, zap.New(core))
	r.now = func() time.Time { return runTime }
	return r, logs
}

func workingSet(drafts ...*domain.Draft) *domain.WorkingSet {
	ws := domain.NewWorkingSet()
	for _, d := range drafts {
		ws.Add(d)
	}
	return ws
}

func TestRename(t *testing.T) {
	r, logs := newTestReconciler()
	added := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	d := &domain.Draft{Title: "B", PageID: 42}

	plan := r.Reconcile(workingSet(d), []domain.PriorRecord{{PageID: 42, Title: "A", AddedAt: &added}}, nil, nil)

	if len(plan.Renames) != 1 || plan.Renames[0] != (Rename{PageID: 42, From: "A", To: "B"}) {
		t.Errorf("Renames = %+v", plan.Renames)
	}
	if len(plan.Archive) != 0 || len(plan.Added) != 0 {
		t.Errorf("a rename is neither archived nor new: %+v", plan)
	}
	if d.AddedAt == nil || !d.AddedAt.Equal(added) {
		t.Errorf("AddedAt should carry over, got %v", d.AddedAt)
	}
	if logs.FilterMessage("renamed").Len() != 1 {
		t.Error("expected a rename log")
	}
}

func TestArchiveListed(t *testing.T) {
	r, logs := newTestReconciler()
	prior := []domain.PriorRecord{{PageID: 7, Title: "Gone"}, {PageID: 8, Title: "Unlisted"}}

	plan := r.Reconcile(workingSet(), prior, map[int64]bool{7: true}, nil)

	if len(plan.Archive) != 1 || plan.Archive[0].PageID != 7 {
		t.Errorf("Archive = %+v", plan.Archive)
	}
	if len(plan.Dropped) != 1 || plan.Dropped[0].PageID != 8 {
		t.Errorf("Dropped = %+v", plan.Dropped)
	}
	if logs.FilterLevelExact(zap.WarnLevel).Len() != 1 {
		t.Error("archiving should warn once")
	}
}

func TestIdempotent(t *testing.T) {
	r, _ := newTestReconciler()
	added := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	prior := []domain.PriorRecord{
		{PageID: 1, Title: "One", AddedAt: &added},
		{PageID: 2, Title: "Part 1", NotUnique: true, AddedAt: &added},
		{PageID: 2, Title: "Part 2", NotUnique: true, AddedAt: &added},
	}
	drafts := []*domain.Draft{
		{Title: "One", PageID: 1},
		{Title: "Part 1", Href: "Book", PageID: 2, NotUnique: true},
		{Title: "Part 2", Href: "Book", PageID: 2, NotUnique: true},
		{Title: "Redlink", Redlink: true},
	}

	plan := r.Reconcile(workingSet(drafts...), prior, map[int64]bool{1: true}, nil)

	if len(plan.Renames)+len(plan.Added)+len(plan.Archive)+len(plan.Dropped)+len(plan.Resurrected) != 0 {
		t.Errorf("consistent state should produce an empty plan, got %+v", plan)
	}
	for _, d := range drafts[:3] {
		if d.AddedAt == nil || !d.AddedAt.Equal(added) {
			t.Errorf("%s: AddedAt = %v", d.Title, d.AddedAt)
		}
	}
	if drafts[3].AddedAt != nil {
		t.Error("redlinks should not be stamped")
	}
}

func TestNewMedia(t *testing.T) {
	r, _ := newTestReconciler()
	d := &domain.Draft{Title: "Fresh", PageID: 99, Type: domain.Comic, FullType: domain.ComicManga}

	plan := r.Reconcile(workingSet(d), nil, nil, nil)

	if len(plan.Added) != 1 || plan.Added[0] != d {
		t.Errorf("Added = %+v", plan.Added)
	}
	if d.AddedAt == nil || !d.AddedAt.Equal(runTime) {
		t.Errorf("AddedAt = %v", d.AddedAt)
	}
}

func TestResurrection(t *testing.T) {
	r, logs := newTestReconciler()
	drafts := []*domain.Draft{
		{Title: "Back", PageID: 5},
		{Title: "Renamed back", PageID: 6},
		{Title: "Part 2", PageID: 6, NotUnique: true},
	}
	missing := []domain.MissingRecord{{PageID: 5, Title: "Back"}, {PageID: 6, Title: "Old name"}}

	plan := r.Reconcile(workingSet(drafts...), nil, nil, missing)

	if len(plan.Resurrected) != 2 || plan.Resurrected[0] != 5 || plan.Resurrected[1] != 6 {
		t.Errorf("Resurrected = %v", plan.Resurrected)
	}
	entries := logs.FilterMessage("media was missing, but it's present in the timeline again, will delete from missing media").All()
	if len(entries) != 2 {
		t.Fatalf("expected two resurrection logs, got %d", len(entries))
	}
	if entries[0].ContextMap()["titles"] != "are identical" || entries[1].ContextMap()["titles"] != "differ" {
		t.Errorf("unexpected title comparison: %v / %v", entries[0].ContextMap(), entries[1].ContextMap())
	}
}

func TestIgnoreList(t *testing.T) {
	r, logs := newTestReconciler("Retired")
	prior := []domain.PriorRecord{{PageID: 3, Title: "Retired"}}

	plan := r.Reconcile(workingSet(), prior, map[int64]bool{3: true}, nil)

	if len(plan.Archive) != 0 || len(plan.Dropped) != 0 {
		t.Errorf("ignored titles should be skipped: %+v", plan)
	}
	if logs.FilterLevelExact(zap.WarnLevel).Len() != 0 {
		t.Error("ignored titles should not warn")
	}
}
