package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"catalog-sync/pkg/covers"
	"catalog-sync/pkg/db"
	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/enrich"
	"catalog-sync/pkg/reconcile"

	"github.com/gofrs/flock"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// recorder collects stage calls in order.
type recorder struct {
	calls []string
}

func (r *recorder) add(name string) { r.calls = append(r.calls, name) }

type fakeTimeline struct {
	rec    *recorder
	drafts []*domain.Draft
}

func (f *fakeTimeline) Build(context.Context) (*domain.WorkingSet, error) {
	f.rec.add("timeline")
	ws := domain.NewWorkingSet()
	for _, d := range f.drafts {
		ws.Add(d)
	}
	return ws, nil
}

type fakeEnricher struct {
	rec      *recorder
	err      error
	progress enrich.Progress
}

func (f *fakeEnricher) Run(context.Context, *domain.WorkingSet) error {
	f.rec.add("enrich")
	if f.progress != nil {
		_ = f.progress.Add(1)
	}
	return f.err
}

func (f *fakeEnricher) SetProgress(p enrich.Progress) { f.progress = p }

type fakeSeries struct{ rec *recorder }

func (f *fakeSeries) Resolve(context.Context, *domain.WorkingSet) error {
	f.rec.add("series")
	return nil
}

type fakeClassifier struct {
	rec     *recorder
	missing []string
}

func (f *fakeClassifier) Run(context.Context, *domain.WorkingSet) error {
	f.rec.add("classify")
	return nil
}

func (f *fakeClassifier) Validate(*domain.WorkingSet) []string {
	f.rec.add("validate")
	return f.missing
}

type fakeCovers struct{ rec *recorder }

func (f *fakeCovers) Run(context.Context, *domain.WorkingSet, map[string]domain.PriorCover) error {
	f.rec.add("covers")
	return nil
}

func (f *fakeCovers) SetProgress(covers.Progress) {}

type fakeStore struct {
	rec       *recorder
	prior     []domain.PriorRecord
	listed    map[int64]bool
	missing   []domain.MissingRecord
	tvSeries  []string
	committed *db.Snapshot
}

func (f *fakeStore) PriorRecords(context.Context) ([]domain.PriorRecord, error) { return f.prior, nil }

func (f *fakeStore) PriorCovers(context.Context) (map[string]domain.PriorCover, error) {
	return nil, nil
}

func (f *fakeStore) ListedPageIDs(context.Context) (map[int64]bool, error) { return f.listed, nil }

func (f *fakeStore) MissingRecords(context.Context) ([]domain.MissingRecord, error) {
	return f.missing, nil
}

func (f *fakeStore) MediaDocuments(_ context.Context, ids []int64) ([]bson.M, error) {
	out := make([]bson.M, len(ids))
	for i, id := range ids {
		out[i] = bson.M{"pageid": id}
	}
	return out, nil
}

func (f *fakeStore) TVSeries(context.Context) ([]string, error) { return f.tvSeries, nil }

func (f *fakeStore) Commit(_ context.Context, s *db.Snapshot) error {
	f.rec.add("commit")
	f.committed = s
	return nil
}

type fakeInvalidator struct{ rec *recorder }

func (f *fakeInvalidator) Flush(context.Context) error {
	f.rec.add("flush")
	return nil
}

type fakeProgress struct {
	added    int
	finished bool
}

func (f *fakeProgress) Add(n int) error {
	f.added += n
	return nil
}

func (f *fakeProgress) Finish() error {
	f.finished = true
	return nil
}

type fixture struct {
	rec        *recorder
	enricher   *fakeEnricher
	classifier *fakeClassifier
	store      *fakeStore
	cfg        Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := &recorder{}
	f := &fixture{
		rec:        rec,
		enricher:   &fakeEnricher{rec: rec},
		classifier: &fakeClassifier{rec: rec},
		store:      &fakeStore{rec: rec},
	}
	f.cfg = Config{
		Timeline: &fakeTimeline{rec: rec, drafts: []*domain.Draft{
			{Title: "Known", PageID: 1, Type: domain.Film},
			{Title: "Fresh", PageID: 2, Type: domain.Film},
		}},
		Enricher:    f.enricher,
		Series:      &fakeSeries{rec: rec},
		Classifier:  f.classifier,
		Covers:      &fakeCovers{rec: rec},
		Reconciler:  reconcile.New(nil, zap.NewNop()),
		Store:       f.store,
		Invalidator: &fakeInvalidator{rec: rec},
		LockPath:    filepath.Join(t.TempDir(), "sync.lock"),
		Logger:      zap.NewNop(),
	}
	return f
}

func TestRunStageOrder(t *testing.T) {
	f := newFixture(t)
	f.store.prior = []domain.PriorRecord{{PageID: 1, Title: "Known"}, {PageID: 3, Title: "Gone"}}
	f.store.listed = map[int64]bool{3: true}
	f.classifier.missing = []string{"Fresh"}

	sum, err := NewPipeline(f.cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"timeline", "enrich", "series", "classify", "covers", "validate", "commit", "flush"}
	if !reflect.DeepEqual(f.rec.calls, want) {
		t.Errorf("stage order = %v, want %v", f.rec.calls, want)
	}
	if sum.Drafts != 2 || sum.Added != 1 || sum.Archived != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if !reflect.DeepEqual(sum.MissingFullType, []string{"Fresh"}) {
		t.Errorf("MissingFullType = %v", sum.MissingFullType)
	}
	if sum.RunID == "" {
		t.Error("run id should be set")
	}

	snap := f.store.committed
	if snap == nil || len(snap.Media) != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Archive) != 1 || snap.Archive[0]["pageid"] != int64(3) {
		t.Errorf("Archive = %v", snap.Archive)
	}
	if !reflect.DeepEqual(snap.Categories, enrich.Categories()) {
		t.Errorf("Categories = %v", snap.Categories)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("snapshot timestamp should be set")
	}
}

func TestRunStageErrorSkipsCommit(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")
	f.enricher.err = boom

	if _, err := NewPipeline(f.cfg).Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected the enrich error, got %v", err)
	}
	for _, call := range f.rec.calls {
		if call == "commit" || call == "flush" {
			t.Errorf("%s should not run after a failed stage", call)
		}
	}
}

func TestRunLocked(t *testing.T) {
	f := newFixture(t)
	held := flock.New(f.cfg.LockPath)
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer held.Unlock()

	if _, err := NewPipeline(f.cfg).Run(context.Background()); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if len(f.rec.calls) != 0 {
		t.Errorf("no stage should run without the lock, got %v", f.rec.calls)
	}
}

func TestRunReportsMissingThumbnails(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "The_Clone_Wars.webp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.cfg.TVImagePath = dir
	f.store.tvSeries = []string{"The Clone Wars", "Andor"}

	sum, err := NewPipeline(f.cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(sum.MissingThumbnails, []string{"Andor"}) {
		t.Errorf("MissingThumbnails = %v", sum.MissingThumbnails)
	}
}

func TestRunProgress(t *testing.T) {
	f := newFixture(t)
	var bars []*fakeProgress
	f.cfg.NewProgress = func(max int, description string) Progress {
		p := &fakeProgress{}
		bars = append(bars, p)
		return p
	}

	if _, err := NewPipeline(f.cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// no draft names a cover, so only the article bar is created
	if len(bars) != 1 || bars[0].added != 1 || !bars[0].finished {
		t.Errorf("unexpected progress: %d bars", len(bars))
	}
}

func TestSummaryRender(t *testing.T) {
	sum := &Summary{
		RunID:           "run-1",
		Drafts:          12345,
		MissingFullType: []string{"Mystery"},
	}
	sum.Stats.APIBytes = 2048

	var buf bytes.Buffer
	sum.Render(&buf)
	out := buf.String()
	for _, want := range []string{"sync run-1", "12,345", "2.0 kB", "no full type", "Mystery"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}
}

func TestThumbnailName(t *testing.T) {
	if got := ThumbnailName("The Bad Batch"); got != "The_Bad_Batch.webp" {
		t.Errorf("got %q", got)
	}
}
