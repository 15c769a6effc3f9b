package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"catalog-sync/pkg/covers"
	"catalog-sync/pkg/db"
	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/enrich"
	"catalog-sync/pkg/reconcile"
	"catalog-sync/pkg/series"
	"catalog-sync/pkg/timeline"
	"catalog-sync/pkg/wiki"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// ErrLocked is returned when another sync holds the run lock.
var ErrLocked = eris.New("pipeline: another sync is already running")

// Timeline builds the run's working set.
type Timeline interface {
	Build(ctx context.Context) (*domain.WorkingSet, error)
}

// Enricher copies article data onto drafts.
type Enricher interface {
	Run(ctx context.Context, ws *domain.WorkingSet) error
	SetProgress(p enrich.Progress)
}

// SeriesResolver fetches and types the referenced series.
type SeriesResolver interface {
	Resolve(ctx context.Context, ws *domain.WorkingSet) error
}

// Classifier assigns full types and reports drafts still lacking one.
type Classifier interface {
	Run(ctx context.Context, ws *domain.WorkingSet) error
	Validate(ws *domain.WorkingSet) []string
}

// CoverStage fills cover fields.
type CoverStage interface {
	Run(ctx context.Context, ws *domain.WorkingSet, priors map[string]domain.PriorCover) error
	SetProgress(p covers.Progress)
}

// Store reads prior state and commits the new snapshot.
type Store interface {
	PriorRecords(ctx context.Context) ([]domain.PriorRecord, error)
	PriorCovers(ctx context.Context) (map[string]domain.PriorCover, error)
	ListedPageIDs(ctx context.Context) (map[int64]bool, error)
	MissingRecords(ctx context.Context) ([]domain.MissingRecord, error)
	MediaDocuments(ctx context.Context, pageIDs []int64) ([]bson.M, error)
	TVSeries(ctx context.Context) ([]string, error)
	Commit(ctx context.Context, s *db.Snapshot) error
}

// Invalidator clears the downstream cache.
type Invalidator interface {
	Flush(ctx context.Context) error
}

// Progress is a progress sink shared by the long-running stages.
type Progress interface {
	Add(n int) error
	Finish() error
}

// Config wires the pipeline dependencies.
type Config struct {
	Timeline    Timeline
	Enricher    Enricher
	Series      SeriesResolver
	Classifier  Classifier
	Covers      CoverStage
	Reconciler  *reconcile.Reconciler
	Store       Store
	Invalidator Invalidator
	Stats       *wiki.Stats

	// LockPath is the file lock guarding against concurrent runs.
	LockPath string
	// TVImagePath is the directory of series thumbnails. Empty skips the check.
	TVImagePath string
	// NewProgress creates a progress sink, or nil to disable progress output.
	NewProgress func(max int, description string) Progress

	Logger *zap.Logger
}

// Pipeline runs one catalog sync. Every stage completes over the whole
// working set before the next begins.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewPipeline creates a new sync pipeline.
func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stats == nil {
		cfg.Stats = &wiki.Stats{}
	}
	return &Pipeline{cfg: cfg, logger: logger, now: time.Now}
}

// Run executes the sync under the run lock and returns its summary. Nothing
// is written unless every stage succeeds.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if p.cfg.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(p.cfg.LockPath), 0o755); err != nil {
			return nil, eris.Wrap(err, "pipeline: create lock directory")
		}
		lock := flock.New(p.cfg.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: acquire run lock")
		}
		if !locked {
			return nil, eris.Wrapf(ErrLocked, "lock %s", p.cfg.LockPath)
		}
		defer func() { _ = lock.Unlock() }()
	}

	sum := &Summary{RunID: uuid.NewString(), Started: p.now()}
	logger := p.logger.With(zap.String("run", sum.RunID))
	logger.Info("starting sync")

	ws, err := p.cfg.Timeline.Build(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("decomposed timeline", zap.Int("drafts", len(ws.Drafts)))

	order, _ := ws.ByArticle()
	bar := p.progress(len(order), "articles")
	if bar != nil {
		p.cfg.Enricher.SetProgress(bar)
	}
	err = p.cfg.Enricher.Run(ctx, ws)
	finish(bar)
	if err != nil {
		return nil, err
	}

	if err := p.cfg.Series.Resolve(ctx, ws); err != nil {
		return nil, err
	}
	if err := p.cfg.Classifier.Run(ctx, ws); err != nil {
		return nil, err
	}
	series.InferRedlinkFullTypes(ws, logger)
	series.AdjustBookTypes(ws, logger)

	priorCovers, err := p.cfg.Store.PriorCovers(ctx)
	if err != nil {
		return nil, err
	}
	bar = p.progress(countCovers(ws), "covers")
	if bar != nil {
		p.cfg.Covers.SetProgress(bar)
	}
	err = p.cfg.Covers.Run(ctx, ws, priorCovers)
	finish(bar)
	if err != nil {
		return nil, err
	}

	sum.MissingFullType = p.cfg.Classifier.Validate(ws)
	ws.Finalize()

	plan, snapshot, err := p.reconcile(ctx, ws)
	if err != nil {
		return nil, err
	}
	sum.Drafts = len(ws.Drafts)
	sum.Series = len(ws.Series)
	sum.Added = len(plan.Added)
	sum.Renamed = len(plan.Renames)
	sum.Archived = len(plan.Archive)
	sum.Dropped = len(plan.Dropped)
	sum.Resurrected = len(plan.Resurrected)

	if err := p.cfg.Store.Commit(ctx, snapshot); err != nil {
		return nil, err
	}
	logger.Info("committed snapshot",
		zap.Int("media", len(snapshot.Media)),
		zap.Int("series", len(snapshot.Series)),
		zap.Int("categories", len(snapshot.Appearances)))

	sum.MissingThumbnails, err = p.missingThumbnails(ctx, logger)
	if err != nil {
		return nil, err
	}

	if p.cfg.Invalidator != nil {
		if err := p.cfg.Invalidator.Flush(ctx); err != nil {
			return nil, err
		}
	}

	sum.Stats = *p.cfg.Stats
	sum.Duration = p.now().Sub(sum.Started)
	logger.Info("sync finished", zap.Duration("took", sum.Duration))
	return sum, nil
}

func (p *Pipeline) reconcile(ctx context.Context, ws *domain.WorkingSet) (reconcile.Plan, *db.Snapshot, error) {
	prior, err := p.cfg.Store.PriorRecords(ctx)
	if err != nil {
		return reconcile.Plan{}, nil, err
	}
	listed, err := p.cfg.Store.ListedPageIDs(ctx)
	if err != nil {
		return reconcile.Plan{}, nil, err
	}
	missing, err := p.cfg.Store.MissingRecords(ctx)
	if err != nil {
		return reconcile.Plan{}, nil, err
	}

	plan := p.cfg.Reconciler.Reconcile(ws, prior, listed, missing)

	ids := make([]int64, 0, len(plan.Archive))
	for _, rec := range plan.Archive {
		ids = append(ids, rec.PageID)
	}
	archive, err := p.cfg.Store.MediaDocuments(ctx, ids)
	if err != nil {
		return reconcile.Plan{}, nil, err
	}

	return plan, &db.Snapshot{
		Media:       ws.Drafts,
		Series:      ws.Series,
		Appearances: ws.Appearances,
		Categories:  enrich.Categories(),
		Archive:     archive,
		Resurrected: plan.Resurrected,
		UpdatedAt:   p.now(),
	}, nil
}

// missingThumbnails lists committed tv series without a thumbnail file.
func (p *Pipeline) missingThumbnails(ctx context.Context, logger *zap.Logger) ([]string, error) {
	if p.cfg.TVImagePath == "" {
		return nil, nil
	}
	names, err := p.cfg.Store.TVSeries(ctx)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, name := range names {
		path := filepath.Join(p.cfg.TVImagePath, ThumbnailName(name))
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("tv series has no thumbnail, add one manually", zap.String("series", name), zap.String("path", path))
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: stat %s", path)
		}
	}
	return missing, nil
}

// ThumbnailName is the file name of a tv series thumbnail.
func ThumbnailName(series string) string {
	return strings.ReplaceAll(series, " ", "_") + ".webp"
}

func countCovers(ws *domain.WorkingSet) int {
	seen := make(map[string]bool)
	for _, d := range ws.Drafts {
		if d.CoverSource != "" {
			seen[d.CoverSource] = true
		}
	}
	return len(seen)
}

func (p *Pipeline) progress(max int, description string) Progress {
	if p.cfg.NewProgress == nil || max == 0 {
		return nil
	}
	return p.cfg.NewProgress(max, description)
}

func finish(bar Progress) {
	if bar != nil {
		_ = bar.Finish()
	}
}

// TimelineSource reads the timeline page and decomposes it into drafts.
type TimelineSource struct {
	Parser         timeline.PageParser
	Page           string
	KnownTemplates []string
	Decomposer     *timeline.Decomposer
	// Limit truncates the timeline when above zero.
	Limit int
}

// Build implements Timeline.
func (t TimelineSource) Build(ctx context.Context) (*domain.WorkingSet, error) {
	rows, err := timeline.Fetch(ctx, t.Parser, t.Page, t.KnownTemplates)
	if err != nil {
		return nil, err
	}
	return t.Decomposer.Decompose(rows, t.Limit), nil
}
