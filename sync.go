package main

import (
	"context"
	"os"
	"path/filepath"

	"catalog-sync/pkg/articles"
	"catalog-sync/pkg/classify"
	"catalog-sync/pkg/config"
	"catalog-sync/pkg/covers"
	"catalog-sync/pkg/db"
	"catalog-sync/pkg/enrich"
	"catalog-sync/pkg/httpclient"
	"catalog-sync/pkg/invalidate"
	"catalog-sync/pkg/pagecache"
	"catalog-sync/pkg/pipeline"
	"catalog-sync/pkg/reconcile"
	"catalog-sync/pkg/series"
	"catalog-sync/pkg/timeline"
	"catalog-sync/pkg/wiki"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type syncFlags struct {
	cache    bool
	limit    int
	legends  bool
	fs       bool
	supabase bool
	lockPath string
}

func newSyncCommand(opts *options) *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the timeline, rebuild the catalog and commit it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			flags.apply(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg, flags.lockPath)
		},
	}

	cmd.Flags().BoolVar(&flags.cache, "cache", false, "Cache wiki responses locally (for debugging)")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Only process the first N timeline rows")
	cmd.Flags().BoolVar(&flags.legends, "legends", false, "Read the Legends timeline instead of canon")
	cmd.Flags().BoolVar(&flags.fs, "fs", false, "Store covers on the local filesystem")
	cmd.Flags().BoolVar(&flags.supabase, "supabase", false, "Store covers in the Supabase bucket")
	cmd.Flags().StringVar(&flags.lockPath, "lock", filepath.Join(os.TempDir(), "catalog-sync.lock"), "Run lock file")
	cmd.MarkFlagsMutuallyExclusive("fs", "supabase")

	return cmd
}

func (f *syncFlags) apply(cfg *config.Config) {
	if f.cache {
		cfg.Cache.Enabled = true
	}
	if f.legends {
		cfg.Wiki.Legends = true
	}
	if f.limit != 0 {
		cfg.Limit = f.limit
	}
	switch {
	case f.fs:
		cfg.Images.Host = "filesystem"
	case f.supabase:
		cfg.Images.Host = "supabase"
	}
}

func runSync(ctx context.Context, cfg *config.Config, lockPath string) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	stats := &wiki.Stats{}
	wikiOpts := wiki.Options{
		APIURL:              cfg.Wiki.APIURL,
		UserAgent:           cfg.Wiki.UserAgent,
		Maxlag:              cfg.Wiki.Maxlag,
		MaxRetries:          cfg.Wiki.MaxRetries,
		BatchSize:           cfg.Wiki.BatchSize,
		LogNormalizedTitles: cfg.Debug.LogNormalizedTitles,
		LogNormalizedImages: cfg.Debug.LogNormalizedImages,
		Stats:               stats,
		Logger:              logger,
	}
	if cfg.Cache.Enabled {
		cache, err := pagecache.Open(cfg.Cache.Path, pagecache.DefaultMaxAge)
		if err != nil {
			return err
		}
		defer cache.Close()
		wikiOpts.Cache = cache
		logger.Info("using local response cache", zap.String("path", cfg.Cache.Path))
	}
	client := wiki.NewClient(wikiOpts)

	storage, err := coverStorage(ctx, cfg)
	if err != nil {
		return err
	}

	mongo := db.NewClient(cfg.Mongo.URI, cfg.Mongo.Database)
	if err := mongo.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = mongo.Close(context.Background()) }()

	inv, err := invalidate.New(cfg.Redis.URI, logger)
	if err != nil {
		return err
	}
	defer inv.Close()

	store := articles.NewStore(client, stats, logger)
	classifier := classify.NewClassifier(store, cfg.Suppress, logger)

	pcfg := pipeline.Config{
		Timeline: pipeline.TimelineSource{
			Parser:         client,
			Page:           cfg.TimelinePage(),
			KnownTemplates: cfg.Wiki.KnownTemplates,
			Decomposer:     timeline.NewDecomposer(logger),
			Limit:          cfg.Limit,
		},
		Enricher:   enrich.NewEnricher(store, logger, cfg.Debug.WarnRedlinks),
		Series:     series.NewResolver(store, classifier, cfg.Suppress.MultipleRegexMatches, cfg.Debug.WarnRedlinks, logger),
		Classifier: classifier,
		Covers: covers.NewPipeline(client, covers.NewCached(storage),
			httpclient.NewClient(httpclient.ImageClient, cfg.Wiki.UserAgent), stats, logger),
		Reconciler:  reconcile.New(cfg.Suppress.IgnoreMissingPageID, logger),
		Store:       mongo,
		Stats:       stats,
		LockPath:    lockPath,
		TVImagePath: cfg.Images.TVImagePath,
		Logger:      logger,
	}
	if inv != nil {
		pcfg.Invalidator = inv
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		pcfg.NewProgress = newProgressBar
	}

	sum, err := pipeline.NewPipeline(pcfg).Run(ctx)
	if err != nil {
		return err
	}
	sum.Render(os.Stdout)
	return nil
}

func coverStorage(ctx context.Context, cfg *config.Config) (covers.Storage, error) {
	switch cfg.Images.Host {
	case "supabase":
		sb := db.NewSupabaseClient(db.SupabaseConfig{URL: cfg.Supabase.URL, Key: cfg.Supabase.Key})
		if err := sb.Connect(ctx); err != nil {
			return nil, err
		}
		if sb.Storage() == nil {
			return nil, eris.New("supabase storage client unavailable")
		}
		return covers.NewSupabase(sb.Storage(), cfg.Images.Bucket), nil
	default:
		return covers.NewFS(cfg.Images.Path), nil
	}
}

func newProgressBar(max int, description string) pipeline.Progress {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
