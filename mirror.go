package main

import (
	"context"
	"fmt"

	"catalog-sync/pkg/config"
	"catalog-sync/pkg/db"
	"catalog-sync/pkg/replication"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newMirrorCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mirror",
		Short: "Copy the committed media collection into Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateMirror(); err != nil {
				return err
			}
			return runMirror(cmd.Context(), cmd, cfg)
		},
	}
}

// sqlClient is a mirror target that can be connected and closed.
type sqlClient interface {
	db.DBProvider
	Connect(ctx context.Context) error
	Close() error
}

func mirrorTarget(cfg *config.Config) sqlClient {
	if cfg.Postgres.DSN != "" {
		return db.NewPostgresClient(db.PostgresConfig{DSN: cfg.Postgres.DSN, MaxOpenConns: 5})
	}
	return db.NewSupabaseClient(db.SupabaseConfig{
		ConnectionString: cfg.Supabase.ConnectionString,
		URL:              cfg.Supabase.URL,
		Password:         cfg.Supabase.Password,
		MaxOpenConns:     5,
	})
}

func runMirror(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	mongo := db.NewClient(cfg.Mongo.URI, cfg.Mongo.Database)
	if err := mongo.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = mongo.Close(context.Background()) }()

	target := mirrorTarget(cfg)
	if err := target.Connect(ctx); err != nil {
		return err
	}
	defer target.Close()

	r, err := replication.NewReplicator(replication.Config{Mongo: mongo, Postgres: target, Logger: logger})
	if err != nil {
		return err
	}
	res, err := r.Mirror(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mirrored %s media, deleted %s stale rows\n",
		humanize.Comma(int64(res.Upserted)), humanize.Comma(res.Deleted))
	return nil
}
