package main

import (
	"testing"

	"catalog-sync/pkg/config"
	"catalog-sync/pkg/db"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"sync", "mirror"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered: %v", name, err)
		}
	}
}

func TestSyncFlagsApply(t *testing.T) {
	cfg := config.Default()
	flags := &syncFlags{cache: true, limit: 20, legends: true, supabase: true}
	flags.apply(&cfg)

	if !cfg.Cache.Enabled || cfg.Limit != 20 || !cfg.Wiki.Legends || cfg.Images.Host != "supabase" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.TimelinePage() != "Timeline of Legends media" {
		t.Errorf("TimelinePage() = %q", cfg.TimelinePage())
	}
}

func TestSyncFlagsKeepConfigDefaults(t *testing.T) {
	cfg := config.Default()
	(&syncFlags{}).apply(&cfg)
	if cfg.Cache.Enabled || cfg.Limit != 0 || cfg.Images.Host != "filesystem" {
		t.Errorf("unset flags should not change the config: %+v", cfg)
	}
}

func TestSyncRejectsBothBackends(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"sync", "--fs", "--supabase", "--config", ""})
	if err := root.Execute(); err == nil {
		t.Error("--fs and --supabase should be mutually exclusive")
	}
}

func TestMirrorTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Postgres.DSN = "postgres://localhost/catalog"
	if _, ok := mirrorTarget(&cfg).(*db.PostgresClient); !ok {
		t.Error("a DSN should select plain Postgres")
	}
	cfg.Postgres.DSN = ""
	if _, ok := mirrorTarget(&cfg).(*db.SupabaseClient); !ok {
		t.Error("no DSN should select Supabase")
	}
}
