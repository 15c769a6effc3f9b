package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("MW_API_USER_AGENT", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Wiki.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.Wiki.BatchSize)
	}
	if cfg.Wiki.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Wiki.MaxRetries)
	}
	if cfg.TimelinePage() != "Timeline of canon media" {
		t.Errorf("TimelinePage = %q", cfg.TimelinePage())
	}
	if len(cfg.Suppress.MultipleRegexMatches) != 8 {
		t.Errorf("expected 8 default multiple-regex suppressions, got %d", len(cfg.Suppress.MultipleRegexMatches))
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	content := `
[wiki]
user_agent = "from-file"
batch_size = 500
legends = true

[images]
host = "Filesystem"
path = "/tmp/covers"

[suppress]
low_confidence_manga = ["Some Manga"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MW_API_USER_AGENT", "from-env")
	t.Setenv("REDIS_URI", "redis://cache:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Wiki.UserAgent != "from-env" {
		t.Errorf("UserAgent = %q, want env override", cfg.Wiki.UserAgent)
	}
	if cfg.Redis.URI != "redis://cache:6379" {
		t.Errorf("Redis.URI = %q", cfg.Redis.URI)
	}
	if cfg.Wiki.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want clamp to 50", cfg.Wiki.BatchSize)
	}
	if cfg.Images.Host != "filesystem" || cfg.Images.Path != "/tmp/covers/" {
		t.Errorf("images not normalized: %+v", cfg.Images)
	}
	if cfg.TimelinePage() != "Timeline of Legends media" {
		t.Errorf("TimelinePage = %q", cfg.TimelinePage())
	}
	if len(cfg.Suppress.LowConfidenceManga) != 1 || cfg.Suppress.LowConfidenceManga[0] != "Some Manga" {
		t.Errorf("suppress list not replaced: %v", cfg.Suppress.LowConfidenceManga)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate returned error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"missing user agent", func(c *Config) { c.Wiki.UserAgent = "" }, true},
		{"unknown image host", func(c *Config) { c.Images.Host = "s3" }, true},
		{"supabase without key", func(c *Config) { c.Images.Host = "supabase"; c.Supabase.URL = "https://x.supabase.co" }, true},
		{"supabase ok", func(c *Config) {
			c.Images.Host = "supabase"
			c.Supabase.URL = "https://x.supabase.co"
			c.Supabase.Key = "k"
		}, false},
		{"negative limit", func(c *Config) { c.Limit = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Wiki.UserAgent = "test-agent"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
