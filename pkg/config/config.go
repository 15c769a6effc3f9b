package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Wiki contains the MediaWiki API settings.
type Wiki struct {
	APIURL         string   `toml:"api_url"`
	UserAgent      string   `toml:"user_agent"`
	Maxlag         int      `toml:"maxlag"`
	MaxRetries     int      `toml:"max_retries"`
	BatchSize      int      `toml:"batch_size"`
	Legends        bool     `toml:"legends"`
	KnownTemplates []string `toml:"known_templates"`
}

// Cache contains settings for the local wiki response cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Mongo contains the document database settings.
type Mongo struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// Redis contains the downstream cache settings.
type Redis struct {
	URI string `toml:"uri"`
}

// Images contains cover storage settings.
type Images struct {
	Host        string `toml:"host"` // "filesystem" or "supabase"
	Path        string `toml:"path"`
	TVImagePath string `toml:"tv_image_path"`
	Bucket      string `toml:"bucket"`
}

// Supabase contains Supabase project credentials used by the storage backend
// and the Postgres mirror.
type Supabase struct {
	URL              string `toml:"url"`
	Key              string `toml:"key"`
	ConnectionString string `toml:"connection_string"`
	Password         string `toml:"password"`
}

// Postgres contains the catalog mirror settings.
type Postgres struct {
	DSN string `toml:"dsn"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Debug toggles diagnostic log lines.
type Debug struct {
	LogNormalizedTitles bool `toml:"log_normalized_titles"`
	LogNormalizedImages bool `toml:"log_normalized_images"`
	WarnRedlinks        bool `toml:"warn_redlinks"`
}

// Suppress lists titles whose known-correct warnings are silenced.
type Suppress struct {
	LowConfidenceManga      []string `toml:"low_confidence_manga"`
	LowConfidenceAdultNovel []string `toml:"low_confidence_adult_novel"`
	MultipleRegexMatches    []string `toml:"multiple_regex_matches"`
	LowConfidenceAnimated   []string `toml:"low_confidence_animated"`
	IgnoreMissingPageID     []string `toml:"ignore_missing_pageid"`
}

// Config encapsulates all configuration values for a sync run.
type Config struct {
	Wiki     Wiki     `toml:"wiki"`
	Cache    Cache    `toml:"cache"`
	Mongo    Mongo    `toml:"mongo"`
	Redis    Redis    `toml:"redis"`
	Images   Images   `toml:"images"`
	Supabase Supabase `toml:"supabase"`
	Postgres Postgres `toml:"postgres"`
	Logging  Logging  `toml:"logging"`
	Debug    Debug    `toml:"debug"`
	Suppress Suppress `toml:"suppress"`

	// Limit truncates the timeline for debugging runs. Set from the command line.
	Limit int `toml:"-"`
}

// TimelinePage returns the title of the wiki page listing every catalog item.
func (c *Config) TimelinePage() string {
	if c.Wiki.Legends {
		return "Timeline of Legends media"
	}
	return "Timeline of canon media"
}

// Load reads .env, then the TOML file at path (if it exists), then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("MW_API_USER_AGENT", &c.Wiki.UserAgent)
	set("DB_CONNECTION_STRING", &c.Mongo.URI)
	set("REDIS_URI", &c.Redis.URI)
	set("IMAGE_HOST", &c.Images.Host)
	set("IMAGE_PATH", &c.Images.Path)
	set("SUPABASE_URL", &c.Supabase.URL)
	set("SUPABASE_KEY", &c.Supabase.Key)
	set("SUPABASE_CONNECTION_STRING", &c.Supabase.ConnectionString)
	set("SUPABASE_PASSWORD", &c.Supabase.Password)
	set("POSTGRES_DSN", &c.Postgres.DSN)
}

func (c *Config) normalize() {
	c.Images.Host = strings.ToLower(strings.TrimSpace(c.Images.Host))
	if c.Images.Path != "" && !strings.HasSuffix(c.Images.Path, "/") {
		c.Images.Path += "/"
	}
	if c.Images.TVImagePath != "" && !strings.HasSuffix(c.Images.TVImagePath, "/") {
		c.Images.TVImagePath += "/"
	}
	if c.Wiki.BatchSize <= 0 || c.Wiki.BatchSize > defaultBatchSize {
		c.Wiki.BatchSize = defaultBatchSize
	}
	if c.Wiki.MaxRetries < 0 {
		c.Wiki.MaxRetries = 0
	}
}
