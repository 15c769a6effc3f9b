package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable for a sync run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Wiki.UserAgent) == "" {
		return errors.New("wiki.user_agent is required. Set MW_API_USER_AGENT or edit the config file")
	}
	if c.Wiki.APIURL == "" {
		return errors.New("wiki.api_url is required")
	}
	if c.Mongo.URI == "" || c.Mongo.Database == "" {
		return errors.New("mongo.uri and mongo.database are required")
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must be a positive integer, got %d", c.Limit)
	}
	return c.validateImages()
}

// ValidateMirror ensures a Postgres target is configured for the mirror command.
func (c *Config) ValidateMirror() error {
	if c.Mongo.URI == "" || c.Mongo.Database == "" {
		return errors.New("mongo.uri and mongo.database are required")
	}
	if c.Postgres.DSN == "" && c.Supabase.ConnectionString == "" && c.Supabase.Password == "" {
		return errors.New("postgres.dsn or supabase connection settings are required")
	}
	return nil
}

func (c *Config) validateImages() error {
	switch c.Images.Host {
	case "filesystem":
		if c.Images.Path == "" {
			return errors.New("images.path is required for the filesystem image host")
		}
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return errors.New("supabase.url and supabase.key are required for the supabase image host")
		}
		if c.Images.Bucket == "" {
			return errors.New("images.bucket is required for the supabase image host")
		}
	default:
		return fmt.Errorf("images.host: unsupported value %q", c.Images.Host)
	}
	return nil
}
