package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rotisserie/eris"
	storage_go "github.com/supabase-community/storage-go"
	supabase "github.com/supabase-community/supabase-go"
)

// ErrInvalidSupabaseURL is returned when the project ref can't be read from
// the Supabase URL.
var ErrInvalidSupabaseURL = eris.New("db: invalid supabase URL, expected https://[project-ref].supabase.co")

// SupabaseConfig holds configuration required to connect to Supabase.
type SupabaseConfig struct {
	// ConnectionString is the Supabase Postgres connection string. Built from
	// URL and Password when empty.
	ConnectionString string

	// URL is the project URL, e.g. "https://[project-ref].supabase.co".
	URL string

	// Key is the service_role API key. Cover storage needs it.
	Key string

	// Password is the database password, not the API key.
	Password string

	MaxOpenConns int
	MaxIdleConns int
	ConnMaxIdle  time.Duration
	ConnMaxLife  time.Duration
}

// SupabaseClient provides access to the Supabase database and SDK.
type SupabaseClient struct {
	db  *sql.DB
	sdk *supabase.Client
	cfg SupabaseConfig
}

// NewSupabaseClient constructs a Supabase client.
func NewSupabaseClient(cfg SupabaseConfig) *SupabaseClient {
	return &SupabaseClient{cfg: cfg}
}

// Connect initializes the SDK when URL and key are set, and the direct
// database connection when a connection string or password is set. Either
// one is enough.
func (c *SupabaseClient) Connect(ctx context.Context) error {
	if c.cfg.URL != "" && c.cfg.Key != "" {
		sdk, err := supabase.NewClient(c.cfg.URL, c.cfg.Key, nil)
		if err != nil {
			return eris.Wrap(err, "db: initialize supabase SDK")
		}
		c.sdk = sdk
	}

	connStr := c.cfg.ConnectionString
	if connStr == "" && c.cfg.Password != "" {
		var err error
		connStr, err = c.buildConnectionString()
		if err != nil {
			return err
		}
	}

	if connStr != "" {
		// pgx's statement cache conflicts with the pooler in transaction mode
		connStr = addConnectionParam(connStr, "statement_cache_capacity", "0")
		connStr = addConnectionParam(connStr, "default_query_exec_mode", "simple_protocol")

		db, err := sql.Open("pgx", connStr)
		if err != nil {
			return eris.Wrap(err, "db: open supabase postgres")
		}
		tunePool(db, c.cfg.MaxOpenConns, c.cfg.MaxIdleConns, c.cfg.ConnMaxIdle, c.cfg.ConnMaxLife)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return eris.Wrap(err, "db: ping supabase postgres")
		}
		c.db = db
	}

	if c.db == nil && c.sdk == nil {
		return eris.Wrap(ErrMissingDSN, "supabase needs a connection string, a password or URL+key")
	}
	return nil
}

// Close closes the database connection.
func (c *SupabaseClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB exposes the underlying sql.DB handle. It is nil in SDK-only mode.
func (c *SupabaseClient) DB() *sql.DB {
	return c.db
}

// HasDirectDB reports whether a direct database connection is available.
func (c *SupabaseClient) HasDirectDB() bool {
	return c.db != nil
}

// Storage returns the Storage API client, or nil when the SDK wasn't
// initialized.
func (c *SupabaseClient) Storage() *storage_go.Client {
	if c.sdk == nil {
		return nil
	}
	return c.sdk.Storage
}

func (c *SupabaseClient) buildConnectionString() (string, error) {
	if c.cfg.URL == "" {
		return "", eris.Wrap(ErrMissingDSN, "supabase URL is required when connection string is not provided")
	}

	parsed, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", eris.Wrap(err, "db: parse supabase URL")
	}
	parts := strings.Split(parsed.Host, ".")
	if len(parts) < 2 {
		return "", ErrInvalidSupabaseURL
	}
	projectRef := parts[0]

	return fmt.Sprintf("postgresql://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(c.cfg.Password), projectRef), nil
}

// addConnectionParam adds a query parameter to the connection string if not
// already present.
func addConnectionParam(connStr, key, value string) string {
	if strings.Contains(connStr, key+"=") {
		return connStr
	}
	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	return connStr + separator + key + "=" + value
}
