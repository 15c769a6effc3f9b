package pagecache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// DefaultMaxAge matches the age the wiki itself allows clients to cache for.
const DefaultMaxAge = 7 * 24 * time.Hour

// Cache stores raw wiki API responses keyed by request URL, so debugging runs
// do not hit the wiki for every article again.
type Cache struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
}

// Open creates or opens the cache database at path.
func Open(path string, maxAge time.Duration) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "pagecache: create cache directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "pagecache: open sqlite db")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, eris.Wrapf(execErr, "pagecache: apply pragma %q", pragma)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS responses (
		url        TEXT PRIMARY KEY,
		body       BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "pagecache: create responses table")
	}

	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{db: db, maxAge: maxAge, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached body for url if it is younger than the cache's max age.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	var body []byte
	var fetchedAt int64
	err := c.db.QueryRowContext(ctx, `SELECT body, fetched_at FROM responses WHERE url = ?`, url).Scan(&body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "pagecache: read cached response")
	}
	if c.now().Sub(time.Unix(fetchedAt, 0)) > c.maxAge {
		return nil, false, nil
	}
	return body, true, nil
}

// Put stores body under url, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, url string, body []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO responses (url, body, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at`,
		url, body, c.now().Unix())
	if err != nil {
		return eris.Wrap(err, "pagecache: write cached response")
	}
	return nil
}
