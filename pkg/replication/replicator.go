package replication

import (
	"context"
	"crypto/md5"
	"database/sql"
	"fmt"
	"sync"

	"catalog-sync/pkg/db"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when the SQL side has no open handle.
	ErrNotConnected = eris.New("replication: postgres DB not connected")
	// ErrMissingDependency is returned by NewReplicator for a nil collaborator.
	ErrMissingDependency = eris.New("replication: missing dependency")
)

const (
	batchSize  = 100
	numWorkers = 5
)

// MediaSource lists the committed catalog.
type MediaSource interface {
	AllMedia(ctx context.Context) ([]db.MediaDocument, error)
}

// Config wires the replication dependencies.
type Config struct {
	Mongo    MediaSource
	Postgres db.DBProvider
	Logger   *zap.Logger
}

// Replicator mirrors the committed media collection into the Postgres
// `media` table, one row per media title.
type Replicator struct {
	mongo  MediaSource
	pg     db.DBProvider
	logger *zap.Logger
}

// NewReplicator validates cfg and returns a Replicator.
func NewReplicator(cfg Config) (*Replicator, error) {
	if cfg.Mongo == nil {
		return nil, eris.Wrap(ErrMissingDependency, "mongo client is required")
	}
	if cfg.Postgres == nil {
		return nil, eris.Wrap(ErrMissingDependency, "postgres client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replicator{
		mongo:  cfg.Mongo,
		pg:     cfg.Postgres,
		logger: logger.Named("mirror"),
	}, nil
}

// Row is one mirrored media item.
type Row struct {
	Title       string
	PageID      int64
	Type        string
	FullType    string
	Chronology  int
	ReleaseDate string
	Cover       string
	// Doc is the full Mongo document as relaxed extended JSON.
	Doc []byte
}

// Result counts what a mirror run did.
type Result struct {
	Upserted int
	Deleted  int64
}

// Mirror upserts every committed media item and deletes rows whose title is
// no longer in the catalog.
func (r *Replicator) Mirror(ctx context.Context) (Result, error) {
	if r.pg.DB() == nil {
		return Result{}, ErrNotConnected
	}
	if err := r.ensureMediaSchema(ctx); err != nil {
		return Result{}, err
	}

	docs, err := r.mongo.AllMedia(ctx)
	if err != nil {
		return Result{}, err
	}
	rows, err := toRows(docs)
	if err != nil {
		return Result{}, err
	}
	r.logger.Info("loaded media from mongo", zap.Int("count", len(rows)))

	upserted, err := r.processBatches(ctx, rows)
	if err != nil {
		return Result{}, err
	}

	titles := make([]string, len(rows))
	for i, row := range rows {
		titles[i] = row.Title
	}
	deleted, err := r.deleteStale(ctx, titles)
	if err != nil {
		return Result{}, err
	}

	r.logger.Info("mirror complete", zap.Int("upserted", upserted), zap.Int64("deleted", deleted))
	return Result{Upserted: upserted, Deleted: deleted}, nil
}

func toRows(docs []db.MediaDocument) ([]Row, error) {
	rows := make([]Row, 0, len(docs))
	for _, d := range docs {
		if d.Title == "" {
			continue
		}
		var doc []byte
		if d.Raw != nil {
			var err error
			doc, err = bson.MarshalExtJSON(d.Raw, false, false)
			if err != nil {
				return nil, eris.Wrapf(err, "replication: encode %q", d.Title)
			}
		}
		rows = append(rows, Row{
			Title:       d.Title,
			PageID:      d.PageID,
			Type:        string(d.Type),
			FullType:    string(d.FullType),
			Chronology:  d.Chronology,
			ReleaseDate: d.ReleaseDate,
			Cover:       d.Cover,
			Doc:         doc,
		})
	}
	return rows, nil
}

// batches splits rows into consecutive slices of at most size.
func batches(rows []Row, size int) [][]Row {
	var out [][]Row
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// processBatches upserts all rows with a fixed pool of workers, failing on
// the first error.
func (r *Replicator) processBatches(ctx context.Context, rows []Row) (int, error) {
	type batchResult struct {
		upserted int
		err      error
	}

	all := batches(rows, batchSize)
	jobs := make(chan []Row, len(all))
	results := make(chan batchResult, len(all))
	for _, b := range all {
		jobs <- b
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				err := r.upsertTx(ctx, batch)
				results <- batchResult{upserted: len(batch), err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	total := 0
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		total += res.upserted
		if total%1000 == 0 || total == len(rows) {
			r.logger.Info("progress", zap.Int("upserted", total), zap.Int("total", len(rows)))
		}
	}
	return total, firstErr
}

func (r *Replicator) ensureMediaSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS media (
  title TEXT PRIMARY KEY,
  pageid BIGINT NOT NULL DEFAULT 0,
  type TEXT NOT NULL DEFAULT '',
  full_type TEXT NOT NULL DEFAULT '',
  chronology INTEGER NOT NULL DEFAULT 0,
  release_date TEXT NOT NULL DEFAULT '',
  cover TEXT NOT NULL DEFAULT '',
  doc JSONB,
  mirrored_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

	if _, err := r.pg.DB().ExecContext(ctx, ddl); err != nil {
		return eris.Wrap(err, "replication: create media table")
	}
	return nil
}

// upsertTx writes one batch inside a transaction.
func (r *Replicator) upsertTx(ctx context.Context, batch []Row) error {
	tx, err := r.pg.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return eris.Wrap(err, "replication: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
INSERT INTO media (title, pageid, type, full_type, chronology, release_date, cover, doc, mirrored_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (title) DO UPDATE SET
  pageid = EXCLUDED.pageid,
  type = EXCLUDED.type,
  full_type = EXCLUDED.full_type,
  chronology = EXCLUDED.chronology,
  release_date = EXCLUDED.release_date,
  cover = EXCLUDED.cover,
  doc = EXCLUDED.doc,
  mirrored_at = EXCLUDED.mirrored_at`

	stmt, err := tx.PrepareContext(ctx, queryTag(batch)+upsert)
	if err != nil {
		return eris.Wrap(err, "replication: prepare upsert")
	}
	defer stmt.Close()

	for _, row := range batch {
		var doc interface{}
		if row.Doc != nil {
			doc = string(row.Doc)
		}
		if _, err := stmt.ExecContext(ctx, row.Title, row.PageID, row.Type, row.FullType,
			row.Chronology, row.ReleaseDate, row.Cover, doc); err != nil {
			return eris.Wrapf(err, "replication: upsert %q", row.Title)
		}
	}

	return eris.Wrap(tx.Commit(), "replication: commit")
}

// queryTag prefixes a statement with a per-batch comment so concurrent
// workers never share a cached prepared statement.
func queryTag(batch []Row) string {
	if len(batch) == 0 {
		return ""
	}
	hash := md5.Sum([]byte(batch[0].Title))
	return fmt.Sprintf("/* q_%d_%x */", len(batch), hash[:4])
}

func (r *Replicator) deleteStale(ctx context.Context, titles []string) (int64, error) {
	res, err := r.pg.DB().ExecContext(ctx, `DELETE FROM media WHERE NOT (title = ANY($1))`, titles)
	if err != nil {
		return 0, eris.Wrap(err, "replication: delete stale media")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "replication: rows affected")
	}
	if n > 0 {
		r.logger.Info("deleted stale rows", zap.Int64("count", n))
	}
	return n, nil
}
