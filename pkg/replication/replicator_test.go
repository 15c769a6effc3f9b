package replication

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	"catalog-sync/pkg/db"
	"catalog-sync/pkg/domain"

	"go.mongodb.org/mongo-driver/bson"
)

type fakeSource struct {
	docs []db.MediaDocument
}

func (f fakeSource) AllMedia(context.Context) ([]db.MediaDocument, error) {
	return f.docs, nil
}

type nilDB struct{}

func (nilDB) DB() *sql.DB { return nil }

func mediaDoc(t *testing.T, title string, pageID int64) db.MediaDocument {
	t.Helper()
	raw, err := bson.Marshal(bson.M{"title": title, "pageid": pageID, "type": "book"})
	if err != nil {
		t.Fatal(err)
	}
	return db.MediaDocument{Title: title, PageID: pageID, Type: domain.Book, Raw: raw}
}

func TestNewReplicatorRequiresDependencies(t *testing.T) {
	if _, err := NewReplicator(Config{Postgres: nilDB{}}); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("missing mongo: got %v", err)
	}
	if _, err := NewReplicator(Config{Mongo: fakeSource{}}); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("missing postgres: got %v", err)
	}
}

func TestMirrorNotConnected(t *testing.T) {
	r, err := NewReplicator(Config{Mongo: fakeSource{}, Postgres: nilDB{}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Mirror(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("got %v, want ErrNotConnected", err)
	}
}

func TestToRows(t *testing.T) {
	docs := []db.MediaDocument{mediaDoc(t, "A", 1), {Title: ""}, mediaDoc(t, "B", 2)}
	rows, err := toRows(docs)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, untitled documents should be skipped", len(rows))
	}
	if rows[0].Type != "book" || !strings.Contains(string(rows[0].Doc), `"title":"A"`) {
		t.Errorf("unexpected row: %+v (%s)", rows[0], rows[0].Doc)
	}
}

func TestBatches(t *testing.T) {
	rows := make([]Row, 250)
	got := batches(rows, 100)
	if len(got) != 3 || len(got[0]) != 100 || len(got[2]) != 50 {
		t.Errorf("unexpected batch sizes: %d batches", len(got))
	}
	if batches(nil, 100) != nil {
		t.Error("no rows should produce no batches")
	}
}

func TestQueryTagDiffersPerBatch(t *testing.T) {
	a := queryTag([]Row{{Title: "A"}})
	b := queryTag([]Row{{Title: "B"}})
	if a == b || !strings.HasPrefix(a, "/* q_1_") {
		t.Errorf("tags %q and %q", a, b)
	}
}

func TestMirrorIntegration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if testing.Short() || dsn == "" {
		t.Skip("set POSTGRES_DSN to run the mirror integration test")
	}
	ctx := context.Background()
	pg := db.NewPostgresClient(db.PostgresConfig{DSN: dsn})
	if err := pg.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer pg.Close()

	src := fakeSource{docs: []db.MediaDocument{mediaDoc(t, "Mirror A", 1), mediaDoc(t, "Mirror B", 2)}}
	r, err := NewReplicator(Config{Mongo: src, Postgres: pg})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Mirror(ctx); err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}

	src.docs = src.docs[:1]
	r.mongo = src
	res, err := r.Mirror(ctx)
	if err != nil {
		t.Fatalf("Mirror() error = %v", err)
	}
	if res.Upserted != 1 || res.Deleted < 1 {
		t.Errorf("second run = %+v", res)
	}
}
