package db

import (
	"context"
	"sort"
	"time"

	"catalog-sync/pkg/domain"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mediaCollection   = "media"
	seriesCollection  = "series"
	missingCollection = "missingMedia"
	listsCollection   = "lists"
	metaCollection    = "meta"
)

// ErrNotConnected is returned when the client failed to initialize.
var ErrNotConnected = eris.New("db: mongo client not initialized")

// Client wraps the MongoDB client and the catalog database.
type Client struct {
	mongoClient *mongo.Client
	database    *mongo.Database
}

// NewClient creates a new database client
func NewClient(connectionString, databaseName string) *Client {
	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		// Return client with nil - error will be caught during Connect()
		return &Client{}
	}

	return &Client{
		mongoClient: mongoClient,
		database:    mongoClient.Database(databaseName),
	}
}

// Connect verifies the connection to MongoDB
func (c *Client) Connect(ctx context.Context) error {
	if c.mongoClient == nil {
		return ErrNotConnected
	}
	return eris.Wrap(c.mongoClient.Ping(ctx, nil), "db: ping mongo")
}

// Close closes the MongoDB connection
func (c *Client) Close(ctx context.Context) error {
	if c.mongoClient == nil {
		return nil
	}
	return c.mongoClient.Disconnect(ctx)
}

func (c *Client) collection(name string) (*mongo.Collection, error) {
	if c.database == nil {
		return nil, ErrNotConnected
	}
	return c.database.Collection(name), nil
}

// findAll decodes every document matching filter into T.
func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "db: query %s", coll.Name())
	}
	defer cursor.Close(ctx)

	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, eris.Wrapf(err, "db: decode %s", coll.Name())
	}
	return out, nil
}

// PriorRecords returns the identity of every persisted media item.
func (c *Client) PriorRecords(ctx context.Context) ([]domain.PriorRecord, error) {
	coll, err := c.collection(mediaCollection)
	if err != nil {
		return nil, err
	}
	projection := bson.M{"pageid": 1, "title": 1, "notUnique": 1, "addedAt": 1, "_id": 0}
	return findAll[domain.PriorRecord](ctx, coll, bson.M{}, options.Find().SetProjection(projection))
}

// PriorCovers returns the persisted cover fields keyed by media title.
func (c *Client) PriorCovers(ctx context.Context) (map[string]domain.PriorCover, error) {
	coll, err := c.collection(mediaCollection)
	if err != nil {
		return nil, err
	}
	projection := bson.M{
		"title":          1,
		"cover":          1,
		"coverTimestamp": 1,
		"coverWidth":     1,
		"coverHeight":    1,
		"coverSha1":      1,
		"coverHash":      1,
		"_id":            0,
	}
	docs, err := findAll[domain.PriorCover](ctx, coll, bson.M{}, options.Find().SetProjection(projection))
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.PriorCover, len(docs))
	for _, d := range docs {
		out[d.Title] = d
	}
	return out, nil
}

// ListedPageIDs returns the page ids referenced by any user list.
func (c *Client) ListedPageIDs(ctx context.Context) (map[int64]bool, error) {
	coll, err := c.collection(listsCollection)
	if err != nil {
		return nil, err
	}
	values, err := coll.Distinct(ctx, "items", bson.M{})
	if err != nil {
		return nil, eris.Wrap(err, "db: distinct list items")
	}
	out := make(map[int64]bool, len(values))
	for _, v := range values {
		switch n := v.(type) {
		case int32:
			out[int64(n)] = true
		case int64:
			out[n] = true
		case float64:
			out[int64(n)] = true
		}
	}
	return out, nil
}

// MissingRecords returns the archived media items.
func (c *Client) MissingRecords(ctx context.Context) ([]domain.MissingRecord, error) {
	coll, err := c.collection(missingCollection)
	if err != nil {
		return nil, err
	}
	projection := bson.M{"pageid": 1, "title": 1, "_id": 0}
	return findAll[domain.MissingRecord](ctx, coll, bson.M{}, options.Find().SetProjection(projection))
}

// MediaDocuments returns the full persisted documents for page ids, to be
// archived as they are.
func (c *Client) MediaDocuments(ctx context.Context, pageIDs []int64) ([]bson.M, error) {
	if len(pageIDs) == 0 {
		return nil, nil
	}
	coll, err := c.collection(mediaCollection)
	if err != nil {
		return nil, err
	}
	return findAll[bson.M](ctx, coll, bson.M{"pageid": bson.M{"$in": pageIDs}})
}

// TVSeries returns the distinct series of persisted tv media.
func (c *Client) TVSeries(ctx context.Context) ([]string, error) {
	coll, err := c.collection(mediaCollection)
	if err != nil {
		return nil, err
	}
	values, err := coll.Distinct(ctx, "series", bson.M{"type": domain.TV})
	if err != nil {
		return nil, eris.Wrap(err, "db: distinct tv series")
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// MediaDocument is a persisted media item as the mirror reads it.
type MediaDocument struct {
	PageID      int64            `bson:"pageid"`
	Title       string           `bson:"title"`
	Type        domain.MediaType `bson:"type"`
	FullType    domain.FullType  `bson:"fullType"`
	Chronology  int              `bson:"chronology"`
	ReleaseDate string           `bson:"releaseDate"`
	Cover       string           `bson:"cover"`
	Raw         bson.Raw         `bson:"-"`
}

// AllMedia returns every persisted media item in timeline order.
func (c *Client) AllMedia(ctx context.Context) ([]MediaDocument, error) {
	coll, err := c.collection(mediaCollection)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "chronology", Value: 1}}))
	if err != nil {
		return nil, eris.Wrap(err, "db: query media")
	}
	defer cursor.Close(ctx)

	var out []MediaDocument
	for cursor.Next(ctx) {
		var doc MediaDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, eris.Wrap(err, "db: decode media")
		}
		doc.Raw = append(bson.Raw(nil), cursor.Current...)
		out = append(out, doc)
	}
	return out, eris.Wrap(cursor.Err(), "db: media cursor")
}

// Snapshot is the complete state written by one run.
type Snapshot struct {
	Media       []*domain.Draft
	Series      []*domain.SeriesDraft
	Appearances domain.AppearanceIndex
	// Categories are the appearance collections to clear, whether or not
	// this run found entries for them.
	Categories []string
	// Archive holds full prior media documents moving to the missing archive.
	Archive []bson.M
	// Resurrected holds page ids to remove from the missing archive.
	Resurrected []int64
	UpdatedAt   time.Time
}

// collections merges the declared categories with those in the index.
func (s *Snapshot) collections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{s.Categories, s.Appearances.Categories()} {
		for _, c := range list {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

type appearanceDoc struct {
	Name  string                 `bson:"name"`
	Media []domain.AppearanceRef `bson:"media"`
}

// Commit replaces the catalog with the snapshot in one transaction. Nothing
// is visible to readers if any write fails.
func (c *Client) Commit(ctx context.Context, s *Snapshot) error {
	if c.mongoClient == nil || c.database == nil {
		return ErrNotConnected
	}
	categories := s.collections()

	// index builds on existing collections can't run inside a transaction
	for _, category := range categories {
		_, err := c.database.Collection(category).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "name", Value: "text"}},
		})
		if err != nil {
			return eris.Wrapf(err, "db: create text index on %s", category)
		}
	}

	session, err := c.mongoClient.StartSession()
	if err != nil {
		return eris.Wrap(err, "db: start session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		media := c.database.Collection(mediaCollection)
		series := c.database.Collection(seriesCollection)

		if _, err := media.DeleteMany(sc, bson.M{}); err != nil {
			return nil, eris.Wrap(err, "db: clear media")
		}
		if _, err := series.DeleteMany(sc, bson.M{}); err != nil {
			return nil, eris.Wrap(err, "db: clear series")
		}
		for _, category := range categories {
			if _, err := c.database.Collection(category).DeleteMany(sc, bson.M{}); err != nil {
				return nil, eris.Wrapf(err, "db: clear %s", category)
			}
		}

		if err := insertAll(sc, media, s.Media); err != nil {
			return nil, err
		}
		if err := insertAll(sc, series, s.Series); err != nil {
			return nil, err
		}
		for _, category := range categories {
			entities := s.Appearances[category]
			names := make([]string, 0, len(entities))
			for name := range entities {
				names = append(names, name)
			}
			sort.Strings(names)
			docs := make([]appearanceDoc, 0, len(names))
			for _, name := range names {
				docs = append(docs, appearanceDoc{Name: name, Media: entities[name]})
			}
			if err := insertAll(sc, c.database.Collection(category), docs); err != nil {
				return nil, err
			}
		}

		missing := c.database.Collection(missingCollection)
		if len(s.Archive) > 0 {
			docs := make([]interface{}, len(s.Archive))
			for i, d := range s.Archive {
				delete(d, "_id")
				docs[i] = d
			}
			if _, err := missing.InsertMany(sc, docs, options.InsertMany().SetOrdered(false)); err != nil {
				return nil, eris.Wrap(err, "db: archive missing media")
			}
		}
		if len(s.Resurrected) > 0 {
			if _, err := missing.DeleteMany(sc, bson.M{"pageid": bson.M{"$in": s.Resurrected}}); err != nil {
				return nil, eris.Wrap(err, "db: remove resurrected media")
			}
		}

		_, err := c.database.Collection(metaCollection).UpdateOne(sc,
			bson.M{},
			bson.M{"$set": bson.M{"dataUpdateTimestamp": s.UpdatedAt.UnixMilli()}},
			options.Update().SetUpsert(true))
		return nil, eris.Wrap(err, "db: update meta")
	})
	return eris.Wrap(err, "db: commit transaction")
}

func insertAll[T any](ctx context.Context, coll *mongo.Collection, items []T) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]interface{}, len(items))
	for i, item := range items {
		docs[i] = item
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return eris.Wrapf(err, "db: insert into %s", coll.Name())
	}
	return nil
}
