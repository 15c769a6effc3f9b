// Package invalidate clears the downstream read cache after a commit.
package invalidate

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Flusher clears the downstream cache.
type Flusher interface {
	FlushDB(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Invalidator flushes the Redis database the API caches catalog reads in.
type Invalidator struct {
	client Flusher
	logger *zap.Logger
}

// New parses a redis:// URI and returns an Invalidator. An empty URI
// returns nil; calling Flush on a nil Invalidator is a no-op.
func New(uri string, logger *zap.Logger) (*Invalidator, error) {
	if uri == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, eris.Wrap(err, "invalidate: parse redis uri")
	}
	return NewWithClient(redis.NewClient(opts), logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client Flusher, logger *zap.Logger) *Invalidator {
	return &Invalidator{client: client, logger: logger.Named("invalidate")}
}

// Flush empties the cache database.
func (i *Invalidator) Flush(ctx context.Context) error {
	if i == nil {
		return nil
	}
	if err := i.client.FlushDB(ctx).Err(); err != nil {
		return eris.Wrap(err, "invalidate: flushdb")
	}
	i.logger.Info("flushed downstream cache")
	return nil
}

// Close releases the connection.
func (i *Invalidator) Close() error {
	if i == nil {
		return nil
	}
	return i.client.Close()
}
