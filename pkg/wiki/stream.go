package wiki

import (
	"context"
	"net/url"
)

// Stream is a lazy, single-pass cursor over query results. Batches are
// requested one at a time as the caller advances.
type Stream[T any] struct {
	client        *Client
	titles        []string
	params        url.Values
	logNormalized bool
	convert       func(rawPage) T

	offset int
	buf    []rawPage
	cur    T
	err    error
}

func newStream[T any](c *Client, titles []string, params url.Values, logNormalized bool, convert func(rawPage) T) *Stream[T] {
	return &Stream[T]{
		client:        c,
		titles:        titles,
		params:        params,
		logNormalized: logNormalized,
		convert:       convert,
	}
}

// Next advances to the next result, fetching the next batch when needed. It
// returns false once the titles are exhausted or a fetch failed.
func (s *Stream[T]) Next(ctx context.Context) bool {
	for len(s.buf) == 0 {
		if s.err != nil || s.offset >= len(s.titles) {
			return false
		}
		end := s.offset + s.client.batchSize
		if end > len(s.titles) {
			end = len(s.titles)
		}
		batch := s.titles[s.offset:end]
		s.offset = end

		pages, err := s.client.query(ctx, batch, s.params, s.logNormalized)
		if err != nil {
			s.err = err
			return false
		}
		s.buf = pages
	}
	s.cur = s.convert(s.buf[0])
	s.buf = s.buf[1:]
	return true
}

// Value returns the current result.
func (s *Stream[T]) Value() T {
	return s.cur
}

// Err returns the error that stopped the stream, if any.
func (s *Stream[T]) Err() error {
	return s.err
}

// Collect drains the stream.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for s.Next(ctx) {
		out = append(out, s.Value())
	}
	return out, s.Err()
}
