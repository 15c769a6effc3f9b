// Package articles fetches and parses wiki articles once per run.
package articles

import (
	"context"
	"strings"

	"catalog-sync/pkg/wiki"
	"catalog-sync/pkg/wikitext"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBrokenRedirect is returned when a redirect chain ends at a missing page.
var ErrBrokenRedirect = eris.New("articles: redirect to a missing article")

// maxRedirects bounds a redirect chain.
const maxRedirects = 10

// Fetcher streams revision results for titles.
type Fetcher interface {
	Pages(titles []string) *wiki.Stream[wiki.Page]
}

// Article is a fetched and parsed wiki article. For redirects, PageID,
// Timestamp and Doc describe the destination while Title stays the title the
// wiki reported for the requested page.
type Article struct {
	Title          string
	NormalizedFrom string
	PageID         int64
	Timestamp      string
	Missing        bool
	Redirected     bool
	Doc            *wikitext.Document
}

// Anchor returns the fragment the requested title carried before the API
// normalized it away.
func (a *Article) Anchor() string {
	if i := strings.IndexByte(a.NormalizedFrom, '#'); i >= 0 {
		return strings.ReplaceAll(a.NormalizedFrom[i+1:], "_", " ")
	}
	return ""
}

// Store is a run-scoped article cache.
type Store struct {
	src    Fetcher
	stats  *wiki.Stats
	logger *zap.Logger
	cache  map[string]*Article
}

// NewStore creates a new Store.
func NewStore(src Fetcher, stats *wiki.Stats, logger *zap.Logger) *Store {
	if stats == nil {
		stats = &wiki.Stats{}
	}
	return &Store{
		src:    src,
		stats:  stats,
		logger: logger.Named("articles"),
		cache:  make(map[string]*Article),
	}
}

// Fetch returns the articles for titles keyed by the requested title. Titles
// already cached are not requested again; the rest are fetched in batches.
func (s *Store) Fetch(ctx context.Context, titles []string) (map[string]*Article, error) {
	var todo []string
	queued := make(map[string]bool)
	for _, t := range titles {
		if _, ok := s.cache[t]; ok || queued[t] {
			continue
		}
		queued[t] = true
		todo = append(todo, t)
	}

	if len(todo) > 0 {
		stream := s.src.Pages(todo)
		for stream.Next(ctx) {
			page := stream.Value()
			art, err := s.resolve(ctx, page)
			if err != nil {
				return nil, err
			}
			key := page.Title
			if page.NormalizedFrom != "" {
				key = page.NormalizedFrom
			}
			s.cache[key] = art
			if _, ok := s.cache[page.Title]; !ok {
				s.cache[page.Title] = art
			}
			if anchor := art.Anchor(); anchor != "" {
				s.cache[page.Title+"#"+anchor] = art
			}
		}
		if err := stream.Err(); err != nil {
			return nil, eris.Wrap(err, "articles: fetch pages")
		}
	}

	out := make(map[string]*Article, len(titles))
	for _, t := range titles {
		art, ok := s.cache[t]
		if !ok {
			s.logger.Warn("no result returned for title, treating it as missing", zap.String("title", t))
			art = &Article{Title: t, Missing: true}
			s.cache[t] = art
		}
		out[t] = art
	}
	return out, nil
}

// Get returns a single article.
func (s *Store) Get(ctx context.Context, title string) (*Article, error) {
	arts, err := s.Fetch(ctx, []string{title})
	if err != nil {
		return nil, err
	}
	return arts[title], nil
}

// resolve parses a page and follows redirects to the final article.
func (s *Store) resolve(ctx context.Context, page wiki.Page) (*Article, error) {
	art := &Article{
		Title:          page.Title,
		NormalizedFrom: page.NormalizedFrom,
		PageID:         page.PageID,
		Timestamp:      page.Timestamp,
		Missing:        page.Missing || page.Invalid,
	}
	if art.Missing {
		return art, nil
	}

	doc := wikitext.Parse(page.Title, page.Wikitext)
	for hops := 0; doc.IsRedirect(); hops++ {
		target := doc.RedirectTarget().Page
		if hops >= maxRedirects {
			return nil, eris.Wrapf(ErrBrokenRedirect, "%q: too many redirects", page.Title)
		}
		s.logger.Info("article is a redirect, fetching target",
			zap.String("title", page.Title),
			zap.String("target", target))
		s.stats.Redirects++
		art.Redirected = true

		dest, err := s.fetchOne(ctx, target)
		if err != nil {
			return nil, err
		}
		if dest.Missing || dest.Invalid {
			return nil, eris.Wrapf(ErrBrokenRedirect, "%q redirects to %q", page.Title, target)
		}
		art.PageID = dest.PageID
		art.Timestamp = dest.Timestamp
		doc = wikitext.Parse(dest.Title, dest.Wikitext)
	}
	art.Doc = doc
	return art, nil
}

func (s *Store) fetchOne(ctx context.Context, title string) (wiki.Page, error) {
	stream := s.src.Pages([]string{title})
	if stream.Next(ctx) {
		return stream.Value(), nil
	}
	if err := stream.Err(); err != nil {
		return wiki.Page{}, eris.Wrapf(err, "articles: fetch %q", title)
	}
	return wiki.Page{Title: title, Missing: true}, nil
}
