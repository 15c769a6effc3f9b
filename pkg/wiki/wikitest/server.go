// Package wikitest provides an in-memory api.php for tests.
package wikitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"catalog-sync/pkg/wiki"
)

// Server answers revisions, imageinfo and parse requests from memory.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	pages      map[string]page
	images     map[string]image
	normalized map[string]string
	nextID     int64
	requests   int
}

type page struct {
	id        int64
	wikitext  string
	timestamp string
}

type image struct {
	url, sha1, timestamp string
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		pages:      make(map[string]page),
		images:     make(map[string]image),
		normalized: make(map[string]string),
		nextID:     100,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// AddPage stores an article and returns its page id.
func (s *Server) AddPage(title, wikitext string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.pages[title] = page{id: s.nextID, wikitext: wikitext, timestamp: "2024-01-02T03:04:05Z"}
	return s.nextID
}

// AddImage stores file metadata under a "File:" title.
func (s *Server) AddImage(file, url, sha1, timestamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[file] = image{url: url, sha1: sha1, timestamp: timestamp}
}

// Normalize makes the server canonicalize from into to.
func (s *Server) Normalize(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.normalized[from] = to
}

// Requests returns the number of requests served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Client returns a wiki client pointed at the server.
func (s *Server) Client(opts wiki.Options) *wiki.Client {
	opts.APIURL = s.URL
	if opts.UserAgent == "" {
		opts.UserAgent = "wikitest"
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	return wiki.NewClient(opts)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")
	if q.Get("action") == "parse" {
		s.serveParse(w, q.Get("page"))
		return
	}

	var normalized []map[string]string
	var pages []map[string]any
	seen := make(map[string]bool)
	for _, title := range strings.Split(q.Get("titles"), "|") {
		if to, ok := s.normalized[title]; ok {
			normalized = append(normalized, map[string]string{"from": title, "to": to})
			title = to
		}
		if seen[title] {
			continue
		}
		seen[title] = true
		pages = append(pages, s.lookup(title, q.Get("prop")))
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"batchcomplete": "",
		"query": map[string]any{
			"normalized": normalized,
			"pages":      pages,
		},
	})
}

func (s *Server) lookup(title, prop string) map[string]any {
	if prop == "imageinfo" {
		img, ok := s.images[title]
		if !ok {
			return map[string]any{"ns": 6, "title": title, "missing": ""}
		}
		return map[string]any{
			"ns":    6,
			"title": title,
			"imageinfo": []map[string]string{{
				"url": img.url, "sha1": img.sha1, "timestamp": img.timestamp,
			}},
		}
	}

	p, ok := s.pages[title]
	if !ok {
		return map[string]any{"ns": 0, "title": title, "missing": ""}
	}
	return map[string]any{
		"pageid": p.id,
		"ns":     0,
		"title":  title,
		"revisions": []map[string]any{{
			"timestamp": p.timestamp,
			"slots": map[string]any{
				"main": map[string]string{"contentmodel": "wikitext", "*": p.wikitext},
			},
		}},
	}
}

func (s *Server) serveParse(w http.ResponseWriter, title string) {
	p, ok := s.pages[title]
	if !ok {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "missingtitle", "info": "The page you specified doesn't exist."},
		})
		return
	}

	var templates []map[string]any
	for _, t := range wikitextTemplates(p.wikitext) {
		templates = append(templates, map[string]any{"ns": 10, "*": "Template:" + t})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"parse": map[string]any{
			"title":     title,
			"pageid":    p.id,
			"text":      map[string]string{"*": p.wikitext},
			"templates": templates,
		},
	})
}

// wikitextTemplates returns the names of the templates opened in s. The
// stored wikitext doubles as the rendered HTML of parse requests.
func wikitextTemplates(s string) []string {
	var out []string
	for {
		i := strings.Index(s, "{{")
		if i < 0 {
			return out
		}
		s = s[i+2:]
		end := strings.IndexAny(s, "|}")
		if end < 0 {
			return out
		}
		out = append(out, strings.TrimSpace(s[:end]))
	}
}
