// Package series resolves the series referenced by media drafts.
package series

import (
	"context"
	"regexp"
	"strings"

	"catalog-sync/pkg/articles"
	"catalog-sync/pkg/classify"
	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/enrich"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrUnknownSeriesInfobox is returned when a series article uses an
	// infobox that maps to no series type.
	ErrUnknownSeriesInfobox = eris.New("series: unknown series infobox")
	// ErrSeriesUntyped is returned when a series has no infobox and its
	// opening sentence names no type.
	ErrSeriesUntyped = eris.New("series: no infobox and no type in the opening sentence")
)

// sentenceTypes are tried in order; a later match overrides an earlier one.
var sentenceTypes = []struct {
	typ domain.MediaType
	re  *regexp.Regexp
}{
	{domain.Multimedia, regexp.MustCompile(`(?i)multimedia project`)},
	{domain.Comic, regexp.MustCompile(`(?i)((comic([ -]book)?|manga|graphic novel) (mini-?)?series|series of( young readers?)? (comic([ -]book)?s|mangas|graphic novels))`)},
	{domain.ShortStory, regexp.MustCompile(`(?i)short stor(y|ies)`)},
	{domain.Game, regexp.MustCompile(`(?i)video game`)},
}

// infoboxTypes maps series infoboxes to series types.
var infoboxTypes = map[string]domain.MediaType{
	"book series":       domain.Book,
	"comic series":      domain.Comic,
	"movie":             domain.Film,
	"television series": domain.TV,
	"comic story arc":   domain.Comic,
	"magazine":          domain.Comic,
}

// Documents fetches parsed articles in batches.
type Documents interface {
	Fetch(ctx context.Context, titles []string) (map[string]*articles.Article, error)
}

// FullTyper assigns full types.
type FullTyper interface {
	FullType(ctx context.Context, s *classify.Subject) (domain.FullType, error)
}

// Resolver types every series of a working set.
type Resolver struct {
	docs         Documents
	classifier   FullTyper
	suppress     map[string]bool
	warnRedlinks bool
	logger       *zap.Logger
}

// NewResolver creates a new Resolver. Titles in multipleMatches don't warn
// when several opening-sentence patterns match.
func NewResolver(docs Documents, classifier FullTyper, multipleMatches []string, warnRedlinks bool, logger *zap.Logger) *Resolver {
	suppress := make(map[string]bool, len(multipleMatches))
	for _, t := range multipleMatches {
		suppress[t] = true
	}
	return &Resolver{
		docs:         docs,
		classifier:   classifier,
		suppress:     suppress,
		warnRedlinks: warnRedlinks,
		logger:       logger.Named("series"),
	}
}

// Resolve fetches every series article once and fills the series drafts.
func (r *Resolver) Resolve(ctx context.Context, ws *domain.WorkingSet) error {
	r.logger.Info("fetching series", zap.Int("series", len(ws.Series)))

	var titles []string
	seen := make(map[string]bool)
	for _, s := range ws.Series {
		t := s.FetchTitle()
		if !seen[t] {
			seen[t] = true
			titles = append(titles, t)
		}
	}
	arts, err := r.docs.Fetch(ctx, titles)
	if err != nil {
		return eris.Wrap(err, "series: fetch articles")
	}

	for _, s := range ws.Series {
		art := arts[s.FetchTitle()]
		if art == nil || art.Missing || art.Doc == nil {
			r.inferFromMembers(ws, s)
			continue
		}
		if err := r.resolve(ctx, s, art); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) resolve(ctx context.Context, s *domain.SeriesDraft, art *articles.Article) error {
	s.PageID = art.PageID
	if strings.Contains(s.Title, "#") {
		s.DisplayTitle = strings.ReplaceAll(s.Title, "#", " ")
	}

	doc := art.Doc
	sentence := doc.Sentence(0)
	if doc.HasCategory("Multimedia projects") {
		s.Type = domain.Multimedia
	} else {
		for _, st := range sentenceTypes {
			if !st.re.MatchString(sentence) {
				continue
			}
			if s.Type != "" && !r.suppress[s.Title] {
				r.logger.Warn("multiple type patterns match the opening sentence, the latter takes priority",
					zap.String("series", s.Title),
					zap.String("first", string(s.Type)),
					zap.String("latter", string(st.typ)),
					zap.String("sentence", sentence))
			}
			s.Type = st.typ
		}
	}

	ib := doc.Infobox()
	if ib == nil {
		if s.Type == "" {
			return eris.Wrapf(ErrSeriesUntyped, "%q: %q", s.Title, sentence)
		}
		return nil
	}

	if s.Type == "" {
		typ, ok := infoboxTypes[ib.Type]
		if !ok {
			return eris.Wrapf(ErrUnknownSeriesInfobox, "%q uses %q", s.Title, ib.Type)
		}
		s.Type = typ
	}
	s.ApplyContent(enrich.ExtractContent(ib, s.Title, r.logger))

	ft, err := r.classifier.FullType(ctx, &classify.Subject{Title: s.Title, Type: s.Type, Doc: doc})
	if err != nil {
		return err
	}
	s.FullType = ft
	return nil
}

// inferFromMembers types a redlink series from its members: the type when
// all members agree on it, then the full type on the same terms.
func (r *Resolver) inferFromMembers(ws *domain.WorkingSet, s *domain.SeriesDraft) {
	s.Redlink = true
	if r.warnRedlinks {
		r.logger.Warn("series is a redlink", zap.String("series", s.Title))
	}

	members := ws.Members(s.Title)
	typ, ok := unanimous(members, func(d *domain.Draft) string { return string(d.Type) })
	if !ok {
		s.Type = domain.Unknown
		r.logger.Warn("failed to infer the type of a redlink series, setting unknown",
			zap.String("series", s.Title),
			zap.Int("members", len(members)))
		return
	}
	s.Type = domain.MediaType(typ)
	inferFullType(s, members)
	r.logger.Info("inferred redlink series type from its members",
		zap.String("series", s.Title),
		zap.String("type", string(s.Type)),
		zap.String("fullType", string(s.FullType)))
}

// inferFullType adopts the members' full type when they all share a non-empty one.
func inferFullType(s *domain.SeriesDraft, members []*domain.Draft) bool {
	ft, ok := unanimous(members, func(d *domain.Draft) string { return string(d.FullType) })
	if !ok || ft == "" {
		return false
	}
	s.FullType = domain.FullType(ft)
	return true
}

// InferRedlinkFullTypes repeats the full-type inference for redlink series
// once their members are classified.
func InferRedlinkFullTypes(ws *domain.WorkingSet, logger *zap.Logger) {
	for _, s := range ws.Series {
		if !s.Redlink || s.Type == domain.Unknown || s.FullType != "" {
			continue
		}
		if inferFullType(s, ws.Members(s.Title)) {
			logger.Info("inferred redlink series full type from its members",
				zap.String("series", s.Title),
				zap.String("fullType", string(s.FullType)))
		}
	}
}

func unanimous(drafts []*domain.Draft, key func(*domain.Draft) string) (string, bool) {
	if len(drafts) == 0 {
		return "", false
	}
	first := key(drafts[0])
	for _, d := range drafts[1:] {
		if key(d) != first {
			return "", false
		}
	}
	return first, true
}

// AdjustBookTypes retypes book series whose members are all young-reader
// books, since the wiki describes those series as plain book series.
func AdjustBookTypes(ws *domain.WorkingSet, logger *zap.Logger) {
	for _, s := range ws.Series {
		if s.Type != domain.Book {
			continue
		}
		members := ws.Members(s.Title)
		if _, ok := unanimous(members, func(d *domain.Draft) string { return string(d.Type) }); !ok || members[0].Type != domain.YR {
			continue
		}
		s.Type = domain.YR
		s.FullType = ""
		logger.Info("series has only yr entries, therefore it is yr", zap.String("series", s.Title))
	}
}
