// Package classify assigns full types to media and series.
package classify

import (
	"context"
	"strings"

	"catalog-sync/pkg/articles"
	"catalog-sync/pkg/config"
	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/wikitext"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Documents returns parsed articles, cached for the run.
type Documents interface {
	Get(ctx context.Context, title string) (*articles.Article, error)
}

// Subject is what a rule looks at.
type Subject struct {
	Title string
	Type  domain.MediaType
	Doc   *wikitext.Document

	docs    Documents
	logger  *zap.Logger
	fetched bool
	series  string
}

// seriesSentence returns the opening sentence of the first series linked
// from the subject's infobox. A missing series article yields "".
func (s *Subject) seriesSentence(ctx context.Context) (string, error) {
	if s.fetched {
		return s.series, nil
	}
	s.fetched = true

	links := s.Doc.Infobox().Get("series").Links()
	if len(links) == 0 {
		return "", nil
	}
	title := links[0].Page
	s.logger.Info("getting series to figure out the audience",
		zap.String("title", s.Title),
		zap.String("series", title))
	art, err := s.docs.Get(ctx, title)
	if err != nil {
		return "", eris.Wrapf(err, "classify: fetch series %q", title)
	}
	if art.Missing || art.Doc == nil {
		s.logger.Warn("series is not a valid article", zap.String("title", s.Title), zap.String("series", title))
		return "", nil
	}
	s.series = art.Doc.Sentence(0)
	return s.series, nil
}

// Classifier runs the rule tables. TV full types are memoized per series.
type Classifier struct {
	docs     Documents
	logger   *zap.Logger
	cascades map[domain.MediaType]Cascade
	tvTypes  map[string]domain.FullType
}

// NewClassifier creates a new Classifier. Titles in sup silence the
// matching low-confidence warnings.
func NewClassifier(docs Documents, sup config.Suppress, logger *zap.Logger) *Classifier {
	return &Classifier{
		docs:     docs,
		logger:   logger.Named("classify"),
		cascades: cascades(sup),
		tvTypes:  make(map[string]domain.FullType),
	}
}

// Run classifies every draft of the working set. Series must be resolved
// first so that TV episodes can be keyed by their series.
func (c *Classifier) Run(ctx context.Context, ws *domain.WorkingSet) error {
	c.logger.Info("extracting full types", zap.Int("drafts", len(ws.Drafts)))
	for _, d := range ws.Drafts {
		if err := c.Draft(ctx, ws, d); err != nil {
			return err
		}
	}
	return nil
}

// Draft classifies a single draft.
func (c *Classifier) Draft(ctx context.Context, ws *domain.WorkingSet, d *domain.Draft) error {
	if d.Redlink || d.PageID == 0 {
		if d.FullType == "" {
			if cs, ok := c.cascades[d.Type]; ok {
				d.FullType = cs.Fallback.Result
			}
		}
		return nil
	}

	art, err := c.docs.Get(ctx, d.ArticleTitle())
	if err != nil {
		return eris.Wrapf(err, "classify: fetch %q", d.ArticleTitle())
	}
	if art.Doc == nil {
		return nil
	}
	doc := art.Doc

	switch d.Type {
	case domain.Book:
		if doc.HasCategory("Canon audio dramas") {
			d.Type = domain.AudioDrama
			d.FullType = ""
			d.Audiobook = false
			return nil
		}
		if d.FullType != "" {
			return nil
		}
	case domain.TV:
		key := tvSeriesTitle(ws, d)
		if ft, ok := c.tvTypes[key]; ok {
			d.FullType = ft
			return nil
		}
		ft, err := c.FullType(ctx, &Subject{Title: key, Type: domain.TV, Doc: doc})
		if err != nil {
			return err
		}
		d.FullType = ft
		return nil
	}

	ft, err := c.FullType(ctx, &Subject{Title: d.Title, Type: d.Type, Doc: doc})
	if err != nil {
		return err
	}
	if ft != "" {
		d.FullType = ft
	}
	return nil
}

// tvSeriesTitle returns the title TV types are memoized under: the draft's
// first series typed as tv, else the draft itself.
func tvSeriesTitle(ws *domain.WorkingSet, d *domain.Draft) string {
	for _, title := range d.Series {
		if s, ok := ws.LookupSeries(title); ok && s.Type == domain.TV {
			return title
		}
	}
	return d.Title
}

// FullType evaluates the cascade for the subject's type. Types without
// sub-types yield "". TV results are memoized under the subject title.
func (c *Classifier) FullType(ctx context.Context, s *Subject) (domain.FullType, error) {
	cs, ok := c.cascades[s.Type]
	if !ok {
		return "", nil
	}
	if s.Type == domain.TV {
		if ft, ok := c.tvTypes[s.Title]; ok {
			return ft, nil
		}
	}
	s.docs = c.docs
	s.logger = c.logger

	rule, err := cs.Eval(ctx, s)
	if err != nil {
		return "", err
	}
	if rule.Warning != "" && !rule.Suppress[s.Title] {
		c.logger.Warn(rule.Warning,
			zap.String("title", s.Title),
			zap.String("sentence", s.Doc.Sentence(0)),
			zap.Strings("categories", s.Doc.Categories()))
	}
	if s.Type == domain.TV {
		c.tvTypes[s.Title] = rule.Result
	}
	return rule.Result, nil
}

// Validate logs every draft that still lacks a required full type and
// returns their titles.
func (c *Classifier) Validate(ws *domain.WorkingSet) []string {
	var missing []string
	for _, d := range ws.Drafts {
		if d.Type.RequiresFullType() && d.FullType == "" {
			missing = append(missing, d.Title)
		}
	}
	if len(missing) > 0 {
		c.logger.Error("no full type despite being required on the following media",
			zap.String("titles", strings.Join(missing, "\n")))
	}
	return missing
}
