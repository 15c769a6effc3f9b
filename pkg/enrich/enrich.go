// Package enrich fills timeline drafts with data from their wiki articles.
package enrich

import (
	"context"
	"sort"
	"strings"
	"time"

	"catalog-sync/pkg/appearances"
	"catalog-sync/pkg/articles"
	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/wikitext"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrUnknownAppearanceCategory is returned after enrichment when articles
// used appearance categories outside the allow-list.
var ErrUnknownAppearanceCategory = eris.New("enrich: unknown appearance categories")

// allowedCategories are the appearance categories the catalog stores.
var allowedCategories = map[string]bool{
	"characters":    true,
	"organisms":     true,
	"droids":        true,
	"events":        true,
	"locations":     true,
	"organizations": true,
	"species":       true,
	"vehicles":      true,
	"technology":    true,
	"miscellanea":   true,
}

// Categories returns the allowed appearance categories in order.
func Categories() []string {
	out := make([]string, 0, len(allowedCategories))
	for c := range allowedCategories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// categoryAliases folds renamed categories into their current name.
var categoryAliases = map[string]string{
	"creatures": "organisms",
}

// Progress receives one tick per processed article.
type Progress interface {
	Add(n int) error
}

// Enricher fetches the article behind every draft and copies its data onto
// the draft.
type Enricher struct {
	store        *articles.Store
	logger       *zap.Logger
	warnRedlinks bool
	progress     Progress
}

// NewEnricher creates a new Enricher.
func NewEnricher(store *articles.Store, logger *zap.Logger, warnRedlinks bool) *Enricher {
	return &Enricher{
		store:        store,
		logger:       logger.Named("enrich"),
		warnRedlinks: warnRedlinks,
	}
}

// SetProgress installs a progress sink.
func (e *Enricher) SetProgress(p Progress) {
	e.progress = p
}

// Run enriches every draft of the working set. Each article is fetched once
// and applied to all drafts that reference it. Series referenced by drafts
// are added to the working set.
func (e *Enricher) Run(ctx context.Context, ws *domain.WorkingSet) error {
	order, groups := ws.ByArticle()

	var titles []string
	for _, title := range order {
		if isTimelineRedlink(ws, groups[title]) {
			continue
		}
		titles = append(titles, title)
	}

	arts, err := e.store.Fetch(ctx, titles)
	if err != nil {
		return eris.Wrap(err, "enrich: fetch articles")
	}

	unknown := make(map[string]bool)
	for _, title := range titles {
		drafts := make([]*domain.Draft, 0, len(groups[title]))
		for _, idx := range groups[title] {
			drafts = append(drafts, ws.Drafts[idx])
		}
		e.apply(ws, title, arts[title], drafts, unknown)
		if e.progress != nil {
			_ = e.progress.Add(1)
		}
	}

	ws.Reindex()

	if len(unknown) > 0 {
		names := make([]string, 0, len(unknown))
		for c := range unknown {
			names = append(names, c)
		}
		sort.Strings(names)
		return eris.Wrapf(ErrUnknownAppearanceCategory, "%s", strings.Join(names, ", "))
	}
	return nil
}

// isTimelineRedlink reports whether the timeline row had no article link.
func isTimelineRedlink(ws *domain.WorkingSet, idxs []int) bool {
	for _, idx := range idxs {
		if !ws.Drafts[idx].Redlink {
			return false
		}
	}
	return true
}

func (e *Enricher) apply(ws *domain.WorkingSet, requested string, art *articles.Article, drafts []*domain.Draft, unknown map[string]bool) {
	if art.Missing {
		log := e.logger.Info
		if e.warnRedlinks {
			log = e.logger.Warn
		}
		log("article is a redlink in the timeline", zap.String("title", requested))
		for _, d := range drafts {
			d.Redlink = true
		}
		return
	}

	canonical := art.Title
	if anchor := art.Anchor(); anchor != "" {
		canonical += "#" + anchor
	}
	for _, d := range drafts {
		if canonical != requested {
			if d.Href != "" {
				d.Href = canonical
			} else {
				d.Title = canonical
			}
		}
		d.PageID = art.PageID
		d.RevisionTimestamp = art.Timestamp
		d.Redirect = art.Redirected
	}

	doc := art.Doc
	title := drafts[0].ArticleTitle()
	if doc.IsDisambig() {
		e.logger.Error("article is a disambiguation page", zap.String("title", title))
	}

	ib := doc.Infobox()
	if ib == nil {
		e.logger.Error("article has no infobox", zap.String("title", title))
	} else {
		content := ExtractContent(ib, title, e.logger)
		for _, d := range drafts {
			d.ApplyContent(content)
			if ib.Type == "audiobook" {
				d.Audiobook = true
			}
			deriveDetails(d)
		}
		e.registerSeries(ws, drafts[0], content.Series)
	}

	e.collectAppearances(ws, doc, title, art.PageID, unknown)
}

// deriveDetails fills the detail fields the infobox left empty from the
// timeline columns.
func deriveDetails(d *domain.Draft) {
	if d.ReleaseDate != "" && d.Field("releaseDateDetails").IsZero() {
		if t, err := time.Parse("2006-01-02", d.ReleaseDate); err == nil {
			d.SetField("releaseDateDetails", domain.Plain(t.Format("January 2, 2006")))
		} else {
			d.SetField("releaseDateDetails", domain.Plain(d.ReleaseDate))
		}
	}
	if d.Date != "" && d.Field("dateDetails").IsZero() {
		d.SetField("dateDetails", domain.Plain(d.Date))
	}
}

func (e *Enricher) registerSeries(ws *domain.WorkingSet, d *domain.Draft, series []string) {
	if d.Type == domain.TV && len(series) > 1 {
		e.logger.Warn("tv item belongs to multiple series, thumbnails and episode grouping may break",
			zap.String("title", d.Title),
			zap.Strings("series", series))
	}
	for _, s := range series {
		ws.SeriesFor(s)
	}
}

// collectAppearances indexes the {{App}} lists of an article. A category
// written under both its old and new name keeps the list written last.
func (e *Enricher) collectAppearances(ws *domain.WorkingSet, doc *wikitext.Document, title string, pageID int64, unknown map[string]bool) {
	tmpl, ok := doc.Template("App")
	if !ok {
		return
	}
	lists, err := appearances.Parse(tmpl)
	if err != nil {
		e.logger.Error("couldn't parse appearances, ignoring them", zap.String("title", title), zap.Error(err))
		return
	}

	byCategory := make(map[string][]appearances.Entry)
	var order []string
	seenAs := make(map[string]string)
	for _, l := range lists {
		category, raw := canonicalCategory(l.Category)
		if prev, ok := seenAs[category]; ok && prev != raw {
			e.logger.Warn("appearance category written under two names, the last one wins",
				zap.String("title", title),
				zap.String("category", category),
				zap.String("first", prev),
				zap.String("last", raw))
		}
		seenAs[category] = raw
		if !allowedCategories[category] {
			unknown[category] = true
			continue
		}
		if _, ok := byCategory[category]; !ok {
			order = append(order, category)
		}
		byCategory[category] = l.Entries
	}

	for _, category := range order {
		for _, entry := range byCategory[category] {
			ws.Appearances.Add(category, entry.Name, domain.AppearanceRef{PageID: pageID, Templates: entry.Templates})
		}
	}
}

// canonicalCategory strips the canon/legends prefix and folds aliases. It
// also returns the unprefixed name as written.
func canonicalCategory(param string) (string, string) {
	c := strings.ToLower(strings.TrimSpace(param))
	c = strings.TrimPrefix(strings.TrimPrefix(c, "c-"), "l-")
	if alias, ok := categoryAliases[c]; ok {
		return alias, c
	}
	return c, c
}
