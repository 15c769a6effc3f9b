package timeline

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/wiki"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// typeCodes maps the timeline's type column to media types.
var typeCodes = map[string]domain.MediaType{
	"C":  domain.Comic,
	"N":  domain.Book,
	"SS": domain.ShortStory,
	"YR": domain.YR,
	"JR": domain.Book,
	"TV": domain.TV,
	"F":  domain.Film,
	"VG": domain.Game,
	"A":  domain.AudioDrama,
}

// placeholderCode marks rows that are skipped without a warning.
const placeholderCode = "P"

var quotedRe = regexp.MustCompile(`^"(.*)"$`)

// PageParser renders a wiki page.
type PageParser interface {
	ParsedPage(ctx context.Context, title string) (*wiki.ParsedPage, error)
}

// Fetch renders the timeline page, checks the templates it uses against the
// allow-list and reads its table.
func Fetch(ctx context.Context, parser PageParser, title string, knownTemplates []string) ([]Row, error) {
	page, err := parser.ParsedPage(ctx, title)
	if err != nil {
		return nil, eris.Wrapf(err, "timeline: fetch %q", title)
	}
	if err := ValidateTemplates(page.Templates, knownTemplates); err != nil {
		return nil, err
	}
	return ReadTable(page.HTML)
}

// ValidateTemplates returns ErrUnknownTemplate naming every template that is
// not in known.
func ValidateTemplates(templates, known []string) error {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	seen := make(map[string]bool)
	var unknown []string
	for _, t := range templates {
		if allowed[t] || seen[t] {
			continue
		}
		seen[t] = true
		unknown = append(unknown, t)
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return eris.Wrapf(ErrUnknownTemplate, "%s", strings.Join(unknown, ", "))
}

// Decomposer turns timeline rows into drafts.
type Decomposer struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewDecomposer creates a new Decomposer.
func NewDecomposer(logger *zap.Logger) *Decomposer {
	return &Decomposer{logger: logger.Named("timeline"), now: time.Now}
}

// Decompose builds the working set from the rows. Chronology is the row's
// position in the table. A limit above zero truncates the rows first.
func (d *Decomposer) Decompose(rows []Row, limit int) *domain.WorkingSet {
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	ws := domain.NewWorkingSet()
	byArticle := make(map[string]int)
	labels := make(map[int]string)

	for i, row := range rows {
		mediaType, ok := typeCodes[row.TypeCode]
		if !ok {
			if row.TypeCode != placeholderCode {
				d.logger.Warn("unknown type code, skipping row",
					zap.String("type", row.TypeCode),
					zap.String("title", row.TitleText))
			}
			continue
		}

		draft := &domain.Draft{
			Title:      row.Article,
			Type:       mediaType,
			Chronology: i,
			Date:       row.Year,
			Writer:     row.Writers,
		}
		if row.TypeCode == "JR" {
			draft.FullType = domain.BookJR
		}
		d.applyNotes(draft, row.TitleText)
		d.applyRelease(draft, row.Released)

		label := cleanLabel(row.TitleText)
		if draft.Title == "" {
			d.logger.Warn("title cell has no article link, keeping it as a redlink", zap.String("cell", row.TitleText))
			draft.Title = label
			draft.Redlink = true
			ws.Add(draft)
			continue
		}

		idx := ws.Add(draft)
		labels[idx] = label

		first, dup := byArticle[draft.Title]
		if !dup {
			byArticle[draft.Title] = idx
			continue
		}
		toChapter(ws.Drafts[first], labels[first])
		toChapter(draft, label)
		d.logger.Info("duplicate timeline title, grouping as chapters",
			zap.String("article", draft.Href),
			zap.String("title", draft.Title))
	}

	ws.Reindex()
	return ws
}

// toChapter turns a draft into one chapter of a shared article.
func toChapter(draft *domain.Draft, label string) {
	if draft.NotUnique {
		return
	}
	draft.Href = draft.Title
	if label != "" {
		draft.Title = label
	}
	draft.NotUnique = true
}

// applyNotes reads the "*" notes and the dagger marker of a title cell.
func (d *Decomposer) applyNotes(draft *domain.Draft, cell string) {
	if strings.Contains(cell, "†") {
		draft.ExactPlacementUnknown = true
	}

	parts := strings.Split(cell, "*")
	if len(parts) < 2 {
		return
	}
	list := domain.Node{Type: domain.NodeList}
	for _, note := range parts[1:] {
		note = strings.TrimSpace(note)
		list.Items = append(list.Items, []domain.Node{{Type: domain.NodeText, Text: note}})
		lower := strings.ToLower(note)
		if strings.Contains(lower, "adaptation") || strings.Contains(lower, "novelization") {
			draft.Adaptation = true
		}
	}
	draft.TimelineNotes = domain.Tree([]domain.Node{list})
}

// applyRelease sets the release date fields and the unreleased flag.
func (d *Decomposer) applyRelease(draft *domain.Draft, released string) {
	draft.ReleaseDate = released

	unscuffed := UnscuffDate(released)
	_, unscuffedErr := time.Parse(dateLayout, unscuffed)
	if unscuffed == released && unscuffedErr == nil {
		draft.ReleaseDateEffective = unscuffed
	}

	if t, ok := parseRelease(released); !ok || t.After(d.now()) {
		draft.Unreleased = true
	}
	if released != "" && unscuffedErr != nil {
		d.logger.Error("release date format invalid",
			zap.String("title", draft.Title),
			zap.String("date", released))
	}
}

// cleanLabel returns the display part of a title cell without notes, dagger
// or surrounding quotes.
func cleanLabel(cell string) string {
	label := strings.Split(cell, "*")[0]
	label = strings.TrimSpace(strings.ReplaceAll(label, "†", ""))
	return quotedRe.ReplaceAllString(label, "$1")
}
