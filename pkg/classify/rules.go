package classify

import (
	"context"
	"regexp"

	"catalog-sync/pkg/config"
	"catalog-sync/pkg/domain"
)

// Matcher decides whether a rule applies to a subject.
type Matcher func(ctx context.Context, s *Subject) (bool, error)

// Rule maps a match to a full type. A rule with a Warning logs it when it
// decides, unless the subject title is in Suppress.
type Rule struct {
	Name     string
	Result   domain.FullType
	Match    Matcher
	Warning  string
	Suppress map[string]bool
}

// Cascade is an ordered rule table. The first matching rule wins; Fallback
// decides when nothing matches.
type Cascade struct {
	Rules    []Rule
	Fallback Rule
}

// Eval returns the deciding rule.
func (c Cascade) Eval(ctx context.Context, s *Subject) (Rule, error) {
	for _, r := range c.Rules {
		ok, err := r.Match(ctx, s)
		if err != nil {
			return Rule{}, err
		}
		if ok {
			return r, nil
		}
	}
	return c.Fallback, nil
}

var (
	microSeriesRe = regexp.MustCompile(`(?i)micro[- ]series`)
	animatedRe    = regexp.MustCompile(`(?i)animated`)
	cgRe          = regexp.MustCompile(`\bCGI?\b`)
	vrRe          = regexp.MustCompile(`(?i)virtual[ -]reality`)
	mangaRe       = regexp.MustCompile(`(?i)manga|japanese webcomic`)

	youngAdultRe   = regexp.MustCompile(`(?i)young[- ]adult`)
	youngReadersRe = regexp.MustCompile(`(?i)young[- ]readers?|\bjunior\b|children's|picture book|chapter book|early reader`)
	adultRe        = regexp.MustCompile(`(?i)\badult\b`)
)

func inCategory(names ...string) Matcher {
	return func(_ context.Context, s *Subject) (bool, error) {
		for _, n := range names {
			if s.Doc.HasCategory(n) {
				return true, nil
			}
		}
		return false, nil
	}
}

func sentenceMatches(n int, res ...*regexp.Regexp) Matcher {
	return func(_ context.Context, s *Subject) (bool, error) {
		sentence := s.Doc.Sentence(n)
		for _, re := range res {
			if re.MatchString(sentence) {
				return true, nil
			}
		}
		return false, nil
	}
}

func either(ms ...Matcher) Matcher {
	return func(ctx context.Context, s *Subject) (bool, error) {
		for _, m := range ms {
			ok, err := m(ctx, s)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
}

func infoboxType(t string) Matcher {
	return func(_ context.Context, s *Subject) (bool, error) {
		ib := s.Doc.Infobox()
		return ib != nil && ib.Type == t, nil
	}
}

func seriesSentenceMatches(re *regexp.Regexp) Matcher {
	return func(ctx context.Context, s *Subject) (bool, error) {
		sentence, err := s.seriesSentence(ctx)
		if err != nil {
			return false, err
		}
		return re.MatchString(sentence), nil
	}
}

func set(titles []string) map[string]bool {
	out := make(map[string]bool, len(titles))
	for _, t := range titles {
		out[t] = true
	}
	return out
}

// cascades builds the rule tables per media type.
func cascades(sup config.Suppress) map[domain.MediaType]Cascade {
	return map[domain.MediaType]Cascade{
		domain.Book: {
			Rules: []Rule{
				{Name: "adult category", Result: domain.BookAdult, Match: inCategory("Canon adult novels")},
				{Name: "young-adult category", Result: domain.BookYA, Match: inCategory("Canon young-adult novels")},
				{Name: "young readers category", Result: domain.BookJR, Match: inCategory("Canon Young Readers")},
				{Name: "young-adult sentence", Result: domain.BookYA, Match: sentenceMatches(0, youngAdultRe)},
				{Name: "young readers sentence", Result: domain.BookJR, Match: sentenceMatches(0, youngReadersRe)},
				{Name: "adult sentence", Result: domain.BookAdult, Match: sentenceMatches(0, adultRe)},
				{Name: "series young-adult sentence", Result: domain.BookYA, Match: seriesSentenceMatches(youngAdultRe)},
				{Name: "series young readers sentence", Result: domain.BookJR, Match: seriesSentenceMatches(youngReadersRe)},
				{Name: "series adult sentence", Result: domain.BookAdult, Match: seriesSentenceMatches(adultRe)},
			},
			Fallback: Rule{
				Name:     "adult fallback",
				Result:   domain.BookAdult,
				Warning:  "can't figure out target audience, assuming adult",
				Suppress: set(sup.LowConfidenceAdultNovel),
			},
		},
		domain.TV: {
			Rules: []Rule{
				{Name: "micro-series sentence", Result: domain.TVMicroSeries, Match: sentenceMatches(0, microSeriesRe)},
				{Name: "animated category", Result: domain.TVAnimated, Match: inCategory("Canon animated television series")},
				{Name: "live-action category", Result: domain.TVLiveAction, Match: inCategory("Canon live-action television series")},
				{
					Name:     "animated sentence",
					Result:   domain.TVAnimated,
					Match:    sentenceMatches(0, animatedRe, cgRe),
					Warning:  "unknown tv full type, inferring animated from sentence",
					Suppress: set(sup.LowConfidenceAnimated),
				},
			},
			Fallback: Rule{
				Name:    "live-action fallback",
				Result:  domain.TVLiveAction,
				Warning: "unknown tv full type, couldn't infer it from sentence, setting to live-action",
			},
		},
		domain.Game: {
			Rules: []Rule{
				{Name: "mobile category", Result: domain.GameMobile, Match: inCategory("Canon mobile games")},
				{Name: "web-based category", Result: domain.GameBrowser, Match: inCategory("Web-based games")},
				{
					Name:   "virtual reality",
					Result: domain.GameVR,
					Match: either(
						inCategory("Virtual reality", "Virtual reality attractions", "Virtual reality games"),
						sentenceMatches(0, vrRe),
					),
				},
			},
			Fallback: Rule{Name: "generic game", Result: domain.GameGeneric},
		},
		domain.Comic: {
			Rules: []Rule{
				{Name: "manga", Result: domain.ComicManga, Match: either(sentenceMatches(0, mangaRe), inCategory("Canon manga"))},
				{
					Name:     "manga second sentence",
					Result:   domain.ComicManga,
					Match:    sentenceMatches(1, mangaRe),
					Warning:  "low confidence guess of manga type",
					Suppress: set(sup.LowConfidenceManga),
				},
				{Name: "comic strip infobox", Result: domain.ComicStrip, Match: infoboxType("comic strip")},
				{Name: "comic story infobox", Result: domain.ComicStory, Match: infoboxType("comic story")},
			},
			Fallback: Rule{Name: "generic comic", Result: domain.ComicGeneric},
		},
	}
}
