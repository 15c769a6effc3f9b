package enrich

import (
	"regexp"
	"strconv"
	"strings"

	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/texttree"
	"catalog-sync/pkg/wikitext"

	"go.uber.org/zap"
)

var numbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

const numberWords = "one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty"

var (
	seasonWordRe       = regexp.MustCompile(`^(?:season )?(` + numberWords + `)$`)
	seasonDigitRe      = regexp.MustCompile(`^(?:season )?(\d+)$`)
	seasonWordBoundRe  = regexp.MustCompile(`(?:season )?\b(` + numberWords + `)\b`)
	seasonDigitBoundRe = regexp.MustCompile(`(?:season )?\b(\d+)\b`)

	episodeRe  = regexp.MustCompile(`^\d+([–-]\d+)?$`)
	coverStrip = regexp.MustCompile(`(\[\[|File:|\]\]|\|.*)`)
)

// ExtractContent reads the infobox fields of a media or series article.
func ExtractContent(ib *wikitext.Infobox, title string, logger *zap.Logger) domain.Content {
	c := domain.Content{Fields: make(map[string]domain.Rich)}

	for _, f := range infoboxFields {
		if v := texttree.Transform(ib.Get(f.aliases...)); !v.IsZero() {
			c.Fields[f.key()] = v
		}
	}
	if isbn, ok := c.Fields["isbn"]; ok && isbn.String() == "none" {
		delete(c.Fields, "isbn")
	}

	c.CoverSource = strings.TrimSpace(coverStrip.ReplaceAllString(ib.Get("image").Wikitext(), ""))

	for _, l := range ib.Get("publisher").Links() {
		c.Publisher = append(c.Publisher, l.Page)
	}
	for _, l := range ib.Get("series").Links() {
		c.Series = append(c.Series, l.Target())
	}

	if text := ib.Get("season").Text(); text != "" {
		c.Season, c.SeasonNote = parseSeason(text)
		if c.Season == 0 {
			logger.Warn("couldn't get season", zap.String("title", title), zap.String("season", text))
		}
	}

	c.Episode = ib.Get("episode").Text()
	if c.Episode != "" && !episodeRe.MatchString(c.Episode) {
		logger.Error("episode does not have a valid format",
			zap.String("title", title),
			zap.String("episode", c.Episode))
	}

	c.SE = seasonEpisodeLabel(c.Season, c.SeasonNote, c.Episode)
	return c
}

// parseSeason reads a season number from infobox text such as "Season two"
// or "3". Word-boundary matching is a last resort; it also picks up the
// "shorts" season note.
func parseSeason(text string) (int, string) {
	clean := strings.ToLower(strings.TrimSpace(text))
	if m := seasonWordRe.FindStringSubmatch(clean); m != nil {
		return numbers[m[1]], ""
	}
	if m := seasonDigitRe.FindStringSubmatch(clean); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, ""
	}

	season := 0
	if m := seasonWordBoundRe.FindStringSubmatch(clean); m != nil {
		season = numbers[m[1]]
	} else if m := seasonDigitBoundRe.FindStringSubmatch(clean); m != nil {
		season, _ = strconv.Atoi(m[1])
	}
	if season != 0 && strings.Contains(clean, "shorts") {
		return season, "shorts"
	}
	return season, ""
}

// seasonEpisodeLabel builds labels like "S2 E11" or "S1-shorts E3".
func seasonEpisodeLabel(season int, note, episode string) string {
	var sb strings.Builder
	if season != 0 {
		sb.WriteString("S" + strconv.Itoa(season))
	}
	if note != "" {
		sb.WriteString("-" + note)
	}
	if season != 0 && episode != "" {
		sb.WriteString(" ")
	}
	if episode != "" {
		sb.WriteString("E" + episode)
	}
	return sb.String()
}
