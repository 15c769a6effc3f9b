package domain

import "time"

// Draft is a media item under construction. One draft exists per accepted
// timeline row; chapter drafts share Href and differ in Title.
type Draft struct {
	Title      string    `bson:"title" json:"title"`
	Href       string    `bson:"href,omitempty" json:"href,omitempty"`
	PageID     int64     `bson:"pageid,omitempty" json:"pageid,omitempty"`
	Chronology int       `bson:"chronology" json:"chronology"`
	Type       MediaType `bson:"type" json:"type"`
	FullType   FullType  `bson:"fullType,omitempty" json:"fullType,omitempty"`

	ReleaseDate          string   `bson:"releaseDate,omitempty" json:"releaseDate,omitempty"`
	ReleaseDateEffective string   `bson:"releaseDateEffective,omitempty" json:"releaseDateEffective,omitempty"`
	Date                 string   `bson:"date,omitempty" json:"date,omitempty"`
	TimelineNotes        Rich     `bson:"timelineNotes,omitempty" json:"timelineNotes,omitempty"`
	Writer               []string `bson:"writer,omitempty" json:"writer,omitempty"`

	// Fields holds the infobox-derived text trees keyed by their db name.
	Fields     map[string]Rich `bson:",inline" json:"fields,omitempty"`
	Publisher  []string        `bson:"publisher,omitempty" json:"publisher,omitempty"`
	Series     []string        `bson:"series,omitempty" json:"series,omitempty"`
	Season     int             `bson:"season,omitempty" json:"season,omitempty"`
	SeasonNote string          `bson:"seasonNote,omitempty" json:"seasonNote,omitempty"`
	Episode    string          `bson:"episode,omitempty" json:"episode,omitempty"`
	SE         string          `bson:"se,omitempty" json:"se,omitempty"`

	Redlink               bool `bson:"redlink,omitempty" json:"redlink,omitempty"`
	Redirect              bool `bson:"redirect,omitempty" json:"redirect,omitempty"`
	NotUnique             bool `bson:"notUnique,omitempty" json:"notUnique,omitempty"`
	Unreleased            bool `bson:"unreleased,omitempty" json:"unreleased,omitempty"`
	ExactPlacementUnknown bool `bson:"exactPlacementUnknown,omitempty" json:"exactPlacementUnknown,omitempty"`
	Adaptation            bool `bson:"adaptation,omitempty" json:"adaptation,omitempty"`
	Audiobook             bool `bson:"audiobook,omitempty" json:"audiobook,omitempty"`

	Cover          string `bson:"cover,omitempty" json:"cover,omitempty"`
	CoverWidth     int    `bson:"coverWidth,omitempty" json:"coverWidth,omitempty"`
	CoverHeight    int    `bson:"coverHeight,omitempty" json:"coverHeight,omitempty"`
	CoverTimestamp string `bson:"coverTimestamp,omitempty" json:"coverTimestamp,omitempty"`
	CoverSha1      string `bson:"coverSha1,omitempty" json:"coverSha1,omitempty"`
	CoverHash      string `bson:"coverHash,omitempty" json:"coverHash,omitempty"`

	AddedAt           *time.Time `bson:"addedAt,omitempty" json:"addedAt,omitempty"`
	RevisionTimestamp string     `bson:"revisionTimestamp,omitempty" json:"revisionTimestamp,omitempty"`

	// CoverSource is the wiki file name of the cover. Not persisted.
	CoverSource string `bson:"-" json:"-"`
}

// ArticleTitle returns the title of the article backing the draft.
func (d *Draft) ArticleTitle() string {
	if d.Href != "" {
		return d.Href
	}
	return d.Title
}

// Field returns an infobox field by db key.
func (d *Draft) Field(key string) Rich {
	return d.Fields[key]
}

// SetField stores an infobox field, dropping empty values.
func (d *Draft) SetField(key string, v Rich) {
	if v.IsZero() {
		delete(d.Fields, key)
		return
	}
	if d.Fields == nil {
		d.Fields = make(map[string]Rich)
	}
	d.Fields[key] = v
}

// ApplyContent copies infobox-derived content onto the draft.
func (d *Draft) ApplyContent(c Content) {
	for k, v := range c.Fields {
		d.SetField(k, v)
	}
	d.Publisher = c.Publisher
	d.Series = c.Series
	d.Season = c.Season
	d.SeasonNote = c.SeasonNote
	d.Episode = c.Episode
	d.SE = c.SE
	d.CoverSource = c.CoverSource
}

// Content is the infobox-derived part of a draft or series.
type Content struct {
	Fields      map[string]Rich
	Publisher   []string
	Series      []string
	Season      int
	SeasonNote  string
	Episode     string
	SE          string
	CoverSource string
}

// SeriesDraft is a series under construction.
type SeriesDraft struct {
	Title        string    `bson:"title" json:"title"`
	DisplayTitle string    `bson:"displayTitle,omitempty" json:"displayTitle,omitempty"`
	PageID       int64     `bson:"pageid,omitempty" json:"pageid,omitempty"`
	Type         MediaType `bson:"type" json:"type"`
	FullType     FullType  `bson:"fullType,omitempty" json:"fullType,omitempty"`
	Redlink      bool      `bson:"redlink,omitempty" json:"redlink,omitempty"`

	Fields    map[string]Rich `bson:",inline" json:"fields,omitempty"`
	Publisher []string        `bson:"publisher,omitempty" json:"publisher,omitempty"`
	Series    []string        `bson:"series,omitempty" json:"series,omitempty"`
}

// FetchTitle returns the title with any anchor fragment removed.
func (s *SeriesDraft) FetchTitle() string {
	for i := 0; i < len(s.Title); i++ {
		if s.Title[i] == '#' {
			return s.Title[:i]
		}
	}
	return s.Title
}

// ApplyContent copies infobox-derived content onto the series.
func (s *SeriesDraft) ApplyContent(c Content) {
	for k, v := range c.Fields {
		if v.IsZero() {
			continue
		}
		if s.Fields == nil {
			s.Fields = make(map[string]Rich)
		}
		s.Fields[k] = v
	}
	s.Publisher = c.Publisher
	s.Series = c.Series
}

// PriorRecord is the identity of a previously persisted media item.
type PriorRecord struct {
	PageID    int64      `bson:"pageid"`
	Title     string     `bson:"title"`
	NotUnique bool       `bson:"notUnique,omitempty"`
	AddedAt   *time.Time `bson:"addedAt,omitempty"`
}

// MissingRecord is a media item archived after it left the timeline while
// user lists still referenced it.
type MissingRecord struct {
	PageID int64  `bson:"pageid"`
	Title  string `bson:"title"`
}

// PriorCover is the cover state of a previously persisted media item.
type PriorCover struct {
	Title          string `bson:"title"`
	Cover          string `bson:"cover"`
	CoverWidth     int    `bson:"coverWidth"`
	CoverHeight    int    `bson:"coverHeight"`
	CoverTimestamp string `bson:"coverTimestamp"`
	CoverSha1      string `bson:"coverSha1"`
	CoverHash      string `bson:"coverHash"`
}
