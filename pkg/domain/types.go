package domain

// MediaType is the coarse media taxonomy a draft belongs to.
type MediaType string

const (
	Book       MediaType = "book"
	YR         MediaType = "yr"
	Comic      MediaType = "comic"
	ShortStory MediaType = "short-story"
	TV         MediaType = "tv"
	Film       MediaType = "film"
	Game       MediaType = "game"
	AudioDrama MediaType = "audio-drama"

	// Series only.
	Multimedia MediaType = "multimedia"
	Unknown    MediaType = "unknown"
)

// RequiresFullType reports whether items of this type must carry a full type.
func (t MediaType) RequiresFullType() bool {
	switch t {
	case Book, TV, Comic, Game:
		return true
	}
	return false
}

// FullType refines a MediaType into a sub-type.
type FullType string

const (
	BookAdult FullType = "book-a"
	BookYA    FullType = "book-ya"
	BookJR    FullType = "book-jr"

	TVLiveAction  FullType = "tv-live-action"
	TVAnimated    FullType = "tv-animated"
	TVMicroSeries FullType = "tv-micro-series"

	GameGeneric FullType = "game"
	GameMobile  FullType = "game-mobile"
	GameBrowser FullType = "game-browser"
	GameVR      FullType = "game-vr"

	ComicGeneric FullType = "comic"
	ComicManga   FullType = "comic-manga"
	ComicStrip   FullType = "comic-strip"
	ComicStory   FullType = "comic-story"
)
