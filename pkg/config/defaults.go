package config

const (
	defaultAPIURL      = "https://starwars.fandom.com/api.php"
	defaultMaxlag      = 1
	defaultMaxRetries  = 5
	defaultBatchSize   = 50
	defaultCachePath   = ".cache/pages.db"
	defaultMongoURI    = "mongodb://127.0.0.1:27017/?directConnection=true"
	defaultDatabase    = "starwarstl"
	defaultRedisURI    = "redis://localhost:6379"
	defaultImageHost   = "filesystem"
	defaultImagePath   = "../client/public/img/covers/"
	defaultTVImagePath = "../client/public/img/tv-images/thumb/"
	defaultBucket      = "starwarstl"
	defaultLogLevel    = "info"
)

// defaultKnownTemplates are the templates the timeline page is expected to
// transclude. Anything else means the page layout changed.
var defaultKnownTemplates = []string{
	"Top",
	"Eras",
	"Real-world article",
	"TimelineTOC",
	"C",
	"Dagger",
	"Sort",
	"Nowrap",
	"Ref",
	"Reflist",
	"Cite web",
	"SWArchive",
	"Scroll box",
	"Interlang",
	"Circa",
	"Quote",
	"Film",
	"TCW",
	"StoryCite",
	"InsiderCite",
	"SWRMCite",
	"SWRACite",
	"SWResACite",
	"YJA",
	"FunWithNubs",
	"Acolyte",
	"TotJ",
	"GoA",
	"FoD",
	"TotE",
	"TBB",
	"Kenobi",
	"Andor",
	"Rebels",
	"TheMandalorian",
	"BoBF",
	"Ahsoka",
	"SkeletonCrew",
	"Resistance",
	"GoC",
	"GalacticPals",
	"IDWAdventuresCite-2017",
	"IDWAdventuresCite-2020",
	"EASWYouTube",
	"EA",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Wiki: Wiki{
			APIURL:         defaultAPIURL,
			Maxlag:         defaultMaxlag,
			MaxRetries:     defaultMaxRetries,
			BatchSize:      defaultBatchSize,
			KnownTemplates: append([]string(nil), defaultKnownTemplates...),
		},
		Cache: Cache{
			Path: defaultCachePath,
		},
		Mongo: Mongo{
			URI:      defaultMongoURI,
			Database: defaultDatabase,
		},
		Redis: Redis{
			URI: defaultRedisURI,
		},
		Images: Images{
			Host:        defaultImageHost,
			Path:        defaultImagePath,
			TVImagePath: defaultTVImagePath,
			Bucket:      defaultBucket,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
		Debug: Debug{
			LogNormalizedTitles: true,
		},
		Suppress: Suppress{
			LowConfidenceManga:      []string{"The Banchiians"},
			LowConfidenceAdultNovel: []string{"Star Wars: The Aftermath Trilogy", "The High Republic: Cataclysm"},
			MultipleRegexMatches: []string{
				"Star Wars: The High Republic (Marvel Comics 2021)",
				"Star Wars: The High Republic Adventures",
				"Star Wars: The High Republic: The Edge of Balance",
				"Star Wars: The High Republic: Trail of Shadows",
				"Star Wars: The High Republic: Eye of the Storm",
				"Star Wars: The High Republic Adventures (IDW Publishing 2021)",
				"Star Wars: The High Republic — The Blade",
				"Star Wars: The High Republic Adventures: The Nameless Terror",
			},
			LowConfidenceAnimated: []string{"Hunted"},
		},
	}
}
