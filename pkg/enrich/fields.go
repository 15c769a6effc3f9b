package enrich

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// field describes one infobox key. The db key is the camel-cased first alias
// unless name is set, with a "Details" suffix when details is set.
type field struct {
	aliases []string
	details bool
	name    string
}

func (f field) key() string {
	key := f.name
	if key == "" {
		key = camelCase(f.aliases[0])
	}
	if f.details {
		key += "Details"
	}
	return key
}

func plain(alias string) field {
	return field{aliases: []string{alias}}
}

// infoboxFields are the infobox keys copied into media and series documents.
// "episode" is read separately into a typed field.
var infoboxFields = []field{
	{aliases: []string{"release date", "airdate", "publication date", "publish date", "released", "first aired"}, details: true},
	plain("closed"),
	plain("author"),
	{aliases: []string{"writer", "writers"}, details: true},
	plain("narrator"),
	plain("developer"),
	{aliases: []string{"season"}, details: true},
	plain("production"),
	plain("guests"),
	{aliases: []string{"director", "directors"}},
	plain("producer"),
	plain("starring"),
	plain("music"),
	{aliases: []string{"runtime", "run time"}},
	plain("budget"),
	plain("penciller"),
	plain("inker"),
	plain("letterer"),
	plain("colorist"),
	plain("editor"),
	plain("language"),
	{aliases: []string{"publisher"}, details: true},
	plain("pages"),
	plain("cover artist"),
	{aliases: []string{"timeline"}, name: "dateDetails"},
	plain("illustrator"),
	plain("media type"),
	plain("published in"),
	plain("engine"),
	plain("genre"),
	plain("modes"),
	plain("ratings"),
	plain("platforms"),
	{aliases: []string{"series"}, details: true},
	plain("basegame"),
	plain("expansions"),
	plain("designer"),
	plain("programmer"),
	plain("artist"),
	plain("composer"),
	plain("issue"),
	plain("num episodes"),
	plain("num seasons"),
	plain("network"),
	plain("last aired"),
	plain("creators"),
	plain("executive producers"),
	plain("prev"),
	plain("next"),
	plain("preceded by"),
	plain("followed by"),
	plain("upc"),
	plain("isbn"),
}

var titleCaser = cases.Title(language.English)

// camelCase turns "cover artist" into "coverArtist".
func camelCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if i == 0 {
			words[i] = strings.ToLower(w)
			continue
		}
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, "")
}
