package gif

import "strings"

// DefaultCountry is used for languages without a mapping.
const DefaultCountry = "US"

var countries = map[string]string{
	"id": "ID",
	"en": "US",
	"fr": "FR",
	"de": "DE",
	"es": "ES",
	"zh": "CN",
	"ja": "JP",
	"ko": "KR",
	"ar": "SA",
	"ru": "RU",
	"it": "IT",
	"nl": "NL",
	"pt": "PT",
	"tr": "TR",
	"th": "TH",
	"vi": "VN",
	"ms": "MY",
	"hi": "IN",
}

// Locale returns the locale and country search parameters for a document
// language, eg. "fr" gives ("fr_FR", "FR"). An empty language is treated as "en".
func Locale(lang string) (locale, country string) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}

	country, ok := countries[lang]
	if !ok {
		country = DefaultCountry
	}
	return lang + "_" + country, country
}
