package resolver

import (
	"time"

	"golang.org/x/text/language"
)

// PlaceholderText is shown when a name cannot be derived and is treated as
// "no image" by the renderers.
const PlaceholderText = "Sample Text"

// Locale holds the locale-dependent strings and layouts used when
// formatting values.
type Locale struct {
	Tag            language.Tag
	DateLayout     string
	DateTimeLayout string
	Checked        string
	Unchecked      string
	Location       *time.Location
}

var (
	english = Locale{
		Tag:            language.AmericanEnglish,
		DateLayout:     "1/2/2006",
		DateTimeLayout: "1/2/2006, 3:04:05 PM",
		Checked:        "☑ Yes",
		Unchecked:      "☐ No",
	}
	locales = map[language.Base]Locale{
		base(language.German): {
			Tag: language.German, DateLayout: "2.1.2006", DateTimeLayout: "2.1.2006, 15:04:05",
			Checked: "☑ Ja", Unchecked: "☐ Nein",
		},
		base(language.French): {
			Tag: language.French, DateLayout: "02/01/2006", DateTimeLayout: "02/01/2006 15:04:05",
			Checked: "☑ Oui", Unchecked: "☐ Non",
		},
		base(language.Spanish): {
			Tag: language.Spanish, DateLayout: "2/1/2006", DateTimeLayout: "2/1/2006, 15:04:05",
			Checked: "☑ Sí", Unchecked: "☐ No",
		},
	}
)

func base(tag language.Tag) language.Base {
	b, _ := tag.Base()
	return b
}

// DefaultLocale is en-US.
func DefaultLocale() Locale { return english }

// LocaleFor returns the locale matching a BCP 47 tag such as "de-DE".
// Unknown or malformed tags fall back to en-US; British English uses
// day-first dates.
func LocaleFor(tag string) Locale {
	parsed, err := language.Parse(tag)
	if err != nil {
		return english
	}
	if loc, ok := locales[base(parsed)]; ok {
		return loc
	}
	if region, _ := parsed.Region(); base(parsed) == base(language.English) && region.String() != "US" && region.String() != "ZZ" {
		loc := english
		loc.Tag = parsed
		loc.DateLayout = "02/01/2006"
		loc.DateTimeLayout = "02/01/2006, 15:04:05"
		return loc
	}
	return english
}

func (l Locale) location() *time.Location {
	if l.Location == nil {
		return time.UTC
	}
	return l.Location
}
