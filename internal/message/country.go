package message

// Country is the lower-case country code stored alongside a message.
type Country string

const (
	CountryUnknown Country = "xx"
	CountryBE      Country = "be"
	CountryDE      Country = "de"
	CountryES      Country = "es"
	CountryFR      Country = "fr"
	CountryIT      Country = "it"
	CountryNL      Country = "nl"
	CountryUK      Country = "uk"
	CountryUS      Country = "us"
)

var countryPrefixes = map[string]Country{
	"+10": CountryUS,
	"+11": CountryUS,
	"+12": CountryUS,
	"+13": CountryUS,
	"+14": CountryUS,
	"+15": CountryUS,
	"+16": CountryUS,
	"+17": CountryUS,
	"+18": CountryUS,
	"+19": CountryUS,
	"+31": CountryNL,
	"+32": CountryBE,
	"+33": CountryFR,
	"+34": CountryES,
	"+39": CountryIT,
	"+44": CountryUK,
	"+49": CountryDE,
}

// CountryFor maps the first three characters of an address to a country.
// Unmatched or too short addresses yield CountryUnknown.
//
// Example: "+31612345678" is a Dutch number and maps to "nl".
func CountryFor(address string) Country {
	if len(address) < 3 {
		return CountryUnknown
	}
	if c, ok := countryPrefixes[address[:3]]; ok {
		return c
	}
	return CountryUnknown
}

func (c Country) String() string { return string(c) }
