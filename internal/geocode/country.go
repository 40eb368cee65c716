package geocode

import (
	"regexp"
	"strings"

	"github.com/nestscout/nestscout/internal/lexicon"
	"github.com/nestscout/nestscout/internal/textproc"
)

// Country is the regional address format of an address string.
type Country int

const (
	CountryOther Country = iota
	CountryUS
	CountryUK
	CountryIT
)

func (c Country) String() string {
	switch c {
	case CountryUS:
		return "US"
	case CountryUK:
		return "UK"
	case CountryIT:
		return "IT"
	default:
		return "OTHER"
	}
}

var (
	ukPostcodeRe = regexp.MustCompile(`\b([A-Z]{1,2}[0-9][A-Z0-9]?)\s*([0-9][ABD-HJLNP-UW-Z]{2})\b`)
	usStateZipRe = regexp.MustCompile(`\b([A-Z]{2})\s+(\d{5})(?:-\d{4})?\b`)
	itCodeRe     = regexp.MustCompile(`(?:^|[\s,])IT(?:$|[\s,])`)
)

// Detector classifies addresses into a Country.
type Detector struct {
	lex *lexicon.Lexicon
}

// NewDetector creates a Detector over the given lexicon (Default when nil).
func NewDetector(lex *lexicon.Lexicon) *Detector {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Detector{lex: lex}
}

// DetectCountry classifies addr using the default lexicon.
func DetectCountry(addr string) Country {
	return NewDetector(nil).Detect(addr)
}

// Detect classifies a single-line address. Checks run in a fixed order and
// the first match wins: UK, then US, then IT, else OTHER.
func (d *Detector) Detect(addr string) Country {
	if strings.TrimSpace(addr) == "" {
		return CountryOther
	}
	if ukPostcodeRe.MatchString(addr) || d.hasAny(addr, d.lex.CountryTokens("uk")) || d.lex.FindUKCity(addr) != "" {
		return CountryUK
	}
	if d.hasUSStateZip(addr) || d.hasAny(addr, d.lex.CountryTokens("us")) {
		return CountryUS
	}
	if d.hasItalianMarkers(addr) {
		return CountryIT
	}
	return CountryOther
}

func (d *Detector) hasAny(addr string, terms []string) bool {
	for _, t := range terms {
		if textproc.ContainsTerm(addr, t) {
			return true
		}
	}
	return false
}

func (d *Detector) hasUSStateZip(addr string) bool {
	for _, m := range usStateZipRe.FindAllStringSubmatch(addr, -1) {
		if d.lex.IsUSState(m[1]) {
			return true
		}
	}
	return false
}

func (d *Detector) hasItalianMarkers(addr string) bool {
	for _, tok := range textproc.Tokens(addr) {
		if d.lex.IsStreetType(tok) {
			return true
		}
	}
	if d.lex.FindItalianCity(addr) != "" {
		return true
	}
	return d.hasAny(addr, d.lex.CountryTokens("it")) || itCodeRe.MatchString(addr)
}
