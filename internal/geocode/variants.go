package geocode

import (
	"regexp"
	"strings"

	"github.com/nestscout/nestscout/internal/lexicon"
	"github.com/nestscout/nestscout/internal/textproc"
)

// variantStrategy produces zero or more query strings for an input.
type variantStrategy func(v *Variants, input string) []string

// Variants generates ordered geocoding query variants.
type Variants struct {
	lex      *lexicon.Lexicon
	detector *Detector
}

// NewVariants creates a variant generator over lex (Default when nil).
func NewVariants(lex *lexicon.Lexicon) *Variants {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Variants{lex: lex, detector: NewDetector(lex)}
}

// addressStrategies holds the ordered strategy list per country format.
// Order is precedence: earlier variants are looked up first.
var addressStrategies = map[Country][]variantStrategy{
	CountryUS: {
		asIs,
		(*Variants).usWithoutUnit,
		(*Variants).usDecomposed,
	},
	CountryUK: {
		asIs,
		(*Variants).ukPostcode,
		(*Variants).ukCityPostcode,
	},
	CountryIT: {
		asIs,
		(*Variants).itReordered,
		(*Variants).itWithoutNeighborhood,
		(*Variants).itStreetCity,
	},
	CountryOther: {
		asIs,
	},
}

// Address returns the ordered, deduplicated query variants for an address
// of the given country format.
func (v *Variants) Address(country Country, addr string) []string {
	addr = cleanSpaces(addr)
	if addr == "" {
		return nil
	}
	strategies, ok := addressStrategies[country]
	if !ok {
		strategies = addressStrategies[CountryOther]
	}
	var out []string
	for _, s := range strategies {
		out = append(out, s(v, addr)...)
	}
	return dedupe(out)
}

func asIs(_ *Variants, input string) []string { return []string{input} }

// --- US ---

var (
	usUnitRe    = regexp.MustCompile(`(?i)(?:,\s*)?\b(?:apt|apartment|unit|suite|ste|floor|rm|room)\b\.?\s*#?\s*[\w-]+|\s*#\s*[\w-]+`)
	usStateTail = regexp.MustCompile(`^([A-Za-z]{2})(?:\s+(\d{5}(?:-\d{4})?))?$`)
)

func (v *Variants) usWithoutUnit(addr string) []string {
	stripped := cleanCommas(usUnitRe.ReplaceAllString(addr, ""))
	if stripped == "" {
		return nil
	}
	return []string{stripped}
}

// usDecomposed splits "street, city, ST zip" into progressively coarser queries.
func (v *Variants) usDecomposed(addr string) []string {
	parts := v.splitDropCountry(cleanCommas(usUnitRe.ReplaceAllString(addr, "")), "us")

	stateIdx := -1
	var state, zip string
	for i := len(parts) - 1; i >= 0; i-- {
		m := usStateTail.FindStringSubmatch(parts[i])
		if m != nil && v.lex.IsUSState(m[1]) {
			stateIdx, state, zip = i, strings.ToUpper(m[1]), m[2]
			break
		}
		// "Boston MA 02110" without a comma before the state.
		if fields := strings.Fields(parts[i]); len(fields) >= 2 {
			tail := strings.Join(fields[len(fields)-2:], " ")
			if mm := usStateTail.FindStringSubmatch(tail); mm != nil && mm[2] != "" && v.lex.IsUSState(mm[1]) {
				parts = append(parts[:i:i], append([]string{strings.Join(fields[:len(fields)-2], " "), tail}, parts[i+1:]...)...)
				stateIdx, state, zip = i+1, strings.ToUpper(mm[1]), mm[2]
				break
			}
		}
	}
	if stateIdx < 1 {
		return nil
	}

	city := parts[stateIdx-1]
	var out []string
	if stateIdx >= 2 {
		street := parts[0]
		if zip != "" {
			out = append(out, street+", "+city+", "+state+" "+zip)
		}
		out = append(out, street+", "+city+", "+state)
	}
	out = append(out, city+", "+state)
	return out
}

// --- UK ---

func (v *Variants) ukPostcode(addr string) []string {
	pc := ukPostcode(addr)
	if pc == "" {
		return nil
	}
	return []string{pc}
}

func (v *Variants) ukCityPostcode(addr string) []string {
	pc := ukPostcode(addr)
	if pc == "" {
		return nil
	}
	parts := v.splitDropCountry(addr, "uk")
	for i, p := range parts {
		if !ukPostcodeRe.MatchString(p) {
			continue
		}
		// Postcode in its own segment: the city is the previous one.
		// "London SW1A 1AA": the city precedes the postcode in the segment.
		city := strings.TrimSpace(ukPostcodeRe.ReplaceAllString(p, ""))
		if city == "" && i > 0 {
			city = parts[i-1]
		}
		if city == "" {
			return nil
		}
		return []string{city + ", " + pc}
	}
	return nil
}

// ukPostcode returns the normalized postcode ("SW1A 1AA") found in addr.
func ukPostcode(addr string) string {
	m := ukPostcodeRe.FindStringSubmatch(addr)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1]) + " " + strings.ToUpper(m[2])
}

// --- IT ---

var (
	itNumberRe     = regexp.MustCompile(`^\d+[A-Za-z]?(?:/[A-Za-z0-9]+)?$`)
	itCAPRe        = regexp.MustCompile(`\b\d{5}\b`)
	itParenRe      = regexp.MustCompile(`\s*\([^)]*\)`)
	itDashSuffixRe = regexp.MustCompile(`\s+[-–]\s+.*$`)
)

// itStreet finds the street segment of an Italian address and returns it in
// canonical "<type> <name> <number>" order.
func (v *Variants) itStreet(addr string) string {
	for _, p := range v.splitDropCountry(addr, "it") {
		if s := v.canonicalStreet(p); s != "" {
			return s
		}
	}
	return ""
}

// canonicalStreet reorders "12 Via Roma" or "Roma Via 12" into "Via Roma 12".
// It returns "" when seg contains no street type.
func (v *Variants) canonicalStreet(seg string) string {
	fields := strings.Fields(itParenRe.ReplaceAllString(seg, ""))
	typeIdx := -1
	for i, f := range fields {
		if v.lex.IsStreetType(strings.Trim(f, ".,")) {
			typeIdx = i
			break
		}
	}
	if typeIdx == -1 {
		return ""
	}
	var number string
	var name []string
	for i, f := range fields {
		if i == typeIdx {
			continue
		}
		if number == "" && itNumberRe.MatchString(strings.Trim(f, ",")) {
			number = strings.Trim(f, ",")
			continue
		}
		name = append(name, f)
	}
	if len(name) == 0 {
		return ""
	}
	out := fields[typeIdx] + " " + strings.Join(name, " ")
	if number != "" {
		out += " " + number
	}
	return out
}

func (v *Variants) itReordered(addr string) []string {
	street := v.itStreet(addr)
	if street == "" {
		return nil
	}
	parts := v.splitDropCountry(addr, "it")
	for i, p := range parts {
		if v.canonicalStreet(p) != "" {
			parts[i] = street
			break
		}
	}
	return []string{strings.Join(parts, ", ")}
}

// itWithoutNeighborhood drops qualifiers such as "zona Navigli",
// "(Porta Romana)" or "- Isola" from the address.
func (v *Variants) itWithoutNeighborhood(addr string) []string {
	var kept []string
	for _, p := range splitComma(addr) {
		p = strings.TrimSpace(itDashSuffixRe.ReplaceAllString(itParenRe.ReplaceAllString(p, ""), ""))
		if p == "" || v.isNeighborhoodSegment(p) {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return nil
	}
	return []string{strings.Join(kept, ", ")}
}

func (v *Variants) isNeighborhoodSegment(seg string) bool {
	toks := textproc.Tokens(seg)
	if len(toks) == 0 {
		return false
	}
	for _, m := range v.lex.NeighborhoodMarkers {
		if toks[0] == textproc.Fold(m) {
			return true
		}
	}
	return false
}

func (v *Variants) itStreetCity(addr string) []string {
	street := v.itStreet(addr)
	city := v.itCity(addr)
	if street == "" || city == "" {
		return nil
	}
	return []string{street + ", " + city, street + ", " + city + ", Italy"}
}

// itCity returns the city segment of an Italian address: the text next to a
// 5-digit CAP ("20122 Milano"), or a segment naming a known Italian city.
// The street segment is never taken as the city ("Via Roma" is not Rome).
func (v *Variants) itCity(addr string) string {
	parts := v.splitDropCountry(addr, "it")
	for _, p := range parts {
		if v.canonicalStreet(p) != "" || !itCAPRe.MatchString(p) {
			continue
		}
		if c := strings.Trim(itCAPRe.ReplaceAllString(p, ""), " ()"); c != "" {
			return c
		}
	}
	for _, p := range parts {
		if v.canonicalStreet(p) != "" || v.isNeighborhoodSegment(p) {
			continue
		}
		if v.lex.FindItalianCity(p) != "" {
			return strings.Trim(itParenRe.ReplaceAllString(p, ""), " ")
		}
	}
	return ""
}

// --- helpers ---

// splitDropCountry splits addr on commas and removes segments that only name
// the country.
func (v *Variants) splitDropCountry(addr, code string) []string {
	var out []string
	for _, p := range splitComma(addr) {
		isCountry := false
		for _, t := range v.lex.CountryTokens(code) {
			if textproc.Fold(p) == textproc.Fold(t) {
				isCountry = true
				break
			}
		}
		if code == "it" && p == "IT" {
			isCountry = true
		}
		if !isCountry {
			out = append(out, p)
		}
	}
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cleanSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanCommas(s string) string {
	return strings.Join(splitComma(cleanSpaces(s)), ", ")
}

// dedupe removes case-insensitive duplicates, keeping first occurrences.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = cleanSpaces(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
