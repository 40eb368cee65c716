package geocode

import (
	"strings"

	"github.com/nestscout/nestscout/internal/lexicon"
	"github.com/nestscout/nestscout/internal/textproc"
)

// phraseStrategies are applied in order to a colloquial location phrase.
var phraseStrategies = []variantStrategy{
	(*Variants).universityVariants,
	(*Variants).stationVariants,
	asIs,
	(*Variants).strippedVariant,
}

// Phrase returns the ordered, deduplicated query variants for a colloquial
// location phrase such as "Susa metro station Milan".
func (v *Variants) Phrase(phrase string) []string {
	phrase = cleanSpaces(phrase)
	if phrase == "" {
		return nil
	}
	var out []string
	for _, s := range phraseStrategies {
		out = append(out, s(v, phrase)...)
	}
	return dedupe(out)
}

func (v *Variants) universityVariants(phrase string) []string {
	u, ok := v.lex.FindUniversity(phrase)
	if !ok {
		return nil
	}
	city := u.City
	if c := v.lex.FindCity(phrase); c != "" {
		city = titleWords(c)
	}

	// Campuses named in the phrase go first.
	campuses := make([]string, 0, len(u.Campuses))
	for _, c := range u.Campuses {
		if textproc.ContainsTerm(phrase, c) {
			campuses = append(campuses, c)
		}
	}
	for _, c := range u.Campuses {
		if !textproc.ContainsTerm(phrase, c) {
			campuses = append(campuses, c)
		}
	}

	out := make([]string, 0, len(campuses)+1)
	for _, c := range campuses {
		out = append(out, joinNonEmpty(u.Name, c, city))
	}
	return append(out, joinNonEmpty(u.Name, city))
}

func (v *Variants) stationVariants(phrase string) []string {
	if !v.lex.HasStationToken(phrase) {
		return nil
	}
	name := strings.Join(v.properNouns(phrase), " ")
	if name == "" {
		return nil
	}
	city := titleWords(v.lex.FindCity(phrase))
	return []string{
		joinNonEmpty("Piazzale", name, city),
		joinNonEmpty("Piazza", name, city),
		joinNonEmpty(name, city, "metro"),
		joinNonEmpty("Via", name, city),
	}
}

// strippedVariant keeps the proper nouns and the city of the phrase.
func (v *Variants) strippedVariant(phrase string) []string {
	var kept []string
	for _, f := range strings.Fields(phrase) {
		w := trimPunct(f)
		if w == "" || v.lex.IsStopword(w) || v.lex.IsStationToken(w) {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return nil
	}
	return []string{strings.Join(kept, " ")}
}

// properNouns returns the words of phrase that are neither stopwords,
// station markers, location keywords nor city names.
func (v *Variants) properNouns(phrase string) []string {
	city := textproc.Tokens(v.lex.FindCity(phrase))
	isCity := make(map[string]bool, len(city))
	for _, c := range city {
		isCity[c] = true
	}
	var out []string
	for _, f := range strings.Fields(phrase) {
		w := trimPunct(f)
		if w == "" || v.lex.IsStopword(w) || v.lex.IsStationToken(w) || isCity[textproc.Fold(w)] || isLocationKeyword(v.lex, w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func isLocationKeyword(lex *lexicon.Lexicon, w string) bool {
	f := textproc.Fold(w)
	for _, k := range lex.LocationKeywords {
		if textproc.Fold(k) == f {
			return true
		}
	}
	return false
}

func trimPunct(s string) string {
	return strings.Trim(s, ",.;:!?\"'()")
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// titleWords upper-cases the first letter of each word ("new york" -> "New York").
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[:1])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
