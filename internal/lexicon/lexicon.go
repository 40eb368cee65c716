// Package lexicon holds the token lists that drive country detection,
// phrase geocoding and location-phrase detection. A default list is
// embedded; deployments can point geocode.lexicon_path at their own file.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/nestscout/nestscout/internal/textproc"
	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultYAML []byte

// University is a recognized university with its campuses.
type University struct {
	Name     string   `yaml:"name"`
	Tokens   []string `yaml:"tokens"`
	Campuses []string `yaml:"campuses"`
	City     string   `yaml:"city"`
}

// Lexicon is the parsed gazetteer.
type Lexicon struct {
	Stopwords           []string            `yaml:"stopwords"`
	Countries           map[string][]string `yaml:"countries"`
	UKCities            []string            `yaml:"uk_cities"`
	USStates            []string            `yaml:"us_states"`
	ITStreetTypes       []string            `yaml:"it_street_types"`
	ITCities            []string            `yaml:"it_cities"`
	Cities              []string            `yaml:"cities"`
	NeighborhoodMarkers []string            `yaml:"neighborhood_markers"`
	Universities        []University        `yaml:"universities"`
	StationTokens       []string            `yaml:"station_tokens"`
	LandmarkTokens      []string            `yaml:"landmark_tokens"`
	LocationKeywords    []string            `yaml:"location_keywords"`

	stop     map[string]bool
	streets  map[string]bool
	stations map[string]bool
	states   map[string]bool
}

var (
	defaultOnce sync.Once
	defaultLex  *Lexicon
)

// Default returns the embedded lexicon. It panics if the embedded file is
// malformed, which is a build defect.
func Default() *Lexicon {
	defaultOnce.Do(func() {
		lx, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded lexicon: %v", err))
		}
		defaultLex = lx
	})
	return defaultLex
}

// Load reads a lexicon from a YAML file. An empty path returns Default().
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML lexicon and builds its lookup sets.
func Parse(data []byte) (*Lexicon, error) {
	var lx Lexicon
	if err := yaml.Unmarshal(data, &lx); err != nil {
		return nil, fmt.Errorf("parsing lexicon: %w", err)
	}
	if len(lx.Stopwords) == 0 || len(lx.ITStreetTypes) == 0 {
		return nil, fmt.Errorf("parsing lexicon: stopwords and it_street_types are required")
	}
	lx.stop = foldSet(lx.Stopwords)
	lx.streets = foldSet(lx.ITStreetTypes)
	lx.stations = foldSet(lx.StationTokens)
	lx.states = make(map[string]bool, len(lx.USStates))
	for _, s := range lx.USStates {
		lx.states[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return &lx, nil
}

func foldSet(terms []string) map[string]bool {
	m := make(map[string]bool, len(terms))
	for _, t := range terms {
		m[textproc.Fold(strings.TrimSpace(t))] = true
	}
	return m
}

// IsStopword reports whether the folded token is a stopword.
func (lx *Lexicon) IsStopword(tok string) bool { return lx.stop[textproc.Fold(tok)] }

// IsStreetType reports whether tok is an Italian street type (via, piazza, ...).
func (lx *Lexicon) IsStreetType(tok string) bool { return lx.streets[textproc.Fold(tok)] }

// IsStationToken reports whether tok marks a metro or train station.
func (lx *Lexicon) IsStationToken(tok string) bool { return lx.stations[textproc.Fold(tok)] }

// IsUSState reports whether s is a two-letter US state abbreviation.
func (lx *Lexicon) IsUSState(s string) bool { return lx.states[strings.ToUpper(s)] }

// CountryTokens returns the tokens that name the given country code (uk, us, it).
func (lx *Lexicon) CountryTokens(code string) []string { return lx.Countries[code] }

// FindCity returns the last known city mentioned in text, in its lexicon
// spelling, or "" when none is mentioned.
func (lx *Lexicon) FindCity(text string) string {
	return lastTerm(text, lx.Cities)
}

// FindUKCity returns the last UK city mentioned in text.
func (lx *Lexicon) FindUKCity(text string) string {
	return lastTerm(text, lx.UKCities)
}

// FindItalianCity returns the last Italian city mentioned in text.
func (lx *Lexicon) FindItalianCity(text string) string {
	return lastTerm(text, lx.ITCities)
}

// FindUniversity returns the first university whose token appears in text.
func (lx *Lexicon) FindUniversity(text string) (University, bool) {
	for _, u := range lx.Universities {
		for _, tok := range u.Tokens {
			if textproc.ContainsTerm(text, tok) {
				return u, true
			}
		}
	}
	return University{}, false
}

// HasStationToken reports whether any token of text marks a station.
func (lx *Lexicon) HasStationToken(text string) bool {
	for _, tok := range textproc.Tokens(text) {
		if lx.stations[tok] {
			return true
		}
	}
	return false
}

// IsLandmarkTerm reports whether term names a station, landmark or
// university rather than a neighborhood.
func (lx *Lexicon) IsLandmarkTerm(term string) bool {
	if lx.HasStationToken(term) {
		return true
	}
	if _, ok := lx.FindUniversity(term); ok {
		return true
	}
	for _, l := range lx.LandmarkTokens {
		if textproc.ContainsTerm(term, l) {
			return true
		}
	}
	return false
}

// lastTerm returns the term from terms whose match ends latest in text.
func lastTerm(text string, terms []string) string {
	words := textproc.Tokens(text)
	best, bestEnd := "", -1
	for _, term := range terms {
		tt := textproc.Tokens(term)
		if len(tt) == 0 {
			continue
		}
		for i := 0; i+len(tt) <= len(words); i++ {
			match := true
			for j := range tt {
				if words[i+j] != tt[j] {
					match = false
					break
				}
			}
			if match && i+len(tt) > bestEnd {
				best, bestEnd = term, i+len(tt)
			}
		}
	}
	return best
}
