package extract

import (
	"math"
	"strings"

	"github.com/nestscout/nestscout/internal/lexicon"
	"github.com/nestscout/nestscout/internal/listing"
)

// rawListing mirrors the model's enrichment output before clean-up.
type rawListing struct {
	Price           *float64           `json:"price"`
	Currency        *string            `json:"currency"`
	Address         *string            `json:"address"`
	Size            *float64           `json:"size"`
	SizeUnit        *string            `json:"size_unit"`
	Rooms           *float64           `json:"rooms"`
	Bedrooms        *float64           `json:"bedrooms"`
	Bathrooms       *float64           `json:"bathrooms"`
	BedsSingle      *float64           `json:"beds_single"`
	BedsDouble      *float64           `json:"beds_double"`
	Furnishing      *string            `json:"furnishing"`
	CondoFees       *float64           `json:"condo_fees"`
	ListingType     *string            `json:"listing_type"`
	StudentFriendly *bool              `json:"student_friendly"`
	FloorType       *string            `json:"floor_type"`
	NaturalLight    *string            `json:"natural_light"`
	NoiseLevel      *string            `json:"noise_level"`
	RenovationState *string            `json:"renovation_state"`
	PetFriendly     *bool              `json:"pet_friendly"`
	Balcony         *bool              `json:"balcony"`
	VibeTags        []string           `json:"vibe_tags"`
	Evidence        map[string]*string `json:"evidence"`
}

func (r rawListing) metadata() *listing.Metadata {
	m := &listing.Metadata{
		Price:           nonNegative(r.Price),
		Currency:        normalizeCurrency(str(r.Currency)),
		Address:         strings.Join(strings.Fields(str(r.Address)), " "),
		Rooms:           count(r.Rooms),
		Bedrooms:        count(r.Bedrooms),
		Bathrooms:       count(r.Bathrooms),
		BedsSingle:      count(r.BedsSingle),
		BedsDouble:      count(r.BedsDouble),
		Furnishing:      normalizeFurnishing(str(r.Furnishing)),
		CondoFees:       nonNegative(r.CondoFees),
		ListingType:     normalizeListingType(str(r.ListingType)),
		StudentFriendly: true,
		FloorType:       enumOr(str(r.FloorType), listing.ValidFloor, listing.FloorUnknown),
		NaturalLight:    enumOr(str(r.NaturalLight), listing.ValidLevel, listing.LevelMedium),
		NoiseLevel:      enumOr(str(r.NoiseLevel), listing.ValidLevel, listing.LevelMedium),
		RenovationState: enumOr(str(r.RenovationState), listing.ValidRenovation, listing.RenovationOK),
		PetFriendly:     r.PetFriendly,
		Balcony:         r.Balcony,
		VibeTags:        normalizeTags(r.VibeTags),
		Evidence:        make(map[string]string, len(r.Evidence)),
	}
	if r.StudentFriendly != nil {
		m.StudentFriendly = *r.StudentFriendly
	}

	if size := nonNegative(r.Size); size != nil && *size > 0 {
		unit := normalizeUnit(str(r.SizeUnit))
		sqm := *size
		if unit == listing.UnitSqft {
			sqm = math.Round(sqm * listing.SqftToSqm)
		}
		m.SizeSqm = &sqm
		m.SizeUnit = unit
	}

	for k, v := range r.Evidence {
		k = strings.TrimSpace(k)
		if v == nil || k == "" || strings.TrimSpace(*v) == "" {
			continue
		}
		m.Evidence[k] = strings.TrimSpace(*v)
	}
	return m
}

// rawFilters mirrors the model's filter output before clean-up.
type rawFilters struct {
	NoiseLevel       *string  `json:"noise_level"`
	StudentFriendly  *bool    `json:"student_friendly"`
	NaturalLight     *string  `json:"natural_light"`
	FloorType        *string  `json:"floor_type"`
	RenovationState  *string  `json:"renovation_state"`
	PriceMin         *float64 `json:"price_min"`
	PriceMax         *float64 `json:"price_max"`
	SizeSqmMin       *float64 `json:"size_sqm_min"`
	RoomsMin         *float64 `json:"rooms_min"`
	BedroomsMin      *float64 `json:"bedrooms_min"`
	BathroomsMin     *float64 `json:"bathrooms_min"`
	LocationKeywords []string `json:"location_keywords"`
}

func (r rawFilters) filters(lex *lexicon.Lexicon) listing.Filters {
	f := listing.Filters{
		NoiseLevel:      validOrNil(r.NoiseLevel, listing.ValidLevel),
		StudentFriendly: r.StudentFriendly,
		NaturalLight:    validOrNil(r.NaturalLight, listing.ValidLevel),
		FloorType:       validOrNil(r.FloorType, func(v string) bool { return v == listing.FloorWood || v == listing.FloorTile }),
		RenovationState: validOrNil(r.RenovationState, listing.ValidRenovation),
		PriceMin:        nonNegative(r.PriceMin),
		PriceMax:        nonNegative(r.PriceMax),
		SizeSqmMin:      nonNegative(r.SizeSqmMin),
		RoomsMin:        count(r.RoomsMin),
		BedroomsMin:     count(r.BedroomsMin),
		BathroomsMin:    count(r.BathroomsMin),
	}

	seen := make(map[string]bool)
	for _, k := range r.LocationKeywords {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] || lex.IsLandmarkTerm(k) {
			continue
		}
		seen[key] = true
		f.LocationKeywords = append(f.LocationKeywords, k)
	}
	return f
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func nonNegative(p *float64) *float64 {
	if p == nil || *p < 0 || math.IsNaN(*p) {
		return nil
	}
	v := *p
	return &v
}

func count(p *float64) *int {
	if p == nil || *p < 0 {
		return nil
	}
	n := int(math.Round(*p))
	return &n
}

func enumOr(v string, valid func(string) bool, def string) string {
	v = strings.ToLower(v)
	if valid(v) {
		return v
	}
	return def
}

func validOrNil(p *string, valid func(string) bool) *string {
	if p == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*p))
	if !valid(v) {
		return nil
	}
	return &v
}

var currencySymbols = map[string]string{
	"€":     "EUR",
	"euro":  "EUR",
	"euros": "EUR",
	"£":     "GBP",
	"gbp":   "GBP",
	"pound": "GBP",
	"$":     "USD",
	"us$":   "USD",
	"usd":   "USD",
	"chf":   "CHF",
}

// normalizeCurrency maps symbols and names to ISO 4217 codes.
func normalizeCurrency(v string) string {
	if v == "" {
		return ""
	}
	if code, ok := currencySymbols[strings.ToLower(v)]; ok {
		return code
	}
	if len(v) == 3 {
		return strings.ToUpper(v)
	}
	return ""
}

func normalizeUnit(v string) string {
	switch strings.ToLower(strings.ReplaceAll(v, " ", "")) {
	case "sqft", "ft2", "ft²", "squarefeet", "squarefoot", "sf":
		return listing.UnitSqft
	default:
		return listing.UnitSqm
	}
}

func normalizeListingType(v string) string {
	switch strings.ToLower(v) {
	case "sale", "for sale", "buy", "vendita", "in vendita":
		return listing.TypeSale
	default:
		return listing.TypeRent
	}
}

func normalizeFurnishing(v string) string {
	v = strings.ToLower(v)
	switch {
	case v == "":
		return ""
	case strings.Contains(v, "unfurnished"), strings.Contains(v, "non arredato"):
		return "unfurnished"
	case strings.Contains(v, "partial"), strings.Contains(v, "parzial"):
		return "partially furnished"
	case strings.Contains(v, "furnished"), strings.Contains(v, "arredato"):
		return "furnished"
	default:
		return v
	}
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
