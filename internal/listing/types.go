package listing

import "time"

// Listing is one saved real-estate ad.
type Listing struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	CatalogID       string    `json:"catalog_id,omitempty"`
	SourceURL       string    `json:"source_url"`
	RawContent      string    `json:"raw_content"`
	Images          []string  `json:"images"`
	Status          Status    `json:"enrichment_status"`
	EnrichmentError string    `json:"enrichment_error,omitempty"`
	RetryCount      int       `json:"retry_count"`
	SavedAt         time.Time `json:"saved_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MaxImages is the number of image URLs kept per listing and sent to inference.
const MaxImages = 2

// Closed domains of the inferred attributes.
const (
	TypeRent = "rent"
	TypeSale = "sale"

	FloorWood    = "wood"
	FloorTile    = "tile"
	FloorUnknown = "unknown"

	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"

	RenovationNew = "new"
	RenovationOK  = "ok"
	RenovationOld = "old"

	UnitSqm  = "sqm"
	UnitSqft = "sqft"
)

// SqftToSqm converts square feet to square meters.
const SqftToSqm = 0.092903

// Metadata holds the structured facts and inferred attributes of a listing.
// SizeSqm is always in square meters; SizeUnit keeps the unit the ad used.
type Metadata struct {
	ListingID       string            `json:"listing_id"`
	Price           *float64          `json:"price"`
	Currency        string            `json:"currency,omitempty"`
	Address         string            `json:"address,omitempty"`
	Latitude        *float64          `json:"latitude"`
	Longitude       *float64          `json:"longitude"`
	SizeSqm         *float64          `json:"size_sqm"`
	SizeUnit        string            `json:"size_unit,omitempty"`
	Rooms           *int              `json:"rooms"`
	Bedrooms        *int              `json:"bedrooms"`
	Bathrooms       *int              `json:"bathrooms"`
	BedsSingle      *int              `json:"beds_single"`
	BedsDouble      *int              `json:"beds_double"`
	Furnishing      string            `json:"furnishing,omitempty"`
	CondoFees       *float64          `json:"condo_fees"`
	ListingType     string            `json:"listing_type"`
	StudentFriendly bool              `json:"student_friendly"`
	FloorType       string            `json:"floor_type"`
	NaturalLight    string            `json:"natural_light"`
	NoiseLevel      string            `json:"noise_level"`
	RenovationState string            `json:"renovation_state"`
	PetFriendly     *bool             `json:"pet_friendly"`
	Balcony         *bool             `json:"balcony"`
	VibeTags        []string          `json:"vibe_tags"`
	Evidence        map[string]string `json:"evidence"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// HasCoordinates reports whether geocoding produced a point for the listing.
func (m *Metadata) HasCoordinates() bool {
	return m != nil && m.Latitude != nil && m.Longitude != nil
}

// Comparison is a listing's match score against one user's dream apartment description.
type Comparison struct {
	ListingID string    `json:"listing_id"`
	UserID    string    `json:"user_id"`
	Score     int       `json:"match_score"`
	Summary   string    `json:"comparison_summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Preference is a user's dream apartment description.
type Preference struct {
	UserID      string    `json:"user_id"`
	Description string    `json:"dream_apartment_description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Candidate pairs a listing with its metadata (nil when never enriched).
type Candidate struct {
	Listing  Listing
	Metadata *Metadata
}

// Filters is the sparse filter object parsed from a search query.
// A nil field means the query did not ask for it.
type Filters struct {
	NoiseLevel       *string  `json:"noise_level,omitempty"`
	StudentFriendly  *bool    `json:"student_friendly,omitempty"`
	NaturalLight     *string  `json:"natural_light,omitempty"`
	FloorType        *string  `json:"floor_type,omitempty"`
	RenovationState  *string  `json:"renovation_state,omitempty"`
	PriceMin         *float64 `json:"price_min,omitempty"`
	PriceMax         *float64 `json:"price_max,omitempty"`
	SizeSqmMin       *float64 `json:"size_sqm_min,omitempty"`
	RoomsMin         *int     `json:"rooms_min,omitempty"`
	BedroomsMin      *int     `json:"bedrooms_min,omitempty"`
	BathroomsMin     *int     `json:"bathrooms_min,omitempty"`
	LocationKeywords []string `json:"location_keywords,omitempty"`
}

// Count returns the number of filters the query requested.
func (f Filters) Count() int {
	n := 0
	for _, set := range []bool{
		f.NoiseLevel != nil, f.StudentFriendly != nil, f.NaturalLight != nil,
		f.FloorType != nil, f.RenovationState != nil, f.PriceMin != nil,
		f.PriceMax != nil, f.SizeSqmMin != nil, f.RoomsMin != nil,
		f.BedroomsMin != nil, f.BathroomsMin != nil, len(f.LocationKeywords) > 0,
	} {
		if set {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no filter was requested.
func (f Filters) IsEmpty() bool { return f.Count() == 0 }

// ValidLevel reports whether v is one of low, medium, high.
func ValidLevel(v string) bool {
	return v == LevelLow || v == LevelMedium || v == LevelHigh
}

// ValidFloor reports whether v is a known floor type.
func ValidFloor(v string) bool {
	return v == FloorWood || v == FloorTile || v == FloorUnknown
}

// ValidRenovation reports whether v is a known renovation state.
func ValidRenovation(v string) bool {
	return v == RenovationNew || v == RenovationOK || v == RenovationOld
}
