package extract

import (
	_ "embed"

	"github.com/nestscout/nestscout/internal/engine"
	"github.com/nestscout/nestscout/internal/llmjson"
	"github.com/nestscout/nestscout/internal/media"
)

var (
	//go:embed listing_schema.json
	listingSchemaDoc []byte
	//go:embed filters_schema.json
	filtersSchemaDoc []byte

	listingSchema = llmjson.MustCompile("listing.json", listingSchemaDoc)
	filtersSchema = llmjson.MustCompile("filters.json", filtersSchemaDoc)
)

const listingPrompt = `You extract structured data from a real-estate listing. Your output must be ONLY a single valid JSON object with the keys below. Do not include any other text, prose, or markdown. Use null for anything the listing does not state.

Hard facts (copy them from the text, do not guess):
- price: monthly rent or sale price as a number, without currency symbols or thousands separators.
- currency: ISO code such as "EUR", "GBP" or "USD".
- address: the most complete street address in the listing, on one line.
- size and size_unit: the floor area and its unit, "sqm" or "sqft".
- rooms, bedrooms, bathrooms, beds_single, beds_double: counts.
- furnishing: "furnished", "partially furnished" or "unfurnished".
- condo_fees: monthly building or condominium fees.
- listing_type: "rent" or "sale".

Inferred attributes (use the text and the photos):
- student_friendly: true unless the listing excludes students.
- floor_type: "wood", "tile" or "unknown".
- natural_light: "low", "medium" or "high".
- noise_level: "low", "medium" or "high".
- renovation_state: "new", "ok" or "old".
- pet_friendly, balcony: true, false, or null when not mentioned.
- vibe_tags: a few short lowercase tags describing the style (e.g. "industrial", "cozy", "bright").
- evidence: an object mapping each inferred attribute to the short snippet that supports it.`

const filtersPrompt = `You turn an apartment search query into filters. Your output must be ONLY a single valid JSON object. Do not include any other text, prose, or markdown. Include only the keys the query actually asks for and omit everything else.

Keys:
- noise_level, natural_light: "low", "medium" or "high".
- floor_type: "wood" or "tile".
- renovation_state: "new", "ok" or "old".
- student_friendly: boolean.
- price_min, price_max, size_sqm_min: numbers.
- rooms_min, bedrooms_min, bathrooms_min: integers.
- location_keywords: neighborhood names the address should contain (e.g. "Navigli", "Isola"). Never put metro stations, universities or landmarks here.`

// buildListingPrompt constructs the chat messages for enrichment mode.
func buildListingPrompt(text string, images []media.Image) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: listingPrompt},
		{Role: "user", Content: "Listing:\n" + text, Images: images},
	}
}

// buildFiltersPrompt constructs the chat messages for filter mode.
func buildFiltersPrompt(query string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: filtersPrompt},
		{Role: "user", Content: query},
	}
}
