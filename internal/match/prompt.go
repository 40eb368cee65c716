package match

import (
	"fmt"
	"strings"

	"github.com/nestscout/nestscout/internal/engine"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/media"
)

const rubricPrompt = `You compare an apartment listing with a renter's description of their dream apartment. Your output must be ONLY a single valid JSON object: {"score": <integer 0-100>, "summary": "<2-3 sentences>"}. Do not include any other text, prose, or markdown.

Scoring rubric:
- 0-20: poor match, contradicts most of what the renter wants.
- 21-40: below average, a few points in common but key requirements missed.
- 41-60: average, meets some requirements with notable compromises.
- 61-80: good, meets most requirements.
- 81-100: excellent, close to the dream apartment.

The summary explains the score in 2-3 sentences, naming the strongest match and the biggest gap.`

// buildPrompt constructs the chat messages for one comparison.
func buildPrompt(description, content string, md *listing.Metadata, images []media.Image) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Dream apartment]\n%s\n\n", strings.TrimSpace(description))
	fmt.Fprintf(&sb, "[Location]\n%s\n\n", locationSummary(md))
	fmt.Fprintf(&sb, "[Facts]\n%s\n\n", factSummary(md))
	fmt.Fprintf(&sb, "[Listing]\n%s", content)

	return []engine.Message{
		{Role: "system", Content: rubricPrompt},
		{Role: "user", Content: sb.String(), Images: images},
	}
}

func locationSummary(md *listing.Metadata) string {
	if md == nil || md.Address == "" {
		return "unknown"
	}
	if md.HasCoordinates() {
		return fmt.Sprintf("%s (%.5f, %.5f)", md.Address, *md.Latitude, *md.Longitude)
	}
	return md.Address
}

func factSummary(md *listing.Metadata) string {
	if md == nil {
		return "none extracted"
	}
	var facts []string
	if md.Price != nil {
		facts = append(facts, fmt.Sprintf("price: %.0f %s (%s)", *md.Price, md.Currency, md.ListingType))
	}
	if md.SizeSqm != nil {
		facts = append(facts, fmt.Sprintf("size: %.0f sqm", *md.SizeSqm))
	}
	if md.Rooms != nil {
		facts = append(facts, fmt.Sprintf("rooms: %d", *md.Rooms))
	}
	if md.Bedrooms != nil {
		facts = append(facts, fmt.Sprintf("bedrooms: %d", *md.Bedrooms))
	}
	if md.Bathrooms != nil {
		facts = append(facts, fmt.Sprintf("bathrooms: %d", *md.Bathrooms))
	}
	if md.Furnishing != "" {
		facts = append(facts, "furnishing: "+md.Furnishing)
	}
	facts = append(facts,
		"natural light: "+md.NaturalLight,
		"noise: "+md.NoiseLevel,
		"floor: "+md.FloorType,
		"renovation: "+md.RenovationState,
	)
	if md.Balcony != nil {
		facts = append(facts, fmt.Sprintf("balcony: %t", *md.Balcony))
	}
	if md.PetFriendly != nil {
		facts = append(facts, fmt.Sprintf("pets allowed: %t", *md.PetFriendly))
	}
	if len(md.VibeTags) > 0 {
		facts = append(facts, "vibe: "+strings.Join(md.VibeTags, ", "))
	}
	return strings.Join(facts, "\n")
}
