// Package rank filters enriched listings against a parsed search and orders
// them by how many of the requested filters they satisfy.
package rank

import (
	"math"
	"sort"
	"strings"

	"github.com/nestscout/nestscout/internal/listing"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Reference is a resolved search point. MaxKm <= 0 disables the radius
// filter; distances are still attached when listings have coordinates.
type Reference struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	MaxKm float64 `json:"max_km"`
	Name  string  `json:"name,omitempty"`
}

// Result is one ranked listing.
type Result struct {
	Listing    listing.Listing   `json:"listing"`
	Metadata   *listing.Metadata `json:"metadata"`
	DistanceKm *float64          `json:"distance_km,omitempty"`
	MatchCount int               `json:"match_count"`
}

// Haversine returns the great-circle distance in km between two points
// given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Rank applies f and ref to candidates and returns the survivors ordered by
// match count, then by saved_at, newest first. A field the listing does not
// know (nil number, unknown floor, empty address) passes its filter without
// counting as a match. Candidates without metadata are dropped.
//
// This includes location keywords: a listing with no address is kept even
// though no address contains a keyword, which is looser than keeping only
// listings whose address matches.
func Rank(candidates []listing.Candidate, f listing.Filters, ref *Reference) []Result {
	keywords := lowerAll(f.LocationKeywords)
	radius := ref != nil && ref.MaxKm > 0

	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		md := c.Metadata
		if md == nil {
			continue
		}
		n, ok := matchFields(md, f)
		if !ok {
			continue
		}

		if len(keywords) > 0 && md.Address != "" {
			if !containsAny(strings.ToLower(md.Address), keywords) {
				continue
			}
			n++
		}

		r := Result{Listing: c.Listing, Metadata: md}
		if ref != nil {
			if md.HasCoordinates() {
				d := Haversine(ref.Lat, ref.Lon, *md.Latitude, *md.Longitude)
				if radius && d > ref.MaxKm {
					continue
				}
				r.DistanceKm = &d
				if radius {
					n++
				}
			} else if radius {
				continue
			}
		}
		r.MatchCount = n
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MatchCount != out[j].MatchCount {
			return out[i].MatchCount > out[j].MatchCount
		}
		return out[i].Listing.SavedAt.After(out[j].Listing.SavedAt)
	})
	return out
}

// matchFields checks the field filters. It returns the number satisfied
// and false as soon as a known value violates one.
func matchFields(md *listing.Metadata, f listing.Filters) (int, bool) {
	n := 0
	check := func(known, ok bool) bool {
		if !known {
			return true
		}
		if ok {
			n++
		}
		return ok
	}

	if f.NoiseLevel != nil && !check(md.NoiseLevel != "", md.NoiseLevel == *f.NoiseLevel) {
		return 0, false
	}
	if f.StudentFriendly != nil && !check(true, md.StudentFriendly == *f.StudentFriendly) {
		return 0, false
	}
	if f.NaturalLight != nil && !check(md.NaturalLight != "", md.NaturalLight == *f.NaturalLight) {
		return 0, false
	}
	if f.FloorType != nil {
		known := md.FloorType != "" && md.FloorType != listing.FloorUnknown
		if !check(known, md.FloorType == *f.FloorType) {
			return 0, false
		}
	}
	if f.RenovationState != nil && !check(md.RenovationState != "", md.RenovationState == *f.RenovationState) {
		return 0, false
	}
	if f.PriceMin != nil && !check(md.Price != nil, md.Price != nil && *md.Price >= *f.PriceMin) {
		return 0, false
	}
	if f.PriceMax != nil && !check(md.Price != nil, md.Price != nil && *md.Price <= *f.PriceMax) {
		return 0, false
	}
	if f.SizeSqmMin != nil && !check(md.SizeSqm != nil, md.SizeSqm != nil && *md.SizeSqm >= *f.SizeSqmMin) {
		return 0, false
	}
	if !intMin(check, md.Rooms, f.RoomsMin) ||
		!intMin(check, md.Bedrooms, f.BedroomsMin) ||
		!intMin(check, md.Bathrooms, f.BathroomsMin) {
		return 0, false
	}
	return n, true
}

func intMin(check func(known, ok bool) bool, v, want *int) bool {
	if want == nil {
		return true
	}
	return check(v != nil, v != nil && *v >= *want)
}

func lowerAll(ss []string) []string {
	var out []string
	for _, s := range ss {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
