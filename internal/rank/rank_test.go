package rank

import (
	"math"
	"testing"
	"time"

	"github.com/nestscout/nestscout/internal/listing"
)

func ptr[T any](v T) *T { return &v }

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func candidate(id string, age time.Duration, md *listing.Metadata) listing.Candidate {
	if md != nil {
		md.ListingID = id
	}
	return listing.Candidate{
		Listing:  listing.Listing{ID: id, Status: listing.StatusDone, SavedAt: base.Add(-age)},
		Metadata: md,
	}
}

func ids(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Listing.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"same point", 45.4642, 9.19, 45.4642, 9.19, 0},
		{"one degree of latitude", 0, 0, 1, 0, EarthRadiusKm * math.Pi / 180},
		{"antipodes", 0, 0, 0, 180, EarthRadiusKm * math.Pi},
	}
	for _, tt := range tests {
		got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
		if math.Abs(got-tt.want) > 0.001 {
			t.Errorf("%s: Haversine = %.4f, want %.4f", tt.name, got, tt.want)
		}
	}

	// Duomo to Politecnico (Leonardo campus), roughly 3.3 km.
	if d := Haversine(45.4642, 9.1900, 45.4781, 9.2277); d < 3.1 || d > 3.5 {
		t.Errorf("Duomo to Politecnico = %.2f km, want about 3.3", d)
	}
}

func TestRank_NoFiltersOrdersByRecency(t *testing.T) {
	cs := []listing.Candidate{
		candidate("old", 3*time.Hour, &listing.Metadata{}),
		candidate("new", time.Hour, &listing.Metadata{}),
		candidate("raw", 0, nil),
		candidate("mid", 2*time.Hour, &listing.Metadata{}),
	}
	got := Rank(cs, listing.Filters{}, nil)
	if want := []string{"new", "mid", "old"}; !equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	for _, r := range got {
		if r.MatchCount != 0 || r.DistanceKm != nil {
			t.Errorf("%s: match=%d distance=%v, want 0/nil", r.Listing.ID, r.MatchCount, r.DistanceKm)
		}
	}
}

func TestRank_FieldFilters(t *testing.T) {
	cs := []listing.Candidate{
		candidate("quiet-cheap", time.Hour, &listing.Metadata{NoiseLevel: "low", Price: ptr(900.0), Bedrooms: ptr(2)}),
		candidate("loud", 0, &listing.Metadata{NoiseLevel: "high", Price: ptr(800.0), Bedrooms: ptr(2)}),
		candidate("pricey", 0, &listing.Metadata{NoiseLevel: "low", Price: ptr(1500.0), Bedrooms: ptr(3)}),
		candidate("no-price", 2*time.Hour, &listing.Metadata{NoiseLevel: "low", Bedrooms: ptr(2)}),
		candidate("one-bed", 0, &listing.Metadata{NoiseLevel: "low", Price: ptr(700.0), Bedrooms: ptr(1)}),
	}
	f := listing.Filters{NoiseLevel: ptr("low"), PriceMax: ptr(1000.0), BedroomsMin: ptr(2)}

	got := Rank(cs, f, nil)
	if want := []string{"quiet-cheap", "no-price"}; !equal(ids(got), want) {
		t.Fatalf("order = %v, want %v", ids(got), want)
	}
	if got[0].MatchCount != 3 {
		t.Errorf("quiet-cheap match = %d, want 3", got[0].MatchCount)
	}
	if got[1].MatchCount != 2 {
		t.Errorf("no-price match = %d, want 2 (unknown price does not count)", got[1].MatchCount)
	}
}

func TestRank_UnknownFloorPasses(t *testing.T) {
	cs := []listing.Candidate{
		candidate("wood", time.Hour, &listing.Metadata{FloorType: listing.FloorWood}),
		candidate("unknown", 0, &listing.Metadata{FloorType: listing.FloorUnknown}),
		candidate("tile", 0, &listing.Metadata{FloorType: listing.FloorTile}),
	}
	got := Rank(cs, listing.Filters{FloorType: ptr(listing.FloorWood)}, nil)
	if want := []string{"wood", "unknown"}; !equal(ids(got), want) {
		t.Errorf("order = %v, want %v (match count before recency)", ids(got), want)
	}
}

func TestRank_StudentFriendlyAndThresholds(t *testing.T) {
	cs := []listing.Candidate{
		candidate("a", 0, &listing.Metadata{StudentFriendly: true, SizeSqm: ptr(55.0), Rooms: ptr(2), Bathrooms: ptr(1)}),
		candidate("b", 0, &listing.Metadata{StudentFriendly: false, SizeSqm: ptr(80.0), Rooms: ptr(3), Bathrooms: ptr(2)}),
		candidate("c", 0, &listing.Metadata{StudentFriendly: true, SizeSqm: ptr(40.0), Rooms: ptr(2), Bathrooms: ptr(1)}),
	}
	f := listing.Filters{StudentFriendly: ptr(true), SizeSqmMin: ptr(50.0), RoomsMin: ptr(2), BathroomsMin: ptr(1)}
	got := Rank(cs, f, nil)
	if want := []string{"a"}; !equal(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestRank_LocationKeywords(t *testing.T) {
	cs := []listing.Candidate{
		candidate("navigli", 0, &listing.Metadata{Address: "Ripa di Porta Ticinese 5, Navigli, Milano"}),
		candidate("isola", 0, &listing.Metadata{Address: "Via Borsieri 3, Isola, Milano"}),
		candidate("nolo", 0, &listing.Metadata{Address: "Via Padova 20, Milano"}),
		candidate("no-address", time.Hour, &listing.Metadata{}),
	}
	got := Rank(cs, listing.Filters{LocationKeywords: []string{" NAVIGLI", "isola"}}, nil)
	if want := []string{"navigli", "isola", "no-address"}; !equal(ids(got), want) {
		t.Fatalf("ids = %v, want %v", ids(got), want)
	}
	if got[0].MatchCount != 1 || got[2].MatchCount != 0 {
		t.Errorf("match counts = %d/%d, want 1/0", got[0].MatchCount, got[2].MatchCount)
	}
}

func TestRank_Distance(t *testing.T) {
	duomo := &Reference{Lat: 45.4642, Lon: 9.1900, MaxKm: 1.5}
	cs := []listing.Candidate{
		// ~0.5 km north of the reference
		candidate("near", time.Hour, &listing.Metadata{Latitude: ptr(45.4687), Longitude: ptr(9.1900)}),
		// ~3.3 km away
		candidate("far", 0, &listing.Metadata{Latitude: ptr(45.4781), Longitude: ptr(9.2277)}),
		candidate("unplaced", 0, &listing.Metadata{}),
	}

	got := Rank(cs, listing.Filters{}, duomo)
	if want := []string{"near"}; !equal(ids(got), want) {
		t.Fatalf("ids = %v, want %v", ids(got), want)
	}
	if d := got[0].DistanceKm; d == nil || *d < 0.4 || *d > 0.6 {
		t.Errorf("distance = %v, want about 0.5", d)
	}
	if got[0].MatchCount != 1 {
		t.Errorf("match = %d, want 1 for the radius", got[0].MatchCount)
	}

	// Without a radius, every listing survives and placed ones get a distance.
	got = Rank(cs, listing.Filters{}, &Reference{Lat: duomo.Lat, Lon: duomo.Lon})
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for _, r := range got {
		if (r.DistanceKm != nil) != r.Metadata.HasCoordinates() {
			t.Errorf("%s: distance = %v", r.Listing.ID, r.DistanceKm)
		}
		if r.MatchCount != 0 {
			t.Errorf("%s: match = %d, want 0", r.Listing.ID, r.MatchCount)
		}
	}
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	cs := []listing.Candidate{
		candidate("first", 0, &listing.Metadata{}),
		candidate("second", 0, &listing.Metadata{}),
	}
	got := Rank(cs, listing.Filters{}, nil)
	if want := []string{"first", "second"}; !equal(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}
