package geocode

import (
	"reflect"
	"strings"
	"testing"
)

func TestDetectCountry(t *testing.T) {
	tests := []struct {
		addr string
		want Country
	}{
		{"10 Downing Street, London SW1A 2AA", CountryUK},
		{"Flat 3, 22 Baker St, Manchester", CountryUK},
		{"123 Main St, Boston, MA 02110", CountryUS},
		{"55 Water St Unit B2 3rd Fl, Brooklyn, NY 11201", CountryUS},
		{"400 E Adams St Suite A1 2nd Floor, Springfield, IL 62701", CountryUS},
		{"Flat 2, 14 Constitution St, EH6 7BS", CountryUK},
		{"500 Market Street, San Francisco, USA", CountryUS},
		{"Via Roma 12, Milano", CountryIT},
		{"Corso Buenos Aires 5", CountryIT},
		{"Appartamento a Torino", CountryIT},
		{"Rua Augusta 100, Lisboa", CountryOther},
		{"", CountryOther},
	}
	for _, tt := range tests {
		if got := DetectCountry(tt.addr); got != tt.want {
			t.Errorf("DetectCountry(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestAddressVariants_USUnitIsNotAPostcode(t *testing.T) {
	addr := "55 Water St Unit B2 3rd Fl, Brooklyn, NY 11201"
	for _, q := range NewVariants(nil).Address(DetectCountry(addr), addr) {
		if strings.Contains(q, "B2 3RD") {
			t.Errorf("variant %q treats the unit as a UK postcode", q)
		}
	}
}

func TestDetectCountry_ITCodeIsCaseSensitive(t *testing.T) {
	if got := DetectCountry("Rua Augusta 100, Lisboa, IT"); got != CountryIT {
		t.Errorf("country = %v, want IT", got)
	}
	if got := DetectCountry("call it home, Lisboa"); got != CountryOther {
		t.Errorf("country = %v, want OTHER", got)
	}
}

func TestAddressVariants(t *testing.T) {
	v := NewVariants(nil)
	tests := []struct {
		name    string
		country Country
		addr    string
		want    []string
	}{
		{
			name:    "us",
			country: CountryUS,
			addr:    "123 Main St Apt 4B, Boston, MA 02110",
			want: []string{
				"123 Main St Apt 4B, Boston, MA 02110",
				"123 Main St, Boston, MA 02110",
				"123 Main St, Boston, MA",
				"Boston, MA",
			},
		},
		{
			name:    "us street name is not a unit marker",
			country: CountryUS,
			addr:    "40 Elm Street, Austin, TX",
			want: []string{
				"40 Elm Street, Austin, TX",
				"Austin, TX",
			},
		},
		{
			name:    "uk",
			country: CountryUK,
			addr:    "Flat 2, 10 Downing Street, London SW1A 2AA, UK",
			want: []string{
				"Flat 2, 10 Downing Street, London SW1A 2AA, UK",
				"SW1A 2AA",
				"London, SW1A 2AA",
			},
		},
		{
			name:    "it",
			country: CountryIT,
			addr:    "12 Via Roma (zona Centro), 20121 Milano",
			want: []string{
				"12 Via Roma (zona Centro), 20121 Milano",
				"Via Roma 12, 20121 Milano",
				"12 Via Roma, 20121 Milano",
				"Via Roma 12, Milano",
				"Via Roma 12, Milano, Italy",
			},
		},
		{
			name:    "it street named after a city",
			country: CountryIT,
			addr:    "Milano, Via Roma 12",
			want: []string{
				"Milano, Via Roma 12",
				"Via Roma 12, Milano",
				"Via Roma 12, Milano, Italy",
			},
		},
		{
			name:    "other",
			country: CountryOther,
			addr:    "Rua Augusta 100, Lisboa",
			want:    []string{"Rua Augusta 100, Lisboa"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Address(tt.country, tt.addr)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Address() =\n  %q\nwant\n  %q", got, tt.want)
			}
		})
	}
}

func TestAddressVariants_Empty(t *testing.T) {
	if got := NewVariants(nil).Address(CountryUS, "   "); got != nil {
		t.Errorf("Address(blank) = %q, want nil", got)
	}
}

func TestPhraseVariants_Station(t *testing.T) {
	got := NewVariants(nil).Phrase("Susa metro station Milan")
	want := []string{
		"Piazzale Susa Milan",
		"Piazza Susa Milan",
		"Susa Milan metro",
		"Via Susa Milan",
		"Susa metro station Milan",
		"Susa Milan",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Phrase() =\n  %q\nwant\n  %q", got, want)
	}
}

func TestPhraseVariants_University(t *testing.T) {
	got := NewVariants(nil).Phrase("near Bocconi")
	want := []string{
		"Università Bocconi Sarfatti Milano",
		"Università Bocconi Castelbarco Milano",
		"Università Bocconi Milano",
		"near Bocconi",
		"Bocconi",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Phrase() =\n  %q\nwant\n  %q", got, want)
	}
}

func TestDedupe_CaseInsensitive(t *testing.T) {
	got := dedupe([]string{"Via Roma 12", "via roma 12", " Via  Roma 12 ", "Milano"})
	want := []string{"Via Roma 12", "Milano"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dedupe = %q, want %q", got, want)
	}
}
