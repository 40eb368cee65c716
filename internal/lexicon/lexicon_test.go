package lexicon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Parses(t *testing.T) {
	lx := Default()
	if !lx.IsStopword("Station") {
		t.Error("station should be a stopword")
	}
	if !lx.IsStreetType("Viale") {
		t.Error("viale should be a street type")
	}
	if !lx.IsUSState("ny") {
		t.Error("NY should be a US state")
	}
	if len(lx.CountryTokens("uk")) == 0 {
		t.Error("expected uk country tokens")
	}
}

func TestFindCity_ReturnsLastMention(t *testing.T) {
	lx := Default()
	if got := lx.FindCity("flat in Rome, moving to Milan"); got != "milan" {
		t.Errorf("FindCity = %q, want %q", got, "milan")
	}
	if got := lx.FindCity("somewhere nice"); got != "" {
		t.Errorf("FindCity = %q, want empty", got)
	}
	if got := lx.FindCity("near NYU, New York"); got != "new york" {
		t.Errorf("FindCity = %q, want %q", got, "new york")
	}
}

func TestFindUniversity(t *testing.T) {
	u, ok := Default().FindUniversity("quiet 2 bedroom near Bocconi University")
	if !ok {
		t.Fatal("expected Bocconi to be recognized")
	}
	if u.City != "Milano" || len(u.Campuses) == 0 {
		t.Errorf("university = %+v", u)
	}
}

func TestIsLandmarkTerm(t *testing.T) {
	lx := Default()
	for _, term := range []string{"Loreto metro", "Politecnico", "Duomo"} {
		if !lx.IsLandmarkTerm(term) {
			t.Errorf("IsLandmarkTerm(%q) = false, want true", term)
		}
	}
	for _, term := range []string{"Navigli", "Isola", "Brera"} {
		if lx.IsLandmarkTerm(term) {
			t.Errorf("IsLandmarkTerm(%q) = true, want false", term)
		}
	}
}

func TestLoad_CustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	content := "stopwords: [the]\nit_street_types: [via]\ncities: [lisbon]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	lx, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := lx.FindCity("Alfama, Lisbon"); got != "lisbon" {
		t.Errorf("FindCity = %q, want lisbon", got)
	}
}

func TestLoad_RejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	if err := os.WriteFile(path, []byte("cities: [x]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for lexicon without stopwords")
	}
}
