package media

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg-bytes"))
		case "/sniff":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(pngHeader)
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html></html>"))
		case "/big":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_DeclaredType(t *testing.T) {
	srv := imageServer(t)
	img, err := NewFetcher().Fetch(context.Background(), srv.URL+"/a.jpg")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", img.MIMEType)
	}
	if img.Base64 != base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")) {
		t.Errorf("Base64 = %q", img.Base64)
	}
	if !strings.HasPrefix(img.DataURL(), "data:image/jpeg;base64,") {
		t.Errorf("DataURL = %q", img.DataURL())
	}
}

func TestFetch_SniffsGenericType(t *testing.T) {
	srv := imageServer(t)
	img, err := NewFetcher().Fetch(context.Background(), srv.URL+"/sniff")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", img.MIMEType)
	}
}

func TestFetch_RejectsNonImage(t *testing.T) {
	srv := imageServer(t)
	if _, err := NewFetcher().Fetch(context.Background(), srv.URL+"/page"); err == nil {
		t.Error("expected error for text/html")
	}
}

func TestFetch_SizeCap(t *testing.T) {
	srv := imageServer(t)
	f := NewFetcher()
	f.maxBytes = 16
	if _, err := f.Fetch(context.Background(), srv.URL+"/big"); err == nil {
		t.Error("expected error for oversized image")
	}
}

func TestFetchAll_BestEffortAndCapped(t *testing.T) {
	srv := imageServer(t)
	urls := []string{srv.URL + "/missing", srv.URL + "/a.jpg", srv.URL + "/sniff"}

	got := NewFetcher().FetchAll(context.Background(), urls)

	// Only the first two URLs are considered; the 404 is dropped.
	if len(got) != 1 {
		t.Fatalf("got %d images, want 1", len(got))
	}
	if got[0].URL != srv.URL+"/a.jpg" {
		t.Errorf("URL = %q", got[0].URL)
	}
}

func TestFetchAll_Empty(t *testing.T) {
	if got := NewFetcher().FetchAll(context.Background(), nil); len(got) != 0 {
		t.Errorf("got %d images, want 0", len(got))
	}
}
