package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nestscout/nestscout/internal/api"
	"github.com/nestscout/nestscout/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
	User   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

type cannedResponse struct {
	status int
	body   string
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	canned := make(map[string]cannedResponse, len(responses))
	for k, v := range responses {
		canned[k] = cannedResponse{status: http.StatusOK, body: v}
	}
	return newTestServerWithStatus(t, canned)
}

func newTestServerWithStatus(t *testing.T, responses map[string]cannedResponse) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
			User:   r.Header.Get(api.UserHeader),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.status)
			w.Write([]byte(resp.body))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		user:       "u-1",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestSaveCommand_Queued(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /listings": `{"id":"l-1","status":"pending","job_id":"job-1"}`,
	})

	req := api.SaveRequest{
		SourceURL:  "https://ads.example/1",
		RawContent: "Bilocale, Via Padova 20, Milano",
		Images:     []string{"https://img.example/1.jpg"},
	}
	if err := runSave(ctx, ts.client(), req, false); err != nil {
		t.Fatalf("runSave: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/listings" {
		t.Errorf("request = %s %s, want POST /listings", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	if r.User != "u-1" {
		t.Errorf("user header = %q, want u-1", r.User)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["source_url"] != "https://ads.example/1" {
		t.Errorf("body.source_url = %v", body["source_url"])
	}
	if body["raw_content"] != "Bilocale, Via Padova 20, Milano" {
		t.Errorf("body.raw_content = %v", body["raw_content"])
	}
}

func TestSaveCommand_Sync(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /listings": `{"id":"l-1","status":"done"}`,
	})

	req := api.SaveRequest{SourceURL: "https://ads.example/1", RawContent: "text"}
	if err := runSave(ctx, ts.client(), req, true); err != nil {
		t.Fatalf("runSave: %v", err)
	}
	if got := ts.requests[0].Path; got != "/listings?sync=true" {
		t.Errorf("path = %q, want /listings?sync=true", got)
	}
}

func TestSaveCommand_Conflict(t *testing.T) {
	ts := newTestServerWithStatus(t, map[string]cannedResponse{
		"POST /listings": {
			status: http.StatusConflict,
			body:   `{"error":{"message":"listing already saved","type":"conflict"},"existing_id":"l-9"}`,
		},
	})

	req := api.SaveRequest{SourceURL: "https://ads.example/1", RawContent: "text"}
	err := runSave(ctx, ts.client(), req, false)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "existing listing l-9") {
		t.Errorf("error = %q, want status and existing id", err.Error())
	}
}

func TestSaveCommand_MissingContent(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"save", "https://ads.example/1"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing content")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestListCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /listings": `[
			{"id":"l-1","source_url":"https://ads.example/1","enrichment_status":"failed","enrichment_error":"inference timed out","saved_at":"2026-10-01T10:00:00Z"},
			{"id":"l-2","source_url":"https://ads.example/2","enrichment_status":"failed","saved_at":"2026-10-02T10:00:00Z"}
		]`,
	})
	noColor = true
	defer func() { noColor = false }()

	var out bytes.Buffer
	if err := runList(ctx, ts.client(), "failed", &out); err != nil {
		t.Fatalf("runList: %v", err)
	}

	if got := ts.requests[0].Path; got != "/listings?status=failed" {
		t.Errorf("path = %q, want /listings?status=failed", got)
	}
	text := out.String()
	for _, want := range []string{"l-1", "l-2", "https://ads.example/2", "inference timed out"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestListCommand_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /listings": `[]`})

	var out bytes.Buffer
	if err := runList(ctx, ts.client(), "", &out); err != nil {
		t.Fatalf("runList: %v", err)
	}
	if !strings.Contains(out.String(), "No listings found") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSearchCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /search": `{
			"query":"quiet flat near Bocconi",
			"location":{"has_location":true,"detected_location":"Bocconi","remaining_query":"quiet flat","default_distance_km":2,
				"point":{"lat":45.45,"lon":9.19,"max_km":2,"name":"Università Bocconi"}},
			"filters":{"noise_level":"low"},
			"results":[{"listing":{"id":"l-1","source_url":"https://ads.example/1"},
				"metadata":{"address":"Via Sarfatti 25, Milano"},"distance_km":0.4,"match_count":2,
				"match_score":81,"comparison_summary":"Quiet and close to campus"}]
		}`,
	})
	noColor = true
	defer func() { noColor = false }()

	var out bytes.Buffer
	if err := runSearch(ctx, ts.client(), "quiet flat near Bocconi", 3, false, &out); err != nil {
		t.Fatalf("runSearch: %v", err)
	}

	path := ts.requests[0].Path
	if !strings.HasPrefix(path, "/search?") || !strings.Contains(path, "q=quiet+flat+near+Bocconi") || !strings.Contains(path, "max_km=3") {
		t.Errorf("path = %q", path)
	}
	text := out.String()
	for _, want := range []string{"Università Bocconi", "1 filter(s) applied", "l-1", "Via Sarfatti 25", "Quiet and close to campus"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestSearchCommand_JSON(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /search": `{"query":"loft","location":{"has_location":false,"remaining_query":"loft","default_distance_km":0},"filters":{},"results":[]}`,
	})

	var out bytes.Buffer
	if err := runSearch(ctx, ts.client(), "loft", 0, true, &out); err != nil {
		t.Fatalf("runSearch: %v", err)
	}
	if strings.Contains(ts.requests[0].Path, "max_km") {
		t.Errorf("path = %q, want no max_km", ts.requests[0].Path)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if decoded["query"] != "loft" {
		t.Errorf("query = %v, want loft", decoded["query"])
	}
}

func TestExportCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /export.xlsx": "PK-fake-workbook"})

	output := filepath.Join(t.TempDir(), "out.xlsx")
	n, err := runExport(ctx, ts.client(), output)
	if err != nil {
		t.Fatalf("runExport: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "PK-fake-workbook" || n != int64(len(data)) {
		t.Errorf("wrote %d bytes %q", n, data)
	}
}

func TestExportCommand_ServerError(t *testing.T) {
	ts := newTestServerWithStatus(t, map[string]cannedResponse{
		"GET /export.xlsx": {status: 500, body: `{"error":{"message":"boom","type":"api_error"}}`},
	})

	output := filepath.Join(t.TempDir(), "out.xlsx")
	if _, err := runExport(ctx, ts.client(), output); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, want server message", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("output file should not be created on error")
	}
}

func TestStatusCounts(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /listings": `[{"id":"a","enrichment_status":"done"},{"id":"b","enrichment_status":"done"},{"id":"c","enrichment_status":"pending"}]`,
	})

	got, err := statusCounts(ctx, ts.client())
	if err != nil {
		t.Fatalf("statusCounts: %v", err)
	}
	if got != "3 total, 1 pending, 2 done" {
		t.Errorf("statusCounts = %q", got)
	}
}

func TestServerNotReachable(t *testing.T) {
	client := &apiClient{
		baseURL:    "http://127.0.0.1:1",
		token:      "test-token",
		httpClient: &http.Client{},
	}

	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusBadGateway)
	rec.WriteString("upstream down")

	var v any
	err := decodeJSON(rec.Result(), &v)
	if err == nil || err.Error() != "server returned 502: upstream down" {
		t.Errorf("err = %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "listing_id", "l-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["listing_id"] != "l-1" {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "bogus"}, &buf).Debug("dropped")
	if buf.Len() != 0 {
		t.Errorf("unknown level should fall back to info, got %q", buf.String())
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil || pid != os.Getpid() {
		t.Errorf("readPIDFile = %d, %v; want %d", pid, err, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestNoColorFlag(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	result := colorize(colorRed, "test")
	if result != "test" {
		t.Errorf("colorize with noColor = %q, want %q", result, "test")
	}
}
