package govinfo_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gavel/internal/sources"
	"gavel/internal/sources/govinfo"
)

const listingBody = `{
  "count": 3,
  "packages": [
    {"packageId": "CHRG-119shrg001", "title": "Oversight Hearing on X", "dateIssued": "2025-06-10", "committeeCode": "SCOM", "pdfLink": "https://example.gov/x.pdf"},
    {"packageId": "CHRG-119shrg002", "title": "Nomination Hearing", "dateIssued": "not-a-date", "committeeCode": "SCOM"},
    {"packageId": "CHRG-119hhrg003", "title": "Budget Hearing", "dateIssued": "2025-06-11", "committeeCode": "HJUD"}
  ]
}`

func newClient(t *testing.T, serverURL string) *govinfo.Client {
	t.Helper()
	client, err := govinfo.New("govinfo", "test-key", serverURL, time.Second)
	if err != nil {
		t.Fatalf("govinfo.New: %v", err)
	}
	return client
}

func TestFetchFiltersCommitteesAndSkipsMalformed(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listingBody))
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	result, err := client.Fetch(context.Background(), sources.FetchWindow{
		Committees: []string{"scom"},
		Since:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1 (HJUD filtered, malformed skipped)", len(result.Records))
	}
	if result.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", result.Skipped)
	}
	rec := result.Records[0]
	if rec.SourceID != "CHRG-119shrg001" || rec.Committee != "SCOM" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if rec.Date.Format("2006-01-02") != "2025-06-10" {
		t.Fatalf("date = %v", rec.Date)
	}
}

func TestFetchFollowsNextPage(t *testing.T) {
	var requests []string
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/page2" {
			_, _ = w.Write([]byte(`{
			  "packages": [{"packageId": "CHRG-119shrg005", "title": "Second Page Hearing", "dateIssued": "2025-06-12", "committeeCode": "SCOM"}]
			}`))
			return
		}
		_, _ = w.Write([]byte(`{
		  "packages": [{"packageId": "CHRG-119shrg004", "title": "First Page Hearing", "dateIssued": "2025-06-11", "committeeCode": "SCOM"}],
		  "nextPage": "` + server.URL + `/page2"
		}`))
	}))
	defer server.Close()

	result, err := newClient(t, server.URL).Fetch(context.Background(), sources.FetchWindow{
		Committees: []string{"SCOM"},
		Since:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("requests = %v, want listing plus one follow-up page", requests)
	}
	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want both pages collected", len(result.Records))
	}
	if result.Records[1].SourceID != "CHRG-119shrg005" {
		t.Fatalf("second record = %#v", result.Records[1])
	}
}

func TestFetchRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Fetch(context.Background(), sources.FetchWindow{Since: time.Now()})
	if !errors.Is(err, sources.ErrRateLimited) {
		t.Fatalf("expected rate-limit error, got %v", err)
	}
}

func TestFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Fetch(context.Background(), sources.FetchWindow{Since: time.Now()})
	if !errors.Is(err, sources.ErrSourceUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestFetchMalformedListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Fetch(context.Background(), sources.FetchWindow{Since: time.Now()})
	if !errors.Is(err, sources.ErrMalformedRecord) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := govinfo.New("govinfo", "", "https://api.example.gov", time.Second); err == nil {
		t.Fatal("expected error for missing key")
	}
}
