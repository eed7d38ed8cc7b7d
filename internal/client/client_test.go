package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gavel/internal/api"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestHearingsBuildsFilterQuery(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(api.HearingListResponse{
			Hearings: []api.HearingSummary{{ID: "h-1", Title: "Budget Oversight"}},
		})
	}))

	hearings, err := c.Hearings(context.Background(), "SJUD", "failed")
	if err != nil {
		t.Fatalf("Hearings: %v", err)
	}
	if len(hearings) != 1 || hearings[0].ID != "h-1" {
		t.Fatalf("hearings = %+v", hearings)
	}
	if !strings.Contains(gotQuery, "committee=SJUD") || !strings.Contains(gotQuery, "status=failed") {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestResolvePostsAction(t *testing.T) {
	var gotPath string
	var gotReq api.ResolveRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(api.ResolveResponse{Decision: "manual_merge", HearingID: "h-9"})
	}))

	resp, err := c.Resolve(context.Background(), 42, "merge")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if gotPath != "/api/pending-merges/42/resolve" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotReq.Action != "merge" {
		t.Fatalf("action = %q", gotReq.Action)
	}
	if resp.HearingID != "h-9" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestErrorEnvelopeSurfacesMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "cannot capture from status completed"})
	}))

	_, err := c.Capture(context.Background(), "h-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "completed") {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestUnreachableDaemonMapsToSentinel(t *testing.T) {
	c, err := New("127.0.0.1:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Status(context.Background()); !errors.Is(err, ErrDaemonUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
