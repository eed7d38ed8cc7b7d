// Package govinfo implements the source adapter for the government
// publishing REST API. The API is rate limited per key; 429 responses
// surface as sources.ErrRateLimited so the orchestrator backs off
// accordingly.
package govinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gavel/internal/hearing"
	"gavel/internal/sources"
)

// packageEntry models one hearing package in the API listing response.
type packageEntry struct {
	PackageID  string `json:"packageId"`
	Title      string `json:"title"`
	DateIssued string `json:"dateIssued"`
	Committee  string `json:"committeeCode"`
	Category   string `json:"category"`
	PDFLink    string `json:"pdfLink"`
	AudioLink  string `json:"audioLink"`
}

type listResponse struct {
	Packages []packageEntry `json:"packages"`
	NextPage string         `json:"nextPage"`
}

// maxPages caps pagination per cycle so a runaway nextPage chain cannot
// pin a sync cycle.
const maxPages = 10

// Client pulls hearing packages from the govinfo API.
type Client struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ sources.Adapter = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a govinfo adapter registered under name.
func New(name, apiKey, baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("govinfo api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("govinfo base url required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &Client{
		name:       name,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Name returns the registry key for this adapter.
func (c *Client) Name() string { return c.name }

// Fetch lists hearing packages updated since the window start for the
// requested committees, following nextPage links until the listing is
// exhausted. Individual records that fail to decode are skipped; the
// rest of the page is kept.
func (c *Client) Fetch(ctx context.Context, window sources.FetchWindow) (sources.FetchResult, error) {
	var result sources.FetchResult

	committees := make(map[string]struct{}, len(window.Committees))
	for _, code := range window.Committees {
		committees[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}

	endpoint := fmt.Sprintf(
		"%s/collections/CHRG/%s",
		c.baseURL,
		url.PathEscape(window.Since.UTC().Format("2006-01-02T15:04:05Z")),
	)

	now := time.Now().UTC()
	var skipped []string
	for pages := 0; endpoint != "" && pages < maxPages; pages++ {
		page, err := c.listPackages(ctx, endpoint)
		if err != nil {
			return result, err
		}

		for _, entry := range page.Packages {
			if len(committees) > 0 {
				if _, ok := committees[strings.ToUpper(entry.Committee)]; !ok {
					continue
				}
			}
			raw, err := entryToRaw(c.name, entry, now)
			if err != nil {
				result.Skipped++
				skipped = append(skipped, fmt.Sprintf("%s: %v", entry.PackageID, err))
				continue
			}
			result.Records = append(result.Records, raw)
		}

		endpoint = c.pageURL(page.NextPage)
	}
	result.SkipDetail = strings.Join(skipped, "; ")
	return result, nil
}

// pageURL resolves a nextPage value, which the API returns either
// absolute or relative to the API root.
func (c *Client) pageURL(next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return ""
	}
	if strings.HasPrefix(next, "http://") || strings.HasPrefix(next, "https://") {
		return next
	}
	return c.baseURL + "/" + strings.TrimLeft(next, "/")
}

func (c *Client) listPackages(ctx context.Context, endpoint string) (*listResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, sources.Wrap(sources.ErrSourceUnavailable, c.name, "build request", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, sources.Wrap(sources.ErrSourceUnavailable, c.name, "list packages", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, sources.Wrap(sources.ErrRateLimited, c.name, "list packages", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, sources.Wrap(sources.ErrSourceUnavailable, c.name, "list packages", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, sources.Wrap(sources.ErrSourceUnavailable, c.name, "list packages", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, sources.Wrap(sources.ErrMalformedRecord, c.name, "decode listing", err)
	}
	return &page, nil
}

func entryToRaw(source string, entry packageEntry, fetchedAt time.Time) (hearing.Raw, error) {
	if strings.TrimSpace(entry.PackageID) == "" {
		return hearing.Raw{}, errors.New("missing packageId")
	}
	date, err := parseIssuedDate(entry.DateIssued)
	if err != nil {
		return hearing.Raw{}, fmt.Errorf("dateIssued %q: %w", entry.DateIssued, err)
	}
	return hearing.Raw{
		Source:      source,
		SourceID:    entry.PackageID,
		Title:       strings.TrimSpace(entry.Title),
		Date:        date,
		Committee:   strings.ToUpper(strings.TrimSpace(entry.Committee)),
		Type:        strings.TrimSpace(entry.Category),
		MediaURL:    strings.TrimSpace(entry.AudioLink),
		DocumentURL: strings.TrimSpace(entry.PDFLink),
		FetchedAt:   fetchedAt,
	}, nil
}

func parseIssuedDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errors.New("unrecognized format")
}
