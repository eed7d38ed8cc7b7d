// Package scraper implements the source adapter for committee-website
// hearing listings. Committee sites publish hearings as a markup table
// or card list; the scraper tolerates malformed rows and keeps the
// rest of the page.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"gavel/internal/hearing"
	"gavel/internal/sources"
)

// dateLayouts covers the formats committee sites actually publish.
var dateLayouts = []string{
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
}

// Scraper pulls hearing rows from one committee website.
type Scraper struct {
	name       string
	baseURL    string
	committee  string
	httpClient *http.Client
}

var _ sources.Adapter = (*Scraper)(nil)

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scraper) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// New creates a committee-website adapter registered under name. The
// committee code is attached to every scraped record because sites
// rarely repeat their own code in the markup.
func New(name, baseURL, committee string, timeout time.Duration, opts ...Option) (*Scraper, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("scraper base url required")
	}
	committee = strings.ToUpper(strings.TrimSpace(committee))
	if committee == "" {
		return nil, errors.New("scraper committee code required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s := &Scraper{
		name:       name,
		baseURL:    baseURL,
		committee:  committee,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the registry key for this adapter.
func (s *Scraper) Name() string { return s.name }

// Fetch downloads the hearing listing page and extracts rows dated
// inside the window. Rows missing a parseable date or title are
// counted as skipped, not fatal.
func (s *Scraper) Fetch(ctx context.Context, window sources.FetchWindow) (sources.FetchResult, error) {
	var result sources.FetchResult

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return result, sources.Wrap(sources.ErrSourceUnavailable, s.name, "build request", err)
	}
	req.Header.Set("User-Agent", "gavel/1.0 (hearing archive)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return result, err
		}
		return result, sources.Wrap(sources.ErrSourceUnavailable, s.name, "get listing", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return result, sources.Wrap(sources.ErrRateLimited, s.name, "get listing", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return result, sources.Wrap(sources.ErrSourceUnavailable, s.name, "get listing", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return result, sources.Wrap(sources.ErrSourceUnavailable, s.name, "get listing", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return result, sources.Wrap(sources.ErrMalformedRecord, s.name, "parse page", err)
	}

	now := time.Now().UTC()
	var skipped []string
	doc.Find(".hearing-row, tr.hearing, li.hearing").Each(func(i int, sel *goquery.Selection) {
		raw, err := s.rowToRaw(sel, now)
		if err != nil {
			result.Skipped++
			skipped = append(skipped, fmt.Sprintf("row %d: %v", i, err))
			return
		}
		if !window.Since.IsZero() && raw.Date.Before(window.Since) {
			return
		}
		result.Records = append(result.Records, raw)
	})
	result.SkipDetail = strings.Join(skipped, "; ")
	return result, nil
}

func (s *Scraper) rowToRaw(sel *goquery.Selection, fetchedAt time.Time) (hearing.Raw, error) {
	title := strings.TrimSpace(sel.Find(".hearing-title, .title, a").First().Text())
	if title == "" {
		return hearing.Raw{}, errors.New("missing title")
	}

	dateText := strings.TrimSpace(sel.Find(".hearing-date, .date, time").First().Text())
	if datetime, ok := sel.Find("time").Attr("datetime"); ok {
		dateText = datetime
	}
	date, err := parseDate(dateText)
	if err != nil {
		return hearing.Raw{}, fmt.Errorf("date %q: %w", dateText, err)
	}

	sourceID, _ := sel.Attr("data-hearing-id")
	if sourceID == "" {
		if href, ok := sel.Find("a").First().Attr("href"); ok {
			sourceID = href
		}
	}
	if sourceID == "" {
		return hearing.Raw{}, errors.New("missing row identifier")
	}

	mediaURL, _ := sel.Find("a.video, a.webcast").First().Attr("href")

	return hearing.Raw{
		Source:    s.name,
		SourceID:  sourceID,
		Title:     title,
		Date:      date,
		Committee: s.committee,
		Type:      strings.TrimSpace(sel.Find(".hearing-type, .type").First().Text()),
		MediaURL:  mediaURL,
		FetchedAt: fetchedAt,
	}, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, errors.New("unrecognized format")
}
