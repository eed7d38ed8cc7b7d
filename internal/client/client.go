// Package client is the HTTP client the gavel CLI uses to talk to a
// running gaveld instance.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gavel/internal/api"
)

// ErrDaemonUnavailable reports that no daemon answered at the
// configured bind address.
var ErrDaemonUnavailable = errors.New("gaveld is not reachable")

// APIError carries the HTTP status and error body of a rejected call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api returned status %d", e.StatusCode)
}

// Client talks to the daemon's HTTP API.
type Client struct {
	base *url.URL
	http *http.Client
}

// New builds a client for the given bind address ("host:port" or a
// full URL).
func New(bind string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address is empty")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Status fetches the daemon summary.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.get(ctx, "/api/status", nil, &out)
	return out, err
}

// Hearings lists hearings, optionally filtered by committee and
// status.
func (c *Client) Hearings(ctx context.Context, committee, status string) ([]api.HearingSummary, error) {
	values := url.Values{}
	if strings.TrimSpace(committee) != "" {
		values.Set("committee", committee)
	}
	if strings.TrimSpace(status) != "" {
		values.Set("status", status)
	}

	var out api.HearingListResponse
	if err := c.get(ctx, "/api/hearings", values, &out); err != nil {
		return nil, err
	}
	return out.Hearings, nil
}

// Hearing fetches one hearing with its audit trail and runs.
func (c *Client) Hearing(ctx context.Context, id string) (api.HearingDetail, error) {
	var out api.HearingDetail
	err := c.get(ctx, "/api/hearings/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Progress fetches the live progress report for a hearing.
func (c *Client) Progress(ctx context.Context, id string) (api.ProgressResponse, error) {
	var out api.ProgressResponse
	err := c.get(ctx, "/api/hearings/"+url.PathEscape(id)+"/progress", nil, &out)
	return out, err
}

// Capture requests pipeline processing for a hearing.
func (c *Client) Capture(ctx context.Context, id string) (api.CaptureResponse, error) {
	var out api.CaptureResponse
	err := c.post(ctx, "/api/hearings/"+url.PathEscape(id)+"/capture", nil, &out)
	return out, err
}

// Cancel requests cancellation of a hearing's active run.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.post(ctx, "/api/hearings/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// PendingMerges lists candidates awaiting review.
func (c *Client) PendingMerges(ctx context.Context) ([]api.PendingMerge, error) {
	var out api.PendingMergeListResponse
	if err := c.get(ctx, "/api/pending-merges", nil, &out); err != nil {
		return nil, err
	}
	return out.Candidates, nil
}

// Resolve applies a review decision to a pending merge candidate.
// Action is "merge" or "keep_separate".
func (c *Client) Resolve(ctx context.Context, id int64, action string) (api.ResolveResponse, error) {
	var out api.ResolveResponse
	path := "/api/pending-merges/" + strconv.FormatInt(id, 10) + "/resolve"
	err := c.post(ctx, path, api.ResolveRequest{Action: action}, &out)
	return out, err
}

// TriggerSync asks the scheduler to run a source cycle now.
func (c *Client) TriggerSync(ctx context.Context, source string) (api.SyncTriggerResponse, error) {
	var out api.SyncTriggerResponse
	err := c.post(ctx, "/api/sync/"+url.PathEscape(source), nil, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, values url.Values, out any) error {
	endpoint := c.base.ResolveReference(&url.URL{Path: path})
	if values != nil {
		endpoint.RawQuery = values.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return err
		}
		payload = buf
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection refused") {
			return fmt.Errorf("%w at %s", ErrDaemonUnavailable, c.base.Host)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			apiErr.Message = envelope.Error
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
