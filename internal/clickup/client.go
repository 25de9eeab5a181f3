// Package clickup implements a minimal ClickUp API v2 client covering
// the endpoints the exporter needs: workspace traversal, task listing
// and team time entries. Requests retry with exponential backoff and
// honor 429 Retry-After.
package clickup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Abdullah0297445/clickup-exporter/internal/logging"
)

const DefaultBaseURL = "https://api.clickup.com/api/v2"

const (
	defaultMaxRetries     = 5
	defaultInitialBackoff = 1 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// Config holds client construction parameters.
type Config struct {
	Token          string
	BaseURL        string // defaults to the public API
	MaxRetries     int
	InitialBackoff time.Duration
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Client talks to the ClickUp API.
type Client struct {
	token          string
	baseURL        string
	maxRetries     int
	initialBackoff time.Duration
	requestTimeout time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

// New creates a client. Zero config fields fall back to defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &Client{
		token:          cfg.Token,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		requestTimeout: cfg.RequestTimeout,
		httpClient:     &http.Client{},
		logger:         logging.Component(cfg.Logger, "clickup_client"),
	}
}

// APIError is a non-retryable upstream response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clickup: API error %d: %s", e.Status, e.Body)
}

// getJSON issues a GET with the retry ladder and decodes into out.
// A nil body (204) leaves out untouched.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	backoff := c.initialBackoff
	for attempt := 1; ; attempt++ {
		body, retryable, err := c.doOnce(ctx, u)
		if err == nil {
			if body == nil || out == nil {
				return nil
			}
			if jsonErr := json.Unmarshal(body, out); jsonErr != nil {
				return fmt.Errorf("clickup: decode %s: %w", path, jsonErr)
			}
			return nil
		}
		if !retryable {
			return err
		}
		if attempt >= c.maxRetries {
			// Classify exhaustion so callers can persist an HTTP status:
			// 429 when rate limiting won, 502 for upstream/network failures.
			status := http.StatusBadGateway
			var rl *rateLimitError
			if errors.As(err, &rl) {
				status = http.StatusTooManyRequests
			}
			return &APIError{
				Status: status,
				Body:   fmt.Sprintf("giving up after %d attempts: %v", attempt, err),
			}
		}

		wait := backoff
		var rl *rateLimitError
		if errors.As(err, &rl) && rl.retryAfter > 0 {
			// Retry-After wins, with a slice of backoff as jitter.
			wait = rl.retryAfter + backoff/10
		}
		c.logger.Warn("retrying request",
			slog.String("url", u),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("cause", err.Error()))
		if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
			return sleepErr
		}
		backoff *= 2
	}
}

type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return "clickup: rate limited (429)"
}

// doOnce performs a single request. The bool reports whether the
// failure is worth retrying.
func (c *Client) doOnce(ctx context.Context, url string) ([]byte, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("clickup: network error: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if readErr != nil {
			return nil, true, fmt.Errorf("clickup: read response: %w", readErr)
		}
		return body, false, nil
	case resp.StatusCode == http.StatusNoContent:
		return nil, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &rateLimitError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("clickup: server error %d", resp.StatusCode)
	default:
		return nil, false, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spaces returns all spaces of a team, including member records.
func (c *Client) Spaces(ctx context.Context, teamID string) ([]Space, error) {
	var out struct {
		Spaces []Space `json:"spaces"`
	}
	if err := c.getJSON(ctx, "/team/"+teamID+"/space", nil, &out); err != nil {
		return nil, err
	}
	return out.Spaces, nil
}

// ListsForSpace returns the folderless lists of a space.
func (c *Client) ListsForSpace(ctx context.Context, spaceID string) ([]List, error) {
	var out struct {
		Lists []List `json:"lists"`
	}
	if err := c.getJSON(ctx, "/space/"+spaceID+"/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Lists, nil
}

// FolderLists returns lists nested in the folders of a space.
func (c *Client) FolderLists(ctx context.Context, spaceID string) ([]List, error) {
	var out struct {
		Folders []Folder `json:"folders"`
	}
	if err := c.getJSON(ctx, "/space/"+spaceID+"/folder", nil, &out); err != nil {
		return nil, err
	}
	var lists []List
	for _, folder := range out.Folders {
		lists = append(lists, folder.Lists...)
	}
	return lists, nil
}

// ListTasks returns every task of a list, closed tasks included.
// Pagination is sequential; the API flags the final page.
func (c *Client) ListTasks(ctx context.Context, listID string) ([]Task, error) {
	var all []Task
	for page := 0; ; page++ {
		query := url.Values{
			"page":           {strconv.Itoa(page)},
			"include_closed": {"true"},
		}
		var out struct {
			Tasks    []Task `json:"tasks"`
			LastPage bool   `json:"last_page"`
		}
		if err := c.getJSON(ctx, "/list/"+listID+"/task", query, &out); err != nil {
			return nil, err
		}
		if len(out.Tasks) == 0 {
			break
		}
		all = append(all, out.Tasks...)
		if out.LastPage {
			break
		}
	}
	return all, nil
}

// TimeEntries returns tracked time for a list within [start, end],
// filtered to the given assignees. Bounds are epoch milliseconds.
func (c *Client) TimeEntries(ctx context.Context, teamID, listID string, assigneeIDs []string, startMS, endMS int64) ([]TimeEntry, error) {
	query := url.Values{
		"list_id":                {listID},
		"start":                  {strconv.FormatInt(startMS, 10)},
		"end":                    {strconv.FormatInt(endMS, 10)},
		"include_location_names": {"true"},
	}
	if len(assigneeIDs) > 0 {
		query.Set("assignee", strings.Join(assigneeIDs, ","))
	}
	var out struct {
		Data []TimeEntry `json:"data"`
	}
	if err := c.getJSON(ctx, "/team/"+teamID+"/time_entries", query, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}
