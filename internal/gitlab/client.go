package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/cenkalti/backoff/v4"

	"github.com/forgeport/forgeport/internal/debug"
)

// NewClient creates a new GitLab client.
// baseURL is the instance URL without the API suffix, e.g. "https://gitlab.com".
func NewClient(token, baseURL, projectID string) *Client {
	return &Client{
		Token:     token,
		BaseURL:   baseURL,
		ProjectID: projectID,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		BaseURL:    c.BaseURL,
		ProjectID:  c.ProjectID,
		HTTPClient: httpClient,
	}
}

// projectPath returns the URL-encoded project path segment.
func (c *Client) projectPath() string {
	return url.PathEscape(c.ProjectID)
}

// buildURL constructs a full API URL under /api/v4.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + DefaultAPIEndpoint + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

// doRequest performs a GET with authentication and rate-limit backoff.
// 429 responses are retried with exponential backoff; other non-2xx
// responses fail immediately.
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, http.Header, error) {
	var respBody []byte
	var respHeaders http.Header

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("PRIVATE-TOKEN", c.Token)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		const maxResponseSize = 50 * 1024 * 1024
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			debug.Logf("gitlab: rate limited on %s, backing off\n", urlStr)
			return fmt.Errorf("rate limited (status 429)")
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("API error: %s (status %d)", string(body), resp.StatusCode))
		}

		respBody = body
		respHeaders = resp.Header
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, nil, err
	}
	return respBody, respHeaders, nil
}

// fetchPages walks a paginated collection endpoint, following the
// X-Next-Page header, and calls handle with each page's raw body.
func (c *Client) fetchPages(ctx context.Context, path string, params map[string]string, handle func([]byte) error) error {
	page := 1

	for i := 0; i < MaxPages; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		merged := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		for k, v := range params {
			merged[k] = v
		}

		body, headers, err := c.doRequest(ctx, c.buildURL(path, merged))
		if err != nil {
			return err
		}
		if err := handle(body); err != nil {
			return err
		}

		next := headers.Get("X-Next-Page")
		if next == "" {
			return nil
		}
		n, err := strconv.Atoi(next)
		if err != nil || n <= page {
			return nil
		}
		page = n
	}
	return fmt.Errorf("exceeded %d pages fetching %s", MaxPages, path)
}

// FetchProject retrieves the project metadata for the configured project.
func (c *Client) FetchProject(ctx context.Context) (*Project, error) {
	body, _, err := c.doRequest(ctx, c.buildURL("/projects/"+c.projectPath(), nil))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	var p Project
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project response: %w", err)
	}
	return &p, nil
}

// FetchIssues retrieves all issues for the project, sorted ascending by IID.
func (c *Client) FetchIssues(ctx context.Context) ([]Issue, error) {
	var all []Issue
	err := c.fetchPages(ctx, "/projects/"+c.projectPath()+"/issues", map[string]string{"state": "all", "scope": "all"}, func(body []byte) error {
		var page []Issue
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to parse issues response: %w", err)
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].IID < all[j].IID })
	return all, nil
}

// FetchMergeRequests retrieves all merge requests for the project, sorted
// ascending by IID.
func (c *Client) FetchMergeRequests(ctx context.Context) ([]MergeRequest, error) {
	var all []MergeRequest
	err := c.fetchPages(ctx, "/projects/"+c.projectPath()+"/merge_requests", map[string]string{"state": "all", "scope": "all"}, func(body []byte) error {
		var page []MergeRequest
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to parse merge requests response: %w", err)
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].IID < all[j].IID })
	return all, nil
}

// FetchMilestones retrieves all milestones for the project, sorted ascending
// by IID.
func (c *Client) FetchMilestones(ctx context.Context) ([]Milestone, error) {
	var all []Milestone
	err := c.fetchPages(ctx, "/projects/"+c.projectPath()+"/milestones", nil, func(body []byte) error {
		var page []Milestone
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to parse milestones response: %w", err)
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].IID < all[j].IID })
	return all, nil
}

// FetchIssueNotes retrieves the notes for one issue, oldest first.
func (c *Client) FetchIssueNotes(ctx context.Context, iid int) ([]Note, error) {
	return c.fetchNotes(ctx, "/projects/"+c.projectPath()+"/issues/"+strconv.Itoa(iid)+"/notes")
}

// FetchMergeRequestNotes retrieves the notes for one merge request, oldest
// first. Inline review comments carry a Position.
func (c *Client) FetchMergeRequestNotes(ctx context.Context, iid int) ([]Note, error) {
	return c.fetchNotes(ctx, "/projects/"+c.projectPath()+"/merge_requests/"+strconv.Itoa(iid)+"/notes")
}

func (c *Client) fetchNotes(ctx context.Context, path string) ([]Note, error) {
	var all []Note
	err := c.fetchPages(ctx, path, map[string]string{"sort": "asc", "order_by": "created_at"}, func(body []byte) error {
		var page []Note
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to parse notes response: %w", err)
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// FetchBranches retrieves all branch names for the project.
func (c *Client) FetchBranches(ctx context.Context) ([]Branch, error) {
	var all []Branch
	err := c.fetchPages(ctx, "/projects/"+c.projectPath()+"/repository/branches", nil, func(body []byte) error {
		var page []Branch
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to parse branches response: %w", err)
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// FetchReleases retrieves all releases for the project.
func (c *Client) FetchReleases(ctx context.Context) ([]Release, error) {
	var all []Release
	err := c.fetchPages(ctx, "/projects/"+c.projectPath()+"/releases", nil, func(body []byte) error {
		var page []Release
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to parse releases response: %w", err)
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// DownloadAttachment fetches the bytes of an uploaded attachment.
// originURL is the project-relative upload path, e.g.
// "/uploads/0a1b2c3d/screenshot.png". Attachment downloads go through the
// project web path, not the REST API.
func (c *Client) DownloadAttachment(ctx context.Context, originURL string) ([]byte, error) {
	urlStr := c.BaseURL + "/" + c.ProjectID + originURL
	body, _, err := c.doRequest(ctx, urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment %s: %w", originURL, err)
	}
	return body, nil
}
