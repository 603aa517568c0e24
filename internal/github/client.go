package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/cenkalti/backoff/v4"

	"github.com/forgeport/forgeport/internal/debug"
)

// NewClient creates a new GitHub client.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
	}
}

// WithBaseURL returns a new client with a custom base URL (for testing or
// GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    baseURL,
		HTTPClient: c.HTTPClient,
	}
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

// doRequest performs an HTTP request with authentication and rate-limit
// backoff. GitHub signals rate limiting with 429, or 403 plus
// X-RateLimit-Remaining: 0; both are retried with exponential backoff.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var respBody []byte
	var respHeaders http.Header

	operation := func() error {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		const maxResponseSize = 50 * 1024 * 1024
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
			debug.Logf("github: rate limited on %s %s, backing off\n", method, urlStr)
			return fmt.Errorf("rate limited (status %d)", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("API error: %s (status %d)", string(b), resp.StatusCode))
		}

		respBody = b
		respHeaders = resp.Header
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, nil, err
	}
	return respBody, respHeaders, nil
}

// linkNextPattern matches the "next" relation in GitHub Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// hasNextPage checks the Link header for a next page URL and returns it.
func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// ListIssues retrieves every issue in the repository, all states, pull
// requests included. Callers that need issues only can filter on
// Issue.PullRequest.
func (c *Client) ListIssues(ctx context.Context) ([]Issue, error) {
	var all []Issue

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", map[string]string{
		"state":     "all",
		"per_page":  strconv.Itoa(MaxPageSize),
		"direction": "asc",
		"sort":      "created",
	})

	for i := 0; i < MaxPages; i++ {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list issues: %w", err)
		}

		var page []Issue
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("failed to parse issues response: %w", err)
		}
		all = append(all, page...)

		next, ok := hasNextPage(headers)
		if !ok {
			return all, nil
		}
		urlStr = next
	}
	return nil, fmt.Errorf("exceeded %d pages listing issues", MaxPages)
}

// ListMilestones retrieves every milestone in the repository, all states.
func (c *Client) ListMilestones(ctx context.Context) ([]Milestone, error) {
	var all []Milestone

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/milestones", map[string]string{
		"state":    "all",
		"per_page": strconv.Itoa(MaxPageSize),
	})

	for i := 0; i < MaxPages; i++ {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list milestones: %w", err)
		}

		var page []Milestone
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("failed to parse milestones response: %w", err)
		}
		all = append(all, page...)

		next, ok := hasNextPage(headers)
		if !ok {
			return all, nil
		}
		urlStr = next
	}
	return nil, fmt.Errorf("exceeded %d pages listing milestones", MaxPages)
}

// CreateIssue creates an issue and returns the created record.
func (c *Client) CreateIssue(ctx context.Context, req *IssueRequest) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue %q: %w", req.Title, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse created issue: %w", err)
	}
	return &issue, nil
}

// UpdateIssueState opens or closes an existing issue.
func (c *Client) UpdateIssueState(ctx context.Context, number int, state string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	_, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, &IssueUpdate{State: state})
	if err != nil {
		return fmt.Errorf("failed to update issue #%d state: %w", number, err)
	}
	return nil
}

// CreateMilestone creates a milestone and returns the created record.
// Milestones are always created open; use UpdateMilestoneState to close.
func (c *Client) CreateMilestone(ctx context.Context, req *MilestoneRequest) (*Milestone, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/milestones", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone %q: %w", req.Title, err)
	}

	var ms Milestone
	if err := json.Unmarshal(respBody, &ms); err != nil {
		return nil, fmt.Errorf("failed to parse created milestone: %w", err)
	}
	return &ms, nil
}

// UpdateMilestoneState opens or closes an existing milestone.
func (c *Client) UpdateMilestoneState(ctx context.Context, number int, state string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/milestones/"+strconv.Itoa(number), nil)
	_, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, &MilestoneUpdate{State: state})
	if err != nil {
		return fmt.Errorf("failed to update milestone %d state: %w", number, err)
	}
	return nil
}

// CreateComment adds a comment to an existing issue or pull request.
func (c *Client) CreateComment(ctx context.Context, issueNumber int, req *CommentRequest) (*Comment, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(issueNumber)+"/comments", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, req)
	if err != nil {
		return nil, fmt.Errorf("failed to comment on #%d: %w", issueNumber, err)
	}

	var comment Comment
	if err := json.Unmarshal(respBody, &comment); err != nil {
		return nil, fmt.Errorf("failed to parse created comment: %w", err)
	}
	return &comment, nil
}
