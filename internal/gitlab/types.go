// Package gitlab provides client and data types for the GitLab REST API.
//
// This package is the source side of a migration: it fetches issues, merge
// requests, milestones, notes, branches, and releases from a GitLab project.
// It never writes to GitLab.
package gitlab

import (
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitLab API v4 endpoint suffix.
	DefaultAPIEndpoint = "/api/v4"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// MaxPageSize is the maximum number of items to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from malformed X-Next-Page headers.
	MaxPages = 1000
)

// Client provides methods to interact with the GitLab REST API.
type Client struct {
	Token      string       // GitLab personal access token or OAuth token
	BaseURL    string       // GitLab instance URL (e.g., "https://gitlab.com")
	ProjectID  string       // Project ID or URL-encoded path (e.g., "group/project")
	HTTPClient *http.Client // Optional custom HTTP client
}

// Issue represents an issue from the GitLab API.
type Issue struct {
	ID           int        `json:"id"`  // Global issue ID
	IID          int        `json:"iid"` // Project-scoped issue ID
	ProjectID    int        `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	State        string     `json:"state"` // "opened", "closed", "reopened"
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Labels       []string   `json:"labels"`
	Assignees    []User     `json:"assignees,omitempty"`
	Author       *User      `json:"author,omitempty"`
	Milestone    *Milestone `json:"milestone,omitempty"`
	WebURL       string     `json:"web_url"`
	DueDate      string     `json:"due_date,omitempty"` // YYYY-MM-DD format
	Confidential bool       `json:"confidential"`
}

// MergeRequest represents a merge request from the GitLab API.
// Its IID numbering is independent of issue IIDs on the GitLab side;
// on the GitHub side both kinds share one number space.
type MergeRequest struct {
	ID           int        `json:"id"`
	IID          int        `json:"iid"`
	ProjectID    int        `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	State        string     `json:"state"` // "opened", "closed", "merged", "locked"
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	Labels       []string   `json:"labels"`
	Assignees    []User     `json:"assignees,omitempty"`
	Author       *User      `json:"author,omitempty"`
	Milestone    *Milestone `json:"milestone,omitempty"`
	SourceBranch string     `json:"source_branch"`
	TargetBranch string     `json:"target_branch"`
	SHA          string     `json:"sha,omitempty"`
	WebURL       string     `json:"web_url"`
}

// User represents a GitLab user.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	WebURL    string `json:"web_url,omitempty"`
	State     string `json:"state,omitempty"` // "active", "blocked", etc.
}

// Milestone represents a GitLab milestone.
type Milestone struct {
	ID          int        `json:"id"`
	IID         int        `json:"iid"`
	ProjectID   int        `json:"project_id,omitempty"`
	GroupID     int        `json:"group_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	State       string     `json:"state"` // "active", "closed"
	DueDate     string     `json:"due_date,omitempty"`
	StartDate   string     `json:"start_date,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	WebURL      string     `json:"web_url,omitempty"`
}

// Note represents a comment on an issue or merge request.
type Note struct {
	ID         int           `json:"id"`
	Body       string        `json:"body"`
	Author     *User         `json:"author,omitempty"`
	CreatedAt  *time.Time    `json:"created_at"`
	UpdatedAt  *time.Time    `json:"updated_at,omitempty"`
	System     bool          `json:"system"` // true for auto-generated activity notes
	NoteableID int           `json:"noteable_id,omitempty"`
	Type       string        `json:"type,omitempty"` // "DiffNote" for inline review comments
	Position   *NotePosition `json:"position,omitempty"`
}

// NotePosition describes where an inline review comment sits in a diff.
// Either the old or the new side may be absent (pure addition or deletion).
type NotePosition struct {
	BaseSHA  string `json:"base_sha"`
	StartSHA string `json:"start_sha"`
	HeadSHA  string `json:"head_sha"`
	OldPath  string `json:"old_path,omitempty"`
	NewPath  string `json:"new_path,omitempty"`
	OldLine  int    `json:"old_line,omitempty"`
	NewLine  int    `json:"new_line,omitempty"`
}

// Branch represents a repository branch.
type Branch struct {
	Name    string `json:"name"`
	Merged  bool   `json:"merged"`
	Default bool   `json:"default"`
}

// Release represents a project release.
type Release struct {
	TagName     string     `json:"tag_name"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
	Author      *User      `json:"author,omitempty"`
}

// Project represents a GitLab project.
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Path              string `json:"path"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
	DefaultBranch     string `json:"default_branch,omitempty"`
}
