// Package config loads the migration settings file.
//
// Settings come from a YAML file plus environment-variable overrides for
// the two tokens, so credentials can stay out of the file. Library packages
// never read this directly; the command layer resolves settings once and
// passes explicit values down.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Attachment transfer modes.
const (
	// AttachmentsPassthrough rewrites links to absolute URLs on the source
	// host without moving bytes.
	AttachmentsPassthrough = "passthrough"

	// AttachmentsUpload rewrites links to a storage bucket and transfers
	// the bytes after all entities are created.
	AttachmentsUpload = "upload"

	// AttachmentsOff leaves attachment links untouched.
	AttachmentsOff = "off"
)

// GitLabSettings locates the source project.
type GitLabSettings struct {
	URL     string `yaml:"url"`     // instance URL, default https://gitlab.com
	Token   string `yaml:"token"`   // PRIVATE-TOKEN; FORGEPORT_GITLAB_TOKEN overrides
	Project string `yaml:"project"` // "group/project"
}

// GitHubSettings locates the destination repository.
type GitHubSettings struct {
	Token string `yaml:"token"` // FORGEPORT_GITHUB_TOKEN overrides
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// StorageSettings configures the upload attachment backend.
type StorageSettings struct {
	BaseURL string `yaml:"base-url"` // public base URL of the bucket
	Prefix  string `yaml:"prefix"`   // optional key namespace
}

// Settings is the full migration configuration.
type Settings struct {
	GitLab GitLabSettings `yaml:"gitlab"`
	GitHub GitHubSettings `yaml:"github"`

	// Usermap maps source usernames to destination usernames.
	Usermap map[string]string `yaml:"usermap"`

	// Projectmap maps source "group/project" names to destination
	// "owner/repo" names for cross-project references.
	Projectmap map[string]string `yaml:"projectmap"`

	// Placeholders controls gap backfilling in the identifier maps.
	Placeholders bool `yaml:"placeholders"`

	// Attribution prepends original author/timestamp lines to bodies.
	Attribution bool `yaml:"attribution"`

	// Attachments selects the transfer mode: passthrough, upload, or off.
	Attachments string `yaml:"attachments"`

	Storage StorageSettings `yaml:"storage"`

	// MigratedLabel is added to every created issue; empty disables it.
	MigratedLabel string `yaml:"migrated-label"`
}

// Default returns the settings used when a field is absent from the file.
func Default() *Settings {
	return &Settings{
		GitLab:       GitLabSettings{URL: "https://gitlab.com"},
		Placeholders: true,
		Attribution:  true,
		Attachments:  AttachmentsPassthrough,
	}
}

// Load reads and parses the settings file, applying defaults and
// environment overrides. A missing file is an error: the tool cannot run
// without project coordinates.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path) // #nosec G304 - config file path is user-provided
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	applyEnv(s)
	return s, nil
}

// applyEnv applies environment-variable overrides. Environment variables
// take precedence over file values.
func applyEnv(s *Settings) {
	if v := os.Getenv("FORGEPORT_GITLAB_TOKEN"); v != "" {
		s.GitLab.Token = v
	}
	if v := os.Getenv("FORGEPORT_GITHUB_TOKEN"); v != "" {
		s.GitHub.Token = v
	}
}

// Validate reports the first missing or inconsistent required field.
func (s *Settings) Validate() error {
	switch {
	case s.GitLab.URL == "":
		return fmt.Errorf("gitlab.url is required")
	case s.GitLab.Token == "":
		return fmt.Errorf("gitlab.token is required (or set FORGEPORT_GITLAB_TOKEN)")
	case s.GitLab.Project == "":
		return fmt.Errorf("gitlab.project is required")
	case s.GitHub.Token == "":
		return fmt.Errorf("github.token is required (or set FORGEPORT_GITHUB_TOKEN)")
	case s.GitHub.Owner == "":
		return fmt.Errorf("github.owner is required")
	case s.GitHub.Repo == "":
		return fmt.Errorf("github.repo is required")
	}

	switch s.Attachments {
	case AttachmentsPassthrough, AttachmentsOff:
	case AttachmentsUpload:
		if s.Storage.BaseURL == "" {
			return fmt.Errorf("storage.base-url is required when attachments: upload")
		}
	default:
		return fmt.Errorf("attachments must be %q, %q, or %q, got %q",
			AttachmentsPassthrough, AttachmentsUpload, AttachmentsOff, s.Attachments)
	}

	return nil
}
