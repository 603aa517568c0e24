package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forgeport.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing settings file: %v", err)
	}
	return path
}

const validYAML = `
gitlab:
  url: https://gitlab.example.com
  token: glpat-abc
  project: group/project
github:
  token: ghp_abc
  owner: owner
  repo: repo
usermap:
  alice: alice-gh
`

func TestLoad(t *testing.T) {
	s, err := Load(writeSettings(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.GitLab.URL != "https://gitlab.example.com" {
		t.Errorf("GitLab.URL = %q", s.GitLab.URL)
	}
	if s.GitLab.Project != "group/project" {
		t.Errorf("GitLab.Project = %q", s.GitLab.Project)
	}
	if s.Usermap["alice"] != "alice-gh" {
		t.Errorf("Usermap = %v", s.Usermap)
	}

	// Defaults for fields the file omits.
	if !s.Placeholders {
		t.Error("Placeholders = false, want default true")
	}
	if !s.Attribution {
		t.Error("Attribution = false, want default true")
	}
	if s.Attachments != AttachmentsPassthrough {
		t.Errorf("Attachments = %q, want default %q", s.Attachments, AttachmentsPassthrough)
	}

	if err := s.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() = nil error for missing file, want error")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	if _, err := Load(writeSettings(t, "gitlab: [not a mapping")); err == nil {
		t.Error("Load() = nil error for malformed YAML, want error")
	}
}

func TestLoadDefaultGitLabURL(t *testing.T) {
	s, err := Load(writeSettings(t, `
gitlab:
  token: tok
  project: g/p
github:
  token: tok
  owner: o
  repo: r
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.GitLab.URL != "https://gitlab.com" {
		t.Errorf("GitLab.URL = %q, want default gitlab.com", s.GitLab.URL)
	}
}

func TestEnvTokenOverrides(t *testing.T) {
	t.Setenv("FORGEPORT_GITLAB_TOKEN", "env-gl")
	t.Setenv("FORGEPORT_GITHUB_TOKEN", "env-gh")

	s, err := Load(writeSettings(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.GitLab.Token != "env-gl" {
		t.Errorf("GitLab.Token = %q, want environment override", s.GitLab.Token)
	}
	if s.GitHub.Token != "env-gh" {
		t.Errorf("GitHub.Token = %q, want environment override", s.GitHub.Token)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Settings {
		s := Default()
		s.GitLab.Token = "t"
		s.GitLab.Project = "g/p"
		s.GitHub.Token = "t"
		s.GitHub.Owner = "o"
		s.GitHub.Repo = "r"
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"missing gitlab token", func(s *Settings) { s.GitLab.Token = "" }, "gitlab.token"},
		{"missing project", func(s *Settings) { s.GitLab.Project = "" }, "gitlab.project"},
		{"missing github owner", func(s *Settings) { s.GitHub.Owner = "" }, "github.owner"},
		{"missing github repo", func(s *Settings) { s.GitHub.Repo = "" }, "github.repo"},
		{"unknown attachment mode", func(s *Settings) { s.Attachments = "sideways" }, "attachments"},
		{"upload without storage", func(s *Settings) { s.Attachments = AttachmentsUpload }, "storage.base-url"},
		{"upload with storage", func(s *Settings) {
			s.Attachments = AttachmentsUpload
			s.Storage.BaseURL = "https://bucket.example.com"
		}, ""},
		{"attachments off", func(s *Settings) { s.Attachments = AttachmentsOff }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}
