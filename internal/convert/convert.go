// Package convert turns GitLab entities into GitHub creation payloads.
//
// Everything here is a pure function of the entity, the frozen identifier
// maps, and the rewriter: no network calls, no mutation of shared state
// beyond the rewriter's attachment registration. The migration loop calls
// these per entity, in any order, after all maps are built.
package convert

import (
	"fmt"
	"time"

	"github.com/forgeport/forgeport/internal/debug"
	"github.com/forgeport/forgeport/internal/github"
	"github.com/forgeport/forgeport/internal/gitlab"
	"github.com/forgeport/forgeport/internal/idmap"
	"github.com/forgeport/forgeport/internal/rewrite"
)

// Config controls payload conversion.
type Config struct {
	// Usermap maps source usernames to destination usernames. Assignees
	// without a mapping are dropped (GitHub rejects unknown assignees).
	Usermap map[string]string

	// AddAttribution prepends an "In GitLab by @author on ..." line to
	// every migrated body and comment.
	AddAttribution bool

	// MigratedLabel, when non-empty, is added to every created issue so
	// migrated content is easy to filter at the destination.
	MigratedLabel string
}

// Converter builds destination payloads against frozen maps.
type Converter struct {
	cfg  Config
	maps *idmap.Set
	rw   *rewrite.Rewriter
}

// New creates a converter. The rewriter must share the same map set.
func New(cfg Config, maps *idmap.Set, rw *rewrite.Rewriter) *Converter {
	return &Converter{cfg: cfg, maps: maps, rw: rw}
}

// DestState maps a source entity state to the destination's two-state
// model: "opened" stays open, "closed" and "merged" both close.
func DestState(srcState string) string {
	switch srcState {
	case "closed", "merged":
		return "closed"
	default:
		return "open"
	}
}

// Issue converts a source issue into its creation payload.
func (c *Converter) Issue(gl *gitlab.Issue) *github.IssueRequest {
	req := &github.IssueRequest{
		Title:     gl.Title,
		Body:      c.rw.Rewrite(gl.Description, issueOrigin(gl), c.cfg.AddAttribution),
		Labels:    c.labels(gl.Labels),
		Assignees: c.assignees(gl.Assignees),
	}

	if gl.Milestone != nil {
		if item, ok := c.maps.Milestones.ByTitle(gl.Milestone.Title); ok {
			n := item.Number
			req.Milestone = &n
		} else {
			debug.Warnf("issue #%d: milestone %q not mapped, dropping assignment\n", gl.IID, gl.Milestone.Title)
		}
	}

	return req
}

// PlaceholderIssue builds the synthetic closed issue created to fill a
// numbering gap. The caller closes it right after creation.
func (c *Converter) PlaceholderIssue(iid int) *github.IssueRequest {
	return &github.IssueRequest{
		Title: idmap.PlaceholderTitle(iid),
		Body: fmt.Sprintf("Placeholder for item %d, which was deleted at the source. "+
			"Created to keep issue numbering aligned with the original project.", iid),
	}
}

// MergeRequest converts a source merge request into an issue creation
// payload. The destination cannot reconstruct a pull request without the
// underlying branches, so merge requests become issues; what matters is
// that they consume the expected number in the shared space.
func (c *Converter) MergeRequest(mr *gitlab.MergeRequest) *github.IssueRequest {
	body := c.rw.Rewrite(mr.Description, mergeOrigin(mr), c.cfg.AddAttribution)
	body += fmt.Sprintf("\n\n---\n\nMerge request: `%s` → `%s`, state %s at the source.",
		mr.SourceBranch, mr.TargetBranch, mr.State)

	req := &github.IssueRequest{
		Title:     mr.Title,
		Body:      body,
		Labels:    append(c.labels(mr.Labels), "merge-request"),
		Assignees: c.assignees(mr.Assignees),
	}

	if mr.Milestone != nil {
		if item, ok := c.maps.Milestones.ByTitle(mr.Milestone.Title); ok {
			n := item.Number
			req.Milestone = &n
		} else {
			debug.Warnf("merge request !%d: milestone %q not mapped, dropping assignment\n", mr.IID, mr.Milestone.Title)
		}
	}

	return req
}

// Milestone converts a source milestone into its creation payload.
// Descriptions get no reference rewriting on GitLab either; the text is
// carried as-is apart from the due date conversion.
func (c *Converter) Milestone(ms *gitlab.Milestone) *github.MilestoneRequest {
	req := &github.MilestoneRequest{
		Title:       ms.Title,
		Description: ms.Description,
	}
	if ms.DueDate != "" {
		if t, err := time.Parse("2006-01-02", ms.DueDate); err == nil {
			req.DueOn = t.UTC().Format(time.RFC3339)
		}
	}
	return req
}

// PlaceholderMilestone builds the synthetic milestone filling a numbering
// gap, when milestone placeholders are in use.
func (c *Converter) PlaceholderMilestone(iid int) *github.MilestoneRequest {
	return &github.MilestoneRequest{
		Title: idmap.PlaceholderTitle(iid),
	}
}

// Comment converts a note into a comment creation payload. parentRef names
// the owning entity for log lines, e.g. "issue #12".
func (c *Converter) Comment(note *gitlab.Note, parentRef string) *github.CommentRequest {
	return &github.CommentRequest{
		Body: c.rw.Rewrite(note.Body, noteOrigin(note, parentRef), c.cfg.AddAttribution),
	}
}

// labels returns the source labels plus the migrated-marker label.
func (c *Converter) labels(src []string) []string {
	labels := make([]string, 0, len(src)+1)
	labels = append(labels, src...)
	if c.cfg.MigratedLabel != "" {
		labels = append(labels, c.cfg.MigratedLabel)
	}
	return labels
}

// assignees translates assignee usernames through the usermap, dropping
// anyone without a destination identity.
func (c *Converter) assignees(users []gitlab.User) []string {
	var out []string
	for _, u := range users {
		if dest, ok := c.cfg.Usermap[u.Username]; ok {
			out = append(out, dest)
		} else {
			debug.Logf("assignee %q has no destination mapping, dropping\n", u.Username)
		}
	}
	return out
}

func issueOrigin(gl *gitlab.Issue) rewrite.Origin {
	o := rewrite.Origin{Ref: fmt.Sprintf("issue #%d", gl.IID)}
	if gl.Author != nil {
		o.Author = gl.Author.Username
	}
	if gl.CreatedAt != nil {
		o.CreatedAt = *gl.CreatedAt
	}
	return o
}

func mergeOrigin(mr *gitlab.MergeRequest) rewrite.Origin {
	o := rewrite.Origin{Ref: fmt.Sprintf("merge request !%d", mr.IID)}
	if mr.Author != nil {
		o.Author = mr.Author.Username
	}
	if mr.CreatedAt != nil {
		o.CreatedAt = *mr.CreatedAt
	}
	return o
}

func noteOrigin(note *gitlab.Note, parentRef string) rewrite.Origin {
	o := rewrite.Origin{Ref: fmt.Sprintf("note %d on %s", note.ID, parentRef)}
	if note.Author != nil {
		o.Author = note.Author.Username
	}
	if note.CreatedAt != nil {
		o.CreatedAt = *note.CreatedAt
	}
	if note.Position != nil {
		o.Position = &rewrite.DiffPosition{
			BaseSHA: note.Position.BaseSHA,
			HeadSHA: note.Position.HeadSHA,
			OldPath: note.Position.OldPath,
			NewPath: note.Position.NewPath,
			OldLine: note.Position.OldLine,
			NewLine: note.Position.NewLine,
		}
	}
	return o
}
