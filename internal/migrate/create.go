package migrate

import (
	"context"
	"fmt"

	"github.com/forgeport/forgeport/internal/attachments"
	"github.com/forgeport/forgeport/internal/config"
	"github.com/forgeport/forgeport/internal/convert"
	"github.com/forgeport/forgeport/internal/debug"
	"github.com/forgeport/forgeport/internal/gitlab"
	"github.com/forgeport/forgeport/internal/idmap"
)

// createMilestones creates every source milestone not already present at
// the destination, closing the ones closed at the source (the create
// endpoint only produces open milestones).
func (r *Runner) createMilestones(ctx context.Context) error {
	for i := range r.srcMilestones {
		ms := &r.srcMilestones[i]

		if r.existingMilestones[ms.Title] {
			debug.Logf("milestone %q already exists, skipping\n", ms.Title)
			r.stats.Skipped++
			continue
		}

		created, err := r.dst.CreateMilestone(ctx, r.conv.Milestone(ms))
		if err != nil {
			return fmt.Errorf("creating milestone %q: %w", ms.Title, err)
		}
		r.stats.Milestones++

		if want, ok := r.maps.Milestones.Number(ms.IID); ok && created.Number != want {
			debug.Warnf("milestone %q created as %d, map expected %d\n", ms.Title, created.Number, want)
		}

		if ms.State == "closed" {
			if err := r.dst.UpdateMilestoneState(ctx, created.Number, "closed"); err != nil {
				return fmt.Errorf("closing milestone %q: %w", ms.Title, err)
			}
		}

		debug.PrintNormal("milestone %q -> %d\n", ms.Title, created.Number)
	}
	return nil
}

// createIssues walks the issue map in ascending IID order, creating real
// issues and gap-filling placeholders so each lands on its expected
// destination number.
func (r *Runner) createIssues(ctx context.Context) error {
	byIID := make(map[int]*gitlab.Issue, len(r.srcIssues))
	for i := range r.srcIssues {
		byIID[r.srcIssues[i].IID] = &r.srcIssues[i]
	}

	placeholders := make(map[int]bool, len(r.maps.Issues.Placeholders()))
	for _, iid := range r.maps.Issues.Placeholders() {
		placeholders[iid] = true
	}

	for _, iid := range r.maps.Issues.IIDs() {
		if placeholders[iid] {
			if err := r.createPlaceholder(ctx, iid, r.maps.Issues); err != nil {
				return err
			}
			continue
		}

		issue := byIID[iid]
		if r.existingIssues[issue.Title] {
			debug.Logf("issue #%d %q already exists, skipping\n", iid, issue.Title)
			r.stats.Skipped++
			continue
		}

		created, err := r.dst.CreateIssue(ctx, r.conv.Issue(issue))
		if err != nil {
			return fmt.Errorf("creating issue #%d %q: %w", iid, issue.Title, err)
		}
		r.stats.Issues++

		if want, ok := r.maps.Issues.Number(iid); ok && created.Number != want {
			debug.Warnf("issue #%d created as #%d, map expected #%d\n", iid, created.Number, want)
		}

		notes, err := r.src.FetchIssueNotes(ctx, iid)
		if err != nil {
			return fmt.Errorf("fetching notes for issue #%d: %w", iid, err)
		}
		if err := r.createComments(ctx, created.Number, notes, fmt.Sprintf("issue #%d", iid)); err != nil {
			return err
		}

		if convert.DestState(issue.State) == "closed" {
			if err := r.dst.UpdateIssueState(ctx, created.Number, "closed"); err != nil {
				return fmt.Errorf("closing issue #%d: %w", created.Number, err)
			}
		}

		debug.PrintNormal("issue #%d -> #%d\n", iid, created.Number)
	}
	return nil
}

// createMergeRequests mirrors createIssues for the merge request map.
// Merge requests are created as issues: the destination cannot reconstruct
// pull requests without branches, and what matters is consuming the
// expected numbers in the shared space.
func (r *Runner) createMergeRequests(ctx context.Context) error {
	byIID := make(map[int]*gitlab.MergeRequest, len(r.srcMerges))
	for i := range r.srcMerges {
		byIID[r.srcMerges[i].IID] = &r.srcMerges[i]
	}

	placeholders := make(map[int]bool, len(r.maps.MergeRequests.Placeholders()))
	for _, iid := range r.maps.MergeRequests.Placeholders() {
		placeholders[iid] = true
	}

	for _, iid := range r.maps.MergeRequests.IIDs() {
		if placeholders[iid] {
			if err := r.createPlaceholder(ctx, iid, r.maps.MergeRequests); err != nil {
				return err
			}
			continue
		}

		mr := byIID[iid]
		if r.existingIssues[mr.Title] {
			debug.Logf("merge request !%d %q already exists, skipping\n", iid, mr.Title)
			r.stats.Skipped++
			continue
		}

		created, err := r.dst.CreateIssue(ctx, r.conv.MergeRequest(mr))
		if err != nil {
			return fmt.Errorf("creating merge request !%d %q: %w", iid, mr.Title, err)
		}
		r.stats.MergeRequests++

		if want, ok := r.maps.MergeRequests.Number(iid); ok && created.Number != want {
			debug.Warnf("merge request !%d created as #%d, map expected #%d\n", iid, created.Number, want)
		}

		notes, err := r.src.FetchMergeRequestNotes(ctx, iid)
		if err != nil {
			return fmt.Errorf("fetching notes for merge request !%d: %w", iid, err)
		}
		if err := r.createComments(ctx, created.Number, notes, fmt.Sprintf("merge request !%d", iid)); err != nil {
			return err
		}

		if convert.DestState(mr.State) == "closed" {
			if err := r.dst.UpdateIssueState(ctx, created.Number, "closed"); err != nil {
				return fmt.Errorf("closing merge request #%d: %w", created.Number, err)
			}
		}

		debug.PrintNormal("merge request !%d -> #%d\n", iid, created.Number)
	}
	return nil
}

// createPlaceholder creates the synthetic closed issue filling one
// numbering gap.
func (r *Runner) createPlaceholder(ctx context.Context, iid int, m *idmap.Map) error {
	title := idmap.PlaceholderTitle(iid)
	if r.existingIssues[title] {
		debug.Logf("placeholder %q already exists, skipping\n", title)
		r.stats.Skipped++
		return nil
	}

	created, err := r.dst.CreateIssue(ctx, r.conv.PlaceholderIssue(iid))
	if err != nil {
		return fmt.Errorf("creating placeholder for %d: %w", iid, err)
	}
	if err := r.dst.UpdateIssueState(ctx, created.Number, "closed"); err != nil {
		return fmt.Errorf("closing placeholder #%d: %w", created.Number, err)
	}
	r.stats.Placeholders++

	if want, ok := m.Number(iid); ok && created.Number != want {
		debug.Warnf("placeholder %d created as #%d, map expected #%d\n", iid, created.Number, want)
	}
	return nil
}

// createComments converts and creates the non-system notes of one entity.
// System notes are GitLab activity chatter (label changes, branch pushes)
// with no equivalent worth migrating.
func (r *Runner) createComments(ctx context.Context, issueNumber int, notes []gitlab.Note, parentRef string) error {
	for i := range notes {
		note := &notes[i]
		if note.System {
			continue
		}
		if _, err := r.dst.CreateComment(ctx, issueNumber, r.conv.Comment(note, parentRef)); err != nil {
			return fmt.Errorf("creating comment on %s: %w", parentRef, err)
		}
		r.stats.Comments++
	}
	return nil
}

// transferAttachments drains the registry and moves bytes for the upload
// mode. Passthrough mode registers attachments (their links were
// rewritten) but transfers nothing.
func (r *Runner) transferAttachments(ctx context.Context) error {
	if r.cfg.Attachments != config.AttachmentsUpload || r.registry.Len() == 0 {
		return nil
	}
	if r.store == nil {
		return fmt.Errorf("attachments: upload configured but no storer wired")
	}

	stats, err := attachments.Transfer(ctx, r.registry.Drain(),
		r.src.DownloadAttachment, r.store, attachments.DefaultTransferConcurrency)
	r.stats.Attachments = stats
	return err
}
