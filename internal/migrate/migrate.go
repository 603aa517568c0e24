// Package migrate orchestrates one migration run.
//
// The run has three strictly ordered phases. First all three identifier
// maps are built from fully enumerated source and destination listings;
// merge request numbering depends on the final issue count, so nothing is
// written before every map is frozen. Then entities are converted and
// created against the frozen maps, which also fills the attachment
// registry as bodies are rewritten. Last, the registry is drained and the
// attachment bytes are transferred.
package migrate

import (
	"context"
	"fmt"

	"github.com/forgeport/forgeport/internal/attachments"
	"github.com/forgeport/forgeport/internal/config"
	"github.com/forgeport/forgeport/internal/convert"
	"github.com/forgeport/forgeport/internal/debug"
	"github.com/forgeport/forgeport/internal/github"
	"github.com/forgeport/forgeport/internal/gitlab"
	"github.com/forgeport/forgeport/internal/idmap"
	"github.com/forgeport/forgeport/internal/rewrite"
)

// Source is the read side of a migration: an already-paginated view of the
// source project. Implemented by *gitlab.Client.
type Source interface {
	FetchIssues(ctx context.Context) ([]gitlab.Issue, error)
	FetchMergeRequests(ctx context.Context) ([]gitlab.MergeRequest, error)
	FetchMilestones(ctx context.Context) ([]gitlab.Milestone, error)
	FetchIssueNotes(ctx context.Context, iid int) ([]gitlab.Note, error)
	FetchMergeRequestNotes(ctx context.Context, iid int) ([]gitlab.Note, error)
	DownloadAttachment(ctx context.Context, origin string) ([]byte, error)
}

// Destination is the write side of a migration. Implemented by
// *github.Client.
type Destination interface {
	ListIssues(ctx context.Context) ([]github.Issue, error)
	ListMilestones(ctx context.Context) ([]github.Milestone, error)
	CreateIssue(ctx context.Context, req *github.IssueRequest) (*github.Issue, error)
	UpdateIssueState(ctx context.Context, number int, state string) error
	CreateMilestone(ctx context.Context, req *github.MilestoneRequest) (*github.Milestone, error)
	UpdateMilestoneState(ctx context.Context, number int, state string) error
	CreateComment(ctx context.Context, issueNumber int, req *github.CommentRequest) (*github.Comment, error)
}

// Stats summarizes what a run did.
type Stats struct {
	Milestones    int // milestones created
	Issues        int // issues created
	MergeRequests int // merge requests created (as issues)
	Placeholders  int // synthetic gap fillers created
	Comments      int // comments created
	Skipped       int // entities already present from an earlier run
	Attachments   attachments.TransferStats
}

// Runner drives one migration run. Create with NewRunner, call Run once.
type Runner struct {
	cfg   *config.Settings
	src   Source
	dst   Destination
	store attachments.Storer // nil unless attachments: upload

	maps     idmap.Set
	registry *attachments.Registry
	conv     *convert.Converter

	// Source entities captured during map building, reused by creation.
	srcMilestones []gitlab.Milestone
	srcIssues     []gitlab.Issue
	srcMerges     []gitlab.MergeRequest

	// Destination titles already present, for idempotent re-runs.
	existingIssues     map[string]bool
	existingMilestones map[string]bool

	stats Stats
}

// NewRunner wires a run from settings and the two API clients. store is
// required only for the upload attachment mode.
func NewRunner(cfg *config.Settings, src Source, dst Destination, store attachments.Storer) *Runner {
	return &Runner{cfg: cfg, src: src, dst: dst, store: store}
}

// Maps exposes the frozen identifier maps after BuildMaps, for reporting.
func (r *Runner) Maps() *idmap.Set {
	return &r.maps
}

// BuildMaps enumerates all source and destination collections and builds
// the three identifier maps. No destination writes happen here. The issue
// map is always built before the merge request map; their shared
// destination number space makes that ordering a hard precondition.
func (r *Runner) BuildMaps(ctx context.Context) error {
	srcMilestones, err := r.src.FetchMilestones(ctx)
	if err != nil {
		return fmt.Errorf("fetching source milestones: %w", err)
	}
	srcIssues, err := r.src.FetchIssues(ctx)
	if err != nil {
		return fmt.Errorf("fetching source issues: %w", err)
	}
	srcMerges, err := r.src.FetchMergeRequests(ctx)
	if err != nil {
		return fmt.Errorf("fetching source merge requests: %w", err)
	}

	dstMilestones, err := r.dst.ListMilestones(ctx)
	if err != nil {
		return fmt.Errorf("listing destination milestones: %w", err)
	}
	dstIssues, err := r.dst.ListIssues(ctx)
	if err != nil {
		return fmt.Errorf("listing destination issues: %w", err)
	}

	r.srcMilestones = srcMilestones
	r.srcIssues = srcIssues
	r.srcMerges = srcMerges

	r.existingMilestones = make(map[string]bool, len(dstMilestones))
	existingMsItems := make([]idmap.SimpleItem, 0, len(dstMilestones))
	for _, m := range dstMilestones {
		r.existingMilestones[m.Title] = true
		existingMsItems = append(existingMsItems, idmap.SimpleItem{Number: m.Number, Title: m.Title})
	}

	// Destination issues and pull requests share one number space, so both
	// participate in already-migrated matching.
	r.existingIssues = make(map[string]bool, len(dstIssues))
	existingIssueItems := make([]idmap.SimpleItem, 0, len(dstIssues))
	for _, i := range dstIssues {
		r.existingIssues[i.Title] = true
		existingIssueItems = append(existingIssueItems, idmap.SimpleItem{Number: i.Number, Title: i.Title})
	}

	r.maps.BuildMilestones(milestoneItems(srcMilestones), existingMsItems)
	r.maps.BuildIssues(issueItems(srcIssues), existingIssueItems, r.cfg.Placeholders)
	if err := r.maps.BuildMergeRequests(mergeItems(srcMerges), existingIssueItems, r.cfg.Placeholders); err != nil {
		return err
	}

	debug.Logf("maps built: %d milestones, %d issues (%d placeholders), %d merge requests (%d placeholders)\n",
		r.maps.Milestones.Len(),
		r.maps.Issues.Len(), len(r.maps.Issues.Placeholders()),
		r.maps.MergeRequests.Len(), len(r.maps.MergeRequests.Placeholders()))
	return nil
}

// Run performs the full migration and returns its statistics.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	if err := r.BuildMaps(ctx); err != nil {
		return nil, err
	}

	backend := r.backend()
	r.registry = attachments.NewRegistry(backend)

	rw := rewrite.New(rewrite.Config{
		SourceHost:         r.cfg.GitLab.URL,
		SourceProject:      r.cfg.GitLab.Project,
		DestOwner:          r.cfg.GitHub.Owner,
		DestRepo:           r.cfg.GitHub.Repo,
		Usermap:            r.cfg.Usermap,
		Projectmap:         r.cfg.Projectmap,
		RewriteAttachments: r.cfg.Attachments != config.AttachmentsOff,
	}, &r.maps, r.registry)

	r.conv = convert.New(convert.Config{
		Usermap:        r.cfg.Usermap,
		AddAttribution: r.cfg.Attribution,
		MigratedLabel:  r.cfg.MigratedLabel,
	}, &r.maps, rw)

	if err := r.createMilestones(ctx); err != nil {
		return nil, err
	}
	if err := r.createIssues(ctx); err != nil {
		return nil, err
	}
	if err := r.createMergeRequests(ctx); err != nil {
		return nil, err
	}
	if err := r.transferAttachments(ctx); err != nil {
		return nil, err
	}

	return &r.stats, nil
}

// backend selects the storage backend for the configured attachment mode.
// AttachmentsOff still gets a passthrough backend; it is simply never
// invoked because the rewriter skips the attachment pass.
func (r *Runner) backend() attachments.Backend {
	if r.cfg.Attachments == config.AttachmentsUpload {
		return &attachments.UploadBackend{
			BaseURL: r.cfg.Storage.BaseURL,
			Prefix:  r.cfg.Storage.Prefix,
		}
	}
	return &attachments.PassthroughBackend{
		SourceHost:  r.cfg.GitLab.URL,
		ProjectPath: r.cfg.GitLab.Project,
	}
}

func milestoneItems(ms []gitlab.Milestone) []idmap.SimpleItem {
	items := make([]idmap.SimpleItem, 0, len(ms))
	for _, m := range ms {
		items = append(items, idmap.SimpleItem{Number: m.IID, Title: m.Title})
	}
	return items
}

func issueItems(issues []gitlab.Issue) []idmap.SimpleItem {
	items := make([]idmap.SimpleItem, 0, len(issues))
	for _, i := range issues {
		items = append(items, idmap.SimpleItem{Number: i.IID, Title: i.Title})
	}
	return items
}

func mergeItems(mrs []gitlab.MergeRequest) []idmap.SimpleItem {
	items := make([]idmap.SimpleItem, 0, len(mrs))
	for _, m := range mrs {
		items = append(items, idmap.SimpleItem{Number: m.IID, Title: m.Title})
	}
	return items
}
