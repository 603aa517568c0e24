package migrate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeport/forgeport/internal/attachments"
	"github.com/forgeport/forgeport/internal/config"
	"github.com/forgeport/forgeport/internal/github"
	"github.com/forgeport/forgeport/internal/gitlab"
	"github.com/forgeport/forgeport/internal/idmap"
)

// fakeSource serves canned project collections.
type fakeSource struct {
	milestones  []gitlab.Milestone
	issues      []gitlab.Issue
	merges      []gitlab.MergeRequest
	issueNotes  map[int][]gitlab.Note
	mergeNotes  map[int][]gitlab.Note
	attachments map[string][]byte
}

func (f *fakeSource) FetchIssues(ctx context.Context) ([]gitlab.Issue, error) {
	return f.issues, nil
}

func (f *fakeSource) FetchMergeRequests(ctx context.Context) ([]gitlab.MergeRequest, error) {
	return f.merges, nil
}

func (f *fakeSource) FetchMilestones(ctx context.Context) ([]gitlab.Milestone, error) {
	return f.milestones, nil
}

func (f *fakeSource) FetchIssueNotes(ctx context.Context, iid int) ([]gitlab.Note, error) {
	return f.issueNotes[iid], nil
}

func (f *fakeSource) FetchMergeRequestNotes(ctx context.Context, iid int) ([]gitlab.Note, error) {
	return f.mergeNotes[iid], nil
}

func (f *fakeSource) DownloadAttachment(ctx context.Context, origin string) ([]byte, error) {
	data, ok := f.attachments[origin]
	if !ok {
		return nil, fmt.Errorf("no attachment at %s", origin)
	}
	return data, nil
}

// createdIssue records one CreateIssue call and the final state of the
// resulting issue.
type createdIssue struct {
	number int
	req    github.IssueRequest
	state  string
}

// fakeDestination allocates sequential numbers the way the real API does:
// next number is one past the highest ever used, issues and pull requests
// counted together.
type fakeDestination struct {
	existingIssues     []github.Issue
	existingMilestones []github.Milestone

	next       int
	nextMs     int
	created    []*createdIssue
	milestones []*github.Milestone
	msStates   map[int]string
	comments   map[int][]string
}

func newFakeDestination(existing ...github.Issue) *fakeDestination {
	next := 1
	for _, i := range existing {
		if i.Number >= next {
			next = i.Number + 1
		}
	}
	return &fakeDestination{
		existingIssues: existing,
		next:           next,
		nextMs:         1,
		msStates:       map[int]string{},
		comments:       map[int][]string{},
	}
}

func (f *fakeDestination) ListIssues(ctx context.Context) ([]github.Issue, error) {
	return f.existingIssues, nil
}

func (f *fakeDestination) ListMilestones(ctx context.Context) ([]github.Milestone, error) {
	return f.existingMilestones, nil
}

func (f *fakeDestination) CreateIssue(ctx context.Context, req *github.IssueRequest) (*github.Issue, error) {
	c := &createdIssue{number: f.next, req: *req, state: "open"}
	f.next++
	f.created = append(f.created, c)
	return &github.Issue{Number: c.number, Title: req.Title}, nil
}

func (f *fakeDestination) UpdateIssueState(ctx context.Context, number int, state string) error {
	for _, c := range f.created {
		if c.number == number {
			c.state = state
			return nil
		}
	}
	return fmt.Errorf("no issue #%d", number)
}

func (f *fakeDestination) CreateMilestone(ctx context.Context, req *github.MilestoneRequest) (*github.Milestone, error) {
	m := &github.Milestone{Number: f.nextMs, Title: req.Title}
	f.nextMs++
	f.milestones = append(f.milestones, m)
	f.msStates[m.Number] = "open"
	return m, nil
}

func (f *fakeDestination) UpdateMilestoneState(ctx context.Context, number int, state string) error {
	if _, ok := f.msStates[number]; !ok {
		return fmt.Errorf("no milestone %d", number)
	}
	f.msStates[number] = state
	return nil
}

func (f *fakeDestination) CreateComment(ctx context.Context, issueNumber int, req *github.CommentRequest) (*github.Comment, error) {
	f.comments[issueNumber] = append(f.comments[issueNumber], req.Body)
	return &github.Comment{ID: len(f.comments[issueNumber])}, nil
}

func (f *fakeDestination) byTitle(title string) *createdIssue {
	for _, c := range f.created {
		if c.req.Title == title {
			return c
		}
	}
	return nil
}

func testSettings() *config.Settings {
	s := config.Default()
	s.GitLab.Token = "t"
	s.GitLab.Project = "group/project"
	s.GitHub.Token = "t"
	s.GitHub.Owner = "owner"
	s.GitHub.Repo = "repo"
	s.Attribution = false
	return s
}

func testTime() *time.Time {
	t := time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC)
	return &t
}

// testSource is a project with one numbering gap (issue 2 deleted), a
// closed issue, comments including a system note, and two merge requests.
func testSource() *fakeSource {
	return &fakeSource{
		milestones: []gitlab.Milestone{
			{IID: 1, Title: "v1.0", State: "closed", DueDate: "2021-06-01"},
			{IID: 2, Title: "v2.0", State: "active"},
		},
		issues: []gitlab.Issue{
			{IID: 1, Title: "first", Description: "see !1", State: "opened"},
			{IID: 3, Title: "third", Description: "see #1", State: "closed"},
		},
		merges: []gitlab.MergeRequest{
			{IID: 1, Title: "mr one", State: "merged", SourceBranch: "f", TargetBranch: "main"},
		},
		issueNotes: map[int][]gitlab.Note{
			3: {
				{ID: 1, Body: "a comment on #3", Author: &gitlab.User{Username: "alice"}, CreatedAt: testTime()},
				{ID: 2, Body: "changed the description", System: true},
			},
		},
		mergeNotes: map[int][]gitlab.Note{},
	}
}

func TestRunFullMigration(t *testing.T) {
	src := testSource()
	dst := newFakeDestination()
	r := NewRunner(testSettings(), src, dst, nil)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Milestones)
	assert.Equal(t, 2, stats.Issues)
	assert.Equal(t, 1, stats.MergeRequests)
	assert.Equal(t, 1, stats.Placeholders)
	assert.Equal(t, 1, stats.Comments, "the system note must not be migrated")
	assert.Equal(t, 0, stats.Skipped)

	// Numbers land where the maps promised: issues 1..3 with the
	// placeholder on 2, the merge request right after.
	require.Len(t, dst.created, 4)
	assert.Equal(t, 1, dst.byTitle("first").number)
	assert.Equal(t, 3, dst.byTitle("third").number)
	assert.Equal(t, 2, dst.byTitle(idmap.PlaceholderTitle(2)).number)
	assert.Equal(t, 4, dst.byTitle("mr one").number)

	// State propagation.
	assert.Equal(t, "open", dst.byTitle("first").state)
	assert.Equal(t, "closed", dst.byTitle("third").state)
	assert.Equal(t, "closed", dst.byTitle(idmap.PlaceholderTitle(2)).state, "placeholders are created closed")
	assert.Equal(t, "closed", dst.byTitle("mr one").state, "merged source state closes the issue")
	assert.Equal(t, "closed", dst.msStates[1])
	assert.Equal(t, "open", dst.msStates[2])

	// Body rewriting happened against the frozen maps: !1 landed on #4.
	assert.Contains(t, dst.byTitle("first").req.Body, "see #4")
	assert.Contains(t, dst.byTitle("third").req.Body, "see #1")

	// The comment reached the issue it belongs to.
	require.Len(t, dst.comments[3], 1)
	assert.Contains(t, dst.comments[3][0], "a comment on #3")
}

func TestRunIdempotentRerun(t *testing.T) {
	src := testSource()

	// First run against an empty destination.
	first := newFakeDestination()
	_, err := NewRunner(testSettings(), src, first, nil).Run(context.Background())
	require.NoError(t, err)

	// Second run against a destination holding everything the first
	// created. Milestones carry over too.
	var existing []github.Issue
	for _, c := range first.created {
		existing = append(existing, github.Issue{Number: c.number, Title: c.req.Title})
	}
	second := newFakeDestination(existing...)
	for _, m := range first.milestones {
		second.existingMilestones = append(second.existingMilestones, *m)
	}

	stats, err := NewRunner(testSettings(), src, second, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, second.created, "rerun must create nothing")
	assert.Empty(t, second.milestones)
	assert.Equal(t, 0, stats.Issues+stats.MergeRequests+stats.Milestones+stats.Placeholders)
	assert.Equal(t, 6, stats.Skipped, "2 milestones, 2 issues, 1 placeholder, 1 merge request")
}

// TestRunResumesInterruptedMigration verifies a rerun after a partial run:
// the already-created issue keeps its number via title matching and the
// remaining entities land on their originally planned numbers.
func TestRunResumesInterruptedMigration(t *testing.T) {
	src := testSource()

	// A previous run got as far as issue 1 before dying.
	dst := newFakeDestination(github.Issue{Number: 1, Title: "first"})
	r := NewRunner(testSettings(), src, dst, nil)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Nil(t, dst.byTitle("first"), "already-created issue must not be recreated")
	assert.Equal(t, 2, dst.byTitle(idmap.PlaceholderTitle(2)).number)
	assert.Equal(t, 3, dst.byTitle("third").number)
	assert.Equal(t, 4, dst.byTitle("mr one").number)
}

func TestRunUploadsAttachments(t *testing.T) {
	src := testSource()
	src.issues[0].Description = "shot: ![s](/uploads/0a1b/shot.png)"
	src.attachments = map[string][]byte{
		"/uploads/0a1b/shot.png": []byte("png bytes"),
	}

	cfg := testSettings()
	cfg.Attachments = config.AttachmentsUpload
	cfg.Storage.BaseURL = "https://bucket.example.com"

	stored := map[string]int{}
	store := func(ctx context.Context, meta attachments.Metadata, data []byte) error {
		stored[meta.Origin] = len(data)
		return nil
	}

	dst := newFakeDestination()
	stats, err := NewRunner(cfg, src, dst, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Attachments.Transferred)
	assert.Equal(t, int64(9), stats.Attachments.Bytes)
	assert.Equal(t, 9, stored["/uploads/0a1b/shot.png"])

	assert.Contains(t, dst.byTitle("first").req.Body, "https://bucket.example.com/",
		"attachment link must point at the bucket")
	assert.NotContains(t, dst.byTitle("first").req.Body, "](/uploads/")
}

func TestRunUploadWithoutStorer(t *testing.T) {
	src := testSource()
	src.issues[0].Description = "![s](/uploads/0a1b/shot.png)"

	cfg := testSettings()
	cfg.Attachments = config.AttachmentsUpload
	cfg.Storage.BaseURL = "https://bucket.example.com"

	_, err := NewRunner(cfg, src, newFakeDestination(), nil).Run(context.Background())
	assert.Error(t, err, "upload mode with no storer must fail, not silently drop bytes")
}

func TestBuildMapsWritesNothing(t *testing.T) {
	src := testSource()
	dst := newFakeDestination()
	r := NewRunner(testSettings(), src, dst, nil)

	require.NoError(t, r.BuildMaps(context.Background()))

	assert.Empty(t, dst.created)
	assert.Empty(t, dst.milestones)

	maps := r.Maps()
	assert.Equal(t, 2, maps.Milestones.Len())
	assert.Equal(t, 3, maps.Issues.Len())
	assert.Equal(t, []int{2}, maps.Issues.Placeholders())
	assert.Equal(t, 1, maps.MergeRequests.Len())
}
