// Package idmap builds the numeric mappings between GitLab IIDs and GitHub
// numbers that the rest of the migration reads.
//
// GitLab numbers issues, merge requests, and milestones independently, and
// deletions leave gaps in each sequence. GitHub numbers issues and pull
// requests in one shared space, and milestones in another. The maps built
// here reconcile the two schemes: placeholder entries fill source gaps so
// destination numbering stays aligned, and merge request numbers are offset
// past the last issue number because both kinds share the destination space.
//
// Maps are built once, before any destination write, and are read-only
// afterward.
package idmap

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/forgeport/forgeport/internal/debug"
)

// ErrIssueMapRequired is returned when the merge request map is built before
// the issue map. Merge request numbering depends on the final issue count,
// so this ordering is a hard precondition of the run.
var ErrIssueMapRequired = errors.New("idmap: issue map must be built before merge request map")

// PlaceholderPrefix marks synthetic entities created to fill numbering gaps.
const PlaceholderPrefix = "[PLACEHOLDER]"

// PlaceholderTitle returns the title used for the synthetic entity filling
// the gap at the given source IID.
func PlaceholderTitle(iid int) string {
	return fmt.Sprintf("%s for deleted item %d", PlaceholderPrefix, iid)
}

// IsPlaceholderTitle reports whether a title names a gap-filling placeholder.
func IsPlaceholderTitle(title string) bool {
	return strings.HasPrefix(title, PlaceholderPrefix)
}

// SimpleItem is the minimal projection of an entity used for mapping:
// a number and a title.
type SimpleItem struct {
	Number int
	Title  string
}

// Map is a finalized mapping from source IID to destination item for one
// entity kind. Build it with Build; it is read-only afterward.
type Map struct {
	byIID        map[int]SimpleItem
	byTitle      map[string]SimpleItem
	placeholders []int // source IIDs synthesized to fill gaps, ascending
	maxNumber    int   // highest destination number recorded
}

// Options controls map building.
type Options struct {
	// Placeholders enables synthesizing entries for gaps in the source IID
	// sequence so destination numbering stays aligned with source numbering.
	Placeholders bool

	// Offset is added to every freshly allocated destination number.
	// Zero for issues and milestones; the last issue destination number for
	// merge requests, which are numbered after all issues.
	Offset int
}

// Build computes the mapping for one entity kind.
//
// source is the full set of source entities (any order; sorted by IID here).
// existing is the set of entities already present at the destination; a
// title match means the entity was created by an earlier run and its
// destination number is reused instead of allocating a new one. Title
// equality is the only already-migrated signal; source and destination
// numbering schemes are independent, so numbers are never compared.
//
// No destination writes happen here. Placeholder entries record which
// synthetic entities the creation phase must produce.
func Build(source []SimpleItem, existing []SimpleItem, opts Options) *Map {
	m := &Map{
		byIID:   make(map[int]SimpleItem, len(source)),
		byTitle: make(map[string]SimpleItem, len(source)),
	}

	sorted := make([]SimpleItem, len(source))
	copy(sorted, source)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	existingByTitle := make(map[string]SimpleItem, len(existing))
	for _, e := range existing {
		if _, seen := existingByTitle[e.Title]; !seen {
			existingByTitle[e.Title] = e
		}
	}

	expected := 1
	for i := 0; i < len(sorted); {
		s := sorted[i]

		// Malformed input: IIDs are positive and unique, so anything at or
		// below the watermark (a zero from a missing field, a duplicate) can
		// never meet expected and would synthesize placeholders without end.
		if s.Number < expected {
			debug.Warnf("idmap: skipping invalid source iid %d (%q)\n", s.Number, s.Title)
			i++
			continue
		}

		if opts.Placeholders && s.Number != expected {
			// Gap: synthesize a placeholder at the expected index and
			// re-evaluate the real entity against the next index.
			m.record(expected, m.resolve(PlaceholderTitle(expected), expected, opts.Offset, existingByTitle))
			m.placeholders = append(m.placeholders, expected)
			expected++
			continue
		}

		m.record(s.Number, m.resolve(s.Title, expected, opts.Offset, existingByTitle))
		expected++
		i++
	}

	return m
}

// resolve picks the destination item for one source title: the pre-existing
// destination entity when the title already exists there, otherwise a fresh
// allocation at expected+offset.
func (m *Map) resolve(title string, expected, offset int, existingByTitle map[string]SimpleItem) SimpleItem {
	if e, ok := existingByTitle[title]; ok {
		return e
	}
	return SimpleItem{Number: expected + offset, Title: title}
}

func (m *Map) record(iid int, item SimpleItem) {
	m.byIID[iid] = item
	m.byTitle[item.Title] = item
	if item.Number > m.maxNumber {
		m.maxNumber = item.Number
	}
}

// Get returns the destination item for a source IID.
func (m *Map) Get(iid int) (SimpleItem, bool) {
	item, ok := m.byIID[iid]
	return item, ok
}

// Number returns the destination number for a source IID.
func (m *Map) Number(iid int) (int, bool) {
	item, ok := m.byIID[iid]
	return item.Number, ok
}

// ByTitle returns the destination item whose title matches. Used for
// milestone references in the %"title" form.
func (m *Map) ByTitle(title string) (SimpleItem, bool) {
	item, ok := m.byTitle[title]
	return item, ok
}

// MaxNumber returns the highest destination number recorded, zero for an
// empty map.
func (m *Map) MaxNumber() int {
	if m == nil {
		return 0
	}
	return m.maxNumber
}

// Len returns the number of entries, placeholders included.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byIID)
}

// Placeholders returns the source IIDs that were synthesized to fill gaps,
// ascending. The creation phase must produce one closed entity for each.
func (m *Map) Placeholders() []int {
	return m.placeholders
}

// IIDs returns all source IIDs in the map, ascending.
func (m *Map) IIDs() []int {
	iids := make([]int, 0, len(m.byIID))
	for iid := range m.byIID {
		iids = append(iids, iid)
	}
	sort.Ints(iids)
	return iids
}

// Set bundles the three maps one migration run needs. BuildIssues must be
// called before BuildMergeRequests; the milestone map is independent.
type Set struct {
	Milestones    *Map
	Issues        *Map
	MergeRequests *Map
}

// BuildMilestones builds the milestone map. Milestones never get
// placeholders: a deleted milestone leaves nothing worth numbering around,
// and unresolved milestone references render an explicit marker instead.
func (s *Set) BuildMilestones(source, existing []SimpleItem) {
	s.Milestones = Build(source, existing, Options{})
}

// BuildIssues builds the issue map.
func (s *Set) BuildIssues(source, existing []SimpleItem, placeholders bool) {
	s.Issues = Build(source, existing, Options{Placeholders: placeholders})
}

// BuildMergeRequests builds the merge request map. The issue map must exist
// first: merge request destination numbers start after the last issue
// number, because issues and pull requests share GitHub's number space.
func (s *Set) BuildMergeRequests(source, existing []SimpleItem, placeholders bool) error {
	if s.Issues == nil {
		return ErrIssueMapRequired
	}
	s.MergeRequests = Build(source, existing, Options{
		Placeholders: placeholders,
		Offset:       s.Issues.MaxNumber(),
	})
	return nil
}
