// Package rewrite rehomes the free-text bodies of migrated entities:
// user mentions, issue / merge request / milestone references (local and
// cross-project), and attachment links are rewritten so they resolve under
// the destination's numbering and namespaces.
//
// References are resolved in place, one reference kind per pass, each pass
// operating on the output of the previous one. The four sigils (#, !, %, @)
// are not mutually exclusive prefixes; only the sigil plus a word-boundary
// check disambiguates them, so every pass uses a pattern precise enough not
// to consume characters belonging to another pass. Within a pass all
// matches are located first and substituted by offset (see replaceAll).
//
// For fixed maps and a fixed storage backend, Rewrite is a pure
// deterministic function of its inputs; registering attachments in the
// registry is its only side effect.
package rewrite

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/forgeport/forgeport/internal/attachments"
	"github.com/forgeport/forgeport/internal/debug"
	"github.com/forgeport/forgeport/internal/idmap"
)

// Config bundles everything the rewriter consults. It is passed in
// explicitly so the engine carries no global state and tests can construct
// rewriters in isolation.
type Config struct {
	SourceHost    string // e.g. "https://gitlab.com"
	SourceProject string // "group/project" on the source host
	DestOwner     string // destination repository owner
	DestRepo      string // destination repository name

	// Usermap maps source usernames to destination usernames.
	// Empty or nil means no mention rewriting.
	Usermap map[string]string

	// Projectmap maps source "group/project" names to destination
	// "owner/repo" names for cross-project references.
	// Empty or nil means no cross-project rewriting.
	Projectmap map[string]string

	// RewriteAttachments enables the attachment-link pass. When false,
	// upload links are left untouched and nothing is registered.
	RewriteAttachments bool
}

// DiffPosition locates an inline review comment in a diff. Either side may
// be absent (pure addition or deletion).
type DiffPosition struct {
	BaseSHA string
	HeadSHA string
	OldPath string
	NewPath string
	OldLine int
	NewLine int
}

// Origin describes the entity that owns the body being rewritten: exactly
// the fields the attribution line and the unresolved-reference log lines
// use, regardless of which concrete entity kind the caller holds.
type Origin struct {
	Ref       string        // human-readable identity for log lines, e.g. "issue #12"
	Author    string        // source username of the author, empty if unknown
	CreatedAt time.Time     // zero if unknown
	Position  *DiffPosition // non-nil only for inline review comments
}

// mentionRule is one precompiled @source → @destination substitution.
type mentionRule struct {
	re   *regexp.Regexp
	dest string
}

// Rewriter rewrites bodies against frozen identifier maps.
type Rewriter struct {
	cfg      Config
	maps     *idmap.Set
	registry *attachments.Registry
	mentions []mentionRule
}

// Reference patterns. Go's regexp has no lookbehind, so the leading
// boundary is captured and carried into the replacement. A reference
// preceded by a word character (as in "project#5" with an unmapped project)
// deliberately does not match the local patterns.
var (
	crossIssueRe     = regexp.MustCompile(`([\w.-]+/[\w.-]+)#(\d+)\b`)
	localIssueRe     = regexp.MustCompile(`(^|\W)#(\d+)\b`)
	crossMergeRe     = regexp.MustCompile(`([\w.-]+/[\w.-]+)!(\d+)\b`)
	localMergeRe     = regexp.MustCompile(`(^|\W)!(\d+)\b`)
	crossMsTitleRe   = regexp.MustCompile(`([\w.-]+/[\w.-]+)%"([^"]+)"`)
	crossMsNumberRe  = regexp.MustCompile(`([\w.-]+/[\w.-]+)%(\d+)\b`)
	localMsTitleRe   = regexp.MustCompile(`(^|\W)%"([^"]+)"`)
	localMsNumberRe  = regexp.MustCompile(`(^|\W)%(\d+)\b`)
	attachmentLinkRe = regexp.MustCompile(`(!?)\[([^\]]*)\]\((/uploads/[^)\s]+)\)`)
)

// New creates a rewriter over the given frozen maps. The registry may be
// nil when cfg.RewriteAttachments is false.
func New(cfg Config, maps *idmap.Set, registry *attachments.Registry) *Rewriter {
	r := &Rewriter{
		cfg:      cfg,
		maps:     maps,
		registry: registry,
	}

	// Precompile one pattern per usermap pair, in sorted order so the
	// mention pass is deterministic. Usernames may contain "-" and ".",
	// so a \b boundary is not enough: @alice must not match inside
	// @alice-smith. The trailing character is captured and re-emitted.
	users := make([]string, 0, len(cfg.Usermap))
	for u := range cfg.Usermap {
		users = append(users, u)
	}
	sort.Strings(users)
	for _, u := range users {
		r.mentions = append(r.mentions, mentionRule{
			re:   regexp.MustCompile(`(^|\W)@` + regexp.QuoteMeta(u) + `($|[^\w.-])`),
			dest: cfg.Usermap[u],
		})
	}

	return r
}

// Rewrite returns body with all references resolved for the destination.
// When addAttribution is set and the origin carries a known author and
// creation time, an attribution line is prepended first, so it too goes
// through the mention pass.
//
// Unresolved issue and merge request references are left unchanged and
// logged: they may simply not have been mapped. Unresolved milestone
// references render an explicit deleted-milestone marker: the milestone is
// known to be gone, and a stale reference must never silently point at the
// wrong entity.
func (r *Rewriter) Rewrite(body string, origin Origin, addAttribution bool) string {
	text := body

	if addAttribution {
		if line := r.attribution(origin); line != "" {
			text = line + "\n\n" + text
		}
	}

	text = r.rewriteMentions(text)
	text = r.rewriteIssueRefs(text, origin)
	text = r.rewriteMilestoneRefs(text, origin)
	// Label references (~label) are passed through untouched: the sigil is
	// lexically identical to strikethrough markdown and cannot be told
	// apart without a full markdown parse. Known limitation.
	text = r.rewriteMergeRefs(text, origin)
	if r.cfg.RewriteAttachments {
		text = r.rewriteAttachments(text)
	}

	return text
}

func (r *Rewriter) rewriteMentions(text string) string {
	for _, rule := range r.mentions {
		text = replaceAll(rule.re, text, func(groups []string) (string, bool) {
			return groups[1] + "@" + rule.dest + groups[2], true
		})
	}
	return text
}

// rewriteIssueRefs resolves cross-project "project#n" references first,
// then same-project "#n" references.
//
// A cross-project reference is never renumbered: no identifier map exists
// for foreign projects, so only the project name is substituted and the
// number carried verbatim.
func (r *Rewriter) rewriteIssueRefs(text string, origin Origin) string {
	if len(r.cfg.Projectmap) > 0 {
		text = replaceAll(crossIssueRe, text, func(groups []string) (string, bool) {
			dest, ok := r.cfg.Projectmap[groups[1]]
			if !ok {
				return "", false
			}
			return dest + "#" + groups[2], true
		})
	}

	return replaceAll(localIssueRe, text, func(groups []string) (string, bool) {
		iid := mustAtoi(groups[2])
		item, ok := r.maps.Issues.Get(iid)
		if !ok {
			debug.Warnf("unresolved issue reference #%d in %s, leaving unchanged\n", iid, origin.Ref)
			return "", false
		}
		return fmt.Sprintf("%s#%d", groups[1], item.Number), true
	})
}

// rewriteMergeRefs mirrors rewriteIssueRefs with the ! sigil and the merge
// request map.
func (r *Rewriter) rewriteMergeRefs(text string, origin Origin) string {
	if len(r.cfg.Projectmap) > 0 {
		text = replaceAll(crossMergeRe, text, func(groups []string) (string, bool) {
			dest, ok := r.cfg.Projectmap[groups[1]]
			if !ok {
				return "", false
			}
			return dest + "!" + groups[2], true
		})
	}

	return replaceAll(localMergeRe, text, func(groups []string) (string, bool) {
		iid := mustAtoi(groups[2])
		item, ok := r.maps.MergeRequests.Get(iid)
		if !ok {
			debug.Warnf("unresolved merge request reference !%d in %s, leaving unchanged\n", iid, origin.Ref)
			return "", false
		}
		// The destination shares one number space for issues and pull
		// requests, so the rewritten reference uses the # sigil.
		return fmt.Sprintf("%s#%d", groups[1], item.Number), true
	})
}

// rewriteMilestoneRefs resolves %"title" and %n references.
//
// Cross-project references become markdown links into the mapped
// destination project's milestone listing: foreign milestone numbers are
// unknown, so only a human-readable link can be produced. Same-project
// references resolve through the milestone map into a direct milestone
// link; unresolved ones render an explicit deleted-milestone marker.
func (r *Rewriter) rewriteMilestoneRefs(text string, origin Origin) string {
	if len(r.cfg.Projectmap) > 0 {
		text = replaceAll(crossMsTitleRe, text, func(groups []string) (string, bool) {
			dest, ok := r.cfg.Projectmap[groups[1]]
			if !ok {
				return "", false
			}
			return fmt.Sprintf("[%s%%%q](https://github.com/%s/milestones)", dest, groups[2], dest), true
		})
		text = replaceAll(crossMsNumberRe, text, func(groups []string) (string, bool) {
			dest, ok := r.cfg.Projectmap[groups[1]]
			if !ok {
				return "", false
			}
			return fmt.Sprintf("[%s%%%s](https://github.com/%s/milestones)", dest, groups[2], dest), true
		})
	}

	text = replaceAll(localMsTitleRe, text, func(groups []string) (string, bool) {
		item, ok := r.maps.Milestones.ByTitle(groups[2])
		if !ok {
			debug.Warnf("unresolved milestone reference %%%q in %s, marking deleted\n", groups[2], origin.Ref)
			return fmt.Sprintf("%s(deleted milestone %q)", groups[1], groups[2]), true
		}
		return groups[1] + r.milestoneLink(item), true
	})

	return replaceAll(localMsNumberRe, text, func(groups []string) (string, bool) {
		iid := mustAtoi(groups[2])
		item, ok := r.maps.Milestones.Get(iid)
		if !ok {
			debug.Warnf("unresolved milestone reference %%%d in %s, marking deleted\n", iid, origin.Ref)
			return fmt.Sprintf("%s(deleted milestone %%%d)", groups[1], iid), true
		}
		return groups[1] + r.milestoneLink(item), true
	})
}

func (r *Rewriter) milestoneLink(item idmap.SimpleItem) string {
	return fmt.Sprintf("[%s](https://github.com/%s/%s/milestone/%d)",
		item.Title, r.cfg.DestOwner, r.cfg.DestRepo, item.Number)
}

// rewriteAttachments rewrites "[name](/uploads/...)" links, image and
// plain, to their destination locations, registering each origin in the
// registry. The first occurrence of an origin computes the destination;
// every later occurrence reuses it.
func (r *Rewriter) rewriteAttachments(text string) string {
	return replaceAll(attachmentLinkRe, text, func(groups []string) (string, bool) {
		meta := r.registry.Register(groups[3])
		return fmt.Sprintf("%s[%s](%s)", groups[1], groups[2], meta.Destination), true
	})
}

// mustAtoi converts digits already validated by a \d+ match.
func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
