package rewrite

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// attribution builds the line recording the original author and timestamp.
// Entity creation at the destination happens under a single migration
// identity, so authorship would otherwise be lost.
//
// Returns "" when the origin lacks an author or a creation time.
func (r *Rewriter) attribution(origin Origin) string {
	if origin.Author == "" || origin.CreatedAt.IsZero() {
		return ""
	}

	line := fmt.Sprintf("In GitLab by @%s on %s",
		origin.Author, origin.CreatedAt.UTC().Format(time.RFC1123))

	if origin.Position != nil {
		if link := r.positionLink(origin.Position); link != "" {
			line += "\n\n" + link
		}
	}

	return line
}

// positionLink builds a link to the commented file and line in the
// destination's compare view. The new side of the diff is preferred; the
// old side is the fallback. When neither side resolves, only the raw
// commit range is linked.
func (r *Rewriter) positionLink(pos *DiffPosition) string {
	if pos.BaseSHA == "" || pos.HeadSHA == "" {
		return ""
	}

	compare := fmt.Sprintf("https://github.com/%s/%s/compare/%s...%s",
		r.cfg.DestOwner, r.cfg.DestRepo, pos.BaseSHA, pos.HeadSHA)

	// GitHub anchors diff files by a hash of the file path: R-side line
	// numbers for the new file, L-side for the old.
	switch {
	case pos.NewPath != "" && pos.NewLine > 0:
		return fmt.Sprintf("Commented on [%s line %d](%s#diff-%sR%d)",
			pos.NewPath, pos.NewLine, compare, pathAnchor(pos.NewPath), pos.NewLine)
	case pos.OldPath != "" && pos.OldLine > 0:
		return fmt.Sprintf("Commented on [%s line %d](%s#diff-%sL%d)",
			pos.OldPath, pos.OldLine, compare, pathAnchor(pos.OldPath), pos.OldLine)
	default:
		return fmt.Sprintf("Commented on [changes](%s)", compare)
	}
}

// pathAnchor hashes a file path into the anchor fragment used by the
// compare view.
func pathAnchor(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}
