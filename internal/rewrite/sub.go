package rewrite

import (
	"regexp"
	"strings"
)

// replaceAll rewrites every non-overlapping match of re in s.
//
// repl receives the expanded submatches (groups[0] is the whole match) and
// returns the replacement text; ok=false leaves that match unchanged. All
// match offsets are located against the original string first and the
// output is assembled in a single pass, so earlier replacements can never
// shift the offsets of later matches. That is a correctness requirement for
// the reference passes, not a style choice.
func replaceAll(re *regexp.Regexp, s string, repl func(groups []string) (string, bool)) string {
	locs := re.FindAllStringSubmatchIndex(s, -1)
	if locs == nil {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, loc := range locs {
		groups := make([]string, len(loc)/2)
		for g := range groups {
			if loc[2*g] >= 0 {
				groups[g] = s[loc[2*g]:loc[2*g+1]]
			}
		}
		rep, ok := repl(groups)
		if !ok {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(rep)
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
