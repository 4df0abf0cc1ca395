package diff

import (
	"fmt"
	"strings"
)

// Annotate prefixes every hunk line with its old and new line numbers so the reviewer
// can reference exact new-side lines. Lines outside hunks are passed through untouched.
// "+++" and "---" lines count as content only while the hunk header still expects lines
// on that side, matching the parser.
func Annotate(diffText string) string {
	lines := strings.Split(diffText, "\n")
	out := make([]string, 0, len(lines))

	var oldN, newN, oldLeft, newLeft int
	inHunk := false

	for _, ln := range lines {
		if strings.HasPrefix(ln, "diff --git ") {
			inHunk = false
			out = append(out, ln)
			continue
		}
		if m := hunkHeaderRe.FindStringSubmatch(ln); m != nil {
			oldN, newN = atoi(m[1], 0), atoi(m[3], 0)
			oldLeft, newLeft = atoi(m[2], 1), atoi(m[4], 1)
			inHunk = true
			out = append(out, ln)
			continue
		}
		if !inHunk || ln == "" {
			out = append(out, ln)
			continue
		}

		switch ln[0] {
		case ' ':
			out = append(out, fmt.Sprintf("%6d %6d | %s", oldN, newN, ln))
			oldN++
			newN++
			oldLeft--
			newLeft--
		case '+':
			if strings.HasPrefix(ln, "+++") && newLeft <= 0 {
				out = append(out, ln)
				continue
			}
			out = append(out, fmt.Sprintf("%6s %6d | %s", "-", newN, ln))
			newN++
			newLeft--
		case '-':
			if strings.HasPrefix(ln, "---") && oldLeft <= 0 {
				out = append(out, ln)
				continue
			}
			out = append(out, fmt.Sprintf("%6d %6s | %s", oldN, "-", ln))
			oldN++
			oldLeft--
		default:
			out = append(out, ln)
		}
	}

	return strings.Join(out, "\n")
}
