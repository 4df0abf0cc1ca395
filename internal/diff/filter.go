package diff

import "strings"

// Restrict returns the sections of diffText whose file path satisfies keep,
// in their original order. Text before the first file header is dropped.
func Restrict(diffText string, keep func(path string) bool) string {
	var (
		out     []string
		section []string
		include bool
	)
	flush := func() {
		if include {
			out = append(out, section...)
		}
		section = nil
	}

	for _, line := range strings.Split(diffText, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			include = keep(extractPath(strings.TrimSuffix(line, "\r")))
		}
		if include || strings.HasPrefix(line, "diff --git ") {
			section = append(section, line)
		}
	}
	flush()

	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}
