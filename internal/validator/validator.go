// Package validator filters LLM review comments down to ones the host review
// API will accept and that are worth posting.
package validator

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prcontext/internal/selection"
	"github.com/prcontext/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultMaxComments is the default output cap
const DefaultMaxComments = 10

// DropReason explains why a comment was discarded
type DropReason string

const (
	DropIgnoredPath    DropReason = "ignored_path"
	DropUnknownFile    DropReason = "unknown_file"
	DropOutsideHunk    DropReason = "outside_hunk"
	DropNoopSuggestion DropReason = "noop_suggestion"
	DropDuplicate      DropReason = "duplicate"
	DropOverCap        DropReason = "over_cap"
)

// ignoredPaths never receive comments
var ignoredPaths = []string{
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/.next/**",
	"**/node_modules/**",
	"**/*.min.js",
	"**/*.map",
	"**/*.d.ts",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
	"**/Cargo.lock",
	"**/poetry.lock",
	"**/*.lock",
}

// Result is the validated comment list plus per-reason drop counts
type Result struct {
	Comments []*models.ReviewComment `json:"comments"`
	Dropped  map[DropReason]int      `json:"dropped"`
	Stripped int                     `json:"stripped"`
}

// DroppedTotal returns the number of discarded comments
func (r Result) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// Validator anchors comments to the diff and caps the output
type Validator struct {
	MaxComments int
}

// New creates a validator; a non-positive cap falls back to DefaultMaxComments
func New(maxComments int) *Validator {
	if maxComments <= 0 {
		maxComments = DefaultMaxComments
	}
	return &Validator{MaxComments: maxComments}
}

// Validate runs the checks in priority order. Comments are never re-anchored;
// a comment that does not fit the diff is dropped. Suggestions on lines that
// are not additions are stripped in place.
func (v *Validator) Validate(comments []*models.ReviewComment, files []*models.ParsedFile) Result {
	maxComments := v.MaxComments
	if maxComments <= 0 {
		maxComments = DefaultMaxComments
	}

	result := Result{
		Comments: make([]*models.ReviewComment, 0, min(len(comments), maxComments)),
		Dropped:  make(map[DropReason]int),
	}

	byPath := make(map[string]*models.ParsedFile, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}

	ordered := make([]*models.ReviewComment, 0, len(comments))
	for _, c := range comments {
		if c != nil {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Severity.Rank() < ordered[j].Severity.Rank()
	})

	seen := make(map[string]struct{}, len(ordered))
	for _, c := range ordered {
		if isIgnoredPath(c.File) {
			result.Dropped[DropIgnoredPath]++
			continue
		}

		file, ok := byPath[c.File]
		if !ok {
			result.Dropped[DropUnknownFile]++
			continue
		}

		if !withinHunk(file, c.Line, c.LastLine()) {
			log.Debug().
				Str("file", c.File).
				Int("line", c.Line).
				Int("end_line", c.LastLine()).
				Msg("Dropping comment outside diff hunks")
			result.Dropped[DropOutsideHunk]++
			continue
		}

		if c.Suggestion != "" {
			current, allAdded := addedRange(file, c.Line, c.LastLine())
			if !allAdded {
				c.Suggestion = ""
				c.Fix = ""
				result.Stripped++
			} else if normalize(current) == normalize(c.Suggestion) {
				result.Dropped[DropNoopSuggestion]++
				continue
			}
		}

		key := c.File + "\x00" + strconv.Itoa(c.Line) + "\x00" + normalize(c.Message)
		if _, dup := seen[key]; dup {
			result.Dropped[DropDuplicate]++
			continue
		}
		seen[key] = struct{}{}

		if selection.IsTestPath(c.File) || selection.IsConfigPath(c.File) {
			switch models.ParseSeverity(string(c.Severity)) {
			case models.SeverityCritical, models.SeverityMajor:
				c.Severity = models.SeverityMinor
			}
		}

		if len(result.Comments) >= maxComments {
			result.Dropped[DropOverCap]++
			continue
		}
		result.Comments = append(result.Comments, c)
	}

	log.Info().
		Int("input", len(comments)).
		Int("kept", len(result.Comments)).
		Int("dropped", result.DroppedTotal()).
		Int("stripped", result.Stripped).
		Msg("Validated review comments")
	return result
}

func isIgnoredPath(p string) bool {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")
	for _, pattern := range ignoredPaths {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

func withinHunk(f *models.ParsedFile, start, end int) bool {
	if start <= 0 {
		return false
	}
	for _, h := range f.Hunks {
		if h.ContainsNew(start, end) {
			return true
		}
	}
	return false
}

// addedRange returns the added content of lines start..end and whether every
// line in the range is an addition
func addedRange(f *models.ParsedFile, start, end int) (string, bool) {
	lines := make([]string, 0, end-start+1)
	for n := start; n <= end; n++ {
		dl, ok := f.AddedLine(n)
		if !ok {
			return "", false
		}
		lines = append(lines, dl.Content)
	}
	return strings.Join(lines, "\n"), true
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
