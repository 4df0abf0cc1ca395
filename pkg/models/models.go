package models

import (
	"strings"
)

// DiffLine is a single added or deleted line, 1-based on its side of the diff
type DiffLine struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// Hunk is a contiguous diff region described by an @@ header
type Hunk struct {
	OldStart int `json:"old_start"`
	OldLines int `json:"old_lines"`
	NewStart int `json:"new_start"`
	NewLines int `json:"new_lines"`
}

// ContainsNew reports whether the new-side range [start, end] lies entirely inside the hunk
func (h Hunk) ContainsNew(start, end int) bool {
	return start >= h.NewStart && end < h.NewStart+h.NewLines
}

// ParsedFile is the line-addressable view of one file in a unified diff.
// It is rebuilt for every parse and never persisted.
type ParsedFile struct {
	Path      string     `json:"path"`
	Additions []DiffLine `json:"additions"`
	Deletions []DiffLine `json:"deletions"`
	Hunks     []Hunk     `json:"hunks"`
}

// ChangedLines returns the number of added plus deleted lines
func (f *ParsedFile) ChangedLines() int {
	return len(f.Additions) + len(f.Deletions)
}

// AddedLine returns the added line at the given new-side line number
func (f *ParsedFile) AddedLine(line int) (DiffLine, bool) {
	for _, l := range f.Additions {
		if l.Line == line {
			return l, true
		}
	}
	return DiffLine{}, false
}

// AddedContent returns the contents of all added lines in order
func (f *ParsedFile) AddedContent() []string {
	out := make([]string, 0, len(f.Additions))
	for _, l := range f.Additions {
		out = append(out, l.Content)
	}
	return out
}

// Severity is the priority of a review comment
type Severity string

const (
	SeverityBlocker  Severity = "BLOCKER"
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
	SeverityInfo     Severity = "INFO"
	SeverityNit      Severity = "NIT"
)

var severityRanks = map[Severity]int{
	SeverityBlocker:  0,
	SeverityCritical: 1,
	SeverityMajor:    2,
	SeverityMinor:    3,
	SeverityInfo:     4,
	SeverityNit:      5,
}

// ParseSeverity normalizes a severity string; unknown values are returned upper-cased
func ParseSeverity(s string) Severity {
	return Severity(strings.ToUpper(strings.TrimSpace(s)))
}

// Rank orders severities from most to least important. Unrecognized severities rank last.
func (s Severity) Rank() int {
	if r, ok := severityRanks[ParseSeverity(string(s))]; ok {
		return r
	}
	return len(severityRanks)
}

// ReviewComment is a comment produced by the LLM reviewer.
// Suggestion and Fix may be stripped in place by validation.
type ReviewComment struct {
	File       string   `json:"file"`
	Line       int      `json:"line"`
	EndLine    int      `json:"end_line,omitempty"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Fix        string   `json:"fix,omitempty"`
	Category   string   `json:"category,omitempty"`
}

// LastLine returns the final line of the comment's range
func (c *ReviewComment) LastLine() int {
	if c.EndLine > c.Line {
		return c.EndLine
	}
	return c.Line
}
