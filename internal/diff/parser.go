package diff

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/prcontext/pkg/models"
)

const unknownPath = "unknown"

var (
	fileHeaderRe = regexp.MustCompile(`^diff --git a/(.*?) b/(.*)$`)
	hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
)

// Parser parses unified diff text into line-addressable files.
// Parsing never fails: lines it cannot classify are skipped.
type Parser struct{}

// NewParser creates a new diff parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse splits diffText on "diff --git" headers and walks every hunk
func (p *Parser) Parse(diffText string) []*models.ParsedFile {
	if diffText == "" {
		return nil
	}

	var (
		files   []*models.ParsedFile
		current *fileState
	)

	for _, line := range strings.Split(diffText, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if strings.HasPrefix(line, "diff --git ") {
			if current != nil {
				files = append(files, current.file)
			}
			current = &fileState{file: &models.ParsedFile{Path: extractPath(line)}}
			continue
		}

		if current == nil {
			continue
		}
		current.consume(line)
	}

	if current != nil {
		files = append(files, current.file)
	}
	return files
}

// Stats returns the total added and deleted line counts across files
func (p *Parser) Stats(files []*models.ParsedFile) (additions, deletions int) {
	for _, f := range files {
		additions += len(f.Additions)
		deletions += len(f.Deletions)
	}
	return additions, deletions
}

// fileState tracks the running old/new counters while walking a file's hunks
type fileState struct {
	file    *models.ParsedFile
	inHunk  bool
	oldLine int
	newLine int
	// remaining lines announced by the current hunk header
	oldLeft int
	newLeft int
}

func (s *fileState) consume(line string) {
	if m := hunkHeaderRe.FindStringSubmatch(line); m != nil {
		h := models.Hunk{
			OldStart: atoi(m[1], 0),
			OldLines: atoi(m[2], 1),
			NewStart: atoi(m[3], 0),
			NewLines: atoi(m[4], 1),
		}
		s.file.Hunks = append(s.file.Hunks, h)
		s.inHunk = true
		s.oldLine, s.newLine = h.OldStart, h.NewStart
		s.oldLeft, s.newLeft = h.OldLines, h.NewLines
		return
	}

	if !s.inHunk || line == "" {
		return
	}

	// "+++" and "---" are file headers unless the hunk still expects lines on that side,
	// in which case they are content such as a deleted "-- comment".
	switch line[0] {
	case '+':
		if strings.HasPrefix(line, "+++") && s.newLeft <= 0 {
			return
		}
		s.file.Additions = append(s.file.Additions, models.DiffLine{Line: s.newLine, Content: line[1:]})
		s.newLine++
		s.newLeft--
	case '-':
		if strings.HasPrefix(line, "---") && s.oldLeft <= 0 {
			return
		}
		s.file.Deletions = append(s.file.Deletions, models.DiffLine{Line: s.oldLine, Content: line[1:]})
		s.oldLine++
		s.oldLeft--
	case ' ':
		s.oldLine++
		s.newLine++
		s.oldLeft--
		s.newLeft--
	}
}

func extractPath(header string) string {
	m := fileHeaderRe.FindStringSubmatch(header)
	if m == nil || strings.TrimSpace(m[2]) == "" {
		return unknownPath
	}
	return m[2]
}

func atoi(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
