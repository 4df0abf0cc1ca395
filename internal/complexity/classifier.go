// Package complexity scores a selected file set and maps it to a routing tier.
// The classifier is a pure function; it never calls a model.
package complexity

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/prcontext/internal/selection"
)

// Tier is the routing signal derived from the score
type Tier string

const (
	TierTrivial Tier = "trivial"
	TierSimple  Tier = "simple"
	TierComplex Tier = "complex"
)

// MaxScore is the upper clamp of the composite score
const MaxScore = 10

// highRiskPathScore is the path score at which a file counts as high risk
const highRiskPathScore = 7

// FileChange is one selected file as seen by the classifier
type FileChange struct {
	Path       string
	AddedLines []string
}

// Score is the classifier output
type Score struct {
	Value   int            `json:"score"`
	Tier    Tier           `json:"tier"`
	Reason  string         `json:"reason"`
	Factors map[string]int `json:"factors"`
}

type riskPattern struct {
	name   string
	weight int
	re     *regexp.Regexp
}

var riskPatterns = []riskPattern{
	{"dynamic_exec", 2, regexp.MustCompile(`\b(eval|exec|execSync|spawn|system|popen|Function)\s*\(|subprocess\.|os/exec|child_process|shell\s*=\s*True`)},
	{"raw_html", 2, regexp.MustCompile(`innerHTML|dangerouslySetInnerHTML|outerHTML|document\.write\(`)},
	{"secret_assignment", 3, nil},
	{"empty_catch", 1, regexp.MustCompile(`catch\s*(\([^)]*\))?\s*\{\s*\}|except[^:]*:\s*pass\b|if err != nil \{\s*\}`)},
	{"sql_dml", 2, regexp.MustCompile(`(?i)\b(INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM|SELECT\s+.+\s+FROM|DROP\s+TABLE|ALTER\s+TABLE)\b`)},
	{"async", 1, regexp.MustCompile(`\basync\b|\bawait\b|Promise\.all|go func\(`)},
}

// Classify computes the composite complexity score. fileCount is the number of files in
// the selection; files carries their paths and added lines.
func Classify(fileCount int, files []FileChange) Score {
	patterns := detectPatterns(files)
	factors := map[string]int{
		"file_count":   fileCountBand(fileCount),
		"added_lines":  addedLinesBand(totalAdded(files)),
		"high_risk":    highRiskFiles(files),
		"multi_lang":   languageDiversity(files),
		"risk_pattern": riskPatternBand(patterns),
	}

	total := 0
	for _, v := range factors {
		total += v
	}
	if total > MaxScore {
		total = MaxScore
	}
	if total < 0 {
		total = 0
	}

	return Score{
		Value:   total,
		Tier:    TierFor(total),
		Reason:  reason(factors, patterns),
		Factors: factors,
	}
}

// TierFor maps a score to its tier
func TierFor(score int) Tier {
	switch {
	case score <= 2:
		return TierTrivial
	case score <= 6:
		return TierSimple
	default:
		return TierComplex
	}
}

// BudgetFactor scales a model's context budget for this tier
func (t Tier) BudgetFactor() float64 {
	switch t {
	case TierTrivial:
		return 0.5
	case TierSimple:
		return 0.75
	default:
		return 1.0
	}
}

func fileCountBand(n int) int {
	switch {
	case n <= 1:
		return 0
	case n <= 3:
		return 1
	case n <= 7:
		return 2
	default:
		return 3
	}
}

func addedLinesBand(n int) int {
	switch {
	case n <= 20:
		return 0
	case n <= 100:
		return 1
	default:
		return 2
	}
}

func totalAdded(files []FileChange) int {
	n := 0
	for _, f := range files {
		n += len(f.AddedLines)
	}
	return n
}

func highRiskFiles(files []FileChange) int {
	n := 0
	for _, f := range files {
		if selection.ScorePath(f.Path) >= highRiskPathScore {
			n++
		}
	}
	if n > 3 {
		n = 3
	}
	return n
}

func languageDiversity(files []FileChange) int {
	langs := make(map[string]struct{})
	for _, f := range files {
		if lang, ok := selection.SourceExtensions[strings.ToLower(path.Ext(f.Path))]; ok {
			langs[lang] = struct{}{}
		}
	}
	if len(langs) > 1 {
		return 1
	}
	return 0
}

// detectPatterns returns the names of risk patterns present in the added lines.
// Each pattern counts once regardless of how often it occurs.
func detectPatterns(files []FileChange) []string {
	var found []string
	for _, p := range riskPatterns {
		if patternPresent(p, files) {
			found = append(found, p.name)
		}
	}
	return found
}

func patternPresent(p riskPattern, files []FileChange) bool {
	for _, f := range files {
		if p.re == nil {
			if selection.ContainsSecretAssignment(f.AddedLines) {
				return true
			}
			continue
		}
		for _, l := range f.AddedLines {
			if p.re.MatchString(l) {
				return true
			}
		}
	}
	return false
}

func riskPatternBand(found []string) int {
	sum := 0
	for _, name := range found {
		for _, p := range riskPatterns {
			if p.name == name {
				sum += p.weight
			}
		}
	}
	switch {
	case sum <= 2:
		return 0
	case sum <= 5:
		return 1
	default:
		return 2
	}
}

func reason(factors map[string]int, patterns []string) string {
	keys := make([]string, 0, len(factors))
	for k, v := range factors {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "small, low-risk change"
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, factors[k]))
	}
	out := strings.Join(parts, ", ")
	if len(patterns) > 0 {
		out += " (patterns: " + strings.Join(patterns, ", ") + ")"
	}
	return out
}
