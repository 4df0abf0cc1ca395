package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats tracks statistics about JSON repair operations
type RepairStats struct {
	OriginalBytes    int           `json:"original_bytes"`
	RepairedBytes    int           `json:"repaired_bytes"`
	CommentsLost     int           `json:"comments_lost"`
	ErrorsFixed      int           `json:"errors_fixed"`
	RepairTime       time.Duration `json:"repair_time"`
	RepairStrategies []string      `json:"repair_strategies"`
	WasRepaired      bool          `json:"was_repaired"`
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	lineCommentRe   = regexp.MustCompile(`(?m)^\s*//.*$`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)
	singleQuotedRe  = regexp.MustCompile(`'([^'\\]*)'(\s*[:,}\]])`)
	innerQuoteMsgRe = regexp.MustCompile(`("(?:message|suggestion)":\s*")([^"\n]*)"([^"\n]*)"([^"\n]*)("\s*[,}])`)
)

// repairStrategy is one cheap textual fix, applied only when it changes the input
type repairStrategy struct {
	name string
	fix  func(s string, stats *RepairStats) string
}

// strategies run in order; the jsonrepair library is the last resort
var strategies = []repairStrategy{
	{"trailing_commas", func(s string, _ *RepairStats) string {
		return trailingCommaRe.ReplaceAllString(s, "$1")
	}},
	{"comments_removed", func(s string, stats *RepairStats) string {
		n := len(lineCommentRe.FindAllString(s, -1)) + len(blockCommentRe.FindAllString(s, -1))
		out := blockCommentRe.ReplaceAllString(lineCommentRe.ReplaceAllString(s, ""), "")
		stats.CommentsLost += n
		return out
	}},
	{"unescaped_quotes", func(s string, _ *RepairStats) string {
		return innerQuoteMsgRe.ReplaceAllString(s, `$1$2\"$3\"$4$5`)
	}},
	{"key_quotes", func(s string, _ *RepairStats) string {
		return unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	}},
	{"single_quotes", func(s string, _ *RepairStats) string {
		return singleQuotedRe.ReplaceAllString(s, `"$1"$2`)
	}},
	{"completion", func(s string, _ *RepairStats) string {
		return closeOpenStructures(s)
	}},
}

// RepairJSON attempts to make raw parseable. Valid input is returned unchanged.
// Cheap fixes run first; if the result still does not parse, the jsonrepair
// library gets the final attempt.
func RepairJSON(raw string) (string, RepairStats, error) {
	start := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}
	finish := func(s string) RepairStats {
		stats.RepairedBytes = len(s)
		stats.RepairTime = time.Since(start)
		return stats
	}

	if json.Valid([]byte(raw)) {
		return raw, finish(raw), nil
	}

	stats.WasRepaired = true
	repaired := raw
	for _, st := range strategies {
		if json.Valid([]byte(repaired)) {
			break
		}
		next := st.fix(repaired, &stats)
		if next != repaired {
			repaired = next
			stats.RepairStrategies = append(stats.RepairStrategies, st.name)
			stats.ErrorsFixed++
		}
	}

	if !json.Valid([]byte(repaired)) {
		if lib, err := jsonrepair.JSONRepair(repaired); err == nil && lib != repaired {
			repaired = lib
			stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
			stats.ErrorsFixed++
		}
	}

	if !json.Valid([]byte(repaired)) {
		return repaired, finish(repaired), fmt.Errorf("JSON repair failed after %d strategies", len(stats.RepairStrategies))
	}
	return repaired, finish(repaired), nil
}

// closeOpenStructures appends the closers of unbalanced objects and arrays,
// ignoring brackets inside strings
func closeOpenStructures(s string) string {
	s = strings.TrimSpace(s)
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
