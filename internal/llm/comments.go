// Package llm turns raw review-model output into structured comments.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prcontext/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrNoJSON is returned when the response holds no JSON object or array
var ErrNoJSON = errors.New("no JSON found in response")

// wireComment accepts the field spellings review models commonly emit
type wireComment struct {
	File       string `json:"file"`
	FilePath   string `json:"filePath"`
	Path       string `json:"path"`
	Line       int    `json:"line"`
	LineNumber int    `json:"lineNumber"`
	EndLine    int    `json:"endLine"`
	EndLineAlt int    `json:"end_line"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Comment    string `json:"comment"`
	Content    string `json:"content"`
	Suggestion string `json:"suggestion"`
	Fix        string `json:"fix"`
	Category   string `json:"category"`
}

func (w wireComment) toModel() *models.ReviewComment {
	return &models.ReviewComment{
		File:       firstNonEmpty(w.File, w.FilePath, w.Path),
		Line:       firstNonZero(w.Line, w.LineNumber),
		EndLine:    firstNonZero(w.EndLine, w.EndLineAlt),
		Severity:   models.ParseSeverity(w.Severity),
		Message:    strings.TrimSpace(firstNonEmpty(w.Message, w.Comment, w.Content)),
		Suggestion: w.Suggestion,
		Fix:        w.Fix,
		Category:   w.Category,
	}
}

// ParseReviewComments extracts review comments from a model response. The
// response may wrap JSON in prose or code fences and may be an object with a
// "comments" array or a bare array. Malformed JSON is repaired first. Entries
// without a file, line or message are skipped.
func ParseReviewComments(raw string) ([]*models.ReviewComment, RepairStats, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, RepairStats{}, ErrNoJSON
	}

	repaired, stats, err := RepairJSON(body)
	if stats.WasRepaired {
		log.Debug().
			Strs("strategies", stats.RepairStrategies).
			Int("errors_fixed", stats.ErrorsFixed).
			Int("comments_lost", stats.CommentsLost).
			Dur("repair_time", stats.RepairTime).
			Msg("Repaired LLM JSON response")
	}
	if err != nil {
		log.Warn().Err(err).Str("json", truncateForLog(repaired, 500)).Msg("LLM JSON repair failed")
		return nil, stats, err
	}

	var wire []wireComment
	if strings.HasPrefix(strings.TrimSpace(repaired), "[") {
		err = json.Unmarshal([]byte(repaired), &wire)
	} else {
		var envelope struct {
			Comments []wireComment `json:"comments"`
		}
		err = json.Unmarshal([]byte(repaired), &envelope)
		wire = envelope.Comments
	}
	if err != nil {
		return nil, stats, fmt.Errorf("JSON parsing failed after repair: %w", err)
	}

	comments := make([]*models.ReviewComment, 0, len(wire))
	skipped := 0
	for _, w := range wire {
		c := w.toModel()
		if c.File == "" || c.Line <= 0 || c.Message == "" {
			skipped++
			continue
		}
		comments = append(comments, c)
	}
	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Msg("Skipped incomplete review comments")
	}
	return comments, stats, nil
}

// extractJSON extracts JSON content from mixed text/JSON responses
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	// fenced block, with or without a language tag
	if strings.Contains(raw, "```") {
		var block []string
		inBlock := false
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				if inBlock {
					break
				}
				inBlock = true
				continue
			}
			if inBlock {
				block = append(block, line)
			}
		}
		if joined := strings.TrimSpace(strings.Join(block, "\n")); joined != "" {
			return joined
		}
	}

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return ""
	}
	open := raw[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
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
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}

	// unterminated structure; let repair close it
	return raw[start:]
}

func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
