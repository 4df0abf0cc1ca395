package rag

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zricethezav/gitleaks/v8/detect"
)

const redactedMarker = "[REDACTED]"

// Redactor masks secrets in chunk content before it leaves the process
type Redactor struct {
	detector *detect.Detector
}

// NewRedactor loads the default gitleaks rule set
func NewRedactor() (*Redactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	return &Redactor{detector: d}, nil
}

// Redact returns content with every detected secret replaced, plus the number
// of distinct secrets masked. A nil Redactor returns content unchanged.
func (r *Redactor) Redact(content string) (string, int) {
	if r == nil || r.detector == nil || content == "" {
		return content, 0
	}

	findings := r.detector.DetectString(content)
	if len(findings) == 0 {
		return content, 0
	}

	seen := make(map[string]struct{}, len(findings))
	secrets := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		if _, ok := seen[f.Secret]; ok {
			continue
		}
		seen[f.Secret] = struct{}{}
		secrets = append(secrets, f.Secret)
	}
	// longest first so overlapping secrets are fully masked
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })

	for _, s := range secrets {
		content = strings.ReplaceAll(content, s, redactedMarker)
	}

	log.Debug().Int("secrets", len(secrets)).Msg("Redacted secrets from chunk")
	return content, len(secrets)
}

// RedactChunks masks secrets in place and returns the total masked
func (r *Redactor) RedactChunks(chunks []DiffChunk) int {
	total := 0
	for i := range chunks {
		var n int
		chunks[i].Content, n = r.Redact(chunks[i].Content)
		total += n
	}
	return total
}
