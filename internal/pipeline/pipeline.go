// Package pipeline glues the context preparation and comment validation stages
// in flow order: parse, filter, select, classify, budget, assemble, then
// parse and validate the model's answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/prcontext/internal/complexity"
	"github.com/prcontext/internal/contextbuilder"
	"github.com/prcontext/internal/diff"
	"github.com/prcontext/internal/llm"
	"github.com/prcontext/internal/selection"
	"github.com/prcontext/internal/validator"
	"github.com/prcontext/pkg/models"
)

// ErrEmptyDiff is returned when a diff has no reviewable files
var ErrEmptyDiff = errors.New("diff contains no reviewable files")

// Options configures a Pipeline. Zero values fall back to package defaults.
type Options struct {
	MaxFiles     int
	MaxComments  int
	DefaultModel string
	Budgets      contextbuilder.Budgets
	Assembler    *contextbuilder.Assembler
}

// Pipeline prepares review contexts and validates review output
type Pipeline struct {
	parser       *diff.Parser
	selector     *selection.Selector
	assembler    *contextbuilder.Assembler
	budgets      contextbuilder.Budgets
	validator    *validator.Validator
	defaultModel string
}

// New builds a pipeline from opts
func New(opts Options) *Pipeline {
	budgets := opts.Budgets
	if len(budgets) == 0 {
		budgets = contextbuilder.DefaultBudgets()
	}
	assembler := opts.Assembler
	if assembler == nil {
		assembler = contextbuilder.NewAssembler(contextbuilder.DefaultLayers(nil)...)
	}
	return &Pipeline{
		parser:       diff.NewParser(),
		selector:     selection.NewSelector(opts.MaxFiles),
		assembler:    assembler,
		budgets:      budgets,
		validator:    validator.New(opts.MaxComments),
		defaultModel: opts.DefaultModel,
	}
}

// Request is one pull request to prepare
type Request struct {
	Input contextbuilder.Input `json:"input"`
	Model string               `json:"model,omitempty"`
}

// Prepared carries everything Finalize needs plus the assembled context
type Prepared struct {
	Model      string                          `json:"model"`
	Files      []*models.ParsedFile            `json:"-"`
	Selected   []string                        `json:"selected"`
	Scores     map[string]int                  `json:"scores"`
	Dropped    int                             `json:"droppedFiles"`
	Complexity complexity.Score                `json:"complexity"`
	Budget     int                             `json:"budget"`
	Context    contextbuilder.AssembledContext `json:"context"`
}

// Prepare turns a raw diff into a budgeted context. The pr-diff layer only
// sees the sections of the selected files.
func (p *Pipeline) Prepare(ctx context.Context, req Request) (Prepared, error) {
	files := p.parser.Parse(req.Input.Diff)
	reviewable := selection.FilterNoise(files)
	if len(reviewable) == 0 {
		return Prepared{}, ErrEmptyDiff
	}

	sel := p.selector.Select(reviewable)

	changes := make([]complexity.FileChange, 0, len(sel.Files))
	keep := make(map[string]bool, len(sel.Files))
	selected := make([]string, 0, len(sel.Files))
	for _, f := range sel.Files {
		changes = append(changes, complexity.FileChange{Path: f.Path, AddedLines: f.AddedContent()})
		keep[f.Path] = true
		selected = append(selected, f.Path)
	}
	score := complexity.Classify(len(sel.Files), changes)

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	budget := p.budgets.ForTier(model, score.Tier)

	in := req.Input
	in.Diff = diff.Restrict(req.Input.Diff, func(path string) bool { return keep[path] })

	assembled, err := p.assembler.Assemble(ctx, in, budget)
	if err != nil {
		return Prepared{}, fmt.Errorf("failed to assemble context: %w", err)
	}

	log.Info().
		Int("files", len(files)).
		Int("reviewable", len(reviewable)).
		Int("selected", len(sel.Files)).
		Str("tier", string(score.Tier)).
		Int("budget", budget).
		Int("used_tokens", assembled.UsedTokens).
		Msg("Prepared review context")

	return Prepared{
		Model:      model,
		Files:      files,
		Selected:   selected,
		Scores:     sel.Scores,
		Dropped:    sel.Dropped,
		Complexity: score,
		Budget:     budget,
		Context:    assembled,
	}, nil
}

// Finalize parses the raw model output and validates it against the diff of
// the prepared request
func (p *Pipeline) Finalize(raw string, prepared Prepared) (validator.Result, llm.RepairStats, error) {
	comments, stats, err := llm.ParseReviewComments(raw)
	if err != nil {
		return validator.Result{}, stats, fmt.Errorf("failed to parse review comments: %w", err)
	}
	return p.validator.Validate(comments, prepared.Files), stats, nil
}

// FinalizeDiff is Finalize for a diff that was not prepared by this process
func (p *Pipeline) FinalizeDiff(raw, diffText string) (validator.Result, llm.RepairStats, error) {
	return p.Finalize(raw, Prepared{Files: p.parser.Parse(diffText)})
}

// Validate checks already-decoded comments against a raw diff
func (p *Pipeline) Validate(diffText string, comments []*models.ReviewComment) validator.Result {
	return p.validator.Validate(comments, p.parser.Parse(diffText))
}
