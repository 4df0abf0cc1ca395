package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/prcontext/internal/validator"
)

// ValidateCommand returns the validate command
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate LLM review comments against a diff",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "diff",
				Aliases:  []string{"d"},
				Usage:    "Unified diff `FILE` the comments refer to",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "comments",
				Usage:    "Raw model output `FILE` holding the comments (- for stdin)",
				Required: true,
			},
		},
		Action: runValidate,
	}
}

type validateOutput struct {
	validator.Result
	Repaired   bool     `json:"repaired"`
	Strategies []string `json:"repairStrategies,omitempty"`
}

func runValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	diffText, err := readSource(c.String("diff"))
	if err != nil {
		return err
	}
	raw, err := readSource(c.String("comments"))
	if err != nil {
		return err
	}

	res, stats, err := newPipeline(cfg, nil).FinalizeDiff(raw, diffText)
	if err != nil {
		return fmt.Errorf("failed to validate comments: %w", err)
	}
	return writeJSON(os.Stdout, validateOutput{
		Result:     res,
		Repaired:   stats.WasRepaired,
		Strategies: stats.RepairStrategies,
	})
}
