package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/prcontext/cmd"
	"github.com/prcontext/internal/logging"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "prcontext",
		Usage:   "Budgeted LLM review context, code retrieval and comment validation for pull requests",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"PRCONTEXT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "json-logs",
				Usage: "Emit JSON logs instead of console output",
			},
		},
		Before: func(c *cli.Context) error {
			logging.Setup(c.String("log-level"), !c.Bool("json-logs"))
			return nil
		},
		Commands: []*cli.Command{
			cmd.ContextCommand(),
			cmd.ValidateCommand(),
			cmd.IndexCommand(),
			cmd.WorkerCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
