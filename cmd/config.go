package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/prcontext/internal/config"
	"github.com/prcontext/internal/logging"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "prcontext.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file and print the effective settings",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  rag backend:        %s (collection %s)\n", cfg.RAG.Backend, cfg.RAG.Collection)
	fmt.Printf("  embedding provider: %s (api key %s)\n", cfg.Embedding.Provider, maskSecret(cfg.Embedding.APIKey))
	fmt.Printf("  cache database:     %s\n", maskSecret(cfg.Cache.DatabaseURL))
	fmt.Printf("  queue database:     %s\n", maskSecret(cfg.Queue.DatabaseURL))
	return nil
}

// loadConfig reads and validates the file named by the global --config flag
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !c.IsSet("log-level") && !c.IsSet("json-logs") {
		logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	}
	return cfg, nil
}

// maskSecret shows the first and last few characters of a secret
func maskSecret(value string) string {
	switch {
	case value == "":
		return "(not set)"
	case len(value) <= 8:
		return strings.Repeat("*", len(value))
	default:
		return value[:4] + "..." + value[len(value)-4:]
	}
}
