package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/mharlow/annex/internal"
	pkgconfig "github.com/mharlow/annex/pkg/config"
)

// loadConfig reads the YAML config named by --config. A missing file is not
// an error: the defaults stand, so `annex` runs out of the box.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()

	configFile := cmd.String("config")
	if _, err := os.Stat(configFile); err == nil {
		if err := pkgconfig.Load(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "annex",
		Usage: "local-first annotation indexing server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("ANNEX_CONFIG_FILE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return internal.Run(ctx, internal.WithConfig(cfg))
		},
		Commands: []*cli.Command{
			{
				Name:  "mcp",
				Usage: "serve MCP tools over stdio for LLM clients",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.RunMCP(ctx, internal.WithConfig(cfg))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}
