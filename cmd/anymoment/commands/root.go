package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/sineways/anymoment-cli/internal/app"
	"github.com/sineways/anymoment-cli/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "anymoment",
		Usage: "AnyMoment calendar CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:    "api--base-url",
				Aliases: []string{"host"},
				Usage:   "API base URL",
			},
		},
		Commands: []*cli.Command{
			authCommand(),
			configCommand(),
			tokensCommand(),
			calendarsCommand(),
			eventsCommand(),
			agendaCommand(),
		},
	}

	err := cmd.Run(ctx, args)
	if shutdownErr := observability.Shutdown(ctx); shutdownErr != nil {
		slog.WarnContext(ctx, "failed to flush logs", "error", shutdownErr)
	}
	return err
}

// setup loads the configuration, installs logging, and wires the
// application. Every subcommand action starts here.
func setup(ctx context.Context, cmd *cli.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	return application, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
