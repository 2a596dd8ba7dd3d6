package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"
)

// Applicator defines the interface for the core application logic.
// This allows the CLI to be tested independently of the main app implementation.
type Applicator interface {
	Ingest(ctx context.Context, cfgPath, locator string) error
	Serve(ctx context.Context, cfgPath string) error
	Watch(ctx context.Context, cfgPath string) error
	Platforms(ctx context.Context) error
	FailedRows(ctx context.Context, cfgPath, batchID string) error
	ExportSQL(ctx context.Context, dir string) error
}

// BuildCLI creates the full CLI command structure for the application.
// It injects the core application logic (the Applicator) into the command actions.
func BuildCLI(app Applicator) *cli.Command {
	// Define flags that are common across multiple commands.
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config.yaml",
		Usage:   "path to the configuration file",
	}

	// Define all application commands.
	ingestCmd := &cli.Command{
		Name:      "ingest",
		Usage:     "Ingest an order export from a file path, file:// or http(s) url",
		ArgsUsage: "<locator>",
		Flags:     []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			locator := c.Args().First()
			if locator == "" {
				return errors.New("a csv file path or url is required")
			}
			return app.Ingest(ctx, c.String("config"), locator)
		},
	}

	serveCmd := &cli.Command{
		Name:  "serve",
		Usage: "Serve the ingestion and reporting http api",
		Flags: []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Serve(ctx, c.String("config"))
		},
	}

	watchCmd := &cli.Command{
		Name:  "watch",
		Usage: "Ingest order files written to the configured watch directory",
		Flags: []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Watch(ctx, c.String("config"))
		},
	}

	platformsCmd := &cli.Command{
		Name:  "platforms",
		Usage: "List the supported platforms and their columns",
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Platforms(ctx)
		},
	}

	failedRowsCmd := &cli.Command{
		Name:      "failed-rows",
		Usage:     "Print the rows of a batch which could not be stored",
		ArgsUsage: "<batch id>",
		Flags:     []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			batchID := c.Args().First()
			if batchID == "" {
				return errors.New("a batch id is required")
			}
			return app.FailedRows(ctx, c.String("config"), batchID)
		},
	}

	sqlExportCmd := &cli.Command{
		Name:  "sql-export",
		Usage: "Write the built-in sql statements to a directory for customisation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Value:   "sql",
				Usage:   "directory to write the sql files to",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.ExportSQL(ctx, c.String("dir"))
		},
	}

	// Assemble the root command.
	rootCmd := &cli.Command{
		Name:  "orderingest",
		Usage: "Ingest marketplace order exports into a relational store",
		Commands: []*cli.Command{
			ingestCmd, serveCmd, watchCmd, platformsCmd, failedRowsCmd, sqlExportCmd,
		},
	}

	return rootCmd
}
