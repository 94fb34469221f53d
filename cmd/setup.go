package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file if needed, initializes the database, and
// runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	force := cmd.Bool("force")

	if force {
		if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing config: %w", err)
		}
	}

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.writePlain("✓ Config file created at %s\n", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}
	config.ApplyEnv()

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	if err := shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns); err != nil {
		r.logger.Warn("failed to configure database", "error", err)
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.config = config
	r.configPath = configPath

	r.writePlain("✓ Database ready at %s\n", config.Database.Path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Fill in Spotify credentials and station API keys in %s\n", configPath)
	r.writePlain("2. Run 'spinsync auth login' to authorize\n")
	r.writePlain("3. Run 'spinsync sync run' for a dry run\n")

	return nil
}

// SetupHeaders parses a saved curl command, writes its headers as a JSON
// document, and records the document path so the spin source replays the
// headers on every request.
func (r *Runner) SetupHeaders(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	curlFile := cmd.StringArg("path")
	outputPath := cmd.String("output")

	if curlFile == "" {
		return fmt.Errorf("%w: path to a saved curl command is required", shared.ErrMissingArgument)
	}

	headers, err := shared.ParseCurlFile(curlFile)
	if err != nil {
		return fmt.Errorf("failed to parse curl file: %w", err)
	}
	r.logger.Info("parsed curl headers", "file", curlFile, "headers", len(headers.Headers))

	data, err := shared.MarshalJSON(headers, true)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write headers file: %w", err)
	}

	config := r.config
	if _, err := os.Stat(configPath); err == nil {
		if loaded, err := shared.LoadConfig(configPath); err == nil {
			config = loaded
		}
	}

	config.Credentials.Spinitron.HeadersPath = outputPath
	if err := shared.SaveConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.config = config
	r.configPath = configPath

	r.writePlain("✓ Request headers saved to %s\n", outputPath)
	r.writePlain("✓ Config updated at %s\n", configPath)

	return nil
}

// setupCommand initializes the config file and database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize config and database, run migrations",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Recreate the config file from the template",
			},
		},
		Action: r.Setup,
		Commands: []*cli.Command{
			{
				Name:  "headers",
				Usage: "Record a saved curl command whose headers are replayed on spin source requests",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Where to write the parsed headers document",
						Value:   "headers.json",
					},
				},
				Action: r.SetupHeaders,
			},
		},
	}
}
