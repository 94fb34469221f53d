package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spinsync/internal/repositories"
	"github.com/desertthunder/spinsync/internal/services"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/desertthunder/spinsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	source     services.SpinSource
	spotify    *services.SpotifyService
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Source     services.SpinSource
	Spotify    *services.SpotifyService
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.toml"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		source:     opts.Source,
		spotify:    opts.Spotify,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger, e.g. to redirect logs to a file
// while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, spinsCommand, playlistsCommand, cacheCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the config for one command invocation: the --config
// flag wins when it points somewhere new, otherwise the runner keeps the
// config it started with.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	path := cmd.String("config")
	if path == "" || path == r.configPath {
		return r.config
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, using startup config", "path", path, "error", err)
		return r.config
	}

	config.ApplyEnv()
	r.configPath = path
	r.config = config
	return config
}

// window computes the [from, to) spin window from the --date and --days
// flags. The window ends at the end of --date (default yesterday) and spans
// --days (default from config, then 7).
func (r *Runner) window(cmd *cli.Command, config *shared.Config) (time.Time, time.Time, error) {
	days := cmd.Int("days")
	if days <= 0 {
		days = config.Sync.LookbackDays
	}
	if days <= 0 {
		days = 7
	}

	var end time.Time
	if dateStr := cmd.String("date"); dateStr != "" {
		date, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: --date must be YYYY-MM-DD: %v", shared.ErrInvalidFlag, err)
		}
		end = date.AddDate(0, 0, 1)
	} else {
		now := time.Now()
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}

	return end.AddDate(0, 0, -days), end, nil
}

// engineDeps bundles what a command needs from the persistence layer: the
// wired sync engine, the track cache and run journal for direct access, and
// a cleanup closing the database.
type engineDeps struct {
	engine  *tasks.StationEngine
	cache   *repositories.TrackCache
	runs    *repositories.SyncRunRepository
	cleanup func()
}

// openEngine opens the database, applies migrations, and wires the sync
// engine. The track cache loads here so every command sees the same view.
func (r *Runner) openEngine(config *shared.Config) (*engineDeps, error) {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheIO, err)
	}

	if err := shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns); err != nil {
		r.logger.Warn("failed to configure database", "error", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cache := repositories.NewTrackCache(repositories.NewCachedTrackRepository(db), config.Sync.CacheTTL(), r.logger)
	cache.Load()

	resolver := tasks.NewResolver(r.spotify, cache, tasks.ResolverOpts{
		MinScore: config.Sync.MinSimilarity,
		Attempts: config.Sync.RetryAttempts,
		Backoff:  config.Sync.RetryBackoff(),
	}, r.logger)

	runs := repositories.NewSyncRunRepository(db)
	engine := tasks.NewStationEngine(tasks.EngineDeps{
		Source:    r.source,
		Playlists: r.spotify,
		Resolver:  resolver,
		States:    repositories.NewPlaylistStateRepository(db),
		Cache:     cache,
		Runs:      runs,
		Logger:    r.logger,
	})

	return &engineDeps{
		engine:  engine,
		cache:   cache,
		runs:    runs,
		cleanup: func() { db.Close() },
	}, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}
