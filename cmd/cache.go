package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

// CacheStats summarizes the track cache contents.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	useJSON := cmd.Bool("json")

	deps, err := r.openEngine(config)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	stats := deps.cache.Stats(time.Now())

	if useJSON {
		return r.writeJSON(stats, true)
	}

	r.writePlain("Track cache (%s):\n", config.Database.Path)
	r.writePlain("  Entries:   %d\n", stats.Total)
	r.writePlain("  Found:     %d\n", stats.Found)
	r.writePlain("  Not found: %d\n", stats.NotFound)
	r.writePlain("  Expired:   %d (TTL %s)\n", stats.Expired, deps.cache.TTL())
	if !stats.Oldest.IsZero() {
		r.writePlain("  Oldest:    %s\n", stats.Oldest.Format("2006-01-02"))
		r.writePlain("  Newest:    %s\n", stats.Newest.Format("2006-01-02"))
	}

	return nil
}

// CachePrune removes expired track cache entries from the database.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	deps, err := r.openEngine(config)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	removed, err := deps.cache.Prune(time.Now())
	if err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}

	r.logger.Info("pruned expired cache entries", "removed", removed)
	r.writePlain("✓ Removed %d expired entries\n", removed)

	return nil
}

// cacheCommand inspects and maintains the persisted track cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the track resolution cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Summarize cached resolutions",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON",
					},
					configFlag(),
				},
				Action: r.CacheStats,
			},
			{
				Name:   "prune",
				Usage:  "Delete entries older than the configured TTL",
				Flags:  []cli.Flag{configFlag()},
				Action: r.CachePrune,
			},
		},
	}
}
