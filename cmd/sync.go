package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/spinsync/internal/formatter"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/desertthunder/spinsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncRun reconciles the configured stations' playlists over the spin window.
// Dry run by default; --live mutates remote playlists.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	live := cmd.Bool("live")

	if r.source == nil {
		return fmt.Errorf("%w: spin source not initialized", shared.ErrServiceUnavailable)
	}
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	from, to, err := r.window(cmd, config)
	if err != nil {
		return err
	}

	stations, err := r.selectStations(cmd, config)
	if err != nil {
		return err
	}

	deps, err := r.openEngine(config)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	r.logger.Info("starting sync", "stations", len(stations), "from", from.Format("2006-01-02"), "to", to.Format("2006-01-02"), "live", live)
	r.writePlain("Syncing %d station(s), window %s → %s\n", len(stations), from.Format("2006-01-02"), to.Format("2006-01-02"))
	if !live {
		r.writePlain("Dry run: no playlists will be created or modified (use --live to mutate)\n")
	}
	r.writePlain("\n")

	progressCh := make(chan tasks.ProgressUpdate, 50)
	go r.reportProgress(progressCh)

	var results []*tasks.SyncResult
	var failed []string

	for _, station := range stations {
		stationConfig, _ := config.Station(station)
		opts := tasks.SyncOpts{
			Station: station,
			From:    from,
			To:      to,
			Ignores: stationConfig.CompiledIgnores(r.logger),
			Workers: cmd.Int("workers"),
			Live:    live,
			Refresh: cmd.Bool("refresh"),
		}
		if opts.Workers <= 0 {
			opts.Workers = config.Sync.Workers
		}

		result, err := deps.engine.SyncStation(ctx, progressCh, opts)
		if err != nil {
			if reauthed, authErr := r.handleAuthError(ctx, err, cmd); reauthed {
				if authErr != nil {
					close(progressCh)
					return authErr
				}
				result, err = deps.engine.SyncStation(ctx, progressCh, opts)
			}
		}
		if err != nil {
			// Station failures are isolated: log and move on.
			r.logger.Error("station sync failed", "station", station, "error", err)
			failed = append(failed, station)
			continue
		}

		results = append(results, result)
	}

	close(progressCh)

	r.writeSummary(results, failed, live)

	if cmd.Bool("report") || cmd.String("save") != "" {
		for _, result := range results {
			data, err := formatter.ReportToMarkdown(result)
			if err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			if path := cmd.String("save"); path != "" {
				saved, err := formatter.SaveReport(data, path, fmt.Sprintf("sync_%s.md", result.Station))
				if err != nil {
					return err
				}
				r.writePlain("✓ Report saved to %s\n", saved)
			} else {
				r.writePlain("\n%s", data)
			}
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %d station(s) failed", shared.ErrPlaylistMutation, len(failed))
	}
	return nil
}

// selectStations resolves --station to one configured station, or all of
// them when the flag is absent.
func (r *Runner) selectStations(cmd *cli.Command, config *shared.Config) ([]string, error) {
	if station := cmd.String("station"); station != "" {
		if _, ok := config.Station(station); !ok {
			return nil, fmt.Errorf("%w: %s", shared.ErrUnknownStation, station)
		}
		return []string{station}, nil
	}

	stations := config.StationNames()
	if len(stations) == 0 {
		return nil, fmt.Errorf("%w: no stations configured", shared.ErrInvalidConfig)
	}
	return stations, nil
}

// reportProgress drains engine progress updates onto the console.
func (r *Runner) reportProgress(progressCh <-chan tasks.ProgressUpdate) {
	for update := range progressCh {
		switch update.Phase {
		case tasks.FetchSpins:
			r.writePlain("📥 %s\n", update.Message)
		case tasks.NormalizeSpins:
			r.writePlain("🧹 %s\n", update.Message)
		case tasks.RefreshStates:
			r.writePlain("🔄 %s\n", update.Message)
		case tasks.ResolvePlaylist:
			r.writePlain("\n📝 %s\n", update.Message)
		case tasks.ResolveTracks:
			r.writePlain("   🔍 %s\n", update.Message)
		case tasks.AppendBatch:
			r.writePlain("   ➕ %s\n", update.Message)
		case tasks.AdvanceMark:
			r.writePlain("   ✓ %s\n", update.Message)
		case tasks.ShowSynced:
			r.writePlain("✓ %s\n", update.Message)
		}
	}
}

// writeSummary prints the aggregate outcome of a sync invocation.
func (r *Runner) writeSummary(results []*tasks.SyncResult, failed []string, live bool) {
	r.writePlain("\n")
	if live {
		r.writePlainHeader("Sync Complete")
	} else {
		r.writePlainHeader("Dry Run Complete")
	}

	for _, result := range results {
		r.writePlain("%s: %d spins, %d pending, %d resolved (%d cached), %d not found, %d appended, %d playlists created, %d shows failed\n",
			result.Station, result.TotalSpins, result.Pending, result.Resolved,
			result.CacheHits, result.NotFound, result.Appended, result.Created, result.Failed)

		for _, show := range result.Shows {
			if show.Err != nil {
				r.writePlain("  ✗ %s: %v\n", show.Show, show.Err)
			}
		}
	}

	for _, station := range failed {
		r.writePlain("✗ %s: sync failed\n", station)
	}
}

// SyncHistory lists recent sync journal entries.
func (r *Runner) SyncHistory(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	deps, err := r.openEngine(config)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	criteria := map[string]any{}
	if limit := cmd.Int("limit"); limit > 0 {
		criteria["limit"] = limit
	}
	if station := cmd.String("station"); station != "" {
		criteria["station"] = station
	}

	runs, err := deps.runs.List(criteria)
	if err != nil {
		return fmt.Errorf("failed to list sync runs: %w", err)
	}

	if len(runs) == 0 {
		r.writePlain("No sync runs recorded.\n")
		return nil
	}

	r.writePlain("Found %d run(s):\n\n", len(runs))
	for _, run := range runs {
		station := run.Station()
		if station == "" {
			station = "all stations"
		}

		mode := "dry-run"
		if run.Live() {
			mode = "live"
		}

		r.writePlain("#%d %s [%s, %s]\n", run.Sequence(), station, run.Status(), mode)
		r.writePlain("   Window: %s → %s\n", run.WindowStart().Format("2006-01-02"), run.WindowEnd().Format("2006-01-02"))
		r.writePlain("   Processed: %d, Resolved: %d, Skipped: %d, Created: %d, Updated: %d\n",
			run.Processed(), run.Resolved(), run.Skipped(), run.PlaylistsCreated(), run.PlaylistsUpdated())
		if run.ErrorMessage() != "" {
			r.writePlain("   Error: %s\n", run.ErrorMessage())
		}
		if started := run.StartedAt(); started != nil {
			r.writePlain("   Started: %s\n", started.Format(time.RFC3339))
		}
		r.writePlain("\n")
	}

	return nil
}

// syncCommand reconciles playlists and inspects the run journal
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile station playlists against recent spins",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run reconciliation over the spin window",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "station",
						Aliases: []string{"s"},
						Usage:   "Station slug to sync (default: all configured stations)",
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Window end date (YYYY-MM-DD, default yesterday)",
					},
					&cli.IntFlag{
						Name:  "days",
						Usage: "Window length in days (default from config)",
					},
					&cli.BoolFlag{
						Name:  "live",
						Usage: "Mutate remote playlists (default is a dry run)",
					},
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "Rebuild playlist state from the remote listing first",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent show workers (default from config)",
					},
					&cli.BoolFlag{
						Name:  "report",
						Usage: "Print a markdown report per station",
					},
					&cli.StringFlag{
						Name:  "save",
						Usage: "Write the markdown report to a file",
					},
					configFlag(),
				},
				Action: r.SyncRun,
			},
			{
				Name:  "history",
				Usage: "List recent sync runs from the journal",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum runs to list",
						Value:   10,
					},
					&cli.StringFlag{
						Name:    "station",
						Aliases: []string{"s"},
						Usage:   "Filter by station slug",
					},
					configFlag(),
				},
				Action: r.SyncHistory,
			},
		},
	}
}
