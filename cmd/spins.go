package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/desertthunder/spinsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SpinsList fetches a station's spins for the window and prints them, raw or
// normalized per show.
func (r *Runner) SpinsList(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	station := cmd.String("station")
	raw := cmd.Bool("raw")
	useJSON := cmd.Bool("json")

	if r.source == nil {
		return fmt.Errorf("%w: spin source not initialized", shared.ErrServiceUnavailable)
	}

	stationConfig, ok := config.Station(station)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrUnknownStation, station)
	}

	from, to, err := r.window(cmd, config)
	if err != nil {
		return err
	}

	r.logger.Info("fetching spins", "station", station, "from", from.Format("2006-01-02"), "to", to.Format("2006-01-02"))

	spins, err := r.source.FetchSpins(ctx, station, from, to)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if raw {
		if useJSON {
			return r.writeJSON(spins, true)
		}

		r.writePlain("Found %d spins:\n\n", len(spins))
		for _, spin := range spins {
			r.writePlain("%d. [%s] %s - %s\n", spin.ID, spin.Show, spin.Artist, spin.Song)
		}
		return nil
	}

	ignores := stationConfig.CompiledIgnores(r.logger)
	var lists []models.TrackList
	total := 0
	malformed := 0
	ignored := 0

	for _, group := range tasks.GroupByShow(spins) {
		if tasks.Ignored(group.Show, ignores) {
			ignored++
			continue
		}

		list, bad := tasks.Normalize(group.Spins, ignores)
		malformed += bad
		if len(list.Spins) == 0 {
			continue
		}
		total += len(list.Spins)
		lists = append(lists, list)
	}

	if useJSON {
		return r.writeJSON(lists, true)
	}

	r.writePlain("Found %d spins (%d canonical, %d malformed, %d shows ignored):\n",
		len(spins), total, malformed, ignored)
	for _, list := range lists {
		r.writePlain("\n%s (%d tracks):\n", list.Show, len(list.Spins))
		for _, spin := range list.Spins {
			r.writePlain("  %d. %s - %s", spin.ID, spin.Artist, spin.Title)
			if spin.Album != "" {
				r.writePlain(" (%s)", spin.Album)
			}
			r.writePlain("\n")
		}
	}

	return nil
}

// SpinsShows lists the distinct shows heard on a station within the window.
func (r *Runner) SpinsShows(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	station := cmd.String("station")

	if r.source == nil {
		return fmt.Errorf("%w: spin source not initialized", shared.ErrServiceUnavailable)
	}

	if _, ok := config.Station(station); !ok {
		return fmt.Errorf("%w: %s", shared.ErrUnknownStation, station)
	}

	from, to, err := r.window(cmd, config)
	if err != nil {
		return err
	}

	shows, err := r.source.FetchShows(ctx, station, from, to)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("Found %d show(s) on %s:\n\n", len(shows), station)
	for i, show := range shows {
		r.writePlain("%d. %s\n", i+1, show)
	}

	return nil
}

// spinsCommand previews the spin feed and the normalizer's view of it
func spinsCommand(r *Runner) *cli.Command {
	windowFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "station",
			Aliases:  []string{"s"},
			Usage:    "Station slug",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "date",
			Usage: "Window end date (YYYY-MM-DD, default yesterday)",
		},
		&cli.IntFlag{
			Name:  "days",
			Usage: "Window length in days (default from config)",
		},
	}

	return &cli.Command{
		Name:  "spins",
		Usage: "Inspect the station spin feed",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List spins in the window, normalized per show",
				Flags: append(append([]cli.Flag{}, windowFlags...),
					&cli.BoolFlag{
						Name:  "raw",
						Usage: "Show the feed as delivered, before normalization",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON",
					},
					configFlag(),
				),
				Action: r.SpinsList,
			},
			{
				Name:   "shows",
				Usage:  "List distinct shows heard in the window",
				Flags:  append(append([]cli.Flag{}, windowFlags...), configFlag()),
				Action: r.SpinsShows,
			},
		},
	}
}
