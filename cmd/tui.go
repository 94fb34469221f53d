package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/desertthunder/spinsync/internal/tasks"
	"github.com/desertthunder/spinsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI: pick a station, preview its
// shows, confirm, and watch the sync run.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	if r.source == nil {
		return fmt.Errorf("%w: spin source not initialized", shared.ErrServiceUnavailable)
	}
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}
	if len(config.Stations) == 0 {
		return fmt.Errorf("%w: no stations configured", shared.ErrInvalidConfig)
	}

	from, to, err := r.window(cmd, config)
	if err != nil {
		return err
	}

	deps, err := r.openEngine(config)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	// Redirect logs to file to avoid interfering with TUI rendering
	r.SetLogger(shared.NewFileLogger("./tmp/spinsync-tui.log"))

	opts := tasks.SyncOpts{
		From:    from,
		To:      to,
		Workers: config.Sync.Workers,
		Live:    cmd.Bool("live"),
	}

	model := ui.NewModel(ctx, config, r.source, deps.engine, opts)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// tuiCommand launches the interactive interface
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Interactive station sync",
		Flags: []cli.Flag{
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
				Usage: "Start in live mode (toggle in the confirm view)",
			},
			configFlag(),
		},
		Action: r.TUI,
	}
}
