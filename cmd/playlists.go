package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/spinsync/internal/formatter"
	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlaylistsList renders the authenticated user's playlists, markdown by
// default, optionally filtered to one station's managed playlists.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)
	useJSON := cmd.Bool("json")
	useCSV := cmd.Bool("csv")
	savePath := cmd.String("save")
	station := cmd.String("station")

	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	r.logger.Info("listing playlists")

	playlists, err := r.spotify.ListPlaylists(ctx)
	if err != nil {
		if reauthed, authErr := r.handleAuthError(ctx, err, cmd); reauthed {
			if authErr != nil {
				return authErr
			}
			if playlists, err = r.spotify.ListPlaylists(ctx); err != nil {
				return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
			}
		} else {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
	}

	if station != "" {
		prefix := strings.ToUpper(station) + " - "
		filtered := make([]models.Playlist, 0, len(playlists))
		for _, pl := range playlists {
			if strings.HasPrefix(pl.Name, prefix) {
				filtered = append(filtered, pl)
			}
		}
		playlists = filtered
	}

	if useJSON {
		return r.writeJSON(playlists, true)
	}

	var data []byte
	if useCSV {
		data, err = formatter.PlaylistsToCSV(playlists)
	} else {
		data, err = formatter.PlaylistsToMarkdown(playlists)
	}
	if err != nil {
		return fmt.Errorf("failed to render playlists: %w", err)
	}

	if savePath != "" {
		saved, err := formatter.SaveReport(data, savePath, "playlists.md")
		if err != nil {
			return err
		}
		r.writePlain("✓ Playlists saved to %s\n", saved)
		return nil
	}

	return r.writePlain("%s", data)
}

// playlistsCommand inspects the remote playlists the engine manages
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "Inspect Spotify playlists",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List playlists (markdown by default)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "station",
						Aliases: []string{"s"},
						Usage:   "Only playlists managed for this station",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON",
					},
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "Output CSV",
					},
					&cli.StringFlag{
						Name:  "save",
						Usage: "Write the listing to a file",
					},
					configFlag(),
				},
				Action: r.PlaylistsList,
			},
		},
	}
}
