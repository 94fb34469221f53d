// package formatter renders managed playlists and sync reports as Markdown, CSV, and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/desertthunder/spinsync/internal/tasks"
)

// PlaylistsToMarkdown converts a playlist listing to a Markdown table with columns: Name, ID, Tracks, Description
func PlaylistsToMarkdown(playlists []models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Managed Playlists\n\n")
	buf.WriteString(fmt.Sprintf("**Count**: %d\n\n", len(playlists)))

	buf.WriteString("| Name | ID | Tracks | Description |\n")
	buf.WriteString("|------|----|--------|-------------|\n")
	for _, pl := range playlists {
		buf.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n",
			escapeCell(pl.Name), escapeCell(pl.ID), pl.TrackCount, escapeCell(pl.Description)))
	}

	return buf.Bytes(), nil
}

// PlaylistsToCSV converts a playlist listing to CSV format with columns: Name, ID, Tracks, Visibility, Description, URL
func PlaylistsToCSV(playlists []models.Playlist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Name", "ID", "Tracks", "Visibility", "Description", "URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, pl := range playlists {
		record := []string{
			pl.Name,
			pl.ID,
			strconv.Itoa(pl.TrackCount),
			shared.VisibilityString(pl.Public),
			pl.Description,
			pl.URL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// PlaylistsToText converts a playlist listing to plain text format
func PlaylistsToText(playlists []models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Managed playlists: %d\n\n", len(playlists)))
	for i, pl := range playlists {
		buf.WriteString(fmt.Sprintf("%d. %s (%d tracks, %s)\n", i+1, pl.Name, pl.TrackCount, shared.VisibilityString(pl.Public)))
		if pl.Description != "" {
			buf.WriteString(fmt.Sprintf("   %s\n", pl.Description))
		}
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown converts a sync result to a Markdown report with a per-show table
func ReportToMarkdown(result *tasks.SyncResult) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Sync Report: %s\n\n", strings.ToUpper(result.Station)))
	buf.WriteString(fmt.Sprintf("**Window**: %s to %s\n", result.From.Format("2006-01-02"), result.To.Format("2006-01-02")))
	buf.WriteString(fmt.Sprintf("**Mode**: %s\n\n", modeString(result.Live)))

	buf.WriteString(fmt.Sprintf("**Spins**: %d fetched, %d malformed, %d shows ignored\n",
		result.TotalSpins, result.Malformed, result.IgnoredShows))
	buf.WriteString(fmt.Sprintf("**Resolution**: %d pending, %d resolved (%d cached), %d not found\n",
		result.Pending, result.Resolved, result.CacheHits, result.NotFound))
	buf.WriteString(fmt.Sprintf("**Playlists**: %d appended, %d created, %d failed shows\n\n",
		result.Appended, result.Created, result.Failed))

	if len(result.Shows) == 0 {
		buf.WriteString("No shows in the window.\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("## Shows\n\n")
	buf.WriteString("| Show | Playlist | Pending | Resolved | Not Found | Appended | Watermark | Status |\n")
	buf.WriteString("|------|----------|---------|----------|-----------|----------|-----------|--------|\n")
	for _, show := range result.Shows {
		status := "✓"
		if show.Err != nil {
			status = fmt.Sprintf("✗ %s", escapeCell(show.Err.Error()))
		}
		buf.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %d | %d | %s |\n",
			escapeCell(show.Show), escapeCell(show.PlaylistName),
			show.Pending, show.Resolved, show.NotFound, show.Appended, show.Watermark, status))
	}

	return buf.Bytes(), nil
}

// ReportToText converts a sync result to the plain text summary shown in the terminal
func ReportToText(result *tasks.SyncResult) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Sync %s (%s to %s) - %s\n",
		strings.ToUpper(result.Station),
		result.From.Format("2006-01-02"), result.To.Format("2006-01-02"),
		strings.ToUpper(modeString(result.Live))))
	buf.WriteString(fmt.Sprintf("Spins: %d fetched, %d malformed, %d shows ignored\n",
		result.TotalSpins, result.Malformed, result.IgnoredShows))
	buf.WriteString(fmt.Sprintf("Tracks: %d pending, %d resolved (%d cached), %d not found\n",
		result.Pending, result.Resolved, result.CacheHits, result.NotFound))
	buf.WriteString(fmt.Sprintf("Playlists: %d appended, %d created, %d failed shows\n",
		result.Appended, result.Created, result.Failed))

	for _, show := range result.Shows {
		buf.WriteString(fmt.Sprintf("\n%s\n", show.Show))
		buf.WriteString(fmt.Sprintf("  playlist: %s\n", show.PlaylistName))
		buf.WriteString(fmt.Sprintf("  appended %d, skipped %d, not found %d, watermark %d\n",
			show.Appended, show.Skipped, show.NotFound, show.Watermark))
		if show.Err != nil {
			buf.WriteString(fmt.Sprintf("  error: %v\n", show.Err))
		}
	}

	return buf.Bytes(), nil
}

// SaveReport writes rendered report data to path, falling back to a default filename.
//
// Returns the path written.
func SaveReport(data []byte, path, fallback string) (string, error) {
	if path == "" {
		path = fallback
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}

func modeString(live bool) string {
	if live {
		return "live"
	}
	return "dry run"
}

// escapeCell makes a value safe inside a Markdown table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
