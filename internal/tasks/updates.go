package tasks

import (
	"fmt"
	"time"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchSpins Phase = iota
	NormalizeSpins
	ResolvePlaylist
	ResolveTracks
	AppendBatch
	AdvanceMark
	RefreshStates
	ShowSynced
)

func (p Phase) String() string {
	switch p {
	case FetchSpins:
		return "fetch_spins"
	case NormalizeSpins:
		return "normalize_spins"
	case ResolvePlaylist:
		return "resolve_playlist"
	case ResolveTracks:
		return "resolve_tracks"
	case AppendBatch:
		return "append_batch"
	case AdvanceMark:
		return "advance_watermark"
	case RefreshStates:
		return "refresh_states"
	case ShowSynced:
		return "show_synced"
	default:
		return ""
	}
}

func fetchSpinsUpdate(station string, from, to time.Time) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSpins,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching spins for %s (%s to %s)...", station, from.Format("2006-01-02"), to.Format("2006-01-02")),
	}
}

func normalizeUpdate(spins, shows int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   NormalizeSpins,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Normalized %d spins across %d shows", spins, shows),
	}
}

func resolvePlaylistUpdate(show string, created bool) ProgressUpdate {
	message := fmt.Sprintf("Using playlist for %s", show)
	if created {
		message = fmt.Sprintf("Created playlist for %s", show)
	}
	return ProgressUpdate{
		Phase:   ResolvePlaylist,
		Step:    1,
		Total:   1,
		Message: message,
	}
}

func resolveTrackUpdate(show string, step, total int, artist, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: %s - %s", step, total, show, artist, title),
	}
}

func appendUpdate(show string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AppendBatch,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Appended %d tracks to %s", count, show),
	}
}

func advanceUpdate(show string, watermark int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AdvanceMark,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s watermark now %d", show, watermark),
	}
}

func refreshUpdate(station string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RefreshStates,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Rebuilt %d playlist records for %s", count, station),
	}
}

func showSyncedUpdate(step, total int, result ShowSyncResult) ProgressUpdate {
	message := fmt.Sprintf("[%d/%d] ✓ %s (%d appended)", step, total, result.Show, result.Appended)
	if result.Err != nil {
		message = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, result.Show, result.Err)
	}
	return ProgressUpdate{
		Phase:   ShowSynced,
		Step:    step,
		Total:   total,
		Message: message,
		Data:    result,
	}
}
