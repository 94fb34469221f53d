package ui

import (
	"github.com/desertthunder/spinsync/internal/tasks"
)

// Messages passed from commands back into the update loop.

// showsFetchedMsg carries the distinct show names heard in the sync window.
type showsFetchedMsg struct {
	shows []string
	err   error
}

// progressUpdateMsg wraps one engine progress event.
type progressUpdateMsg tasks.ProgressUpdate

// syncCompleteMsg carries the final result once the engine run finishes.
type syncCompleteMsg struct {
	result *tasks.SyncResult
	err    error
}
