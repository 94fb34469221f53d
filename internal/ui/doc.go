// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for station syncing:
//  1. [StationListView] : Pick one of the configured stations
//  2. [ShowListView] : Preview the shows heard in the sync window
//  3. [ConfirmView] : Confirm the run and toggle live/dry-run mode
//  4. [SyncView] : Monitor real-time progress updates
//  5. [ResultView] : Display summary counts and failed shows
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the sync engine, providing non-blocking status reporting during runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, l, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
