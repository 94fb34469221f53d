package tasks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/repositories"
	"github.com/desertthunder/spinsync/internal/services"
	"github.com/desertthunder/spinsync/internal/shared"
)

// defaultAppendBatch bounds track ids per append call so the watermark can
// advance after every landed batch, not only at the end.
const defaultAppendBatch = 100

// watermarkRegex matches the recovery marker embedded in playlist descriptions.
var watermarkRegex = regexp.MustCompile(`Latest ID: (\d+)`)

// WatermarkDescription renders the marker written into a playlist description
// after each successful reconciliation.
func WatermarkDescription(id int64) string {
	return fmt.Sprintf("Latest ID: %d", id)
}

// ParseWatermark extracts the marker from a playlist description, returning 0
// when absent or unreadable.
func ParseWatermark(description string) int64 {
	match := watermarkRegex.FindStringSubmatch(description)
	if match == nil {
		return 0
	}
	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// PlaylistName builds the managed playlist name for a station's show.
func PlaylistName(station, show string) string {
	return services.SanitizePlaylistName(fmt.Sprintf("%s - %s", strings.ToUpper(station), show))
}

// SyncOpts configures one station reconciliation run.
type SyncOpts struct {
	Station string
	From    time.Time
	To      time.Time
	Ignores []*regexp.Regexp // show names matching any pattern are skipped
	Workers int              // concurrent show workers (default 5, capped at 10)
	Live    bool             // mutate remote playlists; false reports only
	Refresh bool             // rebuild playlist state from the remote listing first
}

// ShowSyncResult reports one show's reconciliation.
type ShowSyncResult struct {
	Station      string
	Show         string
	PlaylistID   string
	PlaylistName string
	Created      bool  // playlist created (or would be, in a dry run)
	Total        int   // canonical spins for the show in the window
	Pending      int   // spins past the watermark at run start
	Resolved     int   // pending spins matched to a track
	CacheHits    int   // resolutions served from the track cache
	NotFound     int   // pending spins with no catalog match
	Appended     int   // tracks appended (or that would be)
	Skipped      int   // resolved tracks already present in the playlist
	Watermark    int64 // watermark after the run
	Err          error
}

// SyncResult aggregates a full station run.
type SyncResult struct {
	Station      string
	From         time.Time
	To           time.Time
	Live         bool
	TotalSpins   int
	Malformed    int
	IgnoredShows int
	Pending      int
	Resolved     int
	CacheHits    int
	NotFound     int
	Appended     int
	Created      int
	Failed       int
	Shows        []ShowSyncResult
}

// SyncEngine defines the reconciliation operations exposed to the CLI and TUI.
type SyncEngine interface {
	// SyncStation reconciles every show heard on the station within the window.
	SyncStation(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts) (*SyncResult, error)

	// RefreshState rebuilds the playlist state table from the remote listing.
	RefreshState(ctx context.Context, station string) (int, error)
}

// EngineDeps wires a StationEngine's collaborators.
type EngineDeps struct {
	Source    services.SpinSource
	Playlists services.PlaylistService
	Resolver  *Resolver
	States    *repositories.PlaylistStateRepository
	Cache     *repositories.TrackCache
	Runs      *repositories.SyncRunRepository
	Logger    *log.Logger
}

// StationEngine implements SyncEngine over a spin source, the catalog
// resolver, and a playlist service.
type StationEngine struct {
	source    services.SpinSource
	playlists services.PlaylistService
	resolver  *Resolver
	states    *repositories.PlaylistStateRepository
	cache     *repositories.TrackCache
	runs      *repositories.SyncRunRepository
	logger    *log.Logger

	appendBatchSize int
}

// NewStationEngine creates an engine from its wired dependencies.
func NewStationEngine(deps EngineDeps) *StationEngine {
	logger := deps.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &StationEngine{
		source:          deps.Source,
		playlists:       deps.Playlists,
		resolver:        deps.Resolver,
		states:          deps.States,
		cache:           deps.Cache,
		runs:            deps.Runs,
		logger:          logger,
		appendBatchSize: defaultAppendBatch,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *StationEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// SyncStation fetches the station's spins for the window, normalizes them per
// show, and reconciles each show's playlist. Show failures are isolated: one
// show's error never aborts the others.
func (e *StationEngine) SyncStation(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts) (*SyncResult, error) {
	if e.source == nil {
		return nil, fmt.Errorf("%w: spin source not initialized", shared.ErrServiceUnavailable)
	}
	if e.playlists == nil {
		return nil, fmt.Errorf("%w: playlist service not initialized", shared.ErrServiceUnavailable)
	}

	result := &SyncResult{
		Station: opts.Station,
		From:    opts.From,
		To:      opts.To,
		Live:    opts.Live,
	}

	run := e.startRun(opts)

	if opts.Refresh {
		count, err := e.RefreshState(ctx, opts.Station)
		if err != nil {
			e.failRun(run, err)
			return nil, err
		}
		e.sendProgress(progress, refreshUpdate(opts.Station, count))
	}

	e.sendProgress(progress, fetchSpinsUpdate(opts.Station, opts.From, opts.To))
	raw, err := e.source.FetchSpins(ctx, opts.Station, opts.From, opts.To)
	if err != nil {
		err = fmt.Errorf("failed to fetch spins: %w", err)
		e.failRun(run, err)
		return nil, err
	}
	result.TotalSpins = len(raw)

	var lists []models.TrackList
	for _, group := range GroupByShow(raw) {
		if Ignored(group.Show, opts.Ignores) {
			result.IgnoredShows++
			continue
		}

		list, malformed := Normalize(group.Spins, opts.Ignores)
		result.Malformed += malformed
		if len(list.Spins) == 0 {
			continue
		}
		lists = append(lists, list)
	}
	e.sendProgress(progress, normalizeUpdate(result.TotalSpins, len(lists)))

	result.Shows = e.runShows(ctx, progress, opts, lists)

	updated := 0
	var authErr error
	for _, show := range result.Shows {
		result.Pending += show.Pending
		result.Resolved += show.Resolved
		result.CacheHits += show.CacheHits
		result.NotFound += show.NotFound
		result.Appended += show.Appended
		if show.Created {
			result.Created++
		} else if show.Appended > 0 {
			updated++
		}
		if show.Err != nil {
			result.Failed++
			if authErr == nil && errors.Is(show.Err, shared.ErrTokenExpired) {
				authErr = show.Err
			}
			e.logger.Error("show sync failed", "station", show.Station, "show", show.Show, "error", show.Err)
		}
	}

	if err := e.cache.Flush(); err != nil {
		e.logger.Warn("failed to persist track cache", "error", err)
	}

	// Token expiry mid-run surfaces to the caller so it can reauthorize and
	// rerun the station. The watermark makes the rerun resume where shows
	// stopped, so nothing is double-appended.
	if authErr != nil {
		err := fmt.Errorf("station sync aborted: %w", authErr)
		e.failRun(run, err)
		return nil, err
	}

	e.completeRun(run, result, updated)
	return result, nil
}

// SyncShow reconciles one show's canonical spin list against its playlist.
func (e *StationEngine) SyncShow(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts, list models.TrackList) ShowSyncResult {
	result := ShowSyncResult{Station: opts.Station, Show: list.Show, Total: len(list.Spins)}

	state, created, err := e.resolveState(ctx, opts, list.Show)
	if err != nil {
		result.Err = err
		return result
	}

	result.Created = created
	result.PlaylistID = state.PlaylistID()
	result.PlaylistName = state.Name()
	result.Watermark = state.Watermark()
	e.sendProgress(progress, resolvePlaylistUpdate(list.Show, created))

	var pending []models.Spin
	for _, spin := range list.Spins {
		if spin.ID > state.Watermark() {
			pending = append(pending, spin)
		}
	}
	result.Pending = len(pending)
	if len(pending) == 0 {
		// Everything is behind the watermark: no searches, no mutations.
		return result
	}

	// Resolve pending spins in broadcast order. A per-run resolution failure
	// stops the show here; the processed prefix still appends and advances
	// the watermark below, so the next run resumes exactly where this one
	// stopped.
	type outcome struct {
		spin    models.Spin
		trackID string
		found   bool
	}

	var outcomes []outcome
	var runErr error
	for i, spin := range pending {
		e.sendProgress(progress, resolveTrackUpdate(list.Show, i+1, len(pending), spin.Artist, spin.Title))

		res, err := e.resolver.Resolve(ctx, spin)
		if err != nil {
			runErr = err
			break
		}

		if res.Cached {
			result.CacheHits++
		}
		if res.Found {
			result.Resolved++
		} else {
			result.NotFound++
			e.logger.Info("spin not found in catalog", "show", list.Show, "artist", spin.Artist, "title", spin.Title, "id", spin.ID)
		}
		outcomes = append(outcomes, outcome{spin: spin, trackID: res.TrackID, found: res.Found})
	}

	needAppend := false
	for _, o := range outcomes {
		if o.found {
			needAppend = true
			break
		}
	}

	// Current membership guards against re-adding tracks a partially-failed
	// previous run already appended. When nothing resolved there is nothing
	// to guard, and the stored track count stands.
	membership := make(map[string]struct{})
	baseCount := state.TrackCount()
	if needAppend && state.PlaylistID() != "" {
		ids, err := e.playlists.PlaylistTrackIDs(ctx, state.PlaylistID())
		if err != nil {
			result.Err = fmt.Errorf("%w: reading membership of %s: %v", shared.ErrPlaylistMutation, state.Name(), err)
			return result
		}
		for _, id := range ids {
			membership[id] = struct{}{}
		}
		baseCount = len(membership)
	}

	// Append in batches, in ascending source-id order. landed tracks the
	// highest spin id whose append has actually completed; covered runs ahead
	// of it by at most one unflushed batch.
	landed := state.Watermark()
	covered := landed
	batch := make([]string, 0, e.appendBatchSize)
	var mutErr error

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if opts.Live {
			if err := e.playlists.AppendTracks(ctx, state.PlaylistID(), batch); err != nil {
				return err
			}
		}
		result.Appended += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, o := range outcomes {
		if o.found {
			if _, ok := membership[o.trackID]; ok {
				result.Skipped++
			} else {
				batch = append(batch, o.trackID)
				membership[o.trackID] = struct{}{}
			}
		}
		covered = o.spin.ID

		if len(batch) >= e.appendBatchSize {
			if err := flush(); err != nil {
				mutErr = err
				break
			}
			landed = covered
		}
	}
	if mutErr == nil {
		if err := flush(); err != nil {
			mutErr = err
		} else {
			landed = covered
		}
	}

	if mutErr != nil {
		result.Err = fmt.Errorf("%w: appending to %s: %v", shared.ErrPlaylistMutation, state.Name(), mutErr)
	} else if runErr != nil {
		result.Err = runErr
	}

	if result.Appended > 0 {
		e.sendProgress(progress, appendUpdate(list.Show, result.Appended))
	}

	// Watermark and state only move on live runs, and only over spins whose
	// appends landed.
	if opts.Live && landed > state.Watermark() {
		state.AdvanceWatermark(landed)
		state.SetTrackCount(baseCount + result.Appended)

		if err := e.states.Update(state); err != nil {
			if result.Err == nil {
				result.Err = fmt.Errorf("%w: persisting state for %s: %v", shared.ErrCacheIO, list.Show, err)
			}
			e.logger.Error("failed to persist playlist state", "show", list.Show, "error", err)
		}

		result.Watermark = state.Watermark()
		e.sendProgress(progress, advanceUpdate(list.Show, state.Watermark()))

		// The description marker is a recovery aid, not part of state: a
		// failed write is logged but never fails the show.
		if err := e.playlists.SetDescription(ctx, state.PlaylistID(), WatermarkDescription(state.Watermark())); err != nil {
			e.logger.Warn("failed to write watermark description", "show", list.Show, "error", err)
		}
	}

	return result
}

// resolveState loads the show's playlist record, creating the playlist and
// record when none exists. Dry runs get an unsaved record with the zero
// watermark so reporting works without mutations.
func (e *StationEngine) resolveState(ctx context.Context, opts SyncOpts, show string) (*models.PlaylistState, bool, error) {
	state, err := e.states.GetByShow(opts.Station, show)
	if err == nil {
		return state, false, nil
	}
	if !errors.Is(err, shared.ErrStateNotFound) {
		return nil, false, fmt.Errorf("%w: loading state for %s: %v", shared.ErrCacheIO, show, err)
	}

	name := PlaylistName(opts.Station, show)
	if !opts.Live {
		return models.NewPlaylistState(0, opts.Station, show, "", name), true, nil
	}

	playlist, err := e.playlists.CreatePlaylist(ctx, name, true)
	if err != nil {
		return nil, false, fmt.Errorf("%w: creating %s: %v", shared.ErrPlaylistMutation, name, err)
	}

	state = models.NewPlaylistState(0, opts.Station, show, playlist.ID, playlist.Name)
	if err := e.states.Create(state); err != nil {
		return nil, false, fmt.Errorf("%w: persisting state for %s: %v", shared.ErrCacheIO, show, err)
	}

	e.logger.Info("created playlist", "name", playlist.Name, "id", playlist.ID)
	return state, true, nil
}

// RefreshState rebuilds the station's playlist state table from the remote
// listing, recovering each watermark from the description marker.
func (e *StationEngine) RefreshState(ctx context.Context, station string) (int, error) {
	if e.playlists == nil {
		return 0, fmt.Errorf("%w: playlist service not initialized", shared.ErrServiceUnavailable)
	}

	playlists, err := e.playlists.ListPlaylists(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list playlists: %w", err)
	}

	prefix := strings.ToUpper(station) + " - "
	var states []*models.PlaylistState
	for _, pl := range playlists {
		if !strings.HasPrefix(pl.Name, prefix) {
			continue
		}

		show := strings.TrimPrefix(pl.Name, prefix)
		state := models.NewPlaylistState(0, station, show, pl.ID, pl.Name)
		state.AdvanceWatermark(ParseWatermark(pl.Description))
		state.SetTrackCount(pl.TrackCount)
		states = append(states, state)
	}

	if err := e.states.ReplaceForStation(station, states); err != nil {
		return 0, err
	}

	e.logger.Info("rebuilt playlist states", "station", station, "count", len(states))
	return len(states), nil
}

// startRun opens a journal entry for the run. Journal failures degrade to
// logging; they never block a sync.
func (e *StationEngine) startRun(opts SyncOpts) *models.SyncRun {
	if e.runs == nil {
		return nil
	}

	run := models.NewSyncRun(0, opts.Station, opts.From, opts.To, opts.Live)
	run.Start()
	if err := e.runs.Create(run); err != nil {
		e.logger.Warn("failed to journal sync run", "error", err)
		return nil
	}
	return run
}

func (e *StationEngine) completeRun(run *models.SyncRun, result *SyncResult, updated int) {
	if run == nil {
		return
	}

	run.Complete(result.Pending, result.Resolved, result.NotFound, result.Created, updated)
	if err := e.runs.Update(run); err != nil {
		e.logger.Warn("failed to finalize sync run", "error", err)
	}
}

func (e *StationEngine) failRun(run *models.SyncRun, err error) {
	if run == nil {
		return
	}

	run.Fail(err.Error())
	if uerr := e.runs.Update(run); uerr != nil {
		e.logger.Warn("failed to finalize sync run", "error", uerr)
	}
}
