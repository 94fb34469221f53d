package tasks

import (
	"context"
	"sort"
	"sync"

	"github.com/desertthunder/spinsync/internal/models"
)

const (
	defaultWorkers = 5
	maxWorkers     = 10
)

// clampWorkers applies the default and ceiling to a configured worker count.
func clampWorkers(n int) int {
	if n <= 0 {
		return defaultWorkers
	}
	if n > maxWorkers {
		return maxWorkers
	}
	return n
}

// runShows reconciles each show's list through a bounded worker pool. Shows
// touch disjoint playlist and state rows, so they parallelize freely; the
// track cache is the one shared structure and guards itself.
func (e *StationEngine) runShows(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts, lists []models.TrackList) []ShowSyncResult {
	if len(lists) == 0 {
		return nil
	}

	workers := clampWorkers(opts.Workers)

	jobs := make(chan models.TrackList, len(lists))
	results := make(chan ShowSyncResult, len(lists))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.showWorker(ctx, &wg, progress, opts, jobs, results)
	}

	for _, list := range lists {
		jobs <- list
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]ShowSyncResult, 0, len(lists))
	for res := range results {
		collected = append(collected, res)
		e.sendProgress(progress, showSyncedUpdate(len(collected), len(lists), res))
	}

	// Workers finish in arbitrary order; reports should not.
	sort.Slice(collected, func(i, j int) bool { return collected[i].Show < collected[j].Show })
	return collected
}

// showWorker drains the jobs channel, reconciling one show at a time.
func (e *StationEngine) showWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	progress chan<- ProgressUpdate,
	opts SyncOpts,
	jobs <-chan models.TrackList,
	results chan<- ShowSyncResult,
) {
	defer wg.Done()

	for list := range jobs {
		select {
		case <-ctx.Done():
			results <- ShowSyncResult{Station: opts.Station, Show: list.Show, Err: ctx.Err()}
			continue
		default:
		}

		results <- e.SyncShow(ctx, progress, opts, list)
	}
}
