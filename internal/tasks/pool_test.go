package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/repositories"
)

// gateCatalog counts how many searches run at once.
type gateCatalog struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (g *gateCatalog) Name() string { return "GateCatalog" }

func (g *gateCatalog) SearchTracks(ctx context.Context, query string) ([]models.Candidate, error) {
	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	g.mu.Lock()
	g.current--
	g.mu.Unlock()

	return nil, nil
}

func (g *gateCatalog) maxConcurrent() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

func TestClampWorkers(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, defaultWorkers},
		{-3, defaultWorkers},
		{1, 1},
		{3, 3},
		{maxWorkers, maxWorkers},
		{25, maxWorkers},
	}

	for _, tt := range tests {
		if got := clampWorkers(tt.in); got != tt.want {
			t.Errorf("clampWorkers(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRunShows(t *testing.T) {
	newGateEngine := func(t *testing.T) (*StationEngine, *gateCatalog) {
		t.Helper()

		db := setupTestDB(t)
		cache := newTestCache(t, db)
		gate := &gateCatalog{}

		engine := NewStationEngine(EngineDeps{
			Source:    &mockSpinSource{},
			Playlists: newMockPlaylistService(),
			Resolver:  NewResolver(gate, cache, ResolverOpts{Backoff: time.Millisecond}, nil),
			States:    repositories.NewPlaylistStateRepository(db),
			Cache:     cache,
		})
		return engine, gate
	}

	makeLists := func(n int) []models.TrackList {
		lists := make([]models.TrackList, 0, n)
		for i := 0; i < n; i++ {
			show := fmt.Sprintf("Show %02d", i)
			lists = append(lists, trackList(show, listSpin(int64(100+i), fmt.Sprintf("Artist %02d", i), fmt.Sprintf("Cut %02d", i))))
		}
		return lists
	}

	t.Run("bounds concurrency at the worker count", func(t *testing.T) {
		engine, gate := newGateEngine(t)

		opts := syncOpts(false)
		opts.Workers = 3

		results := engine.runShows(context.Background(), nil, opts, makeLists(12))
		if len(results) != 12 {
			t.Fatalf("expected 12 results, got %d", len(results))
		}
		if peak := gate.maxConcurrent(); peak > 3 {
			t.Errorf("expected at most 3 concurrent searches, saw %d", peak)
		}
	})

	t.Run("results sort by show name", func(t *testing.T) {
		engine, _ := newGateEngine(t)

		results := engine.runShows(context.Background(), nil, syncOpts(false), makeLists(8))
		for i := 1; i < len(results); i++ {
			if results[i-1].Show > results[i].Show {
				t.Fatalf("results out of order: %q before %q", results[i-1].Show, results[i].Show)
			}
		}
	})

	t.Run("empty input yields no results", func(t *testing.T) {
		engine, gate := newGateEngine(t)

		if results := engine.runShows(context.Background(), nil, syncOpts(false), nil); results != nil {
			t.Errorf("expected nil results, got %v", results)
		}
		if gate.maxConcurrent() != 0 {
			t.Error("expected no searches for empty input")
		}
	})

	t.Run("cancelled context fails each remaining show", func(t *testing.T) {
		engine, gate := newGateEngine(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := engine.runShows(ctx, nil, syncOpts(false), makeLists(6))
		if len(results) != 6 {
			t.Fatalf("expected 6 results, got %d", len(results))
		}
		for _, res := range results {
			if !errors.Is(res.Err, context.Canceled) {
				t.Errorf("expected context.Canceled for %s, got %v", res.Show, res.Err)
			}
		}
		if gate.maxConcurrent() != 0 {
			t.Error("expected no searches after cancellation")
		}
	})
}
