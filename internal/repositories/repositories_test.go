package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// A fresh pool connection would see a different empty in-memory database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestCachedTrackRepository(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCachedTrackRepository(db)
		entry := models.NewCachedTrack(0, "loscil|bell flame", "spotify123", true, now)

		if err := repo.Create(entry); err != nil {
			t.Fatalf("failed to create cache entry: %v", err)
		}

		if entry.ID() == "" {
			t.Error("entry ID should be set after creation")
		}
	})

	t.Run("GetByKey", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCachedTrackRepository(db)
		entry := models.NewCachedTrack(0, "loscil|bell flame", "spotify123", true, now)

		if err := repo.Create(entry); err != nil {
			t.Fatalf("failed to create cache entry: %v", err)
		}

		retrieved, err := repo.GetByKey("loscil|bell flame")
		if err != nil {
			t.Fatalf("failed to get cache entry: %v", err)
		}

		if retrieved.TrackID() != "spotify123" {
			t.Errorf("expected track ID spotify123, got %s", retrieved.TrackID())
		}

		if !retrieved.Found() {
			t.Error("expected entry to be marked found")
		}
	})

	t.Run("Create not-found entry", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCachedTrackRepository(db)
		entry := models.NewCachedTrack(0, "unknown|song", "", false, now)

		if err := repo.Create(entry); err != nil {
			t.Fatalf("failed to create cache entry: %v", err)
		}

		retrieved, err := repo.GetByKey("unknown|song")
		if err != nil {
			t.Fatalf("failed to get cache entry: %v", err)
		}

		if retrieved.Found() {
			t.Error("expected entry to be marked not found")
		}

		if retrieved.TrackID() != "" {
			t.Errorf("expected empty track ID, got %s", retrieved.TrackID())
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCachedTrackRepository(db)
		entry := models.NewCachedTrack(0, "unknown|song", "", false, now)

		if err := repo.Create(entry); err != nil {
			t.Fatalf("failed to create cache entry: %v", err)
		}

		retrieved, err := repo.GetByKey("unknown|song")
		if err != nil {
			t.Fatalf("failed to get cache entry: %v", err)
		}

		retrieved.Resolve("spotify456", true, now.Add(time.Hour))
		if err := repo.Update(retrieved); err != nil {
			t.Fatalf("failed to update cache entry: %v", err)
		}

		updated, err := repo.GetByKey("unknown|song")
		if err != nil {
			t.Fatalf("failed to get updated entry: %v", err)
		}

		if !updated.Found() || updated.TrackID() != "spotify456" {
			t.Errorf("expected resolved entry, got found=%v id=%s", updated.Found(), updated.TrackID())
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCachedTrackRepository(db)
		entry := models.NewCachedTrack(0, "loscil|bell flame", "spotify123", true, now)

		if err := repo.Create(entry); err != nil {
			t.Fatalf("failed to create cache entry: %v", err)
		}

		if err := repo.Delete(entry.ID()); err != nil {
			t.Fatalf("failed to delete cache entry: %v", err)
		}

		if _, err := repo.GetByKey("loscil|bell flame"); err == nil {
			t.Error("expected error when getting deleted entry")
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCachedTrackRepository(db)

		entries := []*models.CachedTrack{
			models.NewCachedTrack(0, "loscil|bell flame", "spotify123", true, now),
			models.NewCachedTrack(0, "emeralds|up in the air", "spotify456", true, now),
			models.NewCachedTrack(0, "unknown|song", "", false, now),
		}

		for _, entry := range entries {
			if err := repo.Create(entry); err != nil {
				t.Fatalf("failed to create cache entry: %v", err)
			}
		}

		all, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("failed to list cache entries: %v", err)
		}

		if len(all) != 3 {
			t.Errorf("expected 3 entries, got %d", len(all))
		}

		misses, err := repo.List(map[string]any{"found": false})
		if err != nil {
			t.Fatalf("failed to list filtered entries: %v", err)
		}

		if len(misses) != 1 {
			t.Errorf("expected 1 not-found entry, got %d", len(misses))
		}
	})

	t.Run("PruneExpired", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCachedTrackRepository(db)
		ttl := 14 * 24 * time.Hour

		stale := models.NewCachedTrack(0, "old|song", "spotify123", true, now.Add(-ttl-time.Hour))
		fresh := models.NewCachedTrack(0, "new|song", "spotify456", true, now)

		for _, entry := range []*models.CachedTrack{stale, fresh} {
			if err := repo.Create(entry); err != nil {
				t.Fatalf("failed to create cache entry: %v", err)
			}
		}

		removed, err := repo.PruneExpired(now, ttl)
		if err != nil {
			t.Fatalf("failed to prune: %v", err)
		}

		if removed != 1 {
			t.Errorf("expected 1 pruned entry, got %d", removed)
		}

		remaining, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("failed to list entries: %v", err)
		}

		if len(remaining) != 1 || remaining[0].Key() != "new|song" {
			t.Errorf("expected only the fresh entry to survive, got %d entries", len(remaining))
		}
	})
}

func TestTrackCache(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	ttl := 14 * 24 * time.Hour

	t.Run("lookup honors the TTL boundary", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		cache := NewTrackCache(NewCachedTrackRepository(db), ttl, nil)
		cache.Store("fresh|song", "spotify123", true, now.Add(-ttl).Add(time.Second))
		cache.Store("stale|song", "spotify456", true, now.Add(-ttl).Add(-time.Second))

		if _, ok := cache.Lookup("fresh|song", now); !ok {
			t.Error("entry one second inside the TTL should be served")
		}

		if _, ok := cache.Lookup("stale|song", now); ok {
			t.Error("entry one second past the TTL should be treated as absent")
		}
	})

	t.Run("not-found outcomes are cached", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		cache := NewTrackCache(NewCachedTrackRepository(db), ttl, nil)
		cache.Store("unknown|song", "", false, now)

		entry, ok := cache.Lookup("unknown|song", now)
		if !ok {
			t.Fatal("expected not-found entry to be served from cache")
		}

		if entry.Found() {
			t.Error("expected entry to be marked not found")
		}
	})

	t.Run("flush persists across instances", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCachedTrackRepository(db)

		cache := NewTrackCache(repo, ttl, nil)
		cache.Store("loscil|bell flame", "spotify123", true, now)
		cache.Store("unknown|song", "", false, now)

		if err := cache.Flush(); err != nil {
			t.Fatalf("failed to flush cache: %v", err)
		}

		reloaded := NewTrackCache(repo, ttl, nil)
		reloaded.Load()

		entry, ok := reloaded.Lookup("loscil|bell flame", now)
		if !ok {
			t.Fatal("expected flushed entry after reload")
		}

		if entry.TrackID() != "spotify123" {
			t.Errorf("expected track ID spotify123, got %s", entry.TrackID())
		}

		if _, ok := reloaded.Lookup("unknown|song", now); !ok {
			t.Error("expected flushed not-found entry after reload")
		}
	})

	t.Run("flush is idempotent", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		cache := NewTrackCache(NewCachedTrackRepository(db), ttl, nil)
		cache.Store("loscil|bell flame", "spotify123", true, now)

		if err := cache.Flush(); err != nil {
			t.Fatalf("first flush failed: %v", err)
		}

		if err := cache.Flush(); err != nil {
			t.Fatalf("second flush failed: %v", err)
		}
	})

	t.Run("newer resolution is never overwritten", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		cache := NewTrackCache(NewCachedTrackRepository(db), ttl, nil)
		cache.Store("loscil|bell flame", "newer", true, now)
		cache.Store("loscil|bell flame", "older", true, now.Add(-time.Hour))

		entry, ok := cache.Lookup("loscil|bell flame", now)
		if !ok {
			t.Fatal("expected entry in cache")
		}

		if entry.TrackID() != "newer" {
			t.Errorf("expected newer resolution to survive, got %s", entry.TrackID())
		}
	})

	t.Run("expired entry is replaced by a new resolution", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		cache := NewTrackCache(NewCachedTrackRepository(db), ttl, nil)
		cache.Store("loscil|bell flame", "stale", true, now.Add(-ttl-time.Hour))
		cache.Store("loscil|bell flame", "fresh", true, now)

		entry, ok := cache.Lookup("loscil|bell flame", now)
		if !ok {
			t.Fatal("expected entry in cache")
		}

		if entry.TrackID() != "fresh" {
			t.Errorf("expected fresh resolution, got %s", entry.TrackID())
		}
	})

	t.Run("load tolerates an unreadable store", func(t *testing.T) {
		db, err := shared.NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create test database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(1)

		// No migrations: the cached_tracks table does not exist.
		cache := NewTrackCache(NewCachedTrackRepository(db), ttl, nil)
		cache.Load()

		if _, ok := cache.Lookup("any|key", now); ok {
			t.Error("expected empty cache after failed load")
		}

		cache.Store("in|memory", "spotify123", true, now)
		if _, ok := cache.Lookup("in|memory", now); !ok {
			t.Error("expected in-memory writes to work after failed load")
		}

		if err := cache.Flush(); !errors.Is(err, shared.ErrCacheIO) {
			t.Errorf("expected cache IO error from flush, got %v", err)
		}
	})

	t.Run("stats and prune", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		cache := NewTrackCache(NewCachedTrackRepository(db), ttl, nil)
		cache.Store("found|song", "spotify123", true, now)
		cache.Store("missing|song", "", false, now)
		cache.Store("expired|song", "spotify456", true, now.Add(-ttl-time.Hour))

		if err := cache.Flush(); err != nil {
			t.Fatalf("failed to flush cache: %v", err)
		}

		stats := cache.Stats(now)
		if stats.Total != 3 || stats.Found != 2 || stats.NotFound != 1 || stats.Expired != 1 {
			t.Errorf("unexpected stats: %+v", stats)
		}

		removed, err := cache.Prune(now)
		if err != nil {
			t.Fatalf("failed to prune: %v", err)
		}

		if removed != 1 {
			t.Errorf("expected 1 pruned entry, got %d", removed)
		}

		stats = cache.Stats(now)
		if stats.Total != 2 || stats.Expired != 0 {
			t.Errorf("unexpected stats after prune: %+v", stats)
		}
	})
}

func TestPlaylistStateRepository(t *testing.T) {
	t.Run("Create & GetByShow", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistStateRepository(db)
		state := models.NewPlaylistState(0, "KALX", "Round Midnight", "spotify123", "KALX - Round Midnight")

		if err := repo.Create(state); err != nil {
			t.Fatalf("failed to create playlist state: %v", err)
		}

		retrieved, err := repo.GetByShow("KALX", "Round Midnight")
		if err != nil {
			t.Fatalf("failed to get playlist state: %v", err)
		}

		if retrieved.PlaylistID() != "spotify123" {
			t.Errorf("expected playlist ID spotify123, got %s", retrieved.PlaylistID())
		}

		if retrieved.Watermark() != 0 {
			t.Errorf("expected fresh state watermark 0, got %d", retrieved.Watermark())
		}
	})

	t.Run("missing record is a sentinel", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistStateRepository(db)

		_, err := repo.GetByShow("KALX", "Never Synced")
		if !errors.Is(err, shared.ErrStateNotFound) {
			t.Errorf("expected ErrStateNotFound, got %v", err)
		}
	})

	t.Run("watermark only moves forward", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistStateRepository(db)
		state := models.NewPlaylistState(0, "KALX", "Round Midnight", "spotify123", "KALX - Round Midnight")

		if err := repo.Create(state); err != nil {
			t.Fatalf("failed to create playlist state: %v", err)
		}

		state.AdvanceWatermark(102)
		state.SetTrackCount(2)
		if err := repo.Update(state); err != nil {
			t.Fatalf("failed to update playlist state: %v", err)
		}

		state.AdvanceWatermark(99)
		if err := repo.Update(state); err != nil {
			t.Fatalf("failed to update playlist state: %v", err)
		}

		retrieved, err := repo.GetByShow("KALX", "Round Midnight")
		if err != nil {
			t.Fatalf("failed to get playlist state: %v", err)
		}

		if retrieved.Watermark() != 102 {
			t.Errorf("expected watermark to stay at 102, got %d", retrieved.Watermark())
		}

		if retrieved.TrackCount() != 2 {
			t.Errorf("expected track count 2, got %d", retrieved.TrackCount())
		}
	})

	t.Run("List filters by station", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistStateRepository(db)

		states := []*models.PlaylistState{
			models.NewPlaylistState(0, "KALX", "Round Midnight", "spotify1", "KALX - Round Midnight"),
			models.NewPlaylistState(0, "KALX", "Jazz Hour", "spotify2", "KALX - Jazz Hour"),
			models.NewPlaylistState(0, "KPOO", "Morning Show", "spotify3", "KPOO - Morning Show"),
		}

		for _, state := range states {
			if err := repo.Create(state); err != nil {
				t.Fatalf("failed to create playlist state: %v", err)
			}
		}

		kalx, err := repo.List(map[string]any{"station": "KALX"})
		if err != nil {
			t.Fatalf("failed to list playlist states: %v", err)
		}

		if len(kalx) != 2 {
			t.Errorf("expected 2 KALX states, got %d", len(kalx))
		}

		all, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("failed to list playlist states: %v", err)
		}

		if len(all) != 3 {
			t.Errorf("expected 3 states, got %d", len(all))
		}
	})

	t.Run("ReplaceForStation rebuilds state", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistStateRepository(db)

		stale := models.NewPlaylistState(0, "KALX", "Round Midnight", "old-id", "KALX - Round Midnight")
		if err := repo.Create(stale); err != nil {
			t.Fatalf("failed to create playlist state: %v", err)
		}

		other := models.NewPlaylistState(0, "KPOO", "Morning Show", "kpoo-id", "KPOO - Morning Show")
		if err := repo.Create(other); err != nil {
			t.Fatalf("failed to create playlist state: %v", err)
		}

		rebuilt := models.NewPlaylistState(0, "KALX", "Round Midnight", "new-id", "KALX - Round Midnight")
		rebuilt.AdvanceWatermark(103)

		if err := repo.ReplaceForStation("KALX", []*models.PlaylistState{rebuilt}); err != nil {
			t.Fatalf("failed to replace playlist states: %v", err)
		}

		retrieved, err := repo.GetByShow("KALX", "Round Midnight")
		if err != nil {
			t.Fatalf("failed to get rebuilt state: %v", err)
		}

		if retrieved.PlaylistID() != "new-id" {
			t.Errorf("expected rebuilt playlist ID new-id, got %s", retrieved.PlaylistID())
		}

		if retrieved.Watermark() != 103 {
			t.Errorf("expected rebuilt watermark 103, got %d", retrieved.Watermark())
		}

		if _, err := repo.GetByShow("KPOO", "Morning Show"); err != nil {
			t.Errorf("other stations should survive a rebuild: %v", err)
		}
	})
}

func TestSyncRunRepository(t *testing.T) {
	windowEnd := time.Now().UTC().Truncate(time.Second)
	windowStart := windowEnd.Add(-7 * 24 * time.Hour)

	t.Run("Create & lifecycle", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncRunRepository(db)
		run := models.NewSyncRun(0, "KALX", windowStart, windowEnd, false)

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create sync run: %v", err)
		}

		if run.Status() != models.SyncRunPending {
			t.Errorf("expected status pending, got %s", run.Status())
		}

		run.Start()
		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update sync run: %v", err)
		}

		run.Complete(12, 10, 2, 1, 3)
		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update sync run: %v", err)
		}

		retrieved, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get sync run: %v", err)
		}

		if retrieved.Status() != models.SyncRunCompleted {
			t.Errorf("expected status completed, got %s", retrieved.Status())
		}

		if retrieved.Processed() != 12 || retrieved.Resolved() != 10 || retrieved.Skipped() != 2 {
			t.Errorf("unexpected counts: processed=%d resolved=%d skipped=%d",
				retrieved.Processed(), retrieved.Resolved(), retrieved.Skipped())
		}

		if retrieved.CompletedAt() == nil {
			t.Error("expected completed_at to be set")
		}
	})

	t.Run("Fail records the message", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncRunRepository(db)
		run := models.NewSyncRun(0, "", windowStart, windowEnd, true)

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create sync run: %v", err)
		}

		run.Start()
		run.Fail("spin feed unavailable")
		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update sync run: %v", err)
		}

		retrieved, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get sync run: %v", err)
		}

		if retrieved.Status() != models.SyncRunFailed {
			t.Errorf("expected status failed, got %s", retrieved.Status())
		}

		if retrieved.ErrorMessage() != "spin feed unavailable" {
			t.Errorf("expected error message, got %q", retrieved.ErrorMessage())
		}

		if retrieved.Station() != "" {
			t.Errorf("expected empty station to round-trip, got %q", retrieved.Station())
		}
	})

	t.Run("List most recent first with limit", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncRunRepository(db)

		for i := 0; i < 3; i++ {
			run := models.NewSyncRun(0, "KALX", windowStart, windowEnd, false)
			if err := repo.Create(run); err != nil {
				t.Fatalf("failed to create sync run: %v", err)
			}
			run.Start()
			run.Complete(i, i, 0, 0, 0)
			if err := repo.Update(run); err != nil {
				t.Fatalf("failed to update sync run: %v", err)
			}
		}

		runs, err := repo.List(map[string]any{"limit": 2})
		if err != nil {
			t.Fatalf("failed to list sync runs: %v", err)
		}

		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}

		if runs[0].Sequence() <= runs[1].Sequence() {
			t.Errorf("expected most recent run first, got sequences %d then %d",
				runs[0].Sequence(), runs[1].Sequence())
		}

		completed, err := repo.List(map[string]any{"status": models.SyncRunCompleted})
		if err != nil {
			t.Fatalf("failed to list completed runs: %v", err)
		}

		if len(completed) != 3 {
			t.Errorf("expected 3 completed runs, got %d", len(completed))
		}
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	seq1, err := NextSequence(db, "cached_tracks")
	if err != nil {
		t.Fatalf("failed to get first sequence: %v", err)
	}

	if seq1 != 1 {
		t.Errorf("expected first sequence to be 1, got %d", seq1)
	}

	// Get second sequence
	seq2, err := NextSequence(db, "cached_tracks")
	if err != nil {
		t.Fatalf("failed to get second sequence: %v", err)
	}

	if seq2 != 2 {
		t.Errorf("expected second sequence to be 2, got %d", seq2)
	}

	stateSeq, err := NextSequence(db, "playlist_states")
	if err != nil {
		t.Fatalf("failed to get playlist state sequence: %v", err)
	}

	if stateSeq != 1 {
		t.Errorf("expected first playlist state sequence to be 1, got %d", stateSeq)
	}
}
