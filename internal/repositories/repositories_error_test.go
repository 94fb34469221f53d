package repositories

import (
	"testing"
	"time"

	"github.com/desertthunder/spinsync/internal/models"
)

func TestCachedTrackRepositoryErrors(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewCachedTrackRepository(db)
			entry := models.NewCachedTrack(0, "", "spotify123", true, now)

			if err := repo.Create(entry); err == nil {
				t.Fatal("expected validation error for empty key")
			}
		})

		t.Run("FoundWithoutTrackID", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewCachedTrackRepository(db)
			entry := models.NewCachedTrack(0, "loscil|bell flame", "", true, now)

			if err := repo.Create(entry); err == nil {
				t.Fatal("expected validation error for found entry without track id")
			}
		})

		t.Run("DuplicateKey", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewCachedTrackRepository(db)
			entry1 := models.NewCachedTrack(0, "loscil|bell flame", "spotify123", true, now)

			if err := repo.Create(entry1); err != nil {
				t.Fatalf("failed to create first entry: %v", err)
			}

			entry2 := models.NewCachedTrack(0, "loscil|bell flame", "spotify456", true, now)
			if err := repo.Create(entry2); err == nil {
				t.Fatal("expected error when creating entry with duplicate key")
			}
		})
	})

	t.Run("NotFound errors", func(t *testing.T) {
		t.Run("Get", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewCachedTrackRepository(db)

			if _, err := repo.Get("nonexistent-id"); err == nil {
				t.Fatal("expected error when getting nonexistent entry")
			}
		})

		t.Run("GetByKey", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewCachedTrackRepository(db)

			if _, err := repo.GetByKey("nonexistent|key"); err == nil {
				t.Fatal("expected error when getting nonexistent key")
			}
		})

		t.Run("Update", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewCachedTrackRepository(db)
			entry := models.NewCachedTrack(0, "loscil|bell flame", "spotify123", true, now)
			entry.SetID("nonexistent-id")

			if err := repo.Update(entry); err == nil {
				t.Fatal("expected error when updating nonexistent entry")
			}
		})

		t.Run("Delete", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewCachedTrackRepository(db)

			if err := repo.Delete("nonexistent-id"); err == nil {
				t.Fatal("expected error when deleting nonexistent entry")
			}
		})
	})

	t.Run("List", func(t *testing.T) {
		t.Run("ExcludesDeleted", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewCachedTrackRepository(db)

			entry1 := models.NewCachedTrack(0, "loscil|bell flame", "spotify123", true, now)
			entry2 := models.NewCachedTrack(0, "emeralds|up in the air", "spotify456", true, now)

			if err := repo.Create(entry1); err != nil {
				t.Fatalf("failed to create entry1: %v", err)
			}
			if err := repo.Create(entry2); err != nil {
				t.Fatalf("failed to create entry2: %v", err)
			}

			if err := repo.Delete(entry1.ID()); err != nil {
				t.Fatalf("failed to delete entry1: %v", err)
			}

			entries, err := repo.List(map[string]any{})
			if err != nil {
				t.Fatalf("failed to list entries: %v", err)
			}

			if len(entries) != 1 {
				t.Errorf("expected 1 entry (excluding deleted), got %d", len(entries))
			}

			if len(entries) > 0 && entries[0].Key() != "emeralds|up in the air" {
				t.Errorf("expected surviving entry, got %s", entries[0].Key())
			}
		})
	})
}

func TestPlaylistStateRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewPlaylistStateRepository(db)
			state := models.NewPlaylistState(0, "", "Round Midnight", "spotify123", "KALX - Round Midnight")

			if err := repo.Create(state); err == nil {
				t.Fatal("expected validation error for empty station")
			}
		})

		t.Run("DuplicateShow", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewPlaylistStateRepository(db)
			state1 := models.NewPlaylistState(0, "KALX", "Round Midnight", "spotify123", "KALX - Round Midnight")

			if err := repo.Create(state1); err != nil {
				t.Fatalf("failed to create first state: %v", err)
			}

			state2 := models.NewPlaylistState(0, "KALX", "Round Midnight", "spotify456", "KALX - Round Midnight")
			if err := repo.Create(state2); err == nil {
				t.Fatal("expected error when creating state with duplicate station and show")
			}
		})
	})

	t.Run("NotFound errors", func(t *testing.T) {
		t.Run("Get", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewPlaylistStateRepository(db)

			if _, err := repo.Get("nonexistent-id"); err == nil {
				t.Fatal("expected error when getting nonexistent state")
			}
		})

		t.Run("Update", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewPlaylistStateRepository(db)
			state := models.NewPlaylistState(0, "KALX", "Round Midnight", "spotify123", "KALX - Round Midnight")
			state.SetID("nonexistent-id")

			if err := repo.Update(state); err == nil {
				t.Fatal("expected error when updating nonexistent state")
			}
		})

		t.Run("Delete", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewPlaylistStateRepository(db)

			if err := repo.Delete("nonexistent-id"); err == nil {
				t.Fatal("expected error when deleting nonexistent state")
			}
		})
	})
}

func TestSyncRunRepositoryErrors(t *testing.T) {
	windowEnd := time.Now().UTC().Truncate(time.Second)
	windowStart := windowEnd.Add(-7 * 24 * time.Hour)

	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewSyncRunRepository(db)
			run := models.NewSyncRun(0, "KALX", windowEnd, windowStart, false)

			if err := repo.Create(run); err == nil {
				t.Fatal("expected validation error for window ending before it starts")
			}
		})

		t.Run("InvalidStatus", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewSyncRunRepository(db)
			run := models.NewSyncRun(0, "KALX", windowStart, windowEnd, false)
			run.SetStatus("bogus")

			if err := repo.Create(run); err == nil {
				t.Fatal("expected validation error for unknown status")
			}
		})
	})

	t.Run("NotFound errors", func(t *testing.T) {
		t.Run("Get", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewSyncRunRepository(db)

			if _, err := repo.Get("nonexistent-id"); err == nil {
				t.Fatal("expected error when getting nonexistent run")
			}
		})

		t.Run("Update", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewSyncRunRepository(db)
			run := models.NewSyncRun(0, "KALX", windowStart, windowEnd, false)
			run.SetID("nonexistent-id")

			if err := repo.Update(run); err == nil {
				t.Fatal("expected error when updating nonexistent run")
			}
		})

		t.Run("Delete", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewSyncRunRepository(db)

			if err := repo.Delete("nonexistent-id"); err == nil {
				t.Fatal("expected error when deleting nonexistent run")
			}
		})
	})
}
