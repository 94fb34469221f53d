// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [CachedTrackRepository] : Track resolution cache rows keyed by normalized artist|title
//   - [TrackCache] : Shared in-memory view over the cache with batched flushes
//   - [PlaylistStateRepository] : Per-show playlist bindings and sync watermarks
//   - [SyncRunRepository] : Sync journal with per-run outcome counts
//
// Sequence numbers provide stable, human-readable ordering (e.g., cache entry #42, sync run #15) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
