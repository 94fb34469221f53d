package repositories

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/shared"
)

// CachedTrackRepository implements models.Repository[*models.CachedTrack] for the track cache.
//
// Rows are keyed by the normalized search key. Upsert gives same-key writers
// last-writer-wins semantics while refusing to let an older resolution
// overwrite a newer row.
type CachedTrackRepository struct {
	db *sql.DB
}

// NewCachedTrackRepository creates a new CachedTrackRepository with the given database connection
func NewCachedTrackRepository(db *sql.DB) *CachedTrackRepository {
	return &CachedTrackRepository{db: db}
}

// Create inserts a new cache entry into the database with generated ID and sequence
func (r *CachedTrackRepository) Create(entry *models.CachedTrack) error {
	sequence, err := NextSequence(r.db, "cached_tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	entry.SetID(id)
	entry.SetSequence(sequence)

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO cached_tracks (id, sequence, key, track_id, found, resolved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var trackID any = entry.TrackID()
	if trackID == "" {
		trackID = nil
	}

	_, err = r.db.Exec(query,
		id,
		sequence,
		entry.Key(),
		trackID,
		entry.Found(),
		entry.ResolvedAt(),
		entry.CreatedAt(),
		entry.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	return nil
}

// Get retrieves a cache entry by ID, excluding soft-deleted entries
func (r *CachedTrackRepository) Get(id string) (*models.CachedTrack, error) {
	query := `
		SELECT id, sequence, key, track_id, found, resolved_at, created_at, updated_at, deleted_at
		FROM cached_tracks
		WHERE id = ? AND deleted_at IS NULL
	`

	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByKey retrieves a cache entry by its normalized search key
func (r *CachedTrackRepository) GetByKey(key string) (*models.CachedTrack, error) {
	query := `
		SELECT id, sequence, key, track_id, found, resolved_at, created_at, updated_at, deleted_at
		FROM cached_tracks
		WHERE key = ? AND deleted_at IS NULL
	`

	return r.scanOne(r.db.QueryRow(query, key))
}

// Update modifies an existing cache entry in the database
func (r *CachedTrackRepository) Update(entry *models.CachedTrack) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	entry.SetUpdatedAt(now)

	query := `
		UPDATE cached_tracks
		SET track_id = ?, found = ?, resolved_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	var trackID any = entry.TrackID()
	if trackID == "" {
		trackID = nil
	}

	result, err := r.db.Exec(query, trackID, entry.Found(), entry.ResolvedAt(), now, entry.ID())
	if err != nil {
		return fmt.Errorf("failed to update cache entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("cache entry not found or already deleted: %s", entry.ID())
	}

	return nil
}

// Delete soft-deletes a cache entry by ID
func (r *CachedTrackRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE cached_tracks
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("cache entry not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves all cache entries matching the given criteria, excluding soft-deleted entries
func (r *CachedTrackRepository) List(criteria map[string]any) ([]*models.CachedTrack, error) {
	query := `
		SELECT id, sequence, key, track_id, found, resolved_at, created_at, updated_at, deleted_at
		FROM cached_tracks
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if found, ok := criteria["found"].(bool); ok {
		query += " AND found = ?"
		args = append(args, found)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.CachedTrack
	for rows.Next() {
		entry, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// Upsert writes an entry inside tx, replacing any existing row for the same
// key unless that row carries a newer resolution timestamp.
func (r *CachedTrackRepository) Upsert(tx *sql.Tx, entry *models.CachedTrack) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO cached_tracks (id, sequence, key, track_id, found, resolved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			track_id = excluded.track_id,
			found = excluded.found,
			resolved_at = excluded.resolved_at,
			updated_at = excluded.updated_at,
			deleted_at = NULL
		WHERE excluded.resolved_at >= cached_tracks.resolved_at
	`

	var trackID any = entry.TrackID()
	if trackID == "" {
		trackID = nil
	}

	_, err := tx.Exec(query,
		entry.ID(),
		entry.Sequence(),
		entry.Key(),
		trackID,
		entry.Found(),
		entry.ResolvedAt(),
		entry.CreatedAt(),
		entry.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// PruneExpired hard-deletes rows whose resolution is older than ttl at time
// now and returns the number removed.
func (r *CachedTrackRepository) PruneExpired(now time.Time, ttl time.Duration) (int, error) {
	result, err := r.db.Exec("DELETE FROM cached_tracks WHERE resolved_at < ?", now.Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache entries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

// scanOne scans a single [sql.Row] into a [models.CachedTrack]
func (r *CachedTrackRepository) scanOne(row *sql.Row) (*models.CachedTrack, error) {
	var (
		id         string
		sequence   int
		key        string
		trackID    sql.NullString
		found      bool
		resolvedAt time.Time
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &key, &trackID, &found, &resolvedAt, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cache entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache entry: %w", err)
	}

	entry := models.NewCachedTrack(sequence, key, trackID.String, found, resolvedAt)
	entry.SetID(id)
	entry.SetCreatedAt(createdAt)
	entry.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		entry.SetDeletedAt(&deletedAt.Time)
	}

	return entry, nil
}

// scanRow scans a row from [sql.Rows] into a [models.CachedTrack]
func (r *CachedTrackRepository) scanRow(rows *sql.Rows) (*models.CachedTrack, error) {
	var (
		id         string
		sequence   int
		key        string
		trackID    sql.NullString
		found      bool
		resolvedAt time.Time
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := rows.Scan(&id, &sequence, &key, &trackID, &found, &resolvedAt, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache entry: %w", err)
	}

	entry := models.NewCachedTrack(sequence, key, trackID.String, found, resolvedAt)
	entry.SetID(id)
	entry.SetCreatedAt(createdAt)
	entry.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		entry.SetDeletedAt(&deletedAt.Time)
	}

	return entry, nil
}

// CacheStats summarizes the cache for the stats command.
type CacheStats struct {
	Total    int       `json:"total"`
	Found    int       `json:"found"`
	NotFound int       `json:"not_found"`
	Expired  int       `json:"expired"`
	Oldest   time.Time `json:"oldest,omitempty"`
	Newest   time.Time `json:"newest,omitempty"`
}

// TrackCache is the in-memory view of the track cache shared by show workers.
//
// Loaded once at startup, mutated under a mutex during the run, and flushed
// per batch in a single transaction. Load failures degrade to an empty cache
// so a corrupt database never aborts a run.
type TrackCache struct {
	repo   *CachedTrackRepository
	ttl    time.Duration
	logger *log.Logger

	mu      sync.Mutex
	entries map[string]*models.CachedTrack
	dirty   map[string]struct{}
}

// NewTrackCache creates an empty cache view over repo with the given TTL.
func NewTrackCache(repo *CachedTrackRepository, ttl time.Duration, logger *log.Logger) *TrackCache {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &TrackCache{
		repo:    repo,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]*models.CachedTrack),
		dirty:   make(map[string]struct{}),
	}
}

// TTL returns the cache's time-to-live.
func (c *TrackCache) TTL() time.Duration {
	return c.ttl
}

// Load primes the cache from storage. Errors degrade to an empty cache with
// a warning; the run proceeds with in-memory state only.
func (c *TrackCache) Load() {
	entries, err := c.repo.List(map[string]any{})
	if err != nil {
		c.logger.Warn("track cache unreadable, starting empty", "error", fmt.Errorf("%w: %v", shared.ErrCacheIO, err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range entries {
		c.entries[entry.Key()] = entry
	}
}

// Lookup returns the entry for key. Entries older than the TTL are treated
// as absent; they are overwritten by the next Store for the key.
func (c *TrackCache) Lookup(key string, now time.Time) (*models.CachedTrack, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.Expired(now, c.ttl) {
		return nil, false
	}
	return entry, true
}

// Store records a resolution outcome for key. Same-key races resolve
// last-writer-wins, except that a live entry is never replaced by one with
// an older resolution timestamp.
func (c *TrackCache) Store(key, trackID string, found bool, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := models.NewCachedTrack(0, key, trackID, found, now)
	if existing, ok := c.entries[key]; ok {
		if !existing.Expired(now, c.ttl) && existing.Fresher(entry) {
			return
		}
	}

	c.entries[key] = entry
	c.dirty[key] = struct{}{}
}

// Flush persists dirty entries in one transaction and clears the dirty set.
func (c *TrackCache) Flush() error {
	c.mu.Lock()
	pending := make([]*models.CachedTrack, 0, len(c.dirty))
	for key := range c.dirty {
		if entry, ok := c.entries[key]; ok {
			pending = append(pending, entry)
		}
	}
	c.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	// Sequences run in their own transactions, so claim them before the
	// batch transaction opens.
	for _, entry := range pending {
		if entry.ID() != "" {
			continue
		}
		sequence, err := NextSequence(c.repo.db, "cached_tracks")
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrCacheIO, err)
		}
		entry.SetID(shared.GenerateID())
		entry.SetSequence(sequence)
	}

	tx, err := c.repo.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCacheIO, err)
	}
	defer tx.Rollback()

	for _, entry := range pending {
		if err := c.repo.Upsert(tx, entry); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrCacheIO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCacheIO, err)
	}

	c.mu.Lock()
	for _, entry := range pending {
		delete(c.dirty, entry.Key())
	}
	c.mu.Unlock()

	return nil
}

// Stats summarizes the cache contents at time now.
func (c *TrackCache) Stats(now time.Time) CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{}
	for _, entry := range c.entries {
		stats.Total++
		if entry.Found() {
			stats.Found++
		} else {
			stats.NotFound++
		}
		if entry.Expired(now, c.ttl) {
			stats.Expired++
		}
		resolved := entry.ResolvedAt()
		if stats.Oldest.IsZero() || resolved.Before(stats.Oldest) {
			stats.Oldest = resolved
		}
		if resolved.After(stats.Newest) {
			stats.Newest = resolved
		}
	}
	return stats
}

// Prune drops expired entries from storage and memory, returning the number
// removed from storage.
func (c *TrackCache) Prune(now time.Time) (int, error) {
	removed, err := c.repo.PruneExpired(now, c.ttl)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrCacheIO, err)
	}

	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.Expired(now, c.ttl) {
			delete(c.entries, key)
			delete(c.dirty, key)
		}
	}
	c.mu.Unlock()

	return removed, nil
}
