package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/shared"
)

// PlaylistStateRepository implements models.Repository[*models.PlaylistState] for playlist state records.
//
// One row per (station, show) pair, holding the remote playlist id and the
// watermark of the highest spin already reconciled into it.
type PlaylistStateRepository struct {
	db *sql.DB
}

// NewPlaylistStateRepository creates a new PlaylistStateRepository with the given database connection
func NewPlaylistStateRepository(db *sql.DB) *PlaylistStateRepository {
	return &PlaylistStateRepository{db: db}
}

// Create inserts a new playlist state into the database with generated ID and sequence
func (r *PlaylistStateRepository) Create(state *models.PlaylistState) error {
	sequence, err := NextSequence(r.db, "playlist_states")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	state.SetID(id)
	state.SetSequence(sequence)

	if err := state.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO playlist_states (id, sequence, station, show, playlist_id, name, watermark, track_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		state.Station(),
		state.Show(),
		state.PlaylistID(),
		state.Name(),
		state.Watermark(),
		state.TrackCount(),
		state.CreatedAt(),
		state.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert playlist state: %w", err)
	}

	return nil
}

// Get retrieves a playlist state by ID, excluding soft-deleted records
func (r *PlaylistStateRepository) Get(id string) (*models.PlaylistState, error) {
	query := `
		SELECT id, sequence, station, show, playlist_id, name, watermark, track_count, created_at, updated_at, deleted_at
		FROM playlist_states
		WHERE id = ? AND deleted_at IS NULL
	`

	state, err := r.scanOne(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", shared.ErrStateNotFound, id)
		}
		return nil, err
	}

	return state, nil
}

// GetByShow retrieves the playlist state for a station and show pair.
//
// A missing record is an expected condition for shows that have never been
// synced; callers distinguish it with [errors.Is] on [shared.ErrStateNotFound].
func (r *PlaylistStateRepository) GetByShow(station, show string) (*models.PlaylistState, error) {
	query := `
		SELECT id, sequence, station, show, playlist_id, name, watermark, track_count, created_at, updated_at, deleted_at
		FROM playlist_states
		WHERE station = ? AND show = ? AND deleted_at IS NULL
	`

	state, err := r.scanOne(r.db.QueryRow(query, station, show))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s/%s", shared.ErrStateNotFound, station, show)
		}
		return nil, err
	}

	return state, nil
}

// Update modifies an existing playlist state in the database
func (r *PlaylistStateRepository) Update(state *models.PlaylistState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	state.SetUpdatedAt(now)

	query := `
		UPDATE playlist_states
		SET playlist_id = ?, name = ?, watermark = ?, track_count = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		state.PlaylistID(),
		state.Name(),
		state.Watermark(),
		state.TrackCount(),
		now,
		state.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update playlist state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("playlist state not found or already deleted: %s", state.ID())
	}

	return nil
}

// Delete soft-deletes a playlist state by ID
func (r *PlaylistStateRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE playlist_states
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("playlist state not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves all playlist states matching the given criteria, excluding soft-deleted records
func (r *PlaylistStateRepository) List(criteria map[string]any) ([]*models.PlaylistState, error) {
	query := `
		SELECT id, sequence, station, show, playlist_id, name, watermark, track_count, created_at, updated_at, deleted_at
		FROM playlist_states
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if station, ok := criteria["station"].(string); ok && station != "" {
		query += " AND station = ?"
		args = append(args, station)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist states: %w", err)
	}
	defer rows.Close()

	var states []*models.PlaylistState
	for rows.Next() {
		state, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return states, nil
}

// ReplaceForStation rebuilds the station's state rows from states.
//
// Rows are hard-deleted because this table is derived state, reconstructed
// from the remote playlist listing during a refresh. Sequences are claimed
// before the transaction opens since NextSequence runs its own.
func (r *PlaylistStateRepository) ReplaceForStation(station string, states []*models.PlaylistState) error {
	for _, state := range states {
		sequence, err := NextSequence(r.db, "playlist_states")
		if err != nil {
			return fmt.Errorf("failed to generate sequence: %w", err)
		}
		state.SetID(shared.GenerateID())
		state.SetSequence(sequence)
		if err := state.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM playlist_states WHERE station = ?", station); err != nil {
		return fmt.Errorf("failed to clear playlist states: %w", err)
	}

	query := `
		INSERT INTO playlist_states (id, sequence, station, show, playlist_id, name, watermark, track_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, state := range states {
		_, err := tx.Exec(query,
			state.ID(),
			state.Sequence(),
			state.Station(),
			state.Show(),
			state.PlaylistID(),
			state.Name(),
			state.Watermark(),
			state.TrackCount(),
			state.CreatedAt(),
			state.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert playlist state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit playlist states: %w", err)
	}

	return nil
}

// scanOne scans a single [sql.Row] into a [models.PlaylistState]
func (r *PlaylistStateRepository) scanOne(row *sql.Row) (*models.PlaylistState, error) {
	var (
		id         string
		sequence   int
		station    string
		show       string
		playlistID string
		name       string
		watermark  int64
		trackCount int
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &station, &show, &playlistID, &name, &watermark, &trackCount, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan playlist state: %w", err)
	}

	state := models.NewPlaylistState(sequence, station, show, playlistID, name)
	state.SetID(id)
	state.AdvanceWatermark(watermark)
	state.SetTrackCount(trackCount)
	state.SetCreatedAt(createdAt)
	state.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		state.SetDeletedAt(&deletedAt.Time)
	}

	return state, nil
}

// scanRow scans a row from [sql.Rows] into a [models.PlaylistState]
func (r *PlaylistStateRepository) scanRow(rows *sql.Rows) (*models.PlaylistState, error) {
	var (
		id         string
		sequence   int
		station    string
		show       string
		playlistID string
		name       string
		watermark  int64
		trackCount int
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := rows.Scan(&id, &sequence, &station, &show, &playlistID, &name, &watermark, &trackCount, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist state: %w", err)
	}

	state := models.NewPlaylistState(sequence, station, show, playlistID, name)
	state.SetID(id)
	state.AdvanceWatermark(watermark)
	state.SetTrackCount(trackCount)
	state.SetCreatedAt(createdAt)
	state.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		state.SetDeletedAt(&deletedAt.Time)
	}

	return state, nil
}
