package models

import (
	"fmt"
	"time"
)

// PlaylistState is the reconciliation cursor for one (station, show) pair:
// the remote playlist id and the watermark, the highest spin source id
// already written into that playlist. Watermark 0 means the playlist exists
// but no spins have been synced yet.
type PlaylistState struct {
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
	deletedAt  *time.Time
}

// NewPlaylistState builds a fresh cursor for a newly created playlist.
func NewPlaylistState(sequence int, station, show, playlistID, name string) *PlaylistState {
	now := time.Now()
	return &PlaylistState{
		sequence:   sequence,
		station:    station,
		show:       show,
		playlistID: playlistID,
		name:       name,
		createdAt:  now,
		updatedAt:  now,
	}
}

func (p *PlaylistState) ID() string            { return p.id }
func (p *PlaylistState) Sequence() int         { return p.sequence }
func (p *PlaylistState) Station() string       { return p.station }
func (p *PlaylistState) Show() string          { return p.show }
func (p *PlaylistState) PlaylistID() string    { return p.playlistID }
func (p *PlaylistState) Name() string          { return p.name }
func (p *PlaylistState) Watermark() int64      { return p.watermark }
func (p *PlaylistState) TrackCount() int       { return p.trackCount }
func (p *PlaylistState) CreatedAt() time.Time  { return p.createdAt }
func (p *PlaylistState) UpdatedAt() time.Time  { return p.updatedAt }
func (p *PlaylistState) DeletedAt() *time.Time { return p.deletedAt }

// AdvanceWatermark raises the watermark to id. The watermark never moves
// backwards; a lower or equal id is a no-op.
func (p *PlaylistState) AdvanceWatermark(id int64) {
	if id > p.watermark {
		p.watermark = id
	}
}

func (p *PlaylistState) SetTrackCount(n int)       { p.trackCount = n }
func (p *PlaylistState) SetID(id string)           { p.id = id }
func (p *PlaylistState) SetSequence(seq int)       { p.sequence = seq }
func (p *PlaylistState) SetCreatedAt(t time.Time)  { p.createdAt = t }
func (p *PlaylistState) SetUpdatedAt(t time.Time)  { p.updatedAt = t }
func (p *PlaylistState) SetDeletedAt(t *time.Time) { p.deletedAt = t }

// Validate checks the cursor's invariants.
func (p *PlaylistState) Validate() error {
	if p.station == "" {
		return fmt.Errorf("playlist state station is required")
	}
	if p.show == "" {
		return fmt.Errorf("playlist state show is required")
	}
	if p.playlistID == "" {
		return fmt.Errorf("playlist state playlist id is required")
	}
	if p.name == "" {
		return fmt.Errorf("playlist state name is required")
	}
	if p.watermark < 0 {
		return fmt.Errorf("watermark must not be negative")
	}
	return nil
}
