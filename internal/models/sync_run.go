package models

import (
	"fmt"
	"time"
)

// SyncRun status values.
const (
	SyncRunPending   = "pending"
	SyncRunRunning   = "running"
	SyncRunCompleted = "completed"
	SyncRunFailed    = "failed"
)

// SyncRun is one journal entry per engine run: the window it covered, whether
// it mutated remote playlists, and the summary counts.
type SyncRun struct {
	id               string
	sequence         int
	station          string
	status           string
	windowStart      time.Time
	windowEnd        time.Time
	live             bool
	processed        int
	resolved         int
	skipped          int
	playlistsCreated int
	playlistsUpdated int
	errorMessage     string
	startedAt        *time.Time
	completedAt      *time.Time
	createdAt        time.Time
	updatedAt        time.Time
	deletedAt        *time.Time
}

// NewSyncRun builds a pending journal entry. station is empty when the run
// covers every configured station.
func NewSyncRun(sequence int, station string, windowStart, windowEnd time.Time, live bool) *SyncRun {
	now := time.Now()
	return &SyncRun{
		sequence:    sequence,
		station:     station,
		status:      SyncRunPending,
		windowStart: windowStart,
		windowEnd:   windowEnd,
		live:        live,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (s *SyncRun) ID() string              { return s.id }
func (s *SyncRun) Sequence() int           { return s.sequence }
func (s *SyncRun) Station() string         { return s.station }
func (s *SyncRun) Status() string          { return s.status }
func (s *SyncRun) WindowStart() time.Time  { return s.windowStart }
func (s *SyncRun) WindowEnd() time.Time    { return s.windowEnd }
func (s *SyncRun) Live() bool              { return s.live }
func (s *SyncRun) Processed() int          { return s.processed }
func (s *SyncRun) Resolved() int           { return s.resolved }
func (s *SyncRun) Skipped() int            { return s.skipped }
func (s *SyncRun) PlaylistsCreated() int   { return s.playlistsCreated }
func (s *SyncRun) PlaylistsUpdated() int   { return s.playlistsUpdated }
func (s *SyncRun) ErrorMessage() string    { return s.errorMessage }
func (s *SyncRun) StartedAt() *time.Time   { return s.startedAt }
func (s *SyncRun) CompletedAt() *time.Time { return s.completedAt }
func (s *SyncRun) CreatedAt() time.Time    { return s.createdAt }
func (s *SyncRun) UpdatedAt() time.Time    { return s.updatedAt }
func (s *SyncRun) DeletedAt() *time.Time   { return s.deletedAt }

// Start marks the run as in flight.
func (s *SyncRun) Start() {
	now := time.Now()
	s.status = SyncRunRunning
	s.startedAt = &now
}

// Complete records the final counts and marks the run completed.
func (s *SyncRun) Complete(processed, resolved, skipped, created, updated int) {
	now := time.Now()
	s.status = SyncRunCompleted
	s.processed = processed
	s.resolved = resolved
	s.skipped = skipped
	s.playlistsCreated = created
	s.playlistsUpdated = updated
	s.completedAt = &now
}

// Fail marks the run failed with a message; any counts already set stand.
func (s *SyncRun) Fail(message string) {
	now := time.Now()
	s.status = SyncRunFailed
	s.errorMessage = message
	s.completedAt = &now
}

func (s *SyncRun) SetID(id string)         { s.id = id }
func (s *SyncRun) SetSequence(seq int)     { s.sequence = seq }
func (s *SyncRun) SetStatus(status string) { s.status = status }
func (s *SyncRun) SetCounts(processed, resolved, skipped, created, updated int) {
	s.processed = processed
	s.resolved = resolved
	s.skipped = skipped
	s.playlistsCreated = created
	s.playlistsUpdated = updated
}
func (s *SyncRun) SetErrorMessage(msg string)  { s.errorMessage = msg }
func (s *SyncRun) SetStartedAt(t *time.Time)   { s.startedAt = t }
func (s *SyncRun) SetCompletedAt(t *time.Time) { s.completedAt = t }
func (s *SyncRun) SetCreatedAt(t time.Time)    { s.createdAt = t }
func (s *SyncRun) SetUpdatedAt(t time.Time)    { s.updatedAt = t }
func (s *SyncRun) SetDeletedAt(t *time.Time)   { s.deletedAt = t }

// Validate checks the journal entry's invariants.
func (s *SyncRun) Validate() error {
	switch s.status {
	case SyncRunPending, SyncRunRunning, SyncRunCompleted, SyncRunFailed:
	default:
		return fmt.Errorf("unknown sync run status %q", s.status)
	}
	if s.windowStart.IsZero() || s.windowEnd.IsZero() {
		return fmt.Errorf("sync run window is required")
	}
	if s.windowEnd.Before(s.windowStart) {
		return fmt.Errorf("sync run window end precedes start")
	}
	return nil
}
