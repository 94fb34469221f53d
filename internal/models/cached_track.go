package models

import (
	"fmt"
	"time"
)

// CachedTrack is a persisted catalog resolution keyed by normalized
// artist|title. A row with found=false records an explicit miss so the
// resolver does not re-search unresolvable spins inside the TTL window.
type CachedTrack struct {
	id         string
	sequence   int
	key        string
	trackID    string
	found      bool
	resolvedAt time.Time
	createdAt  time.Time
	updatedAt  time.Time
	deletedAt  *time.Time
}

// NewCachedTrack builds a cache entry for a resolution outcome. trackID is
// empty when found is false.
func NewCachedTrack(sequence int, key, trackID string, found bool, resolvedAt time.Time) *CachedTrack {
	now := time.Now()
	return &CachedTrack{
		sequence:   sequence,
		key:        key,
		trackID:    trackID,
		found:      found,
		resolvedAt: resolvedAt,
		createdAt:  now,
		updatedAt:  now,
	}
}

func (c *CachedTrack) ID() string            { return c.id }
func (c *CachedTrack) Sequence() int         { return c.sequence }
func (c *CachedTrack) Key() string           { return c.key }
func (c *CachedTrack) TrackID() string       { return c.trackID }
func (c *CachedTrack) Found() bool           { return c.found }
func (c *CachedTrack) ResolvedAt() time.Time { return c.resolvedAt }
func (c *CachedTrack) CreatedAt() time.Time  { return c.createdAt }
func (c *CachedTrack) UpdatedAt() time.Time  { return c.updatedAt }
func (c *CachedTrack) DeletedAt() *time.Time { return c.deletedAt }

// Expired reports whether the entry is older than ttl at time now. Expired
// entries are treated as absent by lookups and overwritten by the next
// resolution.
func (c *CachedTrack) Expired(now time.Time, ttl time.Duration) bool {
	return c.resolvedAt.Before(now.Add(-ttl))
}

// Fresher reports whether this entry's resolution is newer than other's.
func (c *CachedTrack) Fresher(other *CachedTrack) bool {
	if other == nil {
		return true
	}
	return c.resolvedAt.After(other.resolvedAt)
}

// Resolve replaces the entry's outcome with a new resolution at time now.
func (c *CachedTrack) Resolve(trackID string, found bool, now time.Time) {
	c.trackID = trackID
	c.found = found
	c.resolvedAt = now
}

func (c *CachedTrack) SetID(id string)           { c.id = id }
func (c *CachedTrack) SetSequence(sequence int)  { c.sequence = sequence }
func (c *CachedTrack) SetCreatedAt(t time.Time)  { c.createdAt = t }
func (c *CachedTrack) SetUpdatedAt(t time.Time)  { c.updatedAt = t }
func (c *CachedTrack) SetDeletedAt(t *time.Time) { c.deletedAt = t }

// Validate checks the entry's invariants.
func (c *CachedTrack) Validate() error {
	if c.key == "" {
		return fmt.Errorf("cached track key is required")
	}
	if c.found && c.trackID == "" {
		return fmt.Errorf("found cache entries require a track id")
	}
	if !c.found && c.trackID != "" {
		return fmt.Errorf("not-found cache entries must not carry a track id")
	}
	if c.resolvedAt.IsZero() {
		return fmt.Errorf("resolution timestamp is required")
	}
	return nil
}
