package models

import "time"

// RawSpin is one play event as delivered by the spin source. Fields are
// untrusted free text except ID, the source's event id, which is unique per
// station and monotonically increasing.
type RawSpin struct {
	ID       int64     `json:"id"`
	Station  string    `json:"station"`
	Show     string    `json:"show"`
	Artist   string    `json:"artist"`
	Song     string    `json:"song"`
	Release  string    `json:"release"`
	Label    string    `json:"label"`
	Duration int       `json:"duration"`
	Start    time.Time `json:"start"`
}

// Spin is a canonical play event after normalization.
type Spin struct {
	ID       int64     `json:"id"`
	Station  string    `json:"station"`
	Show     string    `json:"show"`
	Artist   string    `json:"artist"`
	Title    string    `json:"title"`
	Album    string    `json:"album,omitempty"`
	Label    string    `json:"label,omitempty"`
	Duration int       `json:"duration,omitempty"`
	Start    time.Time `json:"start"`
}

// TrackList is the deduplicated spin list for one show over a lookback
// window, ordered ascending by source id (broadcast order).
type TrackList struct {
	Station string `json:"station"`
	Show    string `json:"show"`
	Spins   []Spin `json:"spins"`
}

// MaxID returns the highest source id in the list, or 0 when empty.
func (l TrackList) MaxID() int64 {
	var max int64
	for _, spin := range l.Spins {
		if spin.ID > max {
			max = spin.ID
		}
	}
	return max
}

// Candidate is one catalog search result considered by the resolver's
// ranking policy.
type Candidate struct {
	ID         string `json:"id"`
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Album      string `json:"album,omitempty"`
	Popularity int    `json:"popularity,omitempty"`
}

// Playlist represents a remote playlist's metadata.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
	URL         string `json:"url,omitempty"`
}
