package tasks

import (
	"regexp"
	"sort"

	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/shared"
)

// ShowSpins groups one show's raw spins ahead of normalization.
type ShowSpins struct {
	Show  string
	Spins []models.RawSpin
}

// Ignored reports whether a show name matches any ignore pattern. Matching is
// case-sensitive against the full show name.
func Ignored(show string, ignores []*regexp.Regexp) bool {
	for _, re := range ignores {
		if re.MatchString(show) {
			return true
		}
	}
	return false
}

// GroupByShow buckets raw spins by their collapsed show name. Groups come back
// sorted by show name so fan-out order is deterministic; spins keep their
// fetch order within each group.
func GroupByShow(raw []models.RawSpin) []ShowSpins {
	buckets := make(map[string][]models.RawSpin)
	for _, spin := range raw {
		show := shared.CollapseWhitespace(spin.Show)
		if show == "" {
			continue
		}
		buckets[show] = append(buckets[show], spin)
	}

	groups := make([]ShowSpins, 0, len(buckets))
	for show, spins := range buckets {
		groups = append(groups, ShowSpins{Show: show, Spins: spins})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Show < groups[j].Show })
	return groups
}

// Normalize converts raw spins into a canonical track list: ignored shows are
// filtered, whitespace is collapsed, spins missing an artist or title are
// dropped and counted as malformed, and duplicates (same artist+title, case
// insensitive) collapse to the entry with the highest source id. Output is
// ascending by source id, which is broadcast order and feeds playlist append
// order.
func Normalize(raw []models.RawSpin, ignores []*regexp.Regexp) (models.TrackList, int) {
	var list models.TrackList
	malformed := 0

	byKey := make(map[string]models.Spin)
	for _, r := range raw {
		show := shared.CollapseWhitespace(r.Show)
		if Ignored(show, ignores) {
			continue
		}

		if list.Station == "" {
			list.Station = r.Station
		}
		if list.Show == "" {
			list.Show = show
		}

		spin := models.Spin{
			ID:       r.ID,
			Station:  r.Station,
			Show:     show,
			Artist:   shared.CollapseWhitespace(r.Artist),
			Title:    shared.CollapseWhitespace(r.Song),
			Album:    shared.CollapseWhitespace(r.Release),
			Label:    shared.CollapseWhitespace(r.Label),
			Duration: r.Duration,
			Start:    r.Start,
		}

		if spin.Artist == "" || spin.Title == "" {
			malformed++
			continue
		}

		key := shared.NormalizeTrackKey(spin.Artist, spin.Title)
		if existing, ok := byKey[key]; ok && existing.ID >= spin.ID {
			continue
		}
		byKey[key] = spin
	}

	spins := make([]models.Spin, 0, len(byKey))
	for _, spin := range byKey {
		spins = append(spins, spin)
	}
	sort.Slice(spins, func(i, j int) bool { return spins[i].ID < spins[j].ID })

	list.Spins = spins
	return list, malformed
}
