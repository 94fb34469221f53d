package tasks

import (
	"regexp"
	"testing"

	"github.com/desertthunder/spinsync/internal/models"
)

func TestNormalize(t *testing.T) {
	t.Run("collapses whitespace and orders by source id", func(t *testing.T) {
		raw := []models.RawSpin{
			{ID: 102, Station: "KALX", Show: "Round  Midnight", Artist: "Emeralds", Song: "Up in the Air"},
			{ID: 101, Station: "KALX", Show: "Round Midnight", Artist: "  Loscil ", Song: "Bell   Flame", Release: " Lifelike "},
		}

		list, malformed := Normalize(raw, nil)

		if malformed != 0 {
			t.Errorf("expected no malformed spins, got %d", malformed)
		}
		if list.Station != "KALX" || list.Show != "Round Midnight" {
			t.Errorf("unexpected list identity %s/%s", list.Station, list.Show)
		}
		if len(list.Spins) != 2 {
			t.Fatalf("expected 2 spins, got %d", len(list.Spins))
		}
		if list.Spins[0].ID != 101 || list.Spins[1].ID != 102 {
			t.Errorf("expected ascending ids, got %d then %d", list.Spins[0].ID, list.Spins[1].ID)
		}
		if list.Spins[0].Artist != "Loscil" || list.Spins[0].Title != "Bell Flame" {
			t.Errorf("expected collapsed fields, got %q / %q", list.Spins[0].Artist, list.Spins[0].Title)
		}
		if list.Spins[0].Album != "Lifelike" {
			t.Errorf("expected collapsed album, got %q", list.Spins[0].Album)
		}
	})

	t.Run("duplicate artist+title keeps the highest source id", func(t *testing.T) {
		raw := []models.RawSpin{
			{ID: 201, Station: "KALX", Show: "Round Midnight", Artist: "Grouper", Song: "Heavy Water"},
			{ID: 205, Station: "KALX", Show: "Round Midnight", Artist: "grouper", Song: "HEAVY  WATER"},
			{ID: 203, Station: "KALX", Show: "Round Midnight", Artist: "Grouper", Song: "Heavy Water"},
		}

		list, _ := Normalize(raw, nil)

		if len(list.Spins) != 1 {
			t.Fatalf("expected 1 spin after dedup, got %d", len(list.Spins))
		}
		if list.Spins[0].ID != 205 {
			t.Errorf("expected highest id 205 to survive, got %d", list.Spins[0].ID)
		}
	})

	t.Run("counts malformed spins without aborting", func(t *testing.T) {
		raw := []models.RawSpin{
			{ID: 301, Station: "KALX", Show: "Round Midnight", Artist: "Loscil", Song: "Bell Flame"},
			{ID: 302, Station: "KALX", Show: "Round Midnight", Artist: "   ", Song: "Orphaned Title"},
			{ID: 303, Station: "KALX", Show: "Round Midnight", Artist: "Orphaned Artist", Song: ""},
		}

		list, malformed := Normalize(raw, nil)

		if malformed != 2 {
			t.Errorf("expected 2 malformed spins, got %d", malformed)
		}
		if len(list.Spins) != 1 || list.Spins[0].ID != 301 {
			t.Errorf("expected only the well-formed spin to survive, got %v", list.Spins)
		}
	})

	t.Run("ignore patterns match the full show name", func(t *testing.T) {
		ignores := []*regexp.Regexp{regexp.MustCompile("KPOO San Francisco .*")}

		raw := []models.RawSpin{
			{ID: 401, Station: "KPOO", Show: "KPOO San Francisco News", Artist: "a", Song: "b"},
			{ID: 402, Station: "KPOO", Show: "KPOO Jazz Hour", Artist: "c", Song: "d"},
		}

		list, malformed := Normalize(raw, ignores)

		if malformed != 0 {
			t.Errorf("ignored spins are not malformed, got %d", malformed)
		}
		if len(list.Spins) != 1 || list.Spins[0].ID != 402 {
			t.Errorf("expected only the Jazz Hour spin, got %v", list.Spins)
		}
		if list.Show != "KPOO Jazz Hour" {
			t.Errorf("expected list show from the surviving spin, got %s", list.Show)
		}
	})

	t.Run("empty input yields an empty list", func(t *testing.T) {
		list, malformed := Normalize(nil, nil)

		if malformed != 0 || len(list.Spins) != 0 {
			t.Errorf("expected empty result, got %d spins, %d malformed", len(list.Spins), malformed)
		}
	})
}

func TestIgnored(t *testing.T) {
	ignores := []*regexp.Regexp{
		regexp.MustCompile("KPOO San Francisco .*"),
		regexp.MustCompile("^Rebroadcast:"),
	}

	tests := []struct {
		show string
		want bool
	}{
		{"KPOO San Francisco News", true},
		{"KPOO San Francisco Public Affairs", true},
		{"KPOO Jazz Hour", false},
		{"Rebroadcast: Morning Show", true},
		{"Evening Rebroadcast: Redux", false},
		{"kpoo san francisco news", false}, // case-sensitive
	}

	for _, tc := range tests {
		t.Run(tc.show, func(t *testing.T) {
			if got := Ignored(tc.show, ignores); got != tc.want {
				t.Errorf("Ignored(%q) = %v, want %v", tc.show, got, tc.want)
			}
		})
	}
}

func TestGroupByShow(t *testing.T) {
	raw := []models.RawSpin{
		{ID: 1, Show: "Round Midnight", Artist: "a", Song: "b"},
		{ID: 2, Show: "Jazz  Hour", Artist: "c", Song: "d"},
		{ID: 3, Show: "Round  Midnight", Artist: "e", Song: "f"},
		{ID: 4, Show: "  ", Artist: "g", Song: "h"},
	}

	groups := GroupByShow(raw)

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Show != "Jazz Hour" || groups[1].Show != "Round Midnight" {
		t.Errorf("expected groups sorted by show, got %s then %s", groups[0].Show, groups[1].Show)
	}
	if len(groups[1].Spins) != 2 {
		t.Errorf("expected collapsed show names to share a group, got %d spins", len(groups[1].Spins))
	}
	if groups[1].Spins[0].ID != 1 || groups[1].Spins[1].ID != 3 {
		t.Errorf("expected fetch order preserved within group, got %v", groups[1].Spins)
	}
}
