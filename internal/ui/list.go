package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/desertthunder/spinsync/internal/tasks"
)

var (
	_ list.Item = stationItem{}
	_ list.Item = showItem{}
)

// stationItem wraps a configured station to implement [list.Item].
type stationItem struct {
	name   string
	config shared.StationConfig
}

func (i stationItem) FilterValue() string { return i.name }
func (i stationItem) Title() string       { return i.name }
func (i stationItem) Description() string {
	if n := len(i.config.Ignores); n > 0 {
		return fmt.Sprintf("%d ignore patterns", n)
	}
	return "no ignore patterns"
}

// showItem wraps a show name to implement [list.Item].
type showItem struct {
	station string
	show    string
}

func (i showItem) FilterValue() string { return i.show }
func (i showItem) Title() string       { return i.show }
func (i showItem) Description() string {
	return fmt.Sprintf("syncs to %q", tasks.PlaylistName(i.station, i.show))
}
