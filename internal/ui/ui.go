package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spinsync/internal/services"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/desertthunder/spinsync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	StationListView ViewState = iota
	ShowListView
	ConfirmView
	SyncView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	config       *shared.Config
	source       services.SpinSource
	engine       tasks.SyncEngine
	opts         tasks.SyncOpts
	width        int
	height       int
	stationList  list.Model
	showList     list.Model
	station      string
	shows        []string
	progressChan chan tasks.ProgressUpdate
	progress     tasks.ProgressUpdate
	result       *tasks.SyncResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies. The window
// and mode in opts come from the CLI flags; the station is chosen in the UI.
func NewModel(ctx context.Context, config *shared.Config, source services.SpinSource, engine tasks.SyncEngine, opts tasks.SyncOpts) *Model {
	names := config.StationNames()
	items := make([]list.Item, len(names))
	for i, name := range names {
		station, _ := config.Station(name)
		items[i] = stationItem{name: name, config: station}
	}

	stationList := list.New(items, list.NewDefaultDelegate(), 0, 0)
	stationList.Title = "Configured Stations"

	return &Model{
		ctx:         ctx,
		view:        StationListView,
		config:      config,
		source:      source,
		engine:      engine,
		opts:        opts,
		stationList: stationList,
		help:        help.New(),
		keys:        newKeyMap(),
	}
}

// Init implements [tea.Model]. Stations come from config, so there is nothing
// to fetch until one is selected.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.stationList.SetSize(msg.Width-4, msg.Height-8)
		if m.showList.Width() == 0 {
			m.showList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case StationListView:
			return m.handleStationListKeys(msg)
		case ShowListView:
			return m.handleShowListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case showsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.shows = msg.shows
		items := make([]list.Item, len(msg.shows))
		for i, show := range msg.shows {
			items[i] = showItem{station: m.station, show: show}
		}
		m.showList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.showList.Title = fmt.Sprintf("Shows on %s (%s to %s)", m.station,
			m.opts.From.Format("2006-01-02"), m.opts.To.Format("2006-01-02"))
		m.showList.SetSize(m.width-4, m.height-8)
		m.view = ShowListView
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case syncCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.view = ResultView
		m.progressChan = nil
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case StationListView:
		return m.renderStationList()
	case ShowListView:
		return m.renderShowList()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleStationListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		selected := m.stationList.SelectedItem()
		if selected != nil {
			if st, ok := selected.(stationItem); ok {
				m.station = st.name
				return m, m.fetchShows()
			}
		}
	}

	var cmd tea.Cmd
	m.stationList, cmd = m.stationList.Update(msg)
	return m, cmd
}

func (m *Model) handleShowListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = StationListView
		return m, nil
	case "enter":
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.showList, cmd = m.showList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "n", "esc":
		m.view = ShowListView
		return m, nil
	case "l":
		m.opts.Live = !m.opts.Live
		return m, nil
	case "y":
		m.view = SyncView
		return m, m.startSync()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.view = StationListView
		m.station = ""
		m.shows = nil
		m.result = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case StationListView:
		m.stationList, cmd = m.stationList.Update(msg)
	case ShowListView:
		m.showList, cmd = m.showList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchShows() tea.Cmd {
	return func() tea.Msg {
		shows, err := m.source.FetchShows(m.ctx, m.station, m.opts.From, m.opts.To)
		return showsFetchedMsg{shows: shows, err: err}
	}
}

func (m *Model) startSync() tea.Cmd {
	m.opts.Station = m.station
	if station, ok := m.config.Station(m.station); ok {
		m.opts.Ignores = station.CompiledIgnores(nil)
	}

	m.progressChan = make(chan tasks.ProgressUpdate, 50)

	go func(progress chan tasks.ProgressUpdate) {
		result, err := m.engine.SyncStation(m.ctx, progress, m.opts)
		m.result = result
		m.err = err
		close(progress)
	}(m.progressChan)

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		if m.progressChan == nil {
			return syncCompleteMsg{result: m.result, err: m.err}
		}

		update, ok := <-m.progressChan
		if !ok {
			return syncCompleteMsg{result: m.result, err: m.err}
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderStationList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.stationList.View(), helpView)
}

func (m *Model) renderShowList() string {
	syncKey := key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "sync station"),
	)
	helpKeys := []key.Binding{syncKey, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.showList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Sync %d shows from %s?", len(m.shows), m.station))

	mode := styles.warn.Render("dry run (no playlists will change)")
	if m.opts.Live {
		mode = styles.ok.Render("live (playlists will be updated)")
	}

	info := fmt.Sprintf("\nWindow: %s to %s\nMode: %s\n",
		m.opts.From.Format("2006-01-02"), m.opts.To.Format("2006-01-02"), mode)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.toggle, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderSync() string {
	title := styles.title.Render(fmt.Sprintf("Syncing %s", m.station))

	var phase string
	switch m.progress.Phase {
	case tasks.FetchSpins:
		phase = "Fetching spins..."
	case tasks.NormalizeSpins:
		phase = "Normalizing spins..."
	case tasks.ResolvePlaylist:
		phase = "Resolving playlists..."
	case tasks.ResolveTracks:
		phase = fmt.Sprintf("Resolving tracks (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.AppendBatch:
		phase = "Appending tracks..."
	case tasks.AdvanceMark:
		phase = "Advancing watermarks..."
	case tasks.RefreshStates:
		phase = "Rebuilding playlist records..."
	case tasks.ShowSynced:
		phase = fmt.Sprintf("Shows synced (%d/%d)", m.progress.Step, m.progress.Total)
	default:
		phase = "Working..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Sync failed: %v\n\nPress r to retry, q to quit", m.err))
	}

	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r to retry, q to quit")
	}

	title := styles.ok.Render("✓ Sync Complete")
	if !m.result.Live {
		title = fmt.Sprintf("%s %s", title, styles.warn.Render("(dry run, nothing changed)"))
	}

	info := fmt.Sprintf(
		"\nStation: %s\nSpins: %d fetched, %d malformed, %d shows ignored\nTracks: %d resolved (%d cached), %d not found\nPlaylists: %d appended, %d created",
		m.result.Station,
		m.result.TotalSpins,
		m.result.Malformed,
		m.result.IgnoredShows,
		m.result.Resolved,
		m.result.CacheHits,
		m.result.NotFound,
		m.result.Appended,
		m.result.Created,
	)

	var failed string
	if m.result.Failed > 0 {
		failed = fmt.Sprintf("\n\n%s", styles.warn.Render(fmt.Sprintf("%d shows failed:", m.result.Failed)))
		for _, show := range m.result.Shows {
			if show.Err != nil {
				failed += fmt.Sprintf("\n  • %s: %v", show.Show, show.Err)
			}
		}
	}

	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}
