// Package ui provides the Bubble Tea terminal interface for mediadeck.
package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/config"
	"github.com/five82/mediadeck/internal/imagegen"
	"github.com/five82/mediadeck/internal/intake"
	"github.com/five82/mediadeck/internal/prefs"
	"github.com/five82/mediadeck/internal/state"
	"github.com/five82/mediadeck/internal/tasks"
)

// View represents the current active view.
type View int

const (
	ViewTasks View = iota
	ViewCompose
	ViewLibrary
	ViewAdmin
	ViewLogs
)

var viewOrder = []View{ViewTasks, ViewCompose, ViewLibrary, ViewAdmin, ViewLogs}

func (v View) String() string {
	switch v {
	case ViewCompose:
		return "Compose"
	case ViewLibrary:
		return "Library"
	case ViewAdmin:
		return "Admin"
	case ViewLogs:
		return "Logs"
	default:
		return "Tasks"
	}
}

// TaskService is the task manager surface the UI drives.
type TaskService interface {
	SubmitBatch(req tasks.Request, count int) ([]tasks.Task, error)
	Cancel(id string) bool
	Retry(id string) (tasks.Task, error)
	Save(id string) error
	Remove(id string) bool
	ClearCompleted() int
	Snapshot() []tasks.Task
	Summary() tasks.Summary
}

// LibraryService performs library and admin mutations.
type LibraryService interface {
	RenameVideo(ctx context.Context, id, title string) (backend.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	RenameImage(ctx context.Context, id, title string) (backend.Image, error)
	DeleteImage(ctx context.Context, id string) error
	UpdateUser(ctx context.Context, id string, update backend.UserUpdate) (backend.UserSummary, error)
	DeleteUser(ctx context.Context, id string) error
}

// Refresher controls what the background poller fetches.
type Refresher interface {
	SetVideoQuery(q backend.ListQuery)
	SetImageQuery(q backend.ListQuery)
	SetUserQuery(q backend.UserQuery)
	Refresh()
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Config     *config.Config
	ConfigPath string
	Tasks      TaskService
	Intake     *intake.Intake
	Library    LibraryService
	Images     imagegen.Backend
	Store      *state.Store
	Poller     Refresher
	Events     <-chan tasks.Event
	LogPath    string
	PollTick   time.Duration
	Prefs      prefs.Prefs
	PrefsPath  string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx        context.Context
	cfg        config.Config
	configPath string
	tasks      TaskService
	intake     *intake.Intake
	library    LibraryService
	images     imagegen.Backend
	store      *state.Store
	poller     Refresher
	events     <-chan tasks.Event
	logPath    string
	prefs      prefs.Prefs
	prefsPath  string
	pollTick   time.Duration
	keys       keyMap
	now        func() time.Time

	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	snapshot  state.Snapshot
	taskList  []tasks.Task
	summary   tasks.Summary
	taskRow   int
	taskPane  viewport.Model
	toasts    []toast
	errorMsg  string
	modal     *modal
	compose   composeState
	lib       libraryState
	admin     adminState
	logs      logState
	logsPane  viewport.Model
	lastFetch time.Time
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = DefaultUIInterval
	}
	p := opts.Prefs
	if p.Theme == "" {
		p = prefs.Defaults()
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	m := Model{
		ctx:         ctx,
		cfg:         cfg,
		configPath:  opts.ConfigPath,
		tasks:       opts.Tasks,
		intake:      opts.Intake,
		library:     opts.Library,
		images:      opts.Images,
		store:       opts.Store,
		poller:      opts.Poller,
		events:      opts.Events,
		logPath:     opts.LogPath,
		prefs:       p,
		prefsPath:   prefsPath,
		pollTick:    pollTick,
		keys:        DefaultKeyMap(),
		now:         time.Now,
		theme:       GetTheme(p.Theme),
		currentView: ViewTasks,
	}
	m.compose = newComposeState(cfg)
	m.lib = newLibraryState(p)
	m.admin = newAdminState()
	m.logs = logState{follow: true}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.events != nil {
		cmds = append(cmds, waitForEvent(m.events))
	}
	if m.poller != nil {
		m.poller.SetVideoQuery(m.lib.videoQuery())
		m.poller.SetImageQuery(m.lib.imageQuery())
		m.poller.SetUserQuery(m.admin.userQuery())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.taskPane = viewport.New(0, 0)
			m.logsPane = viewport.New(0, 0)
		}
		m.ready = true
		m.resize()
		m.refreshTasks()
		m.updateLogViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.clampLibrary()
		m.clampAdmin()
		return m, nil

	case eventMsg:
		m.pushToast(tasks.Event(msg))
		m.refreshTasks()
		return m, waitForEvent(m.events)

	case actionMsg:
		m.handleAction(msg)
		m.refreshTasks()
		if m.poller != nil && msg.refresh {
			m.poller.Refresh()
		}
		return m, nil

	case intakeMsg:
		m.handleIntake(msg)
		return m, nil

	case submitMsg:
		return m.handleSubmitResult(msg)

	case imageMsg:
		return m.handleImageResult(msg)

	case logLinesMsg:
		m.handleLogLines(msg)
		return m, nil

	case spinner.TickMsg:
		if !m.compose.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.compose.spinner, cmd = m.compose.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.modal != nil {
		return m.renderModal()
	}
	return m.renderMain()
}

// handleKey routes input: modals and text inputs first, then global keys,
// then the active view.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.modal != nil {
		return m.handleModalKey(msg)
	}
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}
	// Compose owns the keyboard so prompts can contain any letter.
	if m.currentView == ViewCompose {
		return m.handleComposeKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		return m.switchView(m.nextView(1))
	case key.Matches(msg, m.keys.ShiftTab):
		return m.switchView(m.nextView(-1))
	case key.Matches(msg, m.keys.ViewTasks), key.Matches(msg, m.keys.Escape):
		return m.switchView(ViewTasks)
	case key.Matches(msg, m.keys.ViewCompose):
		return m.switchView(ViewCompose)
	case key.Matches(msg, m.keys.ViewLibrary):
		return m.switchView(ViewLibrary)
	case key.Matches(msg, m.keys.ViewAdmin):
		return m.switchView(ViewAdmin)
	case key.Matches(msg, m.keys.ViewLogs):
		m.logs.taskID = ""
		return m.switchView(ViewLogs)
	}

	switch m.currentView {
	case ViewTasks:
		return m.handleTasksKey(msg)
	case ViewLibrary:
		return m.handleLibraryKey(msg)
	case ViewAdmin:
		return m.handleAdminKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

func (m Model) nextView(step int) View {
	idx := 0
	for i, v := range viewOrder {
		if v == m.currentView {
			idx = i
		}
	}
	idx = (idx + step + len(viewOrder)) % len(viewOrder)
	return viewOrder[idx]
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	m.currentView = v
	switch v {
	case ViewLogs:
		m.logs.lastRefresh = time.Time{}
		return m, m.refreshLogs()
	case ViewLibrary, ViewAdmin:
		if m.poller != nil {
			m.poller.Refresh()
		}
	}
	return m, nil
}

// handleTick refreshes task data and schedules the next tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	m.refreshTasks()
	m.expireToasts()
	if m.currentView == ViewLogs && m.logs.follow {
		if cmd := m.refreshLogs(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		m.errorMsg = "prefs: " + err.Error()
	}
}

func (m *Model) resize() {
	h := m.contentHeight()
	m.taskPane.Width = m.width - m.tableWidth() - 2
	m.taskPane.Height = max(h-2, 1)
	m.logsPane.Width = max(m.width-2, 1)
	m.logsPane.Height = max(h-2, 1)
}

// contentHeight is the space left after header, command bar and toast line.
func (m Model) contentHeight() int {
	return max(m.height-3, 3)
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderToastLine())
	return b.String()
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewCompose:
		return m.renderCompose()
	case ViewLibrary:
		return m.renderLibrary()
	case ViewAdmin:
		return m.renderAdmin()
	case ViewLogs:
		return m.renderLogs()
	default:
		return m.renderTasks()
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type eventMsg tasks.Event

// actionMsg reports the outcome of an asynchronous library or admin call.
type actionMsg struct {
	level   tasks.LogLevel
	message string
	refresh bool
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func waitForEvent(ch <-chan tasks.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *Model) handleAction(msg actionMsg) {
	if msg.message == "" {
		return
	}
	m.pushToast(tasks.Event{At: m.now(), Level: msg.level, Message: msg.message})
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
