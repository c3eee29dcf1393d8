package ui

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/config"
	"github.com/five82/mediadeck/internal/prefs"
	"github.com/five82/mediadeck/internal/state"
	"github.com/five82/mediadeck/internal/tasks"
)

type submitCall struct {
	req   tasks.Request
	count int
}

type fakeTasks struct {
	mu        sync.Mutex
	list      []tasks.Task
	submits   []submitCall
	cancelled []string
	saved     []string
	removed   []string
}

func (f *fakeTasks) SubmitBatch(req tasks.Request, count int) ([]tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, submitCall{req: req, count: count})
	out := make([]tasks.Task, count)
	for i := range out {
		out[i] = tasks.Task{LocalID: "new", Name: req.Prompt, Status: tasks.StatusQueued, Request: req}
	}
	return out, nil
}

func (f *fakeTasks) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return true
}

func (f *fakeTasks) Retry(id string) (tasks.Task, error) { return tasks.Task{LocalID: id}, nil }

func (f *fakeTasks) Save(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, id)
	return nil
}

func (f *fakeTasks) Remove(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return true
}

func (f *fakeTasks) ClearCompleted() int { return 0 }

func (f *fakeTasks) Snapshot() []tasks.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasks.Task(nil), f.list...)
}

func (f *fakeTasks) Summary() tasks.Summary { return tasks.Summary{Total: len(f.list)} }

type fakeLibrary struct {
	mu      sync.Mutex
	deleted []string
	updates map[string]backend.UserUpdate
}

func (f *fakeLibrary) RenameVideo(_ context.Context, id, title string) (backend.Video, error) {
	return backend.Video{ID: id, Title: title}, nil
}

func (f *fakeLibrary) DeleteVideo(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeLibrary) RenameImage(_ context.Context, id, title string) (backend.Image, error) {
	return backend.Image{ID: id, Title: title}, nil
}

func (f *fakeLibrary) DeleteImage(_ context.Context, id string) error {
	return f.DeleteVideo(context.Background(), id)
}

func (f *fakeLibrary) UpdateUser(_ context.Context, id string, update backend.UserUpdate) (backend.UserSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]backend.UserUpdate{}
	}
	f.updates[id] = update
	return backend.UserSummary{ID: id}, nil
}

func (f *fakeLibrary) DeleteUser(_ context.Context, id string) error {
	return f.DeleteVideo(context.Background(), id)
}

type fakePoller struct {
	videoQueries []backend.ListQuery
	imageQueries []backend.ListQuery
	userQueries  []backend.UserQuery
	refreshes    int
}

func (p *fakePoller) SetVideoQuery(q backend.ListQuery) { p.videoQueries = append(p.videoQueries, q) }
func (p *fakePoller) SetImageQuery(q backend.ListQuery) { p.imageQueries = append(p.imageQueries, q) }
func (p *fakePoller) SetUserQuery(q backend.UserQuery)  { p.userQueries = append(p.userQueries, q) }
func (p *fakePoller) Refresh()                          { p.refreshes++ }

type harness struct {
	tasks   *fakeTasks
	library *fakeLibrary
	poller  *fakePoller
	clock   time.Time
}

func newTestModel(t *testing.T) (Model, *harness) {
	t.Helper()
	h := &harness{
		tasks:   &fakeTasks{},
		library: &fakeLibrary{},
		poller:  &fakePoller{},
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := config.Default()
	cfg.APIKey = "sk-test"
	m := New(Options{
		Config:    &cfg,
		Tasks:     h.tasks,
		Library:   h.library,
		Store:     &state.Store{},
		Poller:    h.poller,
		PrefsPath: filepath.Join(t.TempDir(), "prefs.toml"),
	})
	m.now = func() time.Time { return h.clock }
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	return updated.(Model), h
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(m Model, keys ...string) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m, cmd
}

// collect runs cmd and any batched commands, returning messages of type T.
func collect[T any](cmd tea.Cmd) []T {
	if cmd == nil {
		return nil
	}
	var out []T
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			out = append(out, collect[T](c)...)
		}
	case T:
		out = append(out, msg)
	}
	return out
}

func TestHandleKey_SwitchesViews(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = press(m, "b")
	if m.currentView != ViewLibrary {
		t.Fatalf("after b view = %s, want Library", m.currentView)
	}
	m, _ = press(m, "a")
	if m.currentView != ViewAdmin {
		t.Fatalf("after a view = %s, want Admin", m.currentView)
	}
	m, _ = press(m, "tab")
	if m.currentView != ViewLogs {
		t.Fatalf("after tab view = %s, want Logs", m.currentView)
	}
	m, _ = press(m, "n")
	if m.currentView != ViewCompose {
		t.Fatalf("after n view = %s, want Compose", m.currentView)
	}

	// Letters are typed into the prompt while composing.
	m, _ = press(m, "e", "b")
	if m.currentView != ViewCompose {
		t.Fatalf("typing switched view to %s", m.currentView)
	}
	if got := m.compose.prompt.Value(); got != "eb" {
		t.Fatalf("prompt = %q, want %q", got, "eb")
	}
	m, _ = press(m, "esc")
	if m.currentView != ViewTasks {
		t.Fatalf("after esc view = %s, want Tasks", m.currentView)
	}
}

func TestCompose_EmptyPromptBlocksSubmit(t *testing.T) {
	m, h := newTestModel(t)
	m, _ = press(m, "n")

	m, cmd := press(m, "ctrl+s")
	if cmd != nil {
		t.Fatalf("empty prompt returned a command")
	}
	if !m.compose.messageWarn || m.compose.message == "" {
		t.Fatalf("expected a validation message, got %q", m.compose.message)
	}
	if len(h.tasks.submits) != 0 {
		t.Fatalf("SubmitBatch called %d times, want 0", len(h.tasks.submits))
	}
}

func TestCompose_MissingAPIKey(t *testing.T) {
	m, h := newTestModel(t)
	m.cfg.APIKey = ""
	m, _ = press(m, "n")
	m.compose.prompt.SetValue("a cat surfing")

	m, cmd := press(m, "ctrl+s")
	if cmd != nil || len(h.tasks.submits) != 0 {
		t.Fatalf("submitted without an api key")
	}
	if m.compose.message == "" {
		t.Fatalf("expected an api key message")
	}
}

func TestCompose_SubmitQueuesAndReturnsToTasks(t *testing.T) {
	m, h := newTestModel(t)
	m, _ = press(m, "n")
	m.compose.prompt.SetValue("  a cat surfing  ")
	m.compose.batch = 2

	m, cmd := press(m, "ctrl+s")
	if !m.compose.submitting {
		t.Fatalf("submitting = false after ctrl+s")
	}
	msgs := collect[submitMsg](cmd)
	if len(msgs) != 1 {
		t.Fatalf("got %d submit results, want 1", len(msgs))
	}
	if len(h.tasks.submits) != 1 {
		t.Fatalf("SubmitBatch called %d times, want 1", len(h.tasks.submits))
	}
	call := h.tasks.submits[0]
	if call.count != 2 || call.req.Prompt != "a cat surfing" || call.req.Model != "sora2" {
		t.Fatalf("unexpected submit: count=%d prompt=%q model=%q", call.count, call.req.Prompt, call.req.Model)
	}

	next, _ := m.Update(msgs[0])
	m = next.(Model)
	if m.currentView != ViewTasks {
		t.Fatalf("view after submit = %s, want Tasks", m.currentView)
	}
	if m.compose.submitting {
		t.Fatalf("submitting still set after result")
	}
	if m.compose.prompt.Value() != "" {
		t.Fatalf("prompt not cleared: %q", m.compose.prompt.Value())
	}
	if m.cfg.BatchCount != 2 {
		t.Fatalf("batch default = %d, want 2", m.cfg.BatchCount)
	}
}

func TestCompose_SubmitDebounce(t *testing.T) {
	m, h := newTestModel(t)
	m, _ = press(m, "n")

	m, _ = press(m, "ctrl+s") // rejected: empty prompt
	m.compose.prompt.SetValue("waves")

	m, cmd := press(m, "ctrl+s")
	if cmd != nil {
		t.Fatalf("second press inside debounce window returned a command")
	}

	h.clock = h.clock.Add(SubmitDebounce + time.Millisecond)
	_, cmd = press(m, "ctrl+s")
	if got := len(collect[submitMsg](cmd)); got != 1 {
		t.Fatalf("press after debounce produced %d submits, want 1", got)
	}
}

func TestCompose_LargeBatchNeedsConfirmation(t *testing.T) {
	m, h := newTestModel(t)
	m, _ = press(m, "n")
	m.compose.prompt.SetValue("city at night")
	m.compose.batch = BatchConfirmThreshold

	m, cmd := press(m, "ctrl+s")
	if cmd != nil || m.modal == nil {
		t.Fatalf("large batch did not ask for confirmation")
	}
	if len(h.tasks.submits) != 0 {
		t.Fatalf("submitted before confirmation")
	}

	m, cmd = press(m, "enter")
	if m.modal != nil {
		t.Fatalf("modal still open after confirm")
	}
	collect[submitMsg](cmd)
	if len(h.tasks.submits) != 1 || h.tasks.submits[0].count != BatchConfirmThreshold {
		t.Fatalf("submits = %+v, want one batch of %d", h.tasks.submits, BatchConfirmThreshold)
	}
}

func TestCompose_ChoiceFields(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = press(m, "n")
	m.compose.focus = fieldModel

	m, _ = press(m, "l")
	if m.compose.model != "veo" {
		t.Fatalf("model = %q, want veo", m.compose.model)
	}
	if m.compose.fieldVisible(fieldVariant) {
		t.Fatalf("variant visible for non-sora model")
	}
	m, _ = press(m, "h")
	if m.compose.model != "sora2" {
		t.Fatalf("model = %q, want sora2", m.compose.model)
	}

	m.compose.focus = fieldBatch
	m.compose.batch = config.MaxBatchCount
	m, _ = press(m, "l")
	if m.compose.batch != config.MaxBatchCount {
		t.Fatalf("batch = %d, want clamp at %d", m.compose.batch, config.MaxBatchCount)
	}
}

func TestTasksView_ActsOnSelectedTask(t *testing.T) {
	m, h := newTestModel(t)
	h.tasks.list = []tasks.Task{
		{LocalID: "a", Name: "first", Status: tasks.StatusProcessing},
		{LocalID: "b", Name: "second", Status: tasks.StatusCompleted},
	}
	m.refreshTasks()

	m, _ = press(m, "c")
	m, _ = press(m, "j", "s")
	m, _ = press(m, "d")

	if len(h.tasks.cancelled) != 1 || h.tasks.cancelled[0] != "a" {
		t.Fatalf("cancelled = %v, want [a]", h.tasks.cancelled)
	}
	if len(h.tasks.saved) != 1 || h.tasks.saved[0] != "b" {
		t.Fatalf("saved = %v, want [b]", h.tasks.saved)
	}
	if len(h.tasks.removed) != 1 || h.tasks.removed[0] != "b" {
		t.Fatalf("removed = %v, want [b]", h.tasks.removed)
	}

	m, _ = press(m, "i")
	if m.currentView != ViewLogs || m.logs.taskID != "b" {
		t.Fatalf("task logs: view=%s taskID=%q", m.currentView, m.logs.taskID)
	}
}

func TestTasksView_RetryRequiresFinishedTask(t *testing.T) {
	m, h := newTestModel(t)
	h.tasks.list = []tasks.Task{{LocalID: "a", Name: "running", Status: tasks.StatusPending}}
	m.refreshTasks()

	m, _ = press(m, "r")
	if len(m.toasts) == 0 || m.toasts[len(m.toasts)-1].event.Level != tasks.LevelWarning {
		t.Fatalf("expected a warning toast when retrying a running task")
	}
}

func TestLibrary_PaginationUpdatesPollerQuery(t *testing.T) {
	m, h := newTestModel(t)
	m.snapshot = state.Snapshot{Videos: backend.Page[backend.Video]{
		Items: []backend.Video{{ID: "v1", Title: "Surf"}},
		Total: 45, Page: 1, Size: 20, Pages: 3,
	}}
	m, _ = press(m, "b", "]")

	if len(h.poller.videoQueries) == 0 {
		t.Fatalf("poller query not updated")
	}
	if got := h.poller.videoQueries[len(h.poller.videoQueries)-1].Page; got != 2 {
		t.Fatalf("video query page = %d, want 2", got)
	}

	m, _ = press(m, "[", "[")
	if m.lib.page != 1 {
		t.Fatalf("page = %d, want 1", m.lib.page)
	}
}

func TestLibrary_DeleteRequiresConfirmation(t *testing.T) {
	m, h := newTestModel(t)
	m.snapshot = state.Snapshot{Videos: backend.Page[backend.Video]{
		Items: []backend.Video{{ID: "v1", Title: "Surf"}},
		Total: 1, Page: 1, Pages: 1,
	}}
	m, _ = press(m, "b", "x")
	if m.modal == nil {
		t.Fatalf("delete did not open a confirmation")
	}

	m, cmd := press(m, "y")
	results := collect[actionMsg](cmd)
	if len(results) != 1 || results[0].level != tasks.LevelSuccess || !results[0].refresh {
		t.Fatalf("action results = %+v", results)
	}
	if len(h.library.deleted) != 1 || h.library.deleted[0] != "v1" {
		t.Fatalf("deleted = %v, want [v1]", h.library.deleted)
	}

	refreshes := h.poller.refreshes
	m.Update(results[0])
	if h.poller.refreshes != refreshes+1 {
		t.Fatalf("successful action did not trigger a refresh")
	}
}

func TestAdmin_ToggleActiveAndSelfGuard(t *testing.T) {
	m, h := newTestModel(t)
	m.snapshot = state.Snapshot{
		HasMe: true,
		Me:    backend.User{ID: "me", Username: "root", IsAdmin: true},
		Users: []backend.UserSummary{
			{ID: "me", Username: "root", IsActive: true, IsAdmin: true},
			{ID: "u2", Username: "kim", IsActive: true},
		},
	}
	m, _ = press(m, "a")

	m, cmd := press(m, "A")
	if cmd != nil {
		t.Fatalf("changing own account returned a command")
	}

	m, cmd = press(m, "j", "A")
	collect[actionMsg](cmd)
	update, ok := h.library.updates["u2"]
	if !ok || update.IsActive == nil || *update.IsActive {
		t.Fatalf("update for u2 = %+v, want is_active=false", update)
	}
}

func TestAdmin_StatsCollapsePersists(t *testing.T) {
	m, _ := newTestModel(t)
	m.snapshot = state.Snapshot{
		HasMe:    true,
		Me:       backend.User{ID: "me", Username: "root", IsAdmin: true},
		HasStats: true,
	}
	m, _ = press(m, "a")
	if !strings.Contains(m.renderAdmin(), "System") {
		t.Fatalf("stats box missing before collapse")
	}

	m, _ = press(m, "z")
	if strings.Contains(m.renderAdmin(), "System") {
		t.Fatalf("stats box still shown after collapse")
	}
	if saved := prefs.Load(m.prefsPath); !saved.IsCollapsed(sectionAdminStats) {
		t.Fatalf("collapse state was not saved")
	}
}

func TestAdmin_HiddenForNonAdmins(t *testing.T) {
	m, h := newTestModel(t)
	m.snapshot = state.Snapshot{
		HasMe: true,
		Me:    backend.User{ID: "u2", Username: "kim"},
		Users: []backend.UserSummary{{ID: "u3", Username: "lee", IsActive: true}},
	}
	m, _ = press(m, "a", "x")
	if m.modal != nil || len(h.library.deleted) != 0 {
		t.Fatalf("non-admin could start a user delete")
	}
}

func TestDescribeActionError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{backend.ErrUnauthorized, "Signed out: run mediadeck login"},
		{backend.ErrForbidden, "Not allowed: admin rights required"},
		{context.DeadlineExceeded, "Request timed out"},
	}
	for _, tt := range tests {
		if got := describeActionError(tt.err); got != tt.want {
			t.Fatalf("describeActionError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

type fakeImages struct {
	mu        sync.Mutex
	generated []backend.ImageRequest
	edited    []backend.ImageRequest
	err       error
}

func (f *fakeImages) GenerateImage(_ context.Context, req backend.ImageRequest) (backend.ImageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, req)
	return backend.ImageDetail{
		Image:    backend.Image{ID: "img-3"},
		Response: []byte(`{"data":[{"url":"https://cdn.test/1.png"},{"url":"https://cdn.test/2.png"}]}`),
	}, f.err
}

func (f *fakeImages) EditImage(_ context.Context, req backend.ImageRequest) (backend.ImageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, req)
	return backend.ImageDetail{Image: backend.Image{ID: "img-4"}}, f.err
}

func TestCompose_ImageModeHidesVideoFields(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = press(m, "n")
	if m.compose.focus != fieldPrompt {
		t.Fatalf("initial focus = %d, want the prompt", m.compose.focus)
	}
	m.compose.focus = fieldKind
	m, _ = press(m, "l")
	if m.compose.kind != kindImage {
		t.Fatalf("kind = %s, want Image", m.compose.kind)
	}
	for _, f := range []composeField{fieldVariant, fieldDuration, fieldHD, fieldWatermark, fieldPrivate, fieldNotify} {
		if m.compose.fieldVisible(f) {
			t.Fatalf("%s visible in image mode", fieldLabels[f])
		}
	}
	for _, f := range []composeField{fieldImageSize, fieldMask, fieldModel, fieldAspect} {
		if !m.compose.fieldVisible(f) {
			t.Fatalf("%s hidden in image mode", fieldLabels[f])
		}
	}

	m.compose.focus = fieldModel
	m, _ = press(m, "l")
	if m.compose.imageModel != config.ImageModels[1] || m.compose.model != "sora2" {
		t.Fatalf("image model = %q video model = %q", m.compose.imageModel, m.compose.model)
	}
	m.compose.focus = fieldBatch
	m.compose.imageCount = backend.MaxImageCount
	m, _ = press(m, "l")
	if m.compose.imageCount != backend.MaxImageCount {
		t.Fatalf("image count = %d, want clamp at %d", m.compose.imageCount, backend.MaxImageCount)
	}
	if !strings.Contains(m.View(), "New image") {
		t.Fatal("form title does not show image mode")
	}
}

func TestCompose_ImageSubmitSavesToLibrary(t *testing.T) {
	m, h := newTestModel(t)
	images := &fakeImages{}
	m.images = images
	m, _ = press(m, "n")
	m.compose.kind = kindImage
	m.compose.imageSize = "2K"
	m.compose.imageCount = 2
	m.compose.prompt.SetValue(" a red kite ")
	m.compose.name.SetValue("kite")

	m, cmd := press(m, "ctrl+s")
	if !m.compose.submitting {
		t.Fatal("submitting = false after ctrl+s")
	}
	msgs := collect[imageMsg](cmd)
	if len(msgs) != 1 {
		t.Fatalf("got %d image results, want 1", len(msgs))
	}
	if len(h.tasks.submits) != 0 {
		t.Fatalf("image mode queued %d video tasks", len(h.tasks.submits))
	}
	if len(images.generated) != 1 {
		t.Fatalf("GenerateImage called %d times, want 1", len(images.generated))
	}
	req := images.generated[0]
	if req.Prompt != "a red kite" || req.Title != "kite" || req.N != 2 || req.ImageSize != "2K" || req.APIKey != "sk-test" {
		t.Fatalf("unexpected request: %+v", req)
	}

	refreshes := h.poller.refreshes
	next, _ := m.Update(msgs[0])
	m = next.(Model)
	if m.compose.submitting || m.compose.messageWarn {
		t.Fatalf("state after result: submitting=%v message=%q", m.compose.submitting, m.compose.message)
	}
	if !strings.Contains(m.compose.message, "img-3") || !strings.Contains(m.compose.message, "2 results") {
		t.Fatalf("message = %q", m.compose.message)
	}
	if m.currentView != ViewCompose {
		t.Fatalf("view = %s, want Compose", m.currentView)
	}
	if h.poller.refreshes != refreshes+1 {
		t.Fatalf("library refreshes = %d, want %d", h.poller.refreshes, refreshes+1)
	}
	if m.cfg.ImageSize != "2K" {
		t.Fatalf("image size default = %q, want 2K", m.cfg.ImageSize)
	}
}

func TestCompose_ImageSubmitErrors(t *testing.T) {
	t.Run("mask without sources", func(t *testing.T) {
		m, _ := newTestModel(t)
		images := &fakeImages{}
		m.images = images
		m, _ = press(m, "n")
		m.compose.kind = kindImage
		m.compose.prompt.SetValue("fill the sky")
		m.compose.mask.SetValue("/tmp/mask.png")

		m, cmd := press(m, "ctrl+s")
		if cmd != nil || !m.compose.messageWarn {
			t.Fatalf("cmd=%v message=%q, want a warning and no command", cmd != nil, m.compose.message)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		m, _ := newTestModel(t)
		m.images = &fakeImages{err: backend.ErrUnauthorized}
		m, _ = press(m, "n")
		m.compose.kind = kindImage
		m.compose.prompt.SetValue("a boat")

		m, cmd := press(m, "ctrl+s")
		msgs := collect[imageMsg](cmd)
		if len(msgs) != 1 {
			t.Fatalf("got %d image results, want 1", len(msgs))
		}
		next, _ := m.Update(msgs[0])
		m = next.(Model)
		if !m.compose.messageWarn || !strings.Contains(m.compose.message, "mediadeck login") {
			t.Fatalf("message = %q, want a sign-in hint", m.compose.message)
		}
		if m.compose.prompt.Value() != "a boat" {
			t.Fatal("prompt cleared after a failure")
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		m, _ := newTestModel(t)
		m, _ = press(m, "n")
		m.compose.kind = kindImage
		m.compose.prompt.SetValue("a boat")
		m, cmd := press(m, "ctrl+s")
		if cmd != nil || m.compose.message != "Image generation unavailable" {
			t.Fatalf("message = %q", m.compose.message)
		}
	})
}
