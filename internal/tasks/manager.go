package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/config"
	"github.com/five82/mediadeck/internal/dispatch"
	"github.com/five82/mediadeck/internal/history"
	"github.com/five82/mediadeck/internal/logging"
	"github.com/five82/mediadeck/internal/provider"
)

// Provider creates and polls generation tasks. *provider.Client implements it.
type Provider interface {
	Create(ctx context.Context, spec provider.Spec, payload any) (provider.TaskInfo, error)
	Status(ctx context.Context, spec provider.Spec, taskID string) (provider.TaskInfo, error)
}

// Library stores finished videos. *backend.Client implements it.
type Library interface {
	CreateVideo(ctx context.Context, in backend.VideoCreate) (backend.Video, error)
}

// Recorder persists finished tasks. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Options tunes the manager.
type Options struct {
	APIKey            string
	PollInterval      time.Duration
	PollJitter        time.Duration
	FirstPollDelay    time.Duration
	MaxPollErrors     int
	CreateConcurrency int
	PollConcurrency   int
	SaveConcurrency   int
	CleanupAfter      time.Duration
	MaxTasks          int
	MaxLogs           int
}

// MaxBatch caps SubmitBatch.
const MaxBatch = 20

const (
	defaultFirstPollDelay = time.Second
	defaultMaxLogs        = 200
	nameSeedRunes         = 18
	recordTimeout         = 5 * time.Second
)

// OptionsFromConfig maps the persisted config onto manager options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		APIKey:            cfg.APIKey,
		PollInterval:      cfg.PollInterval.Std(),
		PollJitter:        cfg.PollJitter.Std(),
		MaxPollErrors:     cfg.MaxPollErrors,
		CreateConcurrency: cfg.CreateConcurrency,
		PollConcurrency:   cfg.PollConcurrency,
		SaveConcurrency:   cfg.SaveConcurrency,
		CleanupAfter:      cfg.CleanupAfter.Std(),
		MaxTasks:          cfg.MaxTasks,
	}
}

func (o Options) withDefaults() Options {
	def := config.Default()
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval.Std()
	}
	if o.PollJitter < 0 {
		o.PollJitter = 0
	}
	if o.FirstPollDelay <= 0 {
		o.FirstPollDelay = defaultFirstPollDelay
	}
	if o.MaxPollErrors <= 0 {
		o.MaxPollErrors = def.MaxPollErrors
	}
	if o.CreateConcurrency <= 0 {
		o.CreateConcurrency = def.CreateConcurrency
	}
	if o.PollConcurrency <= 0 {
		o.PollConcurrency = def.PollConcurrency
	}
	if o.SaveConcurrency <= 0 {
		o.SaveConcurrency = def.SaveConcurrency
	}
	if o.CleanupAfter <= 0 {
		o.CleanupAfter = def.CleanupAfter.Std()
	}
	if o.MaxTasks <= 0 {
		o.MaxTasks = def.MaxTasks
	}
	if o.MaxLogs <= 0 {
		o.MaxLogs = defaultMaxLogs
	}
	return o
}

// Option wires optional collaborators.
type Option func(*Manager)

// WithLibrary enables saving completed videos.
func WithLibrary(l Library) Option {
	return func(m *Manager) { m.library = l }
}

// WithRecorder records finished tasks.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithNotifier receives user-facing events.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

type entry struct {
	task    Task
	seq     uint64
	cancel  context.CancelFunc
	cleanup *time.Timer
}

// Manager owns every in-flight task: creation, polling, cancellation,
// cleanup and library saves.
type Manager struct {
	mu      sync.Mutex
	tasks   map[string]*entry
	seq     uint64
	subs    map[int]chan struct{}
	nextSub int
	closed  bool

	// history writes, drained in order by a single goroutine
	recQueue  []Task
	recording bool

	provider Provider
	library  Library
	recorder Recorder
	notifier Notifier
	logger   *slog.Logger
	opts     Options

	createQ *dispatch.Dispatcher
	pollQ   *dispatch.Dispatcher
	saveQ   *dispatch.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewManager builds a Manager that talks to p.
func NewManager(p Provider, opts Options, options ...Option) *Manager {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		tasks:    make(map[string]*entry),
		subs:     make(map[int]chan struct{}),
		provider: p,
		notifier: discardNotifier{},
		logger:   logging.Discard(),
		opts:     opts,
		createQ:  dispatch.New(opts.CreateConcurrency),
		pollQ:    dispatch.New(opts.PollConcurrency),
		saveQ:    dispatch.New(opts.SaveConcurrency),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "tasks")
	return m
}

// Close cancels all in-flight work and waits for goroutines to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, e := range m.tasks {
		if e.cleanup != nil {
			e.cleanup.Stop()
		}
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

type prepared struct {
	spec    provider.Spec
	payload any
	meta    string
}

func (m *Manager) prepare(req Request) (prepared, error) {
	if strings.TrimSpace(m.opts.APIKey) == "" {
		return prepared{}, ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return prepared{}, ErrEmptyPrompt
	}
	spec, err := provider.SpecFor(req.Model)
	if err != nil {
		return prepared{}, err
	}
	payload, meta, err := provider.BuildPayload(req.Model, req.Prompt, req.Options)
	if err != nil {
		return prepared{}, err
	}
	return prepared{spec: spec, payload: payload, meta: meta}, nil
}

// Submit queues one task.
func (m *Manager) Submit(req Request) (Task, error) {
	tasks, err := m.SubmitBatch(req, 1)
	if err != nil {
		return Task{}, err
	}
	return tasks[0], nil
}

// SubmitBatch validates req once and queues count copies of it. Names get a
// " #i" suffix when more than one task is queued.
func (m *Manager) SubmitBatch(req Request, count int) ([]Task, error) {
	p, err := m.prepare(req)
	if err != nil {
		return nil, err
	}
	count = min(max(count, 1), MaxBatch)
	seed := nameSeed(req)
	b := &batch{m: m, total: count, remaining: count}

	m.notify(LevelSuccess, "", fmt.Sprintf("Queued %d task(s)", count))

	out := make([]Task, 0, count)
	for i := 0; i < count; i++ {
		r := req.clone()
		r.Name = seed
		if count > 1 {
			r.Name = fmt.Sprintf("%s #%d", seed, i+1)
		}
		t, err := m.enqueue(r, p, b)
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}

func nameSeed(req Request) string {
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	prompt := []rune(strings.TrimSpace(req.Prompt))
	if len(prompt) > nameSeedRunes {
		prompt = prompt[:nameSeedRunes]
	}
	if seed := strings.TrimSpace(string(prompt)); seed != "" {
		return seed
	}
	return "Task"
}

func (m *Manager) enqueue(req Request, p prepared, b *batch) (Task, error) {
	now := m.now()
	ctx, cancel := context.WithCancel(m.ctx)
	t := Task{
		LocalID:   uuid.NewString(),
		Name:      req.Name,
		Request:   req,
		Meta:      p.meta,
		Status:    StatusQueued,
		Save:      RepoSave{Status: SaveIdle},
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return Task{}, ErrClosed
	}
	m.seq++
	e := &entry{task: t, seq: m.seq, cancel: cancel}
	m.tasks[t.LocalID] = e
	m.appendLog(e, LevelInfo, "queued")
	m.pruneLocked()
	snapshot := e.task.clone()
	m.wg.Add(1)
	m.mu.Unlock()

	m.changed()
	go m.runCreate(ctx, t.LocalID, p, b)
	return snapshot, nil
}

func (m *Manager) runCreate(ctx context.Context, id string, p prepared, b *batch) {
	defer m.wg.Done()

	var info provider.TaskInfo
	err := m.createQ.Do(ctx, func(ctx context.Context) error {
		m.mutate(id, func(e *entry, fx *effects) {
			m.setStatusLocked(e, StatusPending, fx)
		})
		var err error
		info, err = m.provider.Create(ctx, p.spec, p.payload)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			m.mutate(id, func(e *entry, fx *effects) {
				if m.closed {
					return
				}
				m.setStatusLocked(e, StatusCancelled, fx)
			})
			b.done(false)
			return
		}
		m.mutate(id, func(e *entry, fx *effects) {
			if e.task.Terminal() {
				return
			}
			e.task.FailReason = err.Error()
			m.appendLog(e, LevelError, "create failed: "+e.task.FailReason)
			m.setStatusLocked(e, StatusFailed, fx)
			fx.note(LevelError, "Create failed: "+e.task.Name)
		})
		b.done(false)
		return
	}

	ok, poll := false, false
	m.mutate(id, func(e *entry, fx *effects) {
		if e.task.Terminal() {
			return
		}
		m.mergeInfoLocked(e, info, true)
		if e.task.ProviderTaskID == "" {
			if e.task.FailReason == "" {
				e.task.FailReason = "response missing task_id"
			}
			m.appendLog(e, LevelError, "create failed: "+e.task.FailReason)
			m.setStatusLocked(e, StatusFailed, fx)
			fx.note(LevelError, "Create failed: "+e.task.Name)
			return
		}
		ok = true
		m.setStatusLocked(e, info.Status, fx)
		m.appendLog(e, LevelSuccess, "task created: "+e.task.ProviderTaskID)
		fx.note(LevelSuccess, "Submitted: "+e.task.Name)
		if e.task.Status == StatusCompleted && e.task.VideoURL != "" {
			m.beginSaveLocked(e, false, fx)
		}
		poll = !e.task.Terminal()
	})
	b.done(ok)
	if poll {
		m.wg.Add(1)
		go m.pollLoop(ctx, id, p.spec)
	}
}

// Cancel stops a running task. It reports false for unknown or finished
// tasks.
func (m *Manager) Cancel(id string) bool {
	cancelled := false
	m.mutate(id, func(e *entry, fx *effects) {
		if e.task.Terminal() {
			return
		}
		m.appendLog(e, LevelWarning, "cancelled by user, polling stopped")
		e.cancel()
		if e.task.FinishTime.IsZero() {
			e.task.FinishTime = m.now()
		}
		cancelled = m.setStatusLocked(e, StatusCancelled, fx)
		fx.note(LevelInfo, "Cancelled: "+e.task.Name)
	})
	return cancelled
}

// Retry submits a fresh copy of the task's original request.
func (m *Manager) Retry(id string) (Task, error) {
	t, ok := m.Get(id)
	if !ok {
		return Task{}, ErrNotFound
	}
	req := t.Request.clone()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = t.Name
	}
	req.Name = name + " (retry)"
	return m.Submit(req)
}

// Remove drops a task, aborting any in-flight request.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	_, ok := m.tasks[id]
	if ok {
		m.removeLocked(id)
	}
	m.mu.Unlock()
	if ok {
		m.changed()
	}
	return ok
}

// ClearCompleted removes every finished task and returns how many went.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	n := 0
	for id, e := range m.tasks {
		if e.task.Terminal() {
			m.removeLocked(id)
			n++
		}
	}
	m.mu.Unlock()
	if n > 0 {
		m.changed()
	}
	return n
}

// Get returns a copy of one task.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return e.task.clone(), true
}

// Snapshot returns copies of all tasks, newest first.
func (m *Manager) Snapshot() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	ordered := m.orderedLocked()
	out := make([]Task, len(ordered))
	for i, e := range ordered {
		out[i] = e.task.clone()
	}
	return out
}

// Summary counts tasks by state.
type Summary struct {
	Total     int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// Summary returns task counts.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Summary
	for _, e := range m.tasks {
		s.Total++
		switch e.task.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		default:
			s.Running++
		}
	}
	return s
}

// Subscribe returns a channel that receives a value after every change.
// Notifications coalesce; call the returned func to stop.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Wait blocks until the task is finished and any library save has settled.
func (m *Manager) Wait(ctx context.Context, id string) (Task, error) {
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()
	for {
		t, ok := m.Get(id)
		if !ok {
			return Task{}, ErrNotFound
		}
		if t.Terminal() && t.Save.Status != SaveSaving {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ch:
		}
	}
}

func (m *Manager) changed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (m *Manager) orderedLocked() []*entry {
	out := make([]*entry, 0, len(m.tasks))
	for _, e := range m.tasks {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}

// pruneLocked enforces MaxTasks, dropping the oldest finished tasks first
// and then the oldest overall.
func (m *Manager) pruneLocked() {
	excess := len(m.tasks) - m.opts.MaxTasks
	if excess <= 0 {
		return
	}
	ordered := m.orderedLocked()
	for i := len(ordered) - 1; i >= 0 && excess > 0; i-- {
		if ordered[i].task.Terminal() {
			m.removeLocked(ordered[i].task.LocalID)
			excess--
		}
	}
	for i := len(ordered) - 1; i >= 0 && excess > 0; i-- {
		id := ordered[i].task.LocalID
		if _, ok := m.tasks[id]; ok {
			m.removeLocked(id)
			excess--
		}
	}
}

func (m *Manager) removeLocked(id string) {
	e, ok := m.tasks[id]
	if !ok {
		return
	}
	if e.cleanup != nil {
		e.cleanup.Stop()
	}
	e.cancel()
	delete(m.tasks, id)
}

// effects collects work to run after the lock is released.
type effects struct {
	notes  []Event
	record *Task
	save   *saveJob
}

func (fx *effects) note(level LogLevel, msg string) {
	fx.notes = append(fx.notes, Event{Level: level, Message: msg})
}

// mutate runs fn on the task under the lock and then performs the collected
// side effects. It reports whether the task exists.
func (m *Manager) mutate(id string, fn func(e *entry, fx *effects)) bool {
	var fx effects
	m.mu.Lock()
	e, ok := m.tasks[id]
	if ok {
		fn(e, &fx)
	}
	inline, drain := m.queueRecordLocked(fx.record)
	m.mu.Unlock()
	if !ok {
		return false
	}

	now := m.now()
	for _, n := range fx.notes {
		n.At = now
		n.TaskID = id
		m.notifier.Notify(n)
	}
	if inline {
		m.record(*fx.record)
	}
	if drain {
		go m.drainRecords()
	}
	if fx.save != nil {
		m.launchSave(*fx.save)
	}
	m.changed()
	return true
}

// setStatusLocked applies a transition. Illegal transitions are ignored.
func (m *Manager) setStatusLocked(e *entry, next Status, fx *effects) bool {
	cur := e.task.Status
	if cur == next {
		return true
	}
	if err := checkTransition(cur, next); err != nil {
		m.logger.Debug("ignored status change",
			slog.String(logging.FieldTaskID, e.task.LocalID),
			slog.String("error", err.Error()),
		)
		return false
	}
	now := m.now()
	e.task.Status = next
	e.task.UpdatedAt = now
	m.appendLog(e, LevelInfo, fmt.Sprintf("status: %s -> %s", cur.Label(), next.Label()))
	if next.Terminal() {
		if e.task.FinishTime.IsZero() {
			e.task.FinishTime = now
		}
		e.cancel()
		m.scheduleCleanupLocked(e)
		snap := e.task.clone()
		fx.record = &snap
	}
	return true
}

func (m *Manager) mergeInfoLocked(e *entry, info provider.TaskInfo, fromCreate bool) {
	t := &e.task
	if info.TaskID != "" {
		t.ProviderTaskID = info.TaskID
	}
	if info.Platform != "" {
		t.Platform = info.Platform
	}
	if info.Action != "" {
		t.Action = info.Action
	}
	t.RawStatus = info.RawStatus
	t.Progress = info.Progress
	if fromCreate || info.FailReason != "" {
		t.FailReason = info.FailReason
	}
	if !info.SubmitTime.IsZero() {
		t.SubmitTime = info.SubmitTime
	}
	if !info.StartTime.IsZero() {
		t.StartTime = info.StartTime
	}
	if !info.FinishTime.IsZero() {
		t.FinishTime = info.FinishTime
	}
	if info.Cost != nil {
		c := *info.Cost
		t.Cost = &c
	}
	if info.VideoURL != "" {
		t.VideoURL = info.VideoURL
	}
	t.UpdatedAt = m.now()
}

func (m *Manager) scheduleCleanupLocked(e *entry) {
	if m.closed {
		return
	}
	if e.cleanup != nil {
		e.cleanup.Stop()
	}
	id := e.task.LocalID
	e.cleanup = time.AfterFunc(m.opts.CleanupAfter, func() { m.Remove(id) })
}

// appendLog adds a line to the task log, trimming to the most recent
// entries once it grows past three times MaxLogs.
func (m *Manager) appendLog(e *entry, level LogLevel, msg string) {
	e.task.Logs = append(e.task.Logs, LogEntry{At: m.now(), Level: level, Message: msg})
	if len(e.task.Logs) > m.opts.MaxLogs*3 {
		keep := m.opts.MaxLogs * 2
		e.task.Logs = append([]LogEntry(nil), e.task.Logs[len(e.task.Logs)-keep:]...)
	}

	attrs := []any{
		slog.String(logging.FieldTaskID, e.task.LocalID),
		slog.String("name", e.task.Name),
	}
	if e.task.ProviderTaskID != "" {
		attrs = append(attrs, slog.String(logging.FieldProvider, e.task.ProviderTaskID))
	}
	switch level {
	case LevelError:
		m.logger.Error(msg, attrs...)
	case LevelWarning:
		m.logger.Warn(msg, attrs...)
	default:
		m.logger.Info(msg, attrs...)
	}
}

func (m *Manager) notify(level LogLevel, taskID, msg string) {
	m.notifier.Notify(Event{At: m.now(), Level: level, TaskID: taskID, Message: msg})
}

// queueRecordLocked hands a terminal snapshot to the history writer. Once
// the manager is closed the caller records inline instead.
func (m *Manager) queueRecordLocked(t *Task) (inline, drain bool) {
	if t == nil || m.recorder == nil {
		return false, false
	}
	if m.closed {
		return true, false
	}
	m.recQueue = append(m.recQueue, *t)
	if m.recording {
		return false, false
	}
	m.recording = true
	m.wg.Add(1)
	return false, true
}

func (m *Manager) drainRecords() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if len(m.recQueue) == 0 {
			m.recording = false
			m.mu.Unlock()
			return
		}
		t := m.recQueue[0]
		m.recQueue = m.recQueue[1:]
		m.mu.Unlock()
		m.record(t)
	}
}

func (m *Manager) record(t Task) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	err := m.recorder.Record(ctx, history.Entry{
		LocalID:        t.LocalID,
		Name:           t.Name,
		Model:          t.Request.Model,
		Prompt:         t.Request.Prompt,
		ProviderTaskID: t.ProviderTaskID,
		Status:         string(t.Status),
		VideoURL:       t.VideoURL,
		FailReason:     t.FailReason,
		Cost:           t.Cost,
		SavedID:        t.Save.SavedID,
		CreatedAt:      t.CreatedAt,
		FinishedAt:     t.FinishTime,
	})
	if err != nil {
		m.logger.Warn("record history failed",
			slog.String(logging.FieldTaskID, t.LocalID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) jitter() time.Duration {
	if m.opts.PollJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(m.opts.PollJitter)))
}

// batch reports the outcome of a multi-task submission once every create
// call has settled.
type batch struct {
	m         *Manager
	mu        sync.Mutex
	total     int
	remaining int
	ok        int
}

func (b *batch) done(success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.remaining--
	if success {
		b.ok++
	}
	finished := b.remaining == 0
	ok, failed := b.ok, b.total-b.ok
	b.mu.Unlock()

	if !finished || b.total < 2 {
		return
	}
	level := LevelSuccess
	if failed > 0 {
		level = LevelWarning
	}
	b.m.notify(level, "", fmt.Sprintf("Created: %d ok, %d failed", ok, failed))
}
