package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/config"
	"github.com/five82/mediadeck/internal/imagegen"
	"github.com/five82/mediadeck/internal/intake"
	"github.com/five82/mediadeck/internal/provider"
	"github.com/five82/mediadeck/internal/tasks"
)

type composeField int

const (
	fieldKind composeField = iota
	fieldPrompt
	fieldName
	fieldModel
	fieldVariant
	fieldAspect
	fieldImageSize
	fieldDuration
	fieldBatch
	fieldHD
	fieldWatermark
	fieldPrivate
	fieldNotify
	fieldImage
	fieldMask
	fieldCount
)

var fieldLabels = map[composeField]string{
	fieldKind:      "Kind",
	fieldPrompt:    "Prompt",
	fieldName:      "Name",
	fieldModel:     "Model",
	fieldVariant:   "Variant",
	fieldAspect:    "Aspect",
	fieldImageSize: "Image size",
	fieldDuration:  "Duration",
	fieldBatch:     "Batch",
	fieldHD:        "HD",
	fieldWatermark: "Watermark",
	fieldPrivate:   "Private",
	fieldNotify:    "Notify hook",
	fieldImage:     "Add image",
	fieldMask:      "Mask",
}

// composeKind selects what the form generates.
type composeKind int

const (
	kindVideo composeKind = iota
	kindImage
)

func (k composeKind) String() string {
	if k == kindImage {
		return "Image"
	}
	return "Video"
}

// composeState holds the new-task form.
type composeState struct {
	focus composeField

	prompt textinput.Model
	name   textinput.Model
	notify textinput.Model
	image  textinput.Model
	mask   textinput.Model

	kind      composeKind
	model     string
	variant   string
	aspect    string
	duration  int
	batch     int
	hd        bool
	watermark bool
	private   bool

	imageModel  string
	imageAspect string
	imageSize   string
	imageCount  int

	submitting  bool
	loading     bool
	lastSubmit  time.Time
	message     string
	messageWarn bool
	spinner     spinner.Model
}

func newComposeState(cfg config.Config) composeState {
	newInput := func(placeholder string, limit int) textinput.Model {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = placeholder
		ti.CharLimit = limit
		return ti
	}
	c := composeState{
		focus:     fieldPrompt,
		prompt:    newInput("Describe the video or image", 4000),
		name:      newInput("optional, defaults to the prompt", 80),
		notify:    newInput("https://example.com/hook", 512),
		image:     newInput("file path, URL or data:image URI, enter to add", 0),
		mask:      newInput("PNG painted over the first image", 1024),
		model:     cfg.Model,
		variant:   cfg.SoraVariant,
		aspect:    cfg.AspectRatio,
		duration:  cfg.Duration,
		batch:     max(cfg.BatchCount, 1),
		hd:        cfg.HD,
		watermark: cfg.Watermark,
		private:   cfg.Private,

		imageModel:  cfg.ImageModel,
		imageAspect: cfg.ImageAspectRatio,
		imageSize:   cfg.ImageSize,
		imageCount:  1,

		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot)),
	}
	c.notify.SetValue(cfg.NotifyHook)
	c.prompt.Focus()
	return c
}

// request builds a task request from the form. Images come from intake.
func (c composeState) request(images []string) (tasks.Request, error) {
	prompt := strings.TrimSpace(c.prompt.Value())
	if prompt == "" {
		return tasks.Request{}, tasks.ErrEmptyPrompt
	}
	return tasks.Request{
		Name:   strings.TrimSpace(c.name.Value()),
		Model:  c.model,
		Prompt: prompt,
		Options: provider.Options{
			Variant:     c.variant,
			AspectRatio: c.aspect,
			Duration:    c.duration,
			HD:          c.hd,
			Watermark:   c.watermark,
			Private:     c.private,
			NotifyHook:  strings.TrimSpace(c.notify.Value()),
			Images:      images,
		},
	}, nil
}

// imageRequest builds an image request from the form on top of the saved
// defaults.
func (c composeState) imageRequest(cfg config.Config) (backend.ImageRequest, error) {
	prompt := strings.TrimSpace(c.prompt.Value())
	if prompt == "" {
		return backend.ImageRequest{}, tasks.ErrEmptyPrompt
	}
	req := imagegen.RequestFromConfig(cfg, prompt)
	req.Model = c.imageModel
	req.AspectRatio = c.imageAspect
	req.ImageSize = c.imageSize
	req.N = c.imageCount
	req.Title = strings.TrimSpace(c.name.Value())
	return req, nil
}

func (c composeState) fieldVisible(f composeField) bool {
	video := c.kind == kindVideo
	switch f {
	case fieldVariant, fieldHD:
		return video && c.model == "sora2"
	case fieldDuration, fieldWatermark, fieldPrivate, fieldNotify:
		return video
	case fieldImageSize, fieldMask:
		return !video
	}
	return true
}

func (c *composeState) input(f composeField) *textinput.Model {
	switch f {
	case fieldPrompt:
		return &c.prompt
	case fieldName:
		return &c.name
	case fieldNotify:
		return &c.notify
	case fieldImage:
		return &c.image
	case fieldMask:
		return &c.mask
	}
	return nil
}

// moveFocus steps to the next visible field and returns the blink command
// of the newly focused input, if any.
func (c *composeState) moveFocus(step int) tea.Cmd {
	if in := c.input(c.focus); in != nil {
		in.Blur()
	}
	next := c.focus
	for {
		next = composeField((int(next) + step + int(fieldCount)) % int(fieldCount))
		if c.fieldVisible(next) {
			break
		}
	}
	c.focus = next
	if in := c.input(next); in != nil {
		return in.Focus()
	}
	return nil
}

// cycle changes a choice field by step.
func (c *composeState) cycle(step int) {
	image := c.kind == kindImage
	switch c.focus {
	case fieldKind:
		c.kind = composeKind(wrap(int(c.kind)+step, 2))
	case fieldModel:
		if image {
			c.imageModel = cycleString(config.ImageModels, c.imageModel, step)
		} else {
			c.model = cycleString(config.Models, c.model, step)
		}
	case fieldVariant:
		c.variant = cycleString(config.SoraVariants, c.variant, step)
	case fieldAspect:
		if image {
			c.imageAspect = cycleString(config.ImageAspectRatios, c.imageAspect, step)
		} else {
			c.aspect = cycleString(config.AspectRatios, c.aspect, step)
		}
	case fieldImageSize:
		c.imageSize = cycleString(config.ImageSizes, c.imageSize, step)
	case fieldDuration:
		idx := indexOf(len(config.Durations), func(i int) bool { return config.Durations[i] == c.duration })
		c.duration = config.Durations[wrap(idx+step, len(config.Durations))]
	case fieldBatch:
		if image {
			c.imageCount = min(max(c.imageCount+step, 1), backend.MaxImageCount)
		} else {
			c.batch = min(max(c.batch+step, 1), config.MaxBatchCount)
		}
	case fieldHD, fieldWatermark, fieldPrivate:
		c.toggle()
	}
}

func (c *composeState) toggle() {
	switch c.focus {
	case fieldHD:
		c.hd = !c.hd
	case fieldWatermark:
		c.watermark = !c.watermark
	case fieldPrivate:
		c.private = !c.private
	}
}

func cycleString(values []string, current string, step int) string {
	idx := indexOf(len(values), func(i int) bool { return values[i] == current })
	return values[wrap(idx+step, len(values))]
}

func indexOf(n int, match func(int) bool) int {
	for i := 0; i < n; i++ {
		if match(i) {
			return i
		}
	}
	return 0
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}

func (c *composeState) setMessage(msg string, warn bool) {
	c.message = msg
	c.messageWarn = warn
}

// handleComposeKey processes keyboard input for the compose view.
func (m Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := &m.compose
	switch {
	case key.Matches(msg, m.keys.Escape):
		return m.switchView(ViewTasks)
	case key.Matches(msg, m.keys.Tab):
		return m.switchView(m.nextView(1))
	case key.Matches(msg, m.keys.ShiftTab):
		return m.switchView(m.nextView(-1))
	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	case key.Matches(msg, m.keys.NextField):
		return m, c.moveFocus(1)
	case key.Matches(msg, m.keys.PrevField):
		return m, c.moveFocus(-1)
	case key.Matches(msg, m.keys.ClearImages):
		if m.intake != nil {
			m.intake.Clear()
			c.setMessage("Images cleared", false)
		}
		return m, nil
	}

	if in := c.input(c.focus); in != nil {
		if c.focus == fieldImage && msg.Type == tea.KeyEnter {
			return m.addImage()
		}
		var cmd tea.Cmd
		*in, cmd = in.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "left", "h":
		c.cycle(-1)
	case "right", "l":
		c.cycle(1)
	case " ", "enter":
		c.toggle()
		if c.focus != fieldHD && c.focus != fieldWatermark && c.focus != fieldPrivate {
			c.cycle(1)
		}
	}
	return m, nil
}

// submit validates the form and queues the batch, asking for confirmation
// on large batches.
func (m Model) submit() (tea.Model, tea.Cmd) {
	c := &m.compose
	now := m.now()
	if c.submitting || now.Sub(c.lastSubmit) < SubmitDebounce {
		return m, nil
	}
	c.lastSubmit = now

	if c.kind == kindImage {
		return m.submitImage()
	}
	if m.tasks == nil {
		c.setMessage("Task manager unavailable", true)
		return m, nil
	}
	if strings.TrimSpace(m.cfg.APIKey) == "" {
		c.setMessage("Set an API key first: mediadeck config set api_key <key>", true)
		return m, nil
	}
	if m.intake != nil && m.intake.Busy() {
		c.setMessage("Images are still loading", true)
		return m, nil
	}
	var images []string
	if m.intake != nil {
		images = m.intake.Values()
	}
	req, err := c.request(images)
	if err != nil {
		c.setMessage(capitalize(err.Error()), true)
		return m, nil
	}

	count := c.batch
	if count >= BatchConfirmThreshold {
		m.modal = newConfirmModal(
			"Submit batch",
			fmt.Sprintf("Submit %d tasks for %q?", count, truncate(req.Prompt, 40)),
			func(m Model, _ string) (Model, tea.Cmd) {
				return m.startSubmit(req, count)
			},
		)
		return m, nil
	}
	return m.startSubmit(req, count)
}

func (m Model) startSubmit(req tasks.Request, count int) (Model, tea.Cmd) {
	m.compose.submitting = true
	m.compose.setMessage("Submitting...", false)
	svc := m.tasks
	submit := func() tea.Msg {
		created, err := svc.SubmitBatch(req, count)
		return submitMsg{created: created, err: err}
	}
	return m, tea.Batch(submit, m.compose.spinner.Tick)
}

type submitMsg struct {
	created []tasks.Task
	err     error
}

func (m Model) handleSubmitResult(msg submitMsg) (tea.Model, tea.Cmd) {
	c := &m.compose
	c.submitting = false
	if msg.err != nil {
		c.setMessage("Submit failed: "+msg.err.Error(), true)
		return m, nil
	}
	c.setMessage(fmt.Sprintf("Queued %d task(s)", len(msg.created)), false)
	c.prompt.SetValue("")
	c.name.SetValue("")
	m.rememberComposeDefaults()
	m.refreshTasks()
	if len(msg.created) > 0 {
		for i, t := range m.taskList {
			if t.LocalID == msg.created[0].LocalID {
				m.taskRow = i
			}
		}
		m.updateTaskDetail()
	}
	return m.switchView(ViewTasks)
}

// submitImage generates an image from the form and the attached sources.
// The backend stores the result in the library.
func (m Model) submitImage() (tea.Model, tea.Cmd) {
	c := &m.compose
	if m.images == nil {
		c.setMessage("Image generation unavailable", true)
		return m, nil
	}
	if m.intake != nil && m.intake.Busy() {
		c.setMessage("Images are still loading", true)
		return m, nil
	}
	req, err := c.imageRequest(m.cfg)
	if err != nil {
		c.setMessage(capitalize(err.Error()), true)
		return m, nil
	}
	maskPath := strings.TrimSpace(c.mask.Value())
	if maskPath != "" {
		maskPath = expandHome(maskPath)
		if m.intake == nil || len(m.intake.Items()) == 0 {
			c.setMessage(capitalize(imagegen.ErrMaskWithoutSource.Error()), true)
			return m, nil
		}
	}

	c.submitting = true
	c.setMessage("Generating image...", false)
	gen, in, parent := m.images, m.intake, m.ctx
	run := func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, ImageTimeout)
		defer cancel()
		job := imagegen.Job{Request: req}
		if in != nil {
			files, err := in.Files(ctx, nil)
			if err != nil {
				return imageMsg{err: err}
			}
			job.Sources = files
		}
		if maskPath != "" {
			data, err := os.ReadFile(maskPath)
			if err != nil {
				return imageMsg{err: fmt.Errorf("read mask: %w", err)}
			}
			job.Mask = data
		}
		detail, err := imagegen.Run(ctx, gen, job)
		return imageMsg{detail: detail, err: err}
	}
	return m, tea.Batch(run, c.spinner.Tick)
}

type imageMsg struct {
	detail backend.ImageDetail
	err    error
}

func (m Model) handleImageResult(msg imageMsg) (tea.Model, tea.Cmd) {
	c := &m.compose
	c.submitting = false
	if msg.err != nil {
		c.setMessage("Image failed: "+describeActionError(msg.err), true)
		return m, nil
	}
	text := fmt.Sprintf("Saved image %s", msg.detail.ID)
	if n := len(msg.detail.URLs()); n > 1 {
		text = fmt.Sprintf("%s (%d results)", text, n)
	}
	c.setMessage(text, false)
	c.prompt.SetValue("")
	c.name.SetValue("")
	c.mask.SetValue("")
	m.rememberComposeDefaults()
	m.pushToast(tasks.Event{At: m.now(), Level: tasks.LevelSuccess, Message: text})
	if m.poller != nil {
		m.poller.Refresh()
	}
	return m, nil
}

// rememberComposeDefaults persists the form choices as the new defaults.
func (m *Model) rememberComposeDefaults() {
	c := m.compose
	m.cfg.Model = c.model
	m.cfg.SoraVariant = c.variant
	m.cfg.AspectRatio = c.aspect
	m.cfg.Duration = c.duration
	m.cfg.BatchCount = c.batch
	m.cfg.HD = c.hd
	m.cfg.Watermark = c.watermark
	m.cfg.Private = c.private
	m.cfg.NotifyHook = strings.TrimSpace(c.notify.Value())
	m.cfg.ImageModel = c.imageModel
	m.cfg.ImageAspectRatio = c.imageAspect
	m.cfg.ImageSize = c.imageSize
	if m.configPath == "" {
		return
	}
	defaults := m.cfg
	_, err := config.Update(m.configPath, func(stored *config.Config) error {
		stored.Model = defaults.Model
		stored.SoraVariant = defaults.SoraVariant
		stored.AspectRatio = defaults.AspectRatio
		stored.Duration = defaults.Duration
		stored.BatchCount = defaults.BatchCount
		stored.HD = defaults.HD
		stored.Watermark = defaults.Watermark
		stored.Private = defaults.Private
		stored.NotifyHook = defaults.NotifyHook
		stored.ImageModel = defaults.ImageModel
		stored.ImageAspectRatio = defaults.ImageAspectRatio
		stored.ImageSize = defaults.ImageSize
		return nil
	})
	if err != nil {
		m.errorMsg = "config: " + err.Error()
	}
}

// addImage adds the image field's value: URLs and data URIs directly,
// anything else as a file path read in the background.
func (m Model) addImage() (tea.Model, tea.Cmd) {
	c := &m.compose
	value := strings.TrimSpace(c.image.Value())
	if value == "" || m.intake == nil {
		return m, nil
	}
	c.image.SetValue("")

	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		if n := m.intake.AddSourcesFromText(value); n == 0 {
			c.setMessage("Not a valid image URL or data:image URI", true)
		} else {
			c.setMessage(fmt.Sprintf("Added %d image source(s)", n), false)
		}
		return m, nil
	}

	path := expandHome(value)
	in := m.intake
	parent := m.ctx
	c.loading = true
	read := func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, time.Minute)
		defer cancel()
		res, err := in.AddFiles(ctx, []string{path})
		return intakeMsg{result: res, err: err}
	}
	return m, tea.Batch(read, c.spinner.Tick)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

type intakeMsg struct {
	result intake.AddResult
	err    error
}

func (m *Model) handleIntake(msg intakeMsg) {
	c := &m.compose
	c.loading = false
	switch {
	case msg.err != nil:
		c.setMessage("Image: "+msg.err.Error(), true)
	case msg.result.Added == 0 && len(msg.result.Skipped) > 0:
		c.setMessage("Not an image: "+filepath.Base(msg.result.Skipped[0]), true)
	case msg.result.Compressed > 0:
		c.setMessage(fmt.Sprintf("Added %d image(s), %d compressed", msg.result.Added, msg.result.Compressed), false)
	default:
		c.setMessage(fmt.Sprintf("Added %d image(s)", msg.result.Added), false)
	}
}

func (c composeState) busy() bool {
	return c.submitting || c.loading
}

// renderCompose renders the form and the attached images.
func (m Model) renderCompose() string {
	height := m.contentHeight()
	formWidth := m.width
	imagesWidth := 0
	if m.width >= LayoutCompactWidth {
		imagesWidth = m.width * 35 / 100
		formWidth = m.width - imagesWidth
	}

	title := "New task"
	if m.compose.kind == kindImage {
		title = "New image"
	}
	form := m.renderTitledBox(title, m.composeForm(formWidth-2), formWidth, height, true)
	if imagesWidth == 0 {
		return form
	}
	images := m.renderTitledBox(m.imagesTitle(), m.composeImages(imagesWidth-2), imagesWidth, height, false)
	return lipgloss.JoinHorizontal(lipgloss.Top, form, images)
}

func (m Model) composeForm(width int) string {
	styles := m.theme.Styles()
	c := m.compose
	const labelW = 13
	valueW := max(width-labelW-2, 10)

	var lines []string
	for f := composeField(0); f < fieldCount; f++ {
		if !c.fieldVisible(f) {
			continue
		}
		focused := f == c.focus
		marker := "  "
		labelStyle := styles.MutedText
		if focused {
			marker = styles.AccentText.Render("▸ ")
			labelStyle = styles.AccentText
		}
		value := c.fieldValue(f, focused, valueW)
		lines = append(lines, marker+labelStyle.Render(padRight(fieldLabels[f], labelW))+value)
	}

	lines = append(lines, "")
	if c.busy() {
		lines = append(lines, c.spinner.View()+" "+styles.MutedText.Render(c.message))
	} else if c.message != "" {
		style := styles.SuccessText
		if c.messageWarn {
			style = styles.WarningText
		}
		lines = append(lines, style.Render(c.message))
	}
	return strings.Join(lines, "\n")
}

func (c composeState) fieldValue(f composeField, focused bool, width int) string {
	choice := func(v string) string {
		if focused {
			return "‹ " + v + " ›"
		}
		return v
	}
	check := func(on bool) string { return ternary(on, "[x]", "[ ]") }

	image := c.kind == kindImage
	switch f {
	case fieldKind:
		return choice(c.kind.String())
	case fieldModel:
		return choice(ternary(image, c.imageModel, c.model))
	case fieldVariant:
		return choice(c.variant)
	case fieldAspect:
		return choice(ternary(image, c.imageAspect, c.aspect))
	case fieldImageSize:
		return choice(ternary(c.imageSize == "", "auto", c.imageSize))
	case fieldDuration:
		return choice(strconv.Itoa(c.duration) + "s")
	case fieldBatch:
		if image {
			return choice(strconv.Itoa(c.imageCount))
		}
		return choice(strconv.Itoa(c.batch))
	case fieldHD:
		return check(c.hd)
	case fieldWatermark:
		return check(c.watermark)
	case fieldPrivate:
		return check(c.private)
	}
	in := c.input(f)
	if in == nil {
		return ""
	}
	in.Width = width
	return in.View()
}

func (m Model) imagesTitle() string {
	if m.intake == nil {
		return "Images"
	}
	return fmt.Sprintf("Images (%d)", len(m.intake.Items()))
}

func (m Model) composeImages(width int) string {
	styles := m.theme.Styles()
	if m.intake == nil {
		return styles.FaintText.Render("Image intake unavailable")
	}
	items := m.intake.Items()
	if len(items) == 0 {
		return styles.FaintText.Render("No reference images")
	}
	lines := make([]string, 0, len(items))
	for i, item := range items {
		size := ""
		if item.Size > 0 {
			size = " " + formatBytes(item.Size)
		}
		label := fmt.Sprintf("%d. [%s] %s", i+1, item.Kind, item.Name)
		if item.Kind == intake.KindURL {
			label = fmt.Sprintf("%d. %s", i+1, truncateMiddle(item.Value, max(width-6, 8)))
		}
		lines = append(lines, truncate(label, max(width-len(size), 8))+styles.MutedText.Render(size))
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
