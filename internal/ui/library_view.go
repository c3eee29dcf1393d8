package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/prefs"
	"github.com/five82/mediadeck/internal/tasks"
)

type libraryTab int

const (
	tabVideos libraryTab = iota
	tabImages
)

const defaultLibraryPageSize = 20

// libraryState tracks the library browser position.
type libraryState struct {
	tab      libraryTab
	page     int
	pageSize int
	search   string
	row      int
}

func newLibraryState(p prefs.Prefs) libraryState {
	s := libraryState{page: 1, pageSize: p.PageSize}
	if s.pageSize <= 0 {
		s.pageSize = defaultLibraryPageSize
	}
	if p.LibraryTab == "images" {
		s.tab = tabImages
	}
	return s
}

func (s libraryState) videoQuery() backend.ListQuery {
	return backend.ListQuery{Page: s.page, Size: s.pageSize, Search: s.search}
}

func (s libraryState) imageQuery() backend.ListQuery {
	return backend.ListQuery{Page: s.page, Size: s.pageSize, Search: s.search}
}

// libraryItem is the common view of a video or image row.
type libraryItem struct {
	ID        string
	Title     string
	Model     string
	Status    string
	URL       string
	SizeBytes int64
	CreatedAt backend.Timestamp
}

func (m Model) libraryItems() ([]libraryItem, int, int) {
	snap := m.snapshot
	if m.lib.tab == tabImages {
		items := make([]libraryItem, 0, len(snap.Images.Items))
		for _, img := range snap.Images.Items {
			items = append(items, libraryItem{img.ID, img.Title, img.Model, img.Status, img.ImageURL, img.SizeBytes, img.CreatedAt})
		}
		return items, snap.Images.Total, snap.Images.Pages
	}
	items := make([]libraryItem, 0, len(snap.Videos.Items))
	for _, v := range snap.Videos.Items {
		items = append(items, libraryItem{v.ID, v.Title, v.Model, v.Status, v.VideoURL, v.SizeBytes, v.CreatedAt})
	}
	return items, snap.Videos.Total, snap.Videos.Pages
}

func (m *Model) clampLibrary() {
	items, _, pages := m.libraryItems()
	m.lib.row = clampRow(m.lib.row, len(items))
	if pages > 0 && m.lib.page > pages {
		m.lib.page = pages
		m.applyLibraryQuery()
	}
}

func (m *Model) applyLibraryQuery() {
	if m.poller == nil {
		return
	}
	if m.lib.tab == tabImages {
		m.poller.SetImageQuery(m.lib.imageQuery())
		return
	}
	m.poller.SetVideoQuery(m.lib.videoQuery())
}

func (m Model) selectedLibraryItem() (libraryItem, bool) {
	items, _, _ := m.libraryItems()
	if m.lib.row < 0 || m.lib.row >= len(items) {
		return libraryItem{}, false
	}
	return items[m.lib.row], true
}

// handleLibraryKey processes keyboard input for the library view.
func (m Model) handleLibraryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items, _, pages := m.libraryItems()
	if moved, ok := moveRow(m.keys, msg, m.lib.row, len(items)); ok {
		m.lib.row = moved
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.ToggleTab):
		if m.lib.tab == tabVideos {
			m.lib.tab = tabImages
			m.prefs.LibraryTab = "images"
		} else {
			m.lib.tab = tabVideos
			m.prefs.LibraryTab = "videos"
		}
		m.lib.row = 0
		m.lib.page = 1
		m.savePrefs()
		m.applyLibraryQuery()
	case key.Matches(msg, m.keys.NextPage):
		if m.lib.page < pages {
			m.lib.page++
			m.lib.row = 0
			m.applyLibraryQuery()
		}
	case key.Matches(msg, m.keys.PrevPage):
		if m.lib.page > 1 {
			m.lib.page--
			m.lib.row = 0
			m.applyLibraryQuery()
		}
	case key.Matches(msg, m.keys.Search):
		m.modal = newPromptModal("Search library", "Filter by title or prompt. Leave empty to show everything.", m.lib.search,
			func(m Model, value string) (Model, tea.Cmd) {
				m.lib.search = value
				m.lib.page = 1
				m.lib.row = 0
				m.applyLibraryQuery()
				return m, nil
			})
	case key.Matches(msg, m.keys.Refresh):
		if m.poller != nil {
			m.poller.Refresh()
		}
	case key.Matches(msg, m.keys.Rename):
		item, ok := m.selectedLibraryItem()
		if !ok || m.library == nil {
			return m, nil
		}
		images := m.lib.tab == tabImages
		m.modal = newPromptModal("Rename", "New title for "+truncate(item.Title, 40), item.Title,
			func(m Model, value string) (Model, tea.Cmd) {
				if value == "" || value == item.Title {
					return m, nil
				}
				lib := m.library
				return m, m.runAction("Renamed to "+value, func(ctx context.Context) error {
					if images {
						_, err := lib.RenameImage(ctx, item.ID, value)
						return err
					}
					_, err := lib.RenameVideo(ctx, item.ID, value)
					return err
				})
			})
	case key.Matches(msg, m.keys.Delete):
		item, ok := m.selectedLibraryItem()
		if !ok || m.library == nil {
			return m, nil
		}
		images := m.lib.tab == tabImages
		m.modal = newConfirmModal("Delete", fmt.Sprintf("Delete %q from the library? This cannot be undone.", item.Title),
			func(m Model, _ string) (Model, tea.Cmd) {
				lib := m.library
				return m, m.runAction("Deleted "+item.Title, func(ctx context.Context) error {
					if images {
						return lib.DeleteImage(ctx, item.ID)
					}
					return lib.DeleteVideo(ctx, item.ID)
				})
			})
	}
	return m, nil
}

// runAction runs fn off the UI goroutine with ActionTimeout and reports
// the outcome as an actionMsg.
func (m Model) runAction(success string, fn func(ctx context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, ActionTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			return actionMsg{level: tasks.LevelError, message: describeActionError(err)}
		}
		return actionMsg{level: tasks.LevelSuccess, message: success, refresh: true}
	}
}

func describeActionError(err error) string {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return "Signed out: run mediadeck login"
	case errors.Is(err, backend.ErrForbidden):
		return "Not allowed: admin rights required"
	case errors.Is(err, backend.ErrQuotaExceeded):
		return "Storage quota exceeded"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	default:
		return capitalize(err.Error())
	}
}

// renderLibrary renders the current page of videos or images.
func (m Model) renderLibrary() string {
	styles := m.theme.Styles()
	height := m.contentHeight()
	items, total, pages := m.libraryItems()

	kind := "Videos"
	if m.lib.tab == tabImages {
		kind = "Images"
	}
	title := fmt.Sprintf("%s  page %d/%d  (%d total)", kind, m.lib.page, max(pages, 1), total)
	if m.lib.search != "" {
		title += fmt.Sprintf("  search %q", truncate(m.lib.search, 20))
	}

	var body string
	switch {
	case m.snapshot.Unauthorized:
		body = styles.WarningText.Render("Not signed in. Run: mediadeck login")
	case len(items) == 0:
		body = styles.MutedText.Render("Nothing here yet.")
	default:
		body = m.libraryTable(items, m.width-2, height-2)
	}
	return m.renderTitledBox(title, body, m.width, height, true)
}

func (m Model) libraryTable(items []libraryItem, width, height int) string {
	styles := m.theme.Styles()
	now := m.now()
	const modelW, statusW, sizeW, ageW = 14, 11, 10, 16
	titleW := max(width-modelW-statusW-sizeW-ageW-4, 10)

	lines := []string{styles.FaintText.Render(
		padRight("TITLE", titleW) + " " + padRight("MODEL", modelW) + " " +
			padRight("STATUS", statusW) + " " + padRight("SIZE", sizeW) + " " + "CREATED")}

	start := 0
	if visible := height - 1; visible > 0 && m.lib.row >= visible {
		start = m.lib.row - visible + 1
	}
	for i := start; i < len(items) && len(lines) < height; i++ {
		it := items[i]
		title := it.Title
		if strings.TrimSpace(title) == "" {
			title = it.ID
		}
		row := padRight(truncate(oneLine(title), titleW), titleW) + " " +
			padRight(truncate(it.Model, modelW), modelW) + " " +
			padRight(it.Status, statusW) + " " +
			padRight(formatBytes(it.SizeBytes), sizeW) + " " +
			truncate(formatAge(it.CreatedAt.Time, now), ageW)
		if i == m.lib.row {
			row = styles.Selected.Width(width).Render(row)
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}
