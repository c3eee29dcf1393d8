package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/tasks"
)

const adminUserLimit = 100

// sectionAdminStats is the prefs key of the collapsible stats box.
const sectionAdminStats = "admin_stats"

type adminState struct {
	row    int
	search string
}

func newAdminState() adminState {
	return adminState{}
}

func (s adminState) userQuery() backend.UserQuery {
	return backend.UserQuery{Limit: adminUserLimit, Search: s.search}
}

func (m *Model) clampAdmin() {
	m.admin.row = clampRow(m.admin.row, len(m.snapshot.Users))
}

func (m Model) selectedUser() (backend.UserSummary, bool) {
	users := m.snapshot.Users
	if m.admin.row < 0 || m.admin.row >= len(users) {
		return backend.UserSummary{}, false
	}
	return users[m.admin.row], true
}

// handleAdminKey processes keyboard input for the admin view.
func (m Model) handleAdminKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.snapshot.IsAdmin() {
		return m, nil
	}
	if moved, ok := moveRow(m.keys, msg, m.admin.row, len(m.snapshot.Users)); ok {
		m.admin.row = moved
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Refresh):
		if m.poller != nil {
			m.poller.Refresh()
		}
		return m, nil
	case key.Matches(msg, m.keys.ToggleStats):
		m.prefs.SetCollapsed(sectionAdminStats, !m.prefs.IsCollapsed(sectionAdminStats))
		m.savePrefs()
		return m, nil
	case key.Matches(msg, m.keys.Search):
		m.modal = newPromptModal("Search users", "Filter by username or email.", m.admin.search,
			func(m Model, value string) (Model, tea.Cmd) {
				m.admin.search = value
				m.admin.row = 0
				if m.poller != nil {
					m.poller.SetUserQuery(m.admin.userQuery())
				}
				return m, nil
			})
		return m, nil
	}

	user, ok := m.selectedUser()
	if !ok || m.library == nil {
		return m, nil
	}
	isAction := key.Matches(msg, m.keys.ToggleActive) || key.Matches(msg, m.keys.ToggleAdmin) || key.Matches(msg, m.keys.Delete)
	if isAction && user.ID == m.snapshot.Me.ID {
		m.pushToast(tasks.Event{Level: tasks.LevelWarning, Message: "You cannot change your own account here"})
		return m, nil
	}

	lib := m.library
	switch {
	case key.Matches(msg, m.keys.ToggleActive):
		active := !user.IsActive
		verb := ternary(active, "Activated ", "Deactivated ")
		return m, m.runAction(verb+user.Username, func(ctx context.Context) error {
			_, err := lib.UpdateUser(ctx, user.ID, backend.UserUpdate{IsActive: &active})
			return err
		})
	case key.Matches(msg, m.keys.ToggleAdmin):
		admin := !user.IsAdmin
		verb := ternary(admin, "Grant admin rights to ", "Revoke admin rights from ")
		m.modal = newConfirmModal("Change role", verb+user.Username+"?",
			func(m Model, _ string) (Model, tea.Cmd) {
				return m, m.runAction("Updated "+user.Username, func(ctx context.Context) error {
					_, err := lib.UpdateUser(ctx, user.ID, backend.UserUpdate{IsAdmin: &admin})
					return err
				})
			})
	case key.Matches(msg, m.keys.Delete):
		m.modal = newConfirmModal("Delete user",
			fmt.Sprintf("Delete %s (%s) and all of their media?", user.Username, user.Email),
			func(m Model, _ string) (Model, tea.Cmd) {
				return m, m.runAction("Deleted "+user.Username, func(ctx context.Context) error {
					return lib.DeleteUser(ctx, user.ID)
				})
			})
	}
	return m, nil
}

// renderAdmin renders system stats above the user table.
func (m Model) renderAdmin() string {
	styles := m.theme.Styles()
	height := m.contentHeight()

	if !m.snapshot.IsAdmin() {
		msg := "Admin rights required."
		if m.snapshot.Unauthorized {
			msg = "Not signed in. Run: mediadeck login"
		}
		return m.renderTitledBox("Admin", styles.WarningText.Render(msg), m.width, height, true)
	}

	statsHeight := 5
	stats := ""
	if m.prefs.IsCollapsed(sectionAdminStats) {
		statsHeight = 0
	} else {
		stats = m.renderTitledBox("System", m.adminStats(), m.width, statsHeight, false) + "\n"
	}

	title := fmt.Sprintf("Users (%d)", len(m.snapshot.Users))
	if m.admin.search != "" {
		title += fmt.Sprintf("  search %q", truncate(m.admin.search, 20))
	}
	usersHeight := max(height-statsHeight, 3)
	users := m.renderTitledBox(title, m.adminUsers(m.width-2, usersHeight-2), m.width, usersHeight, true)
	return stats + users
}

func (m Model) adminStats() string {
	styles := m.theme.Styles()
	if !m.snapshot.HasStats {
		return styles.MutedText.Render("Loading...")
	}
	s := m.snapshot.Stats
	label := styles.MutedText.Render
	line1 := label("Users ") + fmt.Sprintf("%d (%d active)", s.TotalUserCount, s.ActiveUserCount) +
		label("   Sessions ") + fmt.Sprintf("%d", s.ActiveSessionCount)
	line2 := label("Videos ") + fmt.Sprintf("%d", s.TotalVideoCount) +
		label("   Images ") + fmt.Sprintf("%d", s.TotalImageCount)
	line3 := label("Storage ") + formatQuota(s.TotalStorageUsedBytes, s.TotalStorageQuotaBytes)
	return strings.Join([]string{line1, line2, line3}, "\n")
}

func (m Model) adminUsers(width, height int) string {
	styles := m.theme.Styles()
	users := m.snapshot.Users
	if len(users) == 0 {
		return styles.MutedText.Render("No users match.")
	}

	const roleW, stateW, storageW = 7, 9, 24
	nameW := max((width-roleW-stateW-storageW-4)/2, 8)
	emailW := max(width-nameW-roleW-stateW-storageW-4, 8)

	lines := []string{styles.FaintText.Render(
		padRight("USERNAME", nameW) + " " + padRight("EMAIL", emailW) + " " +
			padRight("ROLE", roleW) + " " + padRight("STATE", stateW) + " " + "STORAGE")}

	start := 0
	if visible := height - 1; visible > 0 && m.admin.row >= visible {
		start = m.admin.row - visible + 1
	}
	for i := start; i < len(users) && len(lines) < height; i++ {
		u := users[i]
		state := ternary(u.IsActive, "active", "disabled")
		row := padRight(truncate(u.Username, nameW), nameW) + " " +
			padRight(truncate(u.Email, emailW), emailW) + " " +
			padRight(ternary(u.IsAdmin, "admin", "user"), roleW) + " " +
			padRight(state, stateW) + " " +
			formatQuota(u.StorageUsedBytes, u.StorageQuotaBytes)
		if i == m.admin.row {
			row = styles.Selected.Width(width).Render(row)
		} else if !u.IsActive {
			row = styles.FaintText.Render(row)
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}
