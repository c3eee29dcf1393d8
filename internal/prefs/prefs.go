// Package prefs persists terminal UI preferences for mediadeck.
// Preferences are stored in ~/.config/mediadeck/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Prefs holds UI state that survives restarts.
type Prefs struct {
	Theme      string          `toml:"theme"`
	LibraryTab string          `toml:"library_tab"`
	PageSize   int             `toml:"page_size"`
	Collapsed  map[string]bool `toml:"collapsed"`
}

const (
	defaultPrefsPath  = "~/.config/mediadeck/prefs.toml"
	defaultTheme      = "Nightfox"
	defaultLibraryTab = "videos"
	defaultPageSize   = 20
)

// Defaults returns the preferences used when nothing is saved.
func Defaults() Prefs {
	return Prefs{
		Theme:      defaultTheme,
		LibraryTab: defaultLibraryTab,
		PageSize:   defaultPageSize,
		Collapsed:  map[string]bool{},
	}
}

// IsCollapsed reports whether the named UI section is collapsed.
func (p Prefs) IsCollapsed(section string) bool {
	return p.Collapsed[section]
}

// SetCollapsed records the collapse state of a UI section.
func (p *Prefs) SetCollapsed(section string, collapsed bool) {
	if p.Collapsed == nil {
		p.Collapsed = map[string]bool{}
	}
	if collapsed {
		p.Collapsed[section] = true
		return
	}
	delete(p.Collapsed, section)
}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from the given path, falling back to defaults if
// the file is missing or unreadable.
func Load(path string) Prefs {
	resolved, err := resolvePath(path)
	if err != nil {
		return Defaults()
	}

	prefs := Defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs
		}
		return prefs // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return prefs // Graceful degradation
	}

	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		return Defaults() // Graceful degradation
	}

	if strings.TrimSpace(prefs.Theme) == "" {
		prefs.Theme = defaultTheme
	}
	switch prefs.LibraryTab {
	case "videos", "images":
	default:
		prefs.LibraryTab = defaultLibraryTab
	}
	if prefs.PageSize <= 0 || prefs.PageSize > 200 {
		prefs.PageSize = defaultPageSize
	}
	if prefs.Collapsed == nil {
		prefs.Collapsed = map[string]bool{}
	}

	return prefs
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
