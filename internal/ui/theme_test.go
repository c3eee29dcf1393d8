package ui

import "testing"

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	if len(names) != 3 {
		t.Fatalf("ThemeNames() returned %d names, want 3", len(names))
	}
	for _, name := range names {
		if got := GetTheme(name).Name; got != name {
			t.Fatalf("GetTheme(%q).Name = %q", name, got)
		}
	}
}

func TestNextTheme(t *testing.T) {
	tests := []struct {
		current string
		want    string
	}{
		{"Nightfox", "Kanagawa"},
		{"Kanagawa", "Slate"},
		{"Slate", "Nightfox"},
		{"Unknown", "Nightfox"},
	}
	for _, tt := range tests {
		if got := NextTheme(tt.current); got != tt.want {
			t.Fatalf("NextTheme(%q) = %q, want %q", tt.current, got, tt.want)
		}
	}
}

func TestGetTheme_FallsBack(t *testing.T) {
	if got := GetTheme("Dracula").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(Dracula).Name = %q, want Nightfox", got)
	}
}

func TestStatusColors(t *testing.T) {
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		styles := th.Styles()
		for _, status := range []string{"queued", "pending", "processing", "completed", "failed", "cancelled", "saving", "saved"} {
			if th.StatusColors[status] == "" {
				t.Fatalf("%s: missing color for %q", name, status)
			}
			if got := styles.StatusColor(status); got != th.StatusColors[status] {
				t.Fatalf("%s: StatusColor(%q) = %q", name, status, got)
			}
		}
		if got := styles.StatusColor("bogus"); got != th.Muted {
			t.Fatalf("%s: StatusColor(bogus) = %q, want muted %q", name, got, th.Muted)
		}
	}
}
