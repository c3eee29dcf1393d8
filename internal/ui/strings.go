package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// truncate shortens a string to the given limit, adding ellipsis if needed.
func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// truncateMiddle keeps both ends of a long value, e.g. a path or URL.
func truncateMiddle(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	keep := limit - 1
	prefix := keep / 2
	suffix := keep - prefix
	return string(runes[:prefix]) + "…" + string(runes[len(runes)-suffix:])
}

// padRight pads a string with spaces to the given width.
func padRight(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(r))
}

// oneLine collapses whitespace so multi-line prompts fit a table cell.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// formatElapsed renders a duration as m:ss or h:mm:ss.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	h, rem := total/3600, total%3600
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, rem/60, rem%60)
	}
	return fmt.Sprintf("%d:%02d", rem/60, rem%60)
}

// progressBar draws a fixed-width bar for a 0..100 percentage.
func progressBar(percent, width int) string {
	if width <= 0 {
		return ""
	}
	percent = min(max(percent, 0), 100)
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// formatBytes renders a byte count, or "-" when unknown.
func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

// formatQuota renders "used / quota (pct%)".
func formatQuota(used, quota int64) string {
	if quota <= 0 {
		return humanize.IBytes(uint64(max(used, 0))) + " used"
	}
	pct := float64(used) / float64(quota) * 100
	return fmt.Sprintf("%s / %s (%.0f%%)", humanize.IBytes(uint64(max(used, 0))), humanize.IBytes(uint64(quota)), pct)
}

// formatAge renders a timestamp relative to now, or "-" when unset.
func formatAge(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func ternary(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
