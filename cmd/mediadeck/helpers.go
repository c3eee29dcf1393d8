package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/five82/mediadeck/internal/backend"
)

// wrapBackendError adds a next step to session and permission errors.
// loginURL is the web login page reported by the client, if any.
func wrapBackendError(err error, loginURL string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.ErrUnauthorized) && loginURL != "":
		return fmt.Errorf("%w: sign in with `mediadeck login` or at %s", err, loginURL)
	case errors.Is(err, backend.ErrUnauthorized):
		return fmt.Errorf("%w: sign in with `mediadeck login`", err)
	case errors.Is(err, backend.ErrForbidden):
		return fmt.Errorf("%w: this command needs an admin account", err)
	default:
		return err
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
