package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which compact mode is used.
	LayoutCompactWidth = 100

	// LayoutExtraWideWidth is the threshold for extra-wide layouts.
	LayoutExtraWideWidth = 160
)

// Log display limits.
const (
	// LogTailLines is how many lines the Logs view reads from the file.
	LogTailLines = 2000
)

// Timing constants.
const (
	// LogRefreshDebounce is the minimum time between log refreshes.
	LogRefreshDebounce = 400 * time.Millisecond

	// SubmitDebounce swallows a repeated submit keypress.
	SubmitDebounce = 120 * time.Millisecond

	// ToastTTL is how long a notification stays on screen.
	ToastTTL = 4 * time.Second

	// ActionTimeout bounds library and admin calls made from the UI.
	ActionTimeout = 15 * time.Second

	// ImageTimeout bounds an image generation started from compose.
	ImageTimeout = 6 * time.Minute

	// DefaultUIInterval is the default UI refresh interval.
	DefaultUIInterval = time.Second
)

// BatchConfirmThreshold is the batch size that requires confirmation.
const BatchConfirmThreshold = 6
