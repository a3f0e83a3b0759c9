package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which optional columns hide.
	LayoutCompactWidth = 100
)

// LogBufferLimit is the maximum number of log lines kept in memory.
const LogBufferLimit = 5000

// Timing constants.
const (
	// DefaultUIInterval is the default UI refresh interval.
	DefaultUIInterval = time.Second

	// ToastDuration is how long a notification stays on the status line.
	ToastDuration = 6 * time.Second
)

func clamp(idx, n int) int {
	if n <= 0 || idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}
