package pipeline

import "strings"

// progressBarSize is the number of cells in the status bar.
const progressBarSize = 10

// ProgressBar renders a ▓/░ bar for the given completion percentage.
func ProgressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := progressBarSize * percent / 100
	return strings.Repeat("▓", filled) + strings.Repeat("░", progressBarSize-filled)
}
