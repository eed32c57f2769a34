package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func GenerateUUID() string {
	return uuid.New().String()
}

// ElapsedSeconds is whole seconds between two instants, never negative.
func ElapsedSeconds(from, to time.Time) int {
	ms := to.Sub(from).Milliseconds()
	if ms < 0 {
		return 0
	}
	return int(ms / 1000)
}

// MinutesToSeconds rounds a fractional minute setting to whole seconds.
func MinutesToSeconds(minutes float64) int {
	return int(minutes*60 + 0.5)
}

// FormatDuration renders seconds the way the history list shows them: "45s" or "5m 3s".
func FormatDuration(seconds int) string {
	m := seconds / 60
	s := seconds % 60
	if m == 0 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// FormatClock renders a countdown as M:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
