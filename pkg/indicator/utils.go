package indicator

import (
	"fmt"
	"time"
)

// formatDuration formats a duration for use in calculator names.
// Durations that are not a whole number of seconds, minutes, hours or days
// fall back to time.Duration's own form so distinct windows never share a name.
func formatDuration(d time.Duration) string {
	day := 24 * time.Hour
	switch {
	case d <= 0:
		return d.String()
	case d%day == 0:
		return fmt.Sprintf("%dd", d/day)
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d%time.Second == 0 && d < time.Minute:
		return fmt.Sprintf("%ds", d/time.Second)
	default:
		return d.String()
	}
}
