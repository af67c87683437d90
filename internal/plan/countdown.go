package plan

import (
	"fmt"
	"time"
)

// FormatCountdown renders d as "[Nd ][HH:]MM:SS". Hours are shown once they
// are non-zero or when days are shown. Negative values get a leading '-'.
func FormatCountdown(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total / 3600) % 24
	minutes := (total / 60) % 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%s%dd %02d:%02d:%02d", sign, days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%s%02d:%02d:%02d", sign, hours, minutes, seconds)
	default:
		return fmt.Sprintf("%s%02d:%02d", sign, minutes, seconds)
	}
}
