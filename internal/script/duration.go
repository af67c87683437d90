package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Resolution is the finest offset step a script can express.
const Resolution = 100 * time.Millisecond

// ParseDuration parses an unsigned offset written as MM:SS[.s] or HH:MM:SS[.s].
//
// Fractions longer than one digit are accepted and truncated to Resolution.
// The sign of an offset lives in its own script field, so a leading '-' is
// rejected here.
func ParseDuration(text string) (time.Duration, error) {
	s := strings.TrimSpace(text)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, &MalformedDurationError{Text: text, Reason: "expected MM:SS.s or HH:MM:SS.s"}
	}

	secPart := parts[len(parts)-1]
	tenths := 0
	if whole, frac, ok := strings.Cut(secPart, "."); ok {
		if frac == "" || len(frac) > 9 || !allDigits(frac) {
			return 0, &MalformedDurationError{Text: text, Reason: "invalid fraction"}
		}
		tenths = int(frac[0] - '0')
		secPart = whole
	}

	nums := make([]int, 0, 3)
	for _, p := range append(parts[:len(parts)-1:len(parts)-1], secPart) {
		if p == "" || !allDigits(p) {
			return 0, &MalformedDurationError{Text: text, Reason: fmt.Sprintf("non-numeric field %q", p)}
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, &MalformedDurationError{Text: text, Reason: err.Error()}
		}
		nums = append(nums, n)
	}

	var h, m, sec int
	if len(nums) == 3 {
		h, m, sec = nums[0], nums[1], nums[2]
	} else {
		m, sec = nums[0], nums[1]
	}
	if m > 59 {
		return 0, &MalformedDurationError{Text: text, Reason: "minutes out of range"}
	}
	if sec > 59 {
		return 0, &MalformedDurationError{Text: text, Reason: "seconds out of range"}
	}

	d := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(tenths)*Resolution
	return d, nil
}

// FormatDuration renders the magnitude of d as H:MM:SS.s, or MM:SS.s when the
// hour field is zero. The value is truncated (not rounded) to Resolution.
// The sign is never rendered; use SignOf alongside.
func FormatDuration(d time.Duration) string {
	h, m, s, t := splitTenths(d)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%d", h, m, s, t)
	}
	return fmt.Sprintf("%02d:%02d.%d", m, s, t)
}

// formatClock renders the magnitude of d as HH:MM:SS.s, the layout used by
// canonical script lines.
func formatClock(d time.Duration) string {
	h, m, s, t := splitTenths(d)
	return fmt.Sprintf("%02d:%02d:%02d.%d", h, m, s, t)
}

func splitTenths(d time.Duration) (h, m, s, t int64) {
	if d < 0 {
		d = -d
	}
	n := int64(d / Resolution)
	t = n % 10
	s = (n / 10) % 60
	m = (n / 600) % 60
	h = n / 36000
	return h, m, s, t
}

// SignOf derives the script sign of a combined offset.
func SignOf(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	return "+"
}

// Truncate drops everything below Resolution, rounding toward zero.
func Truncate(d time.Duration) time.Duration {
	return d.Truncate(Resolution)
}

// applySign turns an unsigned magnitude and a "+"/"-" field into a signed offset.
func applySign(sign string, mag time.Duration) (time.Duration, bool) {
	switch strings.TrimSpace(sign) {
	case "+":
		return mag, true
	case "-":
		return -mag, true
	default:
		return 0, false
	}
}

// parseSeconds reads a loop parameter given in (possibly fractional, possibly
// signed) seconds.
func parseSeconds(raw string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid seconds %q", raw)
	}
	return Truncate(time.Duration(math.Round(f * float64(time.Second)))), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
