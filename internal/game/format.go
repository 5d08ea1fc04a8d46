package game

import (
	"fmt"
	"strings"
	"time"
)

// FormatFactor renders a multiplier in hundredths, e.g. 250 -> "2.50".
func FormatFactor(f int64) string {
	return fmt.Sprintf("%.2f", float64(f)/100)
}

// FormatTimeDiff renders a duration with at most two units, e.g. "1d 2h" or
// "3m 4s". Durations under a second render as "".
func FormatTimeDiff(d time.Duration) string {
	diff := int64(d / time.Second)

	s := diff % 60
	diff /= 60
	m := diff % 60
	diff /= 60
	h := diff % 24
	days := diff / 24

	var words []string
	if days > 0 {
		words = append(words, fmt.Sprintf("%dd", days))
	}
	if h > 0 {
		words = append(words, fmt.Sprintf("%dh", h))
	}
	if len(words) >= 2 {
		return strings.Join(words, " ")
	}
	if m > 0 {
		words = append(words, fmt.Sprintf("%dm", m))
	}
	if len(words) >= 2 {
		return strings.Join(words, " ")
	}
	if s > 0 {
		words = append(words, fmt.Sprintf("%ds", s))
	}
	return strings.Join(words, " ")
}
