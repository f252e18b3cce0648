package util

import (
	"fmt"
	"math"
)

// FormatCountdown renders remaining milliseconds as mm:ss. Seconds round up so
// the display never shows 00:00 while time is left.
func FormatCountdown(ms int64) string {
	if ms <= 0 {
		return "00:00"
	}
	totalSec := float64(ms) / 1000
	m := int64(math.Floor(totalSec / 60))
	s := int64(math.Ceil(math.Mod(totalSec, 60)))
	if s == 60 {
		m++
		s = 0
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
