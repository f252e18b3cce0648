package util

import (
	"github.com/dustin/go-humanize"
)

// FormatISK renders an amount with '.' as thousands separator, e.g. 1.234.567.
func FormatISK(v int64) string {
	return humanize.FormatInteger("#.###,", int(v))
}

// FormatVolume renders a cargo volume the same way, suffixed with the unit.
func FormatVolume(m3 int64) string {
	return FormatISK(m3) + " m³"
}
