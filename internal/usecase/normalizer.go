package usecase

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"

	"speedliner/pkg/util"
)

// Normalize strips every non-digit from raw and parses the rest as a base-10
// integer. It reports false when no digit is left. Digit runs too long for an
// int64 saturate at math.MaxInt64 so range checks still reject them.
func Normalize(raw string) (int64, bool) {
	digits := stripNonDigits(raw)
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return math.MaxInt64, true
		}
		return 0, false
	}
	return v, true
}

// FormatDigits re-renders a raw field with '.' thousands separators, the way
// the input is echoed back while the user types. Fields without digits become empty.
func FormatDigits(raw string) string {
	v, ok := Normalize(raw)
	if !ok {
		return ""
	}
	return util.FormatISK(v)
}

func stripNonDigits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r < unicode.MaxASCII && r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
