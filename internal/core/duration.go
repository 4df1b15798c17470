package core

import (
	"fmt"
	"strings"
	"unicode"
)

// LiveDuration marks live or unknown-length content.
const LiveDuration = "LIVE"

// FormatDuration converts an upstream ISO-8601 duration code (PT1H2M3S)
// into H:MM:SS, or M:SS under an hour. Empty or dateless codes (live
// streams report P0D) map to LiveDuration.
func FormatDuration(iso string) string {
	code := strings.TrimSpace(iso)
	if code == "" || code == "P0D" {
		return LiveDuration
	}

	h, m, s, ok := parseISODuration(code)
	if !ok {
		return LiveDuration
	}

	// Normalize overflow like PT90M.
	m += s / 60
	s %= 60
	h += m / 60
	m %= 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func parseISODuration(code string) (h, m, s int, ok bool) {
	rest, found := strings.CutPrefix(code, "PT")
	if !found {
		// Durations with a date part (P1DT...) never describe a track.
		return 0, 0, 0, false
	}
	if rest == "" {
		return 0, 0, 0, false
	}

	num := 0
	haveNum := false
	for _, r := range rest {
		switch {
		case unicode.IsDigit(r):
			num = num*10 + int(r-'0')
			haveNum = true
		case r == 'H' && haveNum:
			h, num, haveNum = num, 0, false
		case r == 'M' && haveNum:
			m, num, haveNum = num, 0, false
		case r == 'S' && haveNum:
			s, num, haveNum = num, 0, false
		default:
			return 0, 0, 0, false
		}
	}
	if haveNum {
		// Trailing digits without a unit.
		return 0, 0, 0, false
	}
	return h, m, s, true
}
