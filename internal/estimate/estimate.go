// Package estimate parses and formats human-readable test case estimates.
//
// An estimate is stored as integer seconds. A workday is 8 hours: "1d" parses
// to 8*3600 seconds and 28800 seconds formats back to "1d".
package estimate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuriguchi/testy/internal/apperr"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
	// SecondsPerDay is the 8-hour workday used for estimates.
	SecondsPerDay = 8 * secondsPerHour

	// MaxSeconds caps an estimate at roughly ten thousand workdays.
	MaxSeconds = 10000 * SecondsPerDay
)

var (
	unitRe  = regexp.MustCompile(`^(\d+)\s*([a-zA-Z]+)$`)
	clockRe = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{2})$`)
)

var unitSeconds = map[string]int64{
	"s": 1,
	"m": secondsPerMinute,
	"h": secondsPerHour,
	"d": SecondsPerDay,
}

// Parse converts a human estimate string to integer seconds.
//
// Accepted forms: bare seconds ("3600"), clock ("1:02:00", "02:30"), and unit
// tokens ("1d 2h", "5h 34m 56s"). Week units are rejected.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, apperr.New(apperr.CodeEstimateInvalid, "estimate is empty")
	}
	if strings.HasPrefix(s, "-") {
		return 0, apperr.New(apperr.CodeEstimateNegative, "estimate cannot be negative")
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return checkCeiling(secs)
	}

	if m := clockRe.FindStringSubmatch(s); m != nil {
		var hours int64
		if m[1] != "" {
			hours, _ = strconv.ParseInt(m[1], 10, 64)
		}
		minutes, _ := strconv.ParseInt(m[2], 10, 64)
		seconds, _ := strconv.ParseInt(m[3], 10, 64)
		if minutes >= 60 || seconds >= 60 {
			return 0, apperr.New(apperr.CodeEstimateInvalid,
				fmt.Sprintf("invalid clock value %q", s))
		}
		return checkCeiling(hours*secondsPerHour + minutes*secondsPerMinute + seconds)
	}

	var total int64
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		m := unitRe.FindStringSubmatch(tok)
		if m == nil {
			return 0, apperr.New(apperr.CodeEstimateInvalid,
				fmt.Sprintf("cannot parse estimate token %q", tok))
		}
		unit := strings.ToLower(m[2])
		if unit == "w" {
			return 0, apperr.New(apperr.CodeEstimateWeek, "week units are not allowed")
		}
		mult, ok := unitSeconds[unit]
		if !ok {
			return 0, apperr.New(apperr.CodeEstimateInvalid,
				fmt.Sprintf("unknown estimate unit %q", unit))
		}
		if seen[unit] {
			return 0, apperr.New(apperr.CodeEstimateInvalid,
				fmt.Sprintf("duplicate estimate unit %q", unit))
		}
		seen[unit] = true
		value, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, apperr.New(apperr.CodeEstimateInvalid,
				fmt.Sprintf("cannot parse estimate token %q", tok))
		}
		total += value * mult
	}
	return checkCeiling(total)
}

func checkCeiling(secs int64) (int64, error) {
	if secs < 0 {
		return 0, apperr.New(apperr.CodeEstimateNegative, "estimate cannot be negative")
	}
	if secs > MaxSeconds {
		return 0, apperr.New(apperr.CodeEstimateTooBig,
			fmt.Sprintf("estimate exceeds the %d second ceiling", MaxSeconds))
	}
	return secs, nil
}

// Format renders seconds as "{d}d {h}h {m}m {s}s" with zero components elided.
func Format(secs int64) string {
	if secs <= 0 {
		return "0s"
	}

	days := secs / SecondsPerDay
	secs %= SecondsPerDay
	hours := secs / secondsPerHour
	secs %= secondsPerHour
	minutes := secs / secondsPerMinute
	secs %= secondsPerMinute

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}

// ToPeriod converts seconds to the requested reporting period.
// Days use the 8-hour workday.
func ToPeriod(secs int64, period string) float64 {
	switch period {
	case "minutes":
		return float64(secs) / secondsPerMinute
	case "days":
		return float64(secs) / SecondsPerDay
	default: // hours
		return float64(secs) / secondsPerHour
	}
}
