package event

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/joseph-ayodele/calendar-converter/internal/common"
)

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

var floatingLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// bareTime matches clock times with no date such as "14:00", "2 pm" or the
// military "1430".
var bareTime = regexp.MustCompile(`(?i)^(\d{1,2}(:\d{2}){0,2}\s*([ap]\.?m\.?)?|\d{3,4}\s*(h|hrs|hours)?)$`)

// zoneOffsets resolves zone abbreviations that the parser leaves at offset 0.
// Ambiguous ones (IST, BST outside the UK) are left out and rejected.
var zoneOffsets = map[string]int{
	"UTC": 0, "GMT": 0, "Z": 0, "UT": 0,
	"EST": -5 * 60, "EDT": -4 * 60,
	"CST": -6 * 60, "CDT": -5 * 60,
	"MST": -7 * 60, "MDT": -6 * 60,
	"PST": -8 * 60, "PDT": -7 * 60,
	"AKST": -9 * 60, "AKDT": -8 * 60,
	"HST": -10 * 60,
	"WET": 0, "WEST": 60,
	"CET": 60, "CEST": 2 * 60,
	"EET": 2 * 60, "EEST": 3 * 60,
	"MSK": 3 * 60,
	"SGT": 8 * 60, "HKT": 8 * 60, "AWST": 8 * 60,
	"JST": 9 * 60, "KST": 9 * 60,
	"ACST": 9*60 + 30, "ACDT": 10*60 + 30,
	"AEST": 10 * 60, "AEDT": 11 * 60,
	"NZST": 12 * 60, "NZDT": 13 * 60,
}

// probeZone tells dateparse results with an explicit offset apart from naive
// ones: only the former keep the same instant when parsed in two zones.
var probeZone = time.FixedZone("probe", 7*60*60)

// ParseDateTime normalizes one datetime field value. ISO-8601 forms are tried
// first, then general date text. Values without a calendar date are rejected.
func ParseDateTime(field, value string) (DateTime, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return DateTime{}, common.NewValidationError(field, value, "datetime is empty")
	}

	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Fixed(t), nil
		}
	}
	for _, layout := range floatingLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Floating(t), nil
		}
	}

	if bareTime.MatchString(s) {
		return DateTime{}, common.NewValidationError(field, value, "value has no calendar date")
	}
	utc, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return DateTime{}, common.NewValidationError(field, value, "not a recognizable date and time")
	}
	if utc.Year() <= 1 {
		return DateTime{}, common.NewValidationError(field, value, "value has no calendar date")
	}
	if t, named, ok := resolveZone(utc); named {
		if !ok {
			return DateTime{}, common.NewValidationError(field, value, "unknown time zone abbreviation")
		}
		return Fixed(t), nil
	}
	shifted, err := dateparse.ParseIn(s, probeZone)
	if err == nil && shifted.Equal(utc) {
		return Fixed(utc), nil
	}
	return Floating(utc), nil
}

// resolveZone handles a time whose location is a bare zone abbreviation with
// offset 0, which is how unknown abbreviations come back from parsing. named
// reports whether t carries such an abbreviation; ok whether it resolved.
func resolveZone(t time.Time) (resolved time.Time, named, ok bool) {
	name, offset := t.Zone()
	if offset != 0 || name == "" || name == "UTC" {
		return t, false, false
	}
	mins, known := zoneOffsets[strings.ToUpper(name)]
	if !known {
		return t, true, false
	}
	y, mo, d := t.Date()
	h, mi, sec := t.Clock()
	return time.Date(y, mo, d, h, mi, sec, t.Nanosecond(), time.FixedZone(strings.ToUpper(name), mins*60)), true, true
}
