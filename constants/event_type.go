package constants

import (
	"strings"
)

type EventType string

const (
	Flight     EventType = "flight"
	Hotel      EventType = "hotel"
	CarRental  EventType = "car_rental"
	Restaurant EventType = "restaurant"
	Meeting    EventType = "meeting"
	Other      EventType = "other"
)

var allEventTypes = []EventType{
	Flight,
	Hotel,
	CarRental,
	Restaurant,
	Meeting,
	Other,
}

func EventTypesAsStrings() []string {
	result := make([]string, len(allEventTypes))
	for i, t := range allEventTypes {
		result[i] = string(t)
	}
	return result
}

// CanonicalizeEventType maps a backend-supplied type onto the known set.
// Unknown or empty input yields Other and false.
func CanonicalizeEventType(input string) (EventType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Other, false
	}
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	synonyms := map[string]EventType{
		"airline":       Flight,
		"plane":         Flight,
		"air_travel":    Flight,
		"lodging":       Hotel,
		"accommodation": Hotel,
		"car":           CarRental,
		"rental_car":    CarRental,
		"carrental":     CarRental,
		"dining":        Restaurant,
		"dinner":        Restaurant,
		"reservation":   Restaurant,
		"appointment":   Meeting,
		"call":          Meeting,
	}
	if t, ok := synonyms[normalized]; ok {
		return t, true
	}

	for _, t := range allEventTypes {
		if normalized == string(t) {
			return t, true
		}
	}
	return Other, false
}
