package llm

import (
	"github.com/joseph-ayodele/calendar-converter/constants"
)

// Reply field names shared by the prompt, the schema and the parser.
const (
	FieldEventType     = "eventType"
	FieldSummary       = "summary"
	FieldStartDateTime = "startDateTime"
	FieldEndDateTime   = "endDateTime"
	FieldLocation      = "location"
	FieldDescription   = "description"
)

// RequiredFields are hard-blocking: a reply without them cannot become an event.
var RequiredFields = []string{FieldSummary, FieldStartDateTime}

// EventJSONSchema returns the reply shape as a JSON-Schema map. Every field
// is nullable; presence of the required ones is checked separately so the
// error can name exactly what is missing. eventType is not an enum because
// unknown types fall back to "other" instead of failing.
func EventJSONSchema() map[string]any {
	props := map[string]any{
		FieldEventType:     nullableString(),
		FieldSummary:       nullableString(),
		FieldStartDateTime: nullableString(),
		FieldEndDateTime:   nullableString(),
		FieldLocation:      nullableString(),
		FieldDescription:   nullableString(),
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"examples": []any{map[string]any{
			FieldEventType:     string(constants.Meeting),
			FieldSummary:       "Team meeting",
			FieldStartDateTime: "2025-01-15T14:00:00",
			FieldEndDateTime:   nil,
			FieldLocation:      "Conference Room A",
			FieldDescription:   "Discuss Q1 planning.",
		}},
	}
}

func nullableString() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}
