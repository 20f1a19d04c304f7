package llm

import (
	"encoding/json"
	"strings"

	"github.com/joseph-ayodele/calendar-converter/constants"
)

// summaryExamples shows the backend how each event type's summary reads.
var summaryExamples = []struct {
	eventType constants.EventType
	format    string
}{
	{constants.Flight, "Flight: <airline> <flight#> <origin>-<destination>  (e.g. \"Flight: United UA123 SFO-JFK\")"},
	{constants.Hotel, "Hotel: <name>  (e.g. \"Hotel: The Standard\")"},
	{constants.CarRental, "Car Rental: <company>  (e.g. \"Car Rental: Hertz\")"},
	{constants.Restaurant, "Restaurant: <name>  (e.g. \"Restaurant: Nopa\")"},
	{constants.Meeting, "<meeting title as written>  (e.g. \"Team meeting\")"},
	{constants.Other, "<short title of the event>"},
}

var systemPrompt = buildSystemPrompt()

// BuildPrompt renders the fixed instruction template around text.
// The output depends on text alone.
func BuildPrompt(text string) Prompt {
	return Prompt{
		Version: PromptVersion,
		System:  systemPrompt,
		User:    buildUserPrompt(text),
	}
}

func buildSystemPrompt() string {
	var examples []string
	for _, ex := range summaryExamples {
		examples = append(examples, "- "+string(ex.eventType)+": "+ex.format)
	}

	parts := []string{
		"You are an event information extraction assistant.",
		"Extract exactly one calendar event from the user's text.",
		"",
		"Return ONLY a single JSON object with exactly these keys:",
		"- " + FieldEventType + ": one of " + strings.Join(constants.EventTypesAsStrings(), ", "),
		"- " + FieldSummary + ": short title of the event (required)",
		"- " + FieldStartDateTime + ": when the event starts, ISO 8601 YYYY-MM-DDTHH:MM:SS (required)",
		"- " + FieldEndDateTime + ": when the event ends, ISO 8601 YYYY-MM-DDTHH:MM:SS",
		"- " + FieldLocation + ": where the event takes place",
		"- " + FieldDescription + ": other useful details (confirmation numbers, notes)",
		"",
		"Summary format per event type:",
		strings.Join(examples, "\n"),
		"",
		"Rules:",
		"- Use null for any field you cannot determine. Never invent values.",
		"- Only add a UTC offset to a datetime if the text states a timezone.",
		"- Do not wrap the JSON in markdown fences and do not add any other text.",
		"",
		"JSON Schema:",
		mustJSON(EventJSONSchema()),
	}
	return strings.Join(parts, "\n")
}

func buildUserPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extract the event information from this text:\n\n")
	b.WriteString(text)
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
