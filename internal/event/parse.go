package event

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/joseph-ayodele/calendar-converter/constants"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/llm"
)

// reply mirrors llm.EventJSONSchema. Pointers distinguish null from "".
type reply struct {
	EventType     *string `json:"eventType"`
	Summary       *string `json:"summary"`
	StartDateTime *string `json:"startDateTime"`
	EndDateTime   *string `json:"endDateTime"`
	Location      *string `json:"location"`
	Description   *string `json:"description"`
}

// ParseReply turns a raw backend reply into a validated EventRecord.
//
// Errors are EXTRACTION_ERROR when no usable payload is found or required
// fields are absent, and VALIDATION_ERROR when a present field is invalid.
func ParseReply(raw string) (EventRecord, error) {
	candidate := locatePayload(raw)

	doc, err := decodeStrict(candidate)
	if err != nil {
		return EventRecord{}, common.NewExtractionError("reply is not a JSON object", raw, nil, err)
	}
	if err := llm.ValidateEventReply(doc); err != nil {
		return EventRecord{}, common.NewExtractionError("reply does not match the event shape", raw, nil, err)
	}

	var r reply
	if err := json.Unmarshal([]byte(candidate), &r); err != nil {
		return EventRecord{}, common.NewExtractionError("reply does not match the event shape", raw, nil, err)
	}

	var missing []string
	if r.Summary == nil {
		missing = append(missing, llm.FieldSummary)
	}
	if r.StartDateTime == nil {
		missing = append(missing, llm.FieldStartDateTime)
	}
	if len(missing) > 0 {
		return EventRecord{}, common.NewExtractionError("reply is missing required fields", raw, missing, nil)
	}

	rec := EventRecord{
		Type:        constants.Other,
		Summary:     strings.TrimSpace(*r.Summary),
		Location:    strings.TrimSpace(deref(r.Location)),
		Description: strings.TrimSpace(deref(r.Description)),
	}
	if rec.Summary == "" {
		return EventRecord{}, common.NewValidationError(llm.FieldSummary, *r.Summary, "summary is blank")
	}
	if r.EventType != nil {
		rec.Type, _ = constants.CanonicalizeEventType(*r.EventType)
	}

	rec.Start, err = ParseDateTime(llm.FieldStartDateTime, *r.StartDateTime)
	if err != nil {
		return EventRecord{}, err
	}
	if r.EndDateTime != nil && strings.TrimSpace(*r.EndDateTime) != "" {
		end, err := ParseDateTime(llm.FieldEndDateTime, *r.EndDateTime)
		if err != nil {
			return EventRecord{}, err
		}
		rec.End = &end
	}

	if err := rec.Validate(); err != nil {
		return EventRecord{}, err
	}
	return rec, nil
}

// Validate enforces that a present End has the same form as Start (both
// floating or both fixed) and is not before it.
func (r EventRecord) Validate() error {
	if r.End == nil {
		return nil
	}
	if r.End.Floating != r.Start.Floating {
		return common.NewValidationError(llm.FieldEndDateTime, r.End.String(), "start and end must both carry an offset or both omit it")
	}
	if r.End.Before(r.Start.Time) {
		return common.NewValidationError(llm.FieldEndDateTime, r.End.String(), "end is before start "+r.Start.String())
	}
	return nil
}

func decodeStrict(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("payload is null")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after payload")
	}
	return doc, nil
}

// locatePayload returns the first balanced {...} region of s, skipping braces
// inside string literals. Without one the whole reply is the candidate.
func locatePayload(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return strings.TrimSpace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
