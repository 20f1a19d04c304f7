package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/event"
	"github.com/joseph-ayodele/calendar-converter/internal/llm"
)

const (
	ProductID = "-//Calendar Event Converter//EN"
	UIDDomain = "calendar-converter"

	utcLayout      = "20060102T150405Z"
	floatingLayout = "20060102T150405"
	filenameLayout = "20060102_150405"
)

// CalendarArtifact is a serialized one-event calendar.
type CalendarArtifact struct {
	Content  string
	UID      string
	Filename string
	Event    event.EventRecord
}

// Serializer renders EventRecords as iCalendar documents.
type Serializer struct {
	now    func() time.Time
	newUID func() string
}

type Option func(*Serializer)

// WithClock overrides the generation time source used for DTSTAMP and the filename.
func WithClock(now func() time.Time) Option {
	return func(s *Serializer) { s.now = now }
}

// WithUIDSource overrides UID generation.
func WithUIDSource(f func() string) Option {
	return func(s *Serializer) { s.newUID = f }
}

func NewSerializer(opts ...Option) *Serializer {
	s := &Serializer{
		now:    time.Now,
		newUID: func() string { return uuid.NewString() + "@" + UIDDomain },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serialize renders rec as a VCALENDAR with a single VEVENT. A missing end
// defaults to one hour after the start.
func (s *Serializer) Serialize(rec event.EventRecord) (CalendarArtifact, error) {
	if strings.TrimSpace(rec.Summary) == "" {
		return CalendarArtifact{}, common.NewValidationError(llm.FieldSummary, rec.Summary, "summary is blank")
	}
	if rec.Start.IsZero() {
		return CalendarArtifact{}, common.NewValidationError(llm.FieldStartDateTime, "", "start is missing")
	}
	if err := rec.Validate(); err != nil {
		return CalendarArtifact{}, err
	}
	end := rec.EffectiveEnd()

	generated := s.now()
	uid := s.newUID()

	cal := ical.NewCalendarFor(UIDDomain)
	cal.SetProductId(ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)

	ev := cal.AddEvent(uid)
	ev.SetDtStampTime(generated)
	ev.SetSummary(text(rec.Summary))
	ev.SetProperty(ical.ComponentPropertyDtStart, FormatDateTime(rec.Start))
	ev.SetProperty(ical.ComponentPropertyDtEnd, FormatDateTime(end))
	if strings.TrimSpace(rec.Location) != "" {
		ev.SetLocation(text(rec.Location))
	}
	if strings.TrimSpace(rec.Description) != "" {
		ev.SetDescription(text(rec.Description))
	}
	if rec.Type != "" {
		ev.AddCategory(string(rec.Type))
	}

	return CalendarArtifact{
		Content:  cal.Serialize(ical.WithNewLineWindows),
		UID:      uid,
		Filename: "event_" + generated.Format(filenameLayout) + ".ics",
		Event:    rec,
	}, nil
}

// FormatDateTime renders d in the compact iCalendar form: UTC with a Z suffix
// for offset-bearing values, bare wall clock for floating ones.
func FormatDateTime(d event.DateTime) string {
	if d.Floating {
		return d.Time.Format(floatingLayout)
	}
	return d.Time.UTC().Format(utcLayout)
}

// text prepares a TEXT value; the library escapes it on output. Every line
// break, including a lone CR, becomes LF.
func text(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
