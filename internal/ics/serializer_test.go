package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/calendar-converter/constants"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/event"
)

var fixedNow = time.Date(2025, 1, 14, 9, 30, 5, 0, time.UTC)

func newTestSerializer() *Serializer {
	return NewSerializer(WithClock(func() time.Time { return fixedNow }))
}

func parseOne(t *testing.T, content string) *ical.VEvent {
	t.Helper()
	cal, err := ical.ParseCalendar(strings.NewReader(content))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	return events[0]
}

func prop(ev *ical.VEvent, p ical.ComponentProperty) string {
	if v := ev.GetProperty(p); v != nil {
		return v.Value
	}
	return ""
}

func TestSerializeRoundTrip(t *testing.T) {
	end := event.Floating(time.Date(2025, 1, 15, 16, 0, 0, 0, time.UTC))
	rec := event.EventRecord{
		Type:        constants.Restaurant,
		Summary:     "Restaurant: Nopa; table for 4, window",
		Start:       event.Floating(time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)),
		End:         &end,
		Location:    `560 Divisadero St, San Francisco; CA \ USA`,
		Description: "Confirmation: R-2291\nAsk for Sam, the host.\n" + strings.Repeat("Long note. ", 20) + "End.",
	}

	art, err := newTestSerializer().Serialize(rec)
	require.NoError(t, err)
	ev := parseOne(t, art.Content)

	assert.Equal(t, rec.Summary, prop(ev, ical.ComponentPropertySummary))
	assert.Equal(t, rec.Location, prop(ev, ical.ComponentPropertyLocation))
	assert.Equal(t, rec.Description, prop(ev, ical.ComponentPropertyDescription))
	assert.Equal(t, "20250115T140000", prop(ev, ical.ComponentPropertyDtStart))
	assert.Equal(t, "20250115T160000", prop(ev, ical.ComponentPropertyDtEnd))
	assert.Equal(t, "20250114T093005Z", prop(ev, ical.ComponentPropertyDtstamp))
	assert.Equal(t, "restaurant", prop(ev, ical.ComponentPropertyCategories))
	assert.Equal(t, art.UID, ev.Id())
	assert.Equal(t, rec, art.Event)
}

func TestSerializeDocumentLayout(t *testing.T) {
	rec := event.EventRecord{
		Type:    constants.Meeting,
		Summary: "Team meeting",
		Start:   event.Fixed(time.Date(2025, 1, 15, 14, 0, 0, 0, time.FixedZone("", 2*60*60))),
	}
	art, err := newTestSerializer().Serialize(rec)
	require.NoError(t, err)

	c := art.Content
	assert.True(t, strings.HasPrefix(c, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Calendar Event Converter//EN\r\n"))
	assert.True(t, strings.HasSuffix(c, "END:VCALENDAR\r\n"))
	assert.Contains(t, c, "CALSCALE:GREGORIAN\r\n")
	assert.Contains(t, c, "METHOD:PUBLISH\r\n")
	assert.Equal(t, 1, strings.Count(c, "BEGIN:VEVENT"))
	assert.Contains(t, c, "DTSTART:20250115T120000Z\r\n")
	assert.Contains(t, c, "DTEND:20250115T130000Z\r\n")
	assert.NotContains(t, c, "LOCATION")
	assert.NotContains(t, c, "DESCRIPTION")

	for _, line := range strings.Split(strings.TrimSuffix(c, "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(line), 75, line)
	}
	assert.Equal(t, "event_20250114_093005.ics", art.Filename)
}

func TestSerializeEscapesText(t *testing.T) {
	rec := event.EventRecord{
		Summary:     "Lunch, then review; bring laptop",
		Start:       event.Floating(time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)),
		Description: "line one\r\nline two",
	}
	art, err := newTestSerializer().Serialize(rec)
	require.NoError(t, err)

	assert.Contains(t, art.Content, `SUMMARY:Lunch\, then review\; bring laptop`)
	assert.Contains(t, art.Content, `DESCRIPTION:line one\nline two`)
}

func TestSerializeKeepsFieldsVerbatim(t *testing.T) {
	rec := event.EventRecord{
		Summary:  "  Board review ",
		Start:    event.Floating(time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)),
		Location: " Room 4",
	}
	art, err := newTestSerializer().Serialize(rec)
	require.NoError(t, err)

	assert.Contains(t, art.Content, "SUMMARY:  Board review \r\n")
	assert.Contains(t, art.Content, "LOCATION: Room 4\r\n")
	assert.Equal(t, rec, art.Event)
}

func TestSerializeLoneCarriageReturn(t *testing.T) {
	rec := event.EventRecord{
		Summary:     "Check-in",
		Start:       event.Floating(time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)),
		Description: "gate B\rseat 12A",
	}
	art, err := newTestSerializer().Serialize(rec)
	require.NoError(t, err)

	assert.Contains(t, art.Content, `DESCRIPTION:gate B\nseat 12A`)
	assert.NotContains(t, strings.ReplaceAll(art.Content, "\r\n", ""), "\r")
}

func TestSerializeDefaultsEndToOneHour(t *testing.T) {
	rec := event.EventRecord{
		Summary: "Dentist",
		Start:   event.Floating(time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC)),
	}
	art, err := newTestSerializer().Serialize(rec)
	require.NoError(t, err)
	ev := parseOne(t, art.Content)

	assert.Equal(t, "20251231T233000", prop(ev, ical.ComponentPropertyDtStart))
	assert.Equal(t, "20260101T003000", prop(ev, ical.ComponentPropertyDtEnd))
	assert.Nil(t, art.Event.End)
}

func TestSerializeUniqueUIDs(t *testing.T) {
	s := NewSerializer()
	rec := event.EventRecord{Summary: "Standup", Start: event.Floating(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))}

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		art, err := s.Serialize(rec)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(art.UID, "@"+UIDDomain))
		assert.False(t, seen[art.UID], "duplicate uid %s", art.UID)
		seen[art.UID] = true
	}
}

func TestSerializeRejectsInvalidRecords(t *testing.T) {
	start := event.Floating(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	before := start.Add(-time.Hour)
	fixedEnd := event.Fixed(time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC))

	cases := map[string]event.EventRecord{
		"end before start": {Summary: "x", Start: start, End: &before},
		"mixed forms":      {Summary: "x", Start: start, End: &fixedEnd},
		"blank summary":    {Summary: "  ", Start: start},
		"no start":         {Summary: "x"},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestSerializer().Serialize(rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrValidation))
		})
	}
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2025, 7, 4, 18, 5, 9, 0, time.FixedZone("", -7*60*60))
	assert.Equal(t, "20250705T010509Z", FormatDateTime(event.Fixed(ts)))
	assert.Equal(t, "20250704T180509", FormatDateTime(event.Floating(ts)))
}
