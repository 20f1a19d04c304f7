package event

import (
	"encoding/json"
	"time"

	"github.com/joseph-ayodele/calendar-converter/constants"
)

const (
	floatingLayout = "2006-01-02T15:04:05"

	// DefaultDuration is applied when a record has no end.
	DefaultDuration = time.Hour
)

// DateTime is a point in time. Floating values carry a wall-clock time with
// no offset; the time.Time holds that wall clock in UTC.
type DateTime struct {
	time.Time
	Floating bool
}

// Fixed returns an offset-bearing DateTime for t.
func Fixed(t time.Time) DateTime {
	return DateTime{Time: t}
}

// Floating returns a floating DateTime with t's wall clock.
func Floating(t time.Time) DateTime {
	return DateTime{
		Time:     time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC),
		Floating: true,
	}
}

func (d DateTime) Add(dur time.Duration) DateTime {
	return DateTime{Time: d.Time.Add(dur), Floating: d.Floating}
}

func (d DateTime) String() string {
	if d.Floating {
		return d.Time.Format(floatingLayout)
	}
	return d.Time.Format(time.RFC3339)
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// EventRecord is one validated calendar event.
type EventRecord struct {
	Type        constants.EventType `json:"eventType"`
	Summary     string              `json:"summary"`
	Start       DateTime            `json:"startDateTime"`
	End         *DateTime           `json:"endDateTime,omitempty"`
	Location    string              `json:"location,omitempty"`
	Description string              `json:"description,omitempty"`
}

// EffectiveEnd is End, or Start plus DefaultDuration when End is absent.
func (r EventRecord) EffectiveEnd() DateTime {
	if r.End != nil {
		return *r.End
	}
	return r.Start.Add(DefaultDuration)
}
