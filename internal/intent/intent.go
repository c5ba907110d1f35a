// Package intent turns a free-text meeting request into a MeetingIntent.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/njt/schedule365/internal/dateparse"
)

// DefaultDuration is used when a request names a start but no end.
const DefaultDuration = 30 * time.Minute

// ErrEmptyRequest is returned for blank input.
var ErrEmptyRequest = errors.New("meeting request is empty")

// MeetingIntent is the structured form of a scheduling request. Times are
// local wall-clock values paired with a Graph-compatible time zone name.
type MeetingIntent struct {
	Subject       string   `json:"subject" description:"Meeting subject/title"`
	StartDateTime string   `json:"start_date_time" description:"Start time in ISO 8601 format (YYYY-MM-DDThh:mm:ss) without offset"`
	StartTimeZone string   `json:"start_time_zone" description:"Microsoft Graph compatible Windows time zone"`
	EndDateTime   string   `json:"end_date_time" description:"End time in ISO 8601 format (YYYY-MM-DDThh:mm:ss) without offset"`
	EndTimeZone   string   `json:"end_time_zone" description:"Microsoft Graph compatible Windows time zone"`
	Attendees     []string `json:"attendees" description:"List of attendee names"`
	Description   string   `json:"description" description:"Meeting description/body, empty when not given"`
	Location      string   `json:"location" description:"Meeting location, empty when not given"`
}

// Parser converts free text into a MeetingIntent.
type Parser interface {
	Parse(ctx context.Context, text string) (*MeetingIntent, error)
}

// Validate checks the fields Graph needs to create an event.
func (m *MeetingIntent) Validate() error {
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("meeting subject is required")
	}
	if m.StartTimeZone == "" || m.EndTimeZone == "" {
		return fmt.Errorf("start and end time zones are required")
	}

	start, err := dateparse.ParseLocal(m.StartDateTime)
	if err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}
	end, err := dateparse.ParseLocal(m.EndDateTime)
	if err != nil {
		return fmt.Errorf("invalid end: %w", err)
	}

	// Only comparable when both ends share a zone
	if m.StartTimeZone == m.EndTimeZone && !end.After(start) {
		return fmt.Errorf("meeting must end after it starts (%s >= %s)", m.StartDateTime, m.EndDateTime)
	}
	return nil
}

// normalize trims whitespace, drops blank attendee names and fills missing
// time zones with tz.
func (m *MeetingIntent) normalize(tz string) {
	m.Subject = strings.TrimSpace(m.Subject)
	m.StartDateTime = strings.TrimSpace(m.StartDateTime)
	m.EndDateTime = strings.TrimSpace(m.EndDateTime)
	m.Description = strings.TrimSpace(m.Description)
	m.Location = strings.TrimSpace(m.Location)

	if m.StartTimeZone == "" {
		m.StartTimeZone = tz
	}
	if m.EndTimeZone == "" {
		m.EndTimeZone = m.StartTimeZone
	}

	names := m.Attendees[:0]
	for _, name := range m.Attendees {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	m.Attendees = names
}

// Fields are the schedule command's flags before interpretation.
type Fields struct {
	Subject     string
	Start       string
	End         string
	Duration    time.Duration
	TimeZone    string
	Attendees   []string
	Location    string
	Description string
}

// FromFields builds an intent without a language model. Start accepts
// natural language relative to now as seen in the meeting's time zone; End
// is resolved relative to the start, so "3pm" lands on the meeting's day.
// Without End, Duration (default 30m) is added to the start. Times with a
// UTC offset are converted to the meeting's zone.
func FromFields(f Fields, now time.Time) (*MeetingIntent, error) {
	if f.Start == "" {
		return nil, fmt.Errorf("start is required")
	}

	// Zones Go cannot load are still passed to Graph; ParseIn then refuses
	// offset input rather than mislabelling it.
	loc, _ := dateparse.LoadLocation(f.TimeZone)

	start, err := dateparse.ParseIn(f.Start, now, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}

	var end time.Time
	switch {
	case f.End != "":
		end, err = dateparse.ParseIn(f.End, start, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid end: %w", err)
		}
	case f.Duration > 0:
		end = start.Add(f.Duration)
	default:
		end = start.Add(DefaultDuration)
	}

	m := &MeetingIntent{
		Subject:       f.Subject,
		StartDateTime: dateparse.FormatLocal(start),
		StartTimeZone: f.TimeZone,
		EndDateTime:   dateparse.FormatLocal(end),
		EndTimeZone:   f.TimeZone,
		Attendees:     append([]string(nil), f.Attendees...),
		Description:   f.Description,
		Location:      f.Location,
	}
	m.normalize(f.TimeZone)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
