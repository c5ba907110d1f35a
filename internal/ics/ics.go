// Package ics exports a scheduled meeting as an iCalendar file.
package ics

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/njt/schedule365/internal/dateparse"
	"github.com/njt/schedule365/internal/scheduler"
)

const productID = "-//schedule365//EN"

// WriteEvent encodes event as a single-VEVENT calendar. organizer may be
// empty.
func WriteEvent(w io.Writer, event *scheduler.ScheduledEvent, description, organizer string) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropMethod, "PUBLISH")

	vevent := ical.NewEvent()
	uid := event.ID
	if uid == "" {
		uid = uuid.NewString()
	}
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	vevent.Props.SetText(ical.PropSummary, event.Subject)

	if err := setLocalTime(vevent, ical.PropDateTimeStart, event.Start, event.StartTimeZone); err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}
	if err := setLocalTime(vevent, ical.PropDateTimeEnd, event.End, event.EndTimeZone); err != nil {
		return fmt.Errorf("invalid end: %w", err)
	}

	if event.Location != "" {
		vevent.Props.SetText(ical.PropLocation, event.Location)
	}

	var desc []string
	if description != "" {
		desc = append(desc, description)
	}
	if event.JoinURL != "" {
		desc = append(desc, "Join Microsoft Teams meeting: "+event.JoinURL)
		if u, err := url.Parse(event.JoinURL); err == nil {
			vevent.Props.SetURI(ical.PropURL, u)
		}
	}
	if len(desc) > 0 {
		vevent.Props.SetText(ical.PropDescription, strings.Join(desc, "\n\n"))
	}

	if organizer != "" {
		prop := ical.NewProp(ical.PropOrganizer)
		prop.Value = "mailto:" + organizer
		vevent.Props.Set(prop)
	}
	for _, email := range event.Attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = "mailto:" + email
		prop.Params.Set(ical.ParamRole, "REQ-PARTICIPANT")
		prop.Params.Set(ical.ParamParticipationStatus, "NEEDS-ACTION")
		vevent.Props.Add(prop)
	}

	cal.Children = append(cal.Children, vevent.Component)

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

// setLocalTime writes the instant in UTC so the file needs no VTIMEZONE.
// A zone Go cannot resolve leaves a floating local time.
func setLocalTime(comp *ical.Event, name, value, zone string) error {
	t, err := dateparse.ParseLocal(value)
	if err != nil {
		return err
	}

	prop := ical.NewProp(name)
	if zone == "" {
		prop.Value = t.Format("20060102T150405Z")
	} else if loc, err := dateparse.LoadLocation(zone); err == nil {
		local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		prop.Value = local.UTC().Format("20060102T150405Z")
	} else {
		prop.Value = t.Format("20060102T150405")
	}
	comp.Props.Set(prop)
	return nil
}
