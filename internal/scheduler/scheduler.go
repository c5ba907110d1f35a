// Package scheduler turns a MeetingIntent into a Teams meeting on the
// signed-in user's calendar.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/njt/schedule365/internal/intent"
	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/metrics"
	"github.com/njt/schedule365/internal/resolver"
	"github.com/njt/schedule365/libgo365"
)

// Calendar creates events. *libgo365.Client implements it.
type Calendar interface {
	CreateEvent(ctx context.Context, event *libgo365.Event) (*libgo365.Event, error)
}

// Graph is everything the scheduler needs from the Graph client.
type Graph interface {
	Calendar
	resolver.Directory
}

// ScheduledEvent is the created meeting as reported back by Graph.
type ScheduledEvent struct {
	ID            string   `json:"id"`
	Subject       string   `json:"subject"`
	Start         string   `json:"start"`
	StartTimeZone string   `json:"start_time_zone"`
	End           string   `json:"end"`
	EndTimeZone   string   `json:"end_time_zone"`
	Location      string   `json:"location,omitempty"`
	Attendees     []string `json:"attendees"`
	WebLink       string   `json:"web_link,omitempty"`
	JoinURL       string   `json:"join_url,omitempty"`

	// Graph answers with an HTML body even for Text requests
	BodyContentType string `json:"body_content_type,omitempty"`
	Body            string `json:"body,omitempty"`
}

// BuildEvent assembles the Graph payload. Every email becomes a required
// attendee once; the meeting is always a Teams meeting that accepts new
// time proposals.
func BuildEvent(m *intent.MeetingIntent, emails []string) *libgo365.Event {
	allowProposals := true
	event := &libgo365.Event{
		Subject:               m.Subject,
		Start:                 &libgo365.DateTimeTimeZone{DateTime: m.StartDateTime, TimeZone: m.StartTimeZone},
		End:                   &libgo365.DateTimeTimeZone{DateTime: m.EndDateTime, TimeZone: m.EndTimeZone},
		Attendees:             []*libgo365.Attendee{},
		IsOnlineMeeting:       true,
		OnlineMeetingProvider: libgo365.OnlineMeetingProviderTeams,
		AllowNewTimeProposals: &allowProposals,
	}

	if m.Description != "" {
		event.Body = &libgo365.ItemBody{ContentType: "Text", Content: m.Description}
	}
	if m.Location != "" {
		event.Location = &libgo365.Location{DisplayName: m.Location}
	}

	seen := make(map[string]bool, len(emails))
	for _, email := range emails {
		key := strings.ToLower(strings.TrimSpace(email))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		event.Attendees = append(event.Attendees, &libgo365.Attendee{
			EmailAddress: &libgo365.EmailAddress{Address: strings.TrimSpace(email)},
			Type:         "required",
		})
	}

	return event
}

// Scheduler resolves attendees and creates events.
type Scheduler struct {
	graph    Graph
	resolver *resolver.Resolver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a scheduler. m and logger may be nil.
func New(graph Graph, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		graph:    graph,
		resolver: resolver.New(graph, m, logger),
		metrics:  m,
		logger:   logging.WithOperation(logger, "schedule_meeting"),
	}
}

// Resolve looks up the intent's attendees.
func (s *Scheduler) Resolve(ctx context.Context, m *intent.MeetingIntent) *resolver.Resolution {
	return s.resolver.Resolve(ctx, m.Attendees)
}

// Schedule resolves attendees, then creates the meeting. Names that cannot
// be resolved are left out of the invitation and reported in the returned
// Resolution. There is no idempotency key: calling it twice creates two
// events.
func (s *Scheduler) Schedule(ctx context.Context, m *intent.MeetingIntent) (*ScheduledEvent, *resolver.Resolution, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid meeting: %w", err)
	}

	res := s.Resolve(ctx, m)
	if err := ctx.Err(); err != nil {
		return nil, res, err
	}

	event, err := s.Create(ctx, m, res)
	if err != nil {
		return nil, res, err
	}
	return event, res, nil
}

// Create submits the meeting with the already-resolved attendees.
func (s *Scheduler) Create(ctx context.Context, m *intent.MeetingIntent, res *resolver.Resolution) (*ScheduledEvent, error) {
	var emails []string
	if res != nil {
		emails = res.Emails()
	}

	created, err := s.graph.CreateEvent(ctx, BuildEvent(m, emails))
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	s.metrics.EventCreated()

	event := fromGraph(created, m)
	s.logger.Info("meeting scheduled",
		"event_id", event.ID,
		"start", event.Start,
		"attendee_count", len(event.Attendees),
	)
	return event, nil
}

// fromGraph extracts the result, falling back to the request for fields
// Graph left out of its response.
func fromGraph(e *libgo365.Event, m *intent.MeetingIntent) *ScheduledEvent {
	out := &ScheduledEvent{
		ID:            e.ID,
		Subject:       e.Subject,
		Start:         m.StartDateTime,
		StartTimeZone: m.StartTimeZone,
		End:           m.EndDateTime,
		EndTimeZone:   m.EndTimeZone,
		Location:      m.Location,
		Attendees:     []string{},
		WebLink:       e.WebLink,
	}
	if out.Subject == "" {
		out.Subject = m.Subject
	}
	if e.Start != nil && e.Start.DateTime != "" {
		out.Start, out.StartTimeZone = e.Start.DateTime, e.Start.TimeZone
	}
	if e.End != nil && e.End.DateTime != "" {
		out.End, out.EndTimeZone = e.End.DateTime, e.End.TimeZone
	}
	if e.Location != nil && e.Location.DisplayName != "" {
		out.Location = e.Location.DisplayName
	}
	if e.Body != nil {
		out.BodyContentType, out.Body = e.Body.ContentType, e.Body.Content
	}
	if e.OnlineMeeting != nil {
		out.JoinURL = e.OnlineMeeting.JoinUrl
	}
	for _, a := range e.Attendees {
		if a.EmailAddress != nil && a.EmailAddress.Address != "" {
			out.Attendees = append(out.Attendees, a.EmailAddress.Address)
		}
	}
	return out
}
