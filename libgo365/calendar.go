package libgo365

import (
	"context"
	"encoding/json"
	"fmt"
)

// OnlineMeetingProviderTeams is the Graph identifier for Teams meetings
const OnlineMeetingProviderTeams = "teamsForBusiness"

// Event represents a calendar event from Microsoft Graph
type Event struct {
	ID                    string             `json:"id,omitempty"`
	Subject               string             `json:"subject,omitempty"`
	Start                 *DateTimeTimeZone  `json:"start,omitempty"`
	End                   *DateTimeTimeZone  `json:"end,omitempty"`
	Location              *Location          `json:"location,omitempty"`
	Organizer             *Recipient         `json:"organizer,omitempty"`
	Attendees             []*Attendee        `json:"attendees,omitempty"`
	Body                  *ItemBody          `json:"body,omitempty"`
	IsOnlineMeeting       bool               `json:"isOnlineMeeting,omitempty"`
	OnlineMeetingProvider string             `json:"onlineMeetingProvider,omitempty"`
	OnlineMeeting         *OnlineMeetingInfo `json:"onlineMeeting,omitempty"`
	AllowNewTimeProposals *bool              `json:"allowNewTimeProposals,omitempty"`
	WebLink               string             `json:"webLink,omitempty"`
}

// DateTimeTimeZone represents a date/time with timezone from Graph API
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Location represents an event location
type Location struct {
	DisplayName string `json:"displayName,omitempty"`
}

// Attendee represents a meeting attendee
type Attendee struct {
	EmailAddress *EmailAddress `json:"emailAddress,omitempty"`
	Type         string        `json:"type,omitempty"` // required, optional, resource
}

// OnlineMeetingInfo represents online meeting details
type OnlineMeetingInfo struct {
	JoinUrl string `json:"joinUrl,omitempty"`
}

// ItemBody represents the body of an item
type ItemBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Recipient represents an organizer or recipient
type Recipient struct {
	EmailAddress *EmailAddress `json:"emailAddress,omitempty"`
}

// EmailAddress represents an email address
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// CreateEvent creates an event in the signed-in user's default calendar
func (c *Client) CreateEvent(ctx context.Context, event *Event) (*Event, error) {
	if event == nil {
		return nil, fmt.Errorf("event is required")
	}
	if event.Start == nil || event.End == nil {
		return nil, fmt.Errorf("start and end are required")
	}

	data, err := c.Post(ctx, "/me/events", event)
	if err != nil {
		return nil, err
	}

	var created Event
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &created, nil
}
