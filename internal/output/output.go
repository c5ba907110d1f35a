// Package output formats intents, attendee resolutions and scheduled
// meetings for the terminal, as text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/njt/schedule365/internal/intent"
	"github.com/njt/schedule365/internal/resolver"
	"github.com/njt/schedule365/internal/scheduler"
)

// Options controls output formatting.
type Options struct {
	JSON     bool // Output as JSON
	Markdown bool // Convert HTML body content to markdown
}

// HTMLToMarkdown converts HTML content to Markdown.
// Returns the original content if conversion fails or content is empty.
func HTMLToMarkdown(html string) string {
	if html == "" {
		return ""
	}

	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}

	return strings.TrimSpace(md)
}

// ActionResponse is the JSON shape of commands that only report an outcome.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ScheduleResult is the JSON shape of the schedule command.
type ScheduleResult struct {
	Event      *scheduler.ScheduledEvent `json:"event"`
	Resolution *resolver.Resolution      `json:"resolution"`
}

// WriteJSON writes a value as JSON to the writer.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteJSONString returns a value as a JSON string.
func WriteJSONString(v any) (string, error) {
	var sb strings.Builder
	if err := WriteJSON(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FormatActionResponse creates an ActionResponse.
func FormatActionResponse(success bool, message string) *ActionResponse {
	return &ActionResponse{
		Success: success,
		Message: message,
	}
}

// EventBody returns the event body for display. HTML bodies are converted
// to Markdown when asked, otherwise reduced to their text.
func EventBody(event *scheduler.ScheduledEvent, markdown bool) string {
	if event == nil || event.Body == "" {
		return ""
	}
	if !strings.EqualFold(event.BodyContentType, "HTML") {
		return strings.TrimSpace(event.Body)
	}

	md := HTMLToMarkdown(event.Body)
	if markdown {
		return md
	}
	return strings.TrimSpace(stripMarkdown(md))
}

// stripMarkdown removes the emphasis markers the converter adds.
func stripMarkdown(s string) string {
	return strings.NewReplacer("**", "", "__", "", "\\", "").Replace(s)
}

// PrintIntent writes a parsed meeting request.
func PrintIntent(w io.Writer, m *intent.MeetingIntent) {
	fmt.Fprintf(w, "Subject:   %s\n", m.Subject)
	fmt.Fprintf(w, "Start:     %s (%s)\n", m.StartDateTime, m.StartTimeZone)
	fmt.Fprintf(w, "End:       %s (%s)\n", m.EndDateTime, m.EndTimeZone)
	if len(m.Attendees) > 0 {
		fmt.Fprintf(w, "Attendees: %s\n", strings.Join(m.Attendees, ", "))
	}
	if m.Location != "" {
		fmt.Fprintf(w, "Location:  %s\n", m.Location)
	}
	if m.Description != "" {
		fmt.Fprintf(w, "Details:   %s\n", m.Description)
	}
}

// PrintResolution writes resolved attendees and warns about the rest.
func PrintResolution(w io.Writer, res *resolver.Resolution) {
	for _, a := range res.Resolved {
		fmt.Fprintf(w, "  %-16s %s\n", a.Name, a.Email)
	}
	PrintUnresolvedWarning(w, res)
}

// PrintUnresolvedWarning lists names that will not be invited.
func PrintUnresolvedWarning(w io.Writer, res *resolver.Resolution) {
	if res == nil || len(res.Unresolved) == 0 {
		return
	}
	fmt.Fprintf(w, "Warning: %d attendee(s) could not be resolved and will not be invited:\n", len(res.Unresolved))
	for _, u := range res.Unresolved {
		fmt.Fprintf(w, "  %-16s %s\n", u.Name, u.Reason)
	}
}

// PrintScheduledEvent writes the created meeting.
func PrintScheduledEvent(w io.Writer, event *scheduler.ScheduledEvent, res *resolver.Resolution, opts Options) error {
	if opts.JSON {
		if opts.Markdown && strings.EqualFold(event.BodyContentType, "HTML") {
			converted := *event
			converted.BodyContentType = "Markdown"
			converted.Body = HTMLToMarkdown(event.Body)
			event = &converted
		}
		return WriteJSON(w, &ScheduleResult{Event: event, Resolution: res})
	}

	fmt.Fprintln(w, "Meeting scheduled")
	fmt.Fprintf(w, "Subject:   %s\n", event.Subject)
	fmt.Fprintf(w, "When:      %s to %s (%s)\n", event.Start, event.End, event.StartTimeZone)
	if event.Location != "" {
		fmt.Fprintf(w, "Location:  %s\n", event.Location)
	}
	if len(event.Attendees) > 0 {
		fmt.Fprintf(w, "Attendees: %s\n", strings.Join(event.Attendees, ", "))
	} else {
		fmt.Fprintln(w, "Attendees: (none)")
	}
	if event.JoinURL != "" {
		fmt.Fprintf(w, "Join:      %s\n", event.JoinURL)
	}
	if event.WebLink != "" {
		fmt.Fprintf(w, "Link:      %s\n", event.WebLink)
	}
	if body := EventBody(event, opts.Markdown); body != "" {
		fmt.Fprintf(w, "\n%s\n", body)
	}
	PrintUnresolvedWarning(w, res)
	return nil
}
