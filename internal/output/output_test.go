package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/njt/schedule365/internal/intent"
	"github.com/njt/schedule365/internal/resolver"
	"github.com/njt/schedule365/internal/scheduler"
)

func TestHTMLToMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		contains []string // Substrings that should appear in output
	}{
		{
			name:     "empty string",
			html:     "",
			contains: nil,
		},
		{
			name:     "plain text",
			html:     "Hello world",
			contains: []string{"Hello world"},
		},
		{
			name:     "paragraph",
			html:     "<p>This is a paragraph.</p>",
			contains: []string{"This is a paragraph."},
		},
		{
			name:     "link",
			html:     `<a href="https://teams.microsoft.com/l/meetup-join/abc">Join the meeting now</a>`,
			contains: []string{"[Join the meeting now]", "(https://teams.microsoft.com/l/meetup-join/abc)"},
		},
		{
			name:     "bold",
			html:     "<strong>bold text</strong>",
			contains: []string{"**bold text**"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HTMLToMarkdown(tt.html)
			for _, substr := range tt.contains {
				if !strings.Contains(result, substr) {
					t.Errorf("HTMLToMarkdown(%q) = %q, expected to contain %q", tt.html, result, substr)
				}
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]string{"key": "value"}
	if err := WriteJSON(&buf, data); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}

	if result["key"] != "value" {
		t.Errorf("Expected key=value, got key=%s", result["key"])
	}
}

func TestFormatActionResponse(t *testing.T) {
	resp := FormatActionResponse(true, "Signed in")
	if !resp.Success {
		t.Error("Expected Success=true")
	}
	if resp.Message != "Signed in" {
		t.Errorf("Expected Message=Signed in, got %s", resp.Message)
	}
}

func scheduled() *scheduler.ScheduledEvent {
	return &scheduler.ScheduledEvent{
		ID:              "AAMkAGI2",
		Subject:         "Tutoring",
		Start:           "2025-06-12T12:00:00.0000000",
		StartTimeZone:   "Pacific Standard Time",
		End:             "2025-06-12T12:30:00.0000000",
		EndTimeZone:     "Pacific Standard Time",
		Attendees:       []string{"alice@example.com"},
		JoinURL:         "https://teams.microsoft.com/l/meetup-join/abc",
		WebLink:         "https://outlook.office365.com/owa/?itemid=AAMkAGI2",
		BodyContentType: "HTML",
		Body:            "<html><body><p><strong>Chapter 4</strong> review</p></body></html>",
	}
}

func TestPrintScheduledEvent(t *testing.T) {
	res := &resolver.Resolution{
		Resolved:   []resolver.ResolvedAttendee{{Name: "alice", Email: "alice@example.com"}},
		Unresolved: []resolver.UnresolvedAttendee{{Name: "zed", Reason: "no match"}},
	}

	var buf bytes.Buffer
	if err := PrintScheduledEvent(&buf, scheduled(), res, Options{}); err != nil {
		t.Fatalf("PrintScheduledEvent failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Meeting scheduled",
		"Subject:   Tutoring",
		"Attendees: alice@example.com",
		"Join:      https://teams.microsoft.com/l/meetup-join/abc",
		"Chapter 4 review",
		"Warning: 1 attendee(s) could not be resolved",
		"zed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "**") {
		t.Errorf("Expected plain text body, got:\n%s", out)
	}
}

func TestPrintScheduledEventMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintScheduledEvent(&buf, scheduled(), nil, Options{Markdown: true}); err != nil {
		t.Fatalf("PrintScheduledEvent failed: %v", err)
	}
	if !strings.Contains(buf.String(), "**Chapter 4**") {
		t.Errorf("Expected markdown body, got:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Warning") {
		t.Errorf("Expected no warning without unresolved names, got:\n%s", buf.String())
	}
}

func TestPrintScheduledEventJSON(t *testing.T) {
	res := &resolver.Resolution{
		Resolved:   []resolver.ResolvedAttendee{},
		Unresolved: []resolver.UnresolvedAttendee{{Name: "alice", Reason: "no match"}},
	}

	var buf bytes.Buffer
	if err := PrintScheduledEvent(&buf, scheduled(), res, Options{JSON: true, Markdown: true}); err != nil {
		t.Fatalf("PrintScheduledEvent failed: %v", err)
	}

	var got ScheduleResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if got.Event.ID != "AAMkAGI2" {
		t.Errorf("Expected event ID, got %q", got.Event.ID)
	}
	if got.Event.BodyContentType != "Markdown" || !strings.Contains(got.Event.Body, "**Chapter 4**") {
		t.Errorf("Expected markdown body, got %q %q", got.Event.BodyContentType, got.Event.Body)
	}
	if len(got.Resolution.Unresolved) != 1 || got.Resolution.Unresolved[0].Name != "alice" {
		t.Errorf("Unexpected resolution %+v", got.Resolution)
	}
}

func TestEventBodyText(t *testing.T) {
	event := &scheduler.ScheduledEvent{BodyContentType: "Text", Body: "  agenda  "}
	if got := EventBody(event, true); got != "agenda" {
		t.Errorf("Expected text body unchanged, got %q", got)
	}
	if got := EventBody(&scheduler.ScheduledEvent{}, false); got != "" {
		t.Errorf("Expected empty body, got %q", got)
	}
}

func TestPrintIntent(t *testing.T) {
	var buf bytes.Buffer
	PrintIntent(&buf, &intent.MeetingIntent{
		Subject:       "Tutoring",
		StartDateTime: "2025-06-12T12:00:00",
		StartTimeZone: "Pacific Standard Time",
		EndDateTime:   "2025-06-12T12:30:00",
		EndTimeZone:   "Pacific Standard Time",
		Attendees:     []string{"alice", "bob"},
	})

	out := buf.String()
	if !strings.Contains(out, "Attendees: alice, bob") {
		t.Errorf("Expected attendees line, got:\n%s", out)
	}
	if strings.Contains(out, "Location") {
		t.Errorf("Expected no location line, got:\n%s", out)
	}
}
