package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/njt/schedule365/internal/intent"
	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/metrics"
	"github.com/njt/schedule365/libgo365"
)

// fakeGraph serves /users and /me/events from an in-memory directory.
type fakeGraph struct {
	mu        sync.Mutex
	directory map[string]string // lowercase given name -> mail
	created   []libgo365.Event
	status    int
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/users":
		filter := r.URL.Query().Get("$filter")
		prefix := strings.TrimSuffix(strings.TrimPrefix(filter, "startswith(givenName,'"), "')")
		users := []*libgo365.User{}
		for name, mail := range g.directory {
			if strings.HasPrefix(name, strings.ToLower(prefix)) {
				users = append(users, &libgo365.User{GivenName: name, Mail: mail})
			}
		}
		json.NewEncoder(w).Encode(libgo365.UserList{Value: users})

	case r.Method == http.MethodPost && r.URL.Path == "/me/events":
		if g.status != 0 {
			w.WriteHeader(g.status)
			w.Write([]byte(`{"error":{"code":"ErrorInvalidRequest","message":"bad"}}`))
			return
		}
		var event libgo365.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.created = append(g.created, event)
		n := len(g.created)
		g.mu.Unlock()

		event.ID = "event-" + string(rune('0'+n))
		event.WebLink = "https://outlook.office365.com/owa/?itemid=" + event.ID
		event.OnlineMeeting = &libgo365.OnlineMeetingInfo{JoinUrl: "https://teams.microsoft.com/l/meetup-join/" + event.ID}
		event.Start.DateTime += ".0000000"
		event.End.DateTime += ".0000000"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(event)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newScheduler(t *testing.T, g *fakeGraph) (*Scheduler, *metrics.Metrics) {
	t.Helper()
	server := httptest.NewServer(g)
	t.Cleanup(server.Close)

	client := libgo365.NewClient(context.Background(),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		libgo365.WithBaseURL(server.URL),
		libgo365.WithRetryPolicy(libgo365.RetryPolicy{MaxTries: 2, InitialInterval: time.Millisecond}),
	)
	m := metrics.New()
	return New(client, m, logging.Discard()), m
}

func tutoring() *intent.MeetingIntent {
	return &intent.MeetingIntent{
		Subject:       "Tutoring",
		StartDateTime: "2025-06-12T12:00:00",
		StartTimeZone: "Pacific Standard Time",
		EndDateTime:   "2025-06-12T12:30:00",
		EndTimeZone:   "Pacific Standard Time",
		Attendees:     []string{"alice"},
		Description:   "",
		Location:      "",
	}
}

func TestScheduleResolvesAttendee(t *testing.T) {
	g := &fakeGraph{directory: map[string]string{"alice": "alice@example.com"}}
	s, _ := newScheduler(t, g)

	event, res, err := s.Schedule(context.Background(), tutoring())
	require.NoError(t, err)

	require.Len(t, g.created, 1)
	sent := g.created[0]
	require.Len(t, sent.Attendees, 1)
	assert.Equal(t, "alice@example.com", sent.Attendees[0].EmailAddress.Address)
	assert.Equal(t, "required", sent.Attendees[0].Type)
	assert.True(t, sent.IsOnlineMeeting)
	assert.Equal(t, "teamsForBusiness", sent.OnlineMeetingProvider)
	require.NotNil(t, sent.AllowNewTimeProposals)
	assert.True(t, *sent.AllowNewTimeProposals)
	assert.Nil(t, sent.Body, "no body without a description")
	assert.Nil(t, sent.Location, "no location when none was given")

	assert.Equal(t, "event-1", event.ID)
	assert.Equal(t, "Tutoring", event.Subject)
	assert.Equal(t, []string{"alice@example.com"}, event.Attendees)
	assert.NotEmpty(t, event.JoinURL)
	assert.NotEmpty(t, event.WebLink)
	assert.Empty(t, res.Unresolved)
}

func TestScheduleWithUnresolvedAttendee(t *testing.T) {
	g := &fakeGraph{directory: map[string]string{}}
	s, _ := newScheduler(t, g)

	event, res, err := s.Schedule(context.Background(), tutoring())
	require.NoError(t, err)

	require.Len(t, g.created, 1)
	assert.Empty(t, g.created[0].Attendees)
	assert.True(t, g.created[0].IsOnlineMeeting)
	assert.Empty(t, event.Attendees)
	assert.Equal(t, []string{"alice"}, res.UnresolvedNames())
}

func TestScheduleIsNotIdempotent(t *testing.T) {
	g := &fakeGraph{directory: map[string]string{"alice": "alice@example.com"}}
	s, m := newScheduler(t, g)

	first, _, err := s.Schedule(context.Background(), tutoring())
	require.NoError(t, err)
	second, _, err := s.Schedule(context.Background(), tutoring())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, g.created, 2)

	body := scrape(t, m)
	assert.Contains(t, body, "schedule365_events_created_total 2")
}

func TestScheduleInvalidPayload(t *testing.T) {
	g := &fakeGraph{directory: map[string]string{}, status: http.StatusBadRequest}
	s, _ := newScheduler(t, g)

	_, _, err := s.Schedule(context.Background(), tutoring())
	require.Error(t, err)
	assert.True(t, libgo365.IsKind(err, libgo365.KindInvalidPayload))
}

func TestScheduleRejectsInvalidIntent(t *testing.T) {
	g := &fakeGraph{}
	s, _ := newScheduler(t, g)

	m := tutoring()
	m.Subject = ""
	_, _, err := s.Schedule(context.Background(), m)
	assert.Error(t, err)
	assert.Empty(t, g.created)
}

func TestBuildEvent(t *testing.T) {
	m := tutoring()
	m.Description = "Chapter 4"
	m.Location = "Library"

	event := BuildEvent(m, []string{"alice@example.com", "ALICE@example.com", " ", "bob@example.com"})

	require.Len(t, event.Attendees, 2)
	assert.Equal(t, "alice@example.com", event.Attendees[0].EmailAddress.Address)
	assert.Equal(t, "bob@example.com", event.Attendees[1].EmailAddress.Address)
	assert.Equal(t, &libgo365.ItemBody{ContentType: "Text", Content: "Chapter 4"}, event.Body)
	assert.Equal(t, &libgo365.Location{DisplayName: "Library"}, event.Location)
	assert.Equal(t, &libgo365.DateTimeTimeZone{DateTime: "2025-06-12T12:00:00", TimeZone: "Pacific Standard Time"}, event.Start)
	assert.Equal(t, &libgo365.DateTimeTimeZone{DateTime: "2025-06-12T12:30:00", TimeZone: "Pacific Standard Time"}, event.End)
}

func TestBuildEventNoAttendeesOmitsList(t *testing.T) {
	data, err := json.Marshal(BuildEvent(tutoring(), nil))
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"attendees"`, "omitempty drops the empty list")
	assert.Contains(t, string(data), `"isOnlineMeeting":true`)
	assert.Contains(t, string(data), `"allowNewTimeProposals":true`)
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}
