package resolver

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/metrics"
	"github.com/njt/schedule365/libgo365"
)

// fakeDirectory matches case-insensitive given-name prefixes.
type fakeDirectory struct {
	users    []*libgo365.User
	failFor  map[string]error
	delay    time.Duration
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (d *fakeDirectory) FindUsersByGivenName(ctx context.Context, prefix string) ([]*libgo365.User, error) {
	d.calls.Add(1)
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		m := d.maxSeen.Load()
		if n <= m || d.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := d.failFor[prefix]; err != nil {
		return nil, err
	}

	var out []*libgo365.User
	for _, u := range d.users {
		if strings.HasPrefix(strings.ToLower(u.GivenName), strings.ToLower(prefix)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func directory() *fakeDirectory {
	return &fakeDirectory{
		users: []*libgo365.User{
			{GivenName: "Alice", Mail: "alice@example.com"},
			{GivenName: "Bob", UserPrincipalName: "bob@example.com"},
			{GivenName: "Carol", Mail: "carol@example.com"},
		},
		failFor: map[string]error{
			"dave": &libgo365.Error{Kind: libgo365.KindRateLimited, StatusCode: 429},
		},
	}
}

func TestResolveEmailByName(t *testing.T) {
	dir := directory()

	email, err := ResolveEmailByName(context.Background(), dir, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	email, err = ResolveEmailByName(context.Background(), dir, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", email, "falls back to the principal name")

	_, err = ResolveEmailByName(context.Background(), dir, "zed")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = ResolveEmailByName(context.Background(), dir, "dave")
	assert.True(t, libgo365.IsKind(err, libgo365.KindRateLimited))

	_, err = ResolveEmailByName(context.Background(), dir, "  ")
	assert.Error(t, err)
}

func TestResolveEmailByNameUsesFirstMatchOnly(t *testing.T) {
	dir := &fakeDirectory{
		users: []*libgo365.User{
			{GivenName: "Ed"},
			{GivenName: "Edna", Mail: "edna@example.com"},
		},
	}

	_, err := ResolveEmailByName(context.Background(), dir, "ed")
	assert.ErrorIs(t, err, ErrNoMatch, "a later match is a different person")
	assert.Equal(t, int32(1), dir.calls.Load())
}

func TestResolveSeparatesUnresolved(t *testing.T) {
	m := metrics.New()
	r := New(directory(), m, logging.Discard())

	res := r.Resolve(context.Background(), []string{"carol", "zed", "alice", "dave"})

	assert.Equal(t, []ResolvedAttendee{
		{Name: "carol", Email: "carol@example.com"},
		{Name: "alice", Email: "alice@example.com"},
	}, res.Resolved)
	assert.Equal(t, []UnresolvedAttendee{
		{Name: "zed", Reason: "no match"},
		{Name: "dave", Reason: "lookup failed: rate_limited"},
	}, res.Unresolved)
	assert.Equal(t, []string{"carol@example.com", "alice@example.com"}, res.Emails())
	assert.Equal(t, []string{"zed", "dave"}, res.UnresolvedNames())

	expected := `
# HELP schedule365_attendee_resolutions_total Attendee name lookups, by outcome.
# TYPE schedule365_attendee_resolutions_total counter
schedule365_attendee_resolutions_total{outcome="resolved"} 2
schedule365_attendee_resolutions_total{outcome="unresolved"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "schedule365_attendee_resolutions_total"))
}

func TestResolveEmailsByNamesIsIdempotent(t *testing.T) {
	dir := directory()
	names := []string{"alice", "bob", "nobody", "carol"}

	first := ResolveEmailsByNames(context.Background(), dir, names)
	second := ResolveEmailsByNames(context.Background(), dir, names)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com", "carol@example.com"}, first)
}

func TestResolveMissIsNotAnError(t *testing.T) {
	emails := ResolveEmailsByNames(context.Background(), directory(), []string{"nobody"})
	assert.Empty(t, emails)
	assert.NotNil(t, emails)
}

func TestResolveEmpty(t *testing.T) {
	dir := directory()
	res := Resolve(context.Background(), dir, nil)
	assert.Empty(t, res.Resolved)
	assert.Empty(t, res.Unresolved)
	assert.Equal(t, int32(0), dir.calls.Load())
}

func TestResolveRunsConcurrently(t *testing.T) {
	dir := directory()
	dir.delay = 50 * time.Millisecond

	names := make([]string, 20)
	for i := range names {
		names[i] = "alice"
	}

	start := time.Now()
	emails := ResolveEmailsByNames(context.Background(), dir, names)
	elapsed := time.Since(start)

	assert.Len(t, emails, 20)
	assert.Equal(t, int32(20), dir.calls.Load())
	assert.LessOrEqual(t, dir.maxSeen.Load(), int32(MaxConcurrentLookups))
	assert.Greater(t, dir.maxSeen.Load(), int32(1))
	assert.Less(t, elapsed, 20*dir.delay)
}

func TestResolveCancelled(t *testing.T) {
	dir := directory()
	dir.delay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := Resolve(ctx, dir, []string{"alice", "bob"})
	assert.Empty(t, res.Resolved)
	require.Len(t, res.Unresolved, 2)
	assert.Equal(t, "cancelled", res.Unresolved[0].Reason)
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
}
