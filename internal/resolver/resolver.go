// Package resolver maps attendee display names to email addresses through
// the organization directory.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/metrics"
	"github.com/njt/schedule365/libgo365"
)

// MaxConcurrentLookups bounds in-flight directory queries.
const MaxConcurrentLookups = 8

// ErrNoMatch means the directory returned no user with an address for a name.
var ErrNoMatch = errors.New("no directory match")

// Directory is the subset of the Graph client used for lookups.
type Directory interface {
	FindUsersByGivenName(ctx context.Context, prefix string) ([]*libgo365.User, error)
}

// ResolvedAttendee is a name that mapped to an address.
type ResolvedAttendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UnresolvedAttendee is a name that could not be mapped, with the reason.
type UnresolvedAttendee struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Resolution separates resolved from unresolved names. Both lists follow
// input order.
type Resolution struct {
	Resolved   []ResolvedAttendee   `json:"resolved"`
	Unresolved []UnresolvedAttendee `json:"unresolved"`
}

// Emails returns the resolved addresses in input order.
func (r *Resolution) Emails() []string {
	emails := make([]string, 0, len(r.Resolved))
	for _, a := range r.Resolved {
		emails = append(emails, a.Email)
	}
	return emails
}

// UnresolvedNames returns the names that were dropped.
func (r *Resolution) UnresolvedNames() []string {
	names := make([]string, 0, len(r.Unresolved))
	for _, u := range r.Unresolved {
		names = append(names, u.Name)
	}
	return names
}

// ResolveEmailByName returns the address of the first directory match for a
// given-name prefix, preferring mail over userPrincipalName. A first match
// without any address is a miss; later matches are never substituted.
func ResolveEmailByName(ctx context.Context, dir Directory, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("attendee name is empty")
	}

	users, err := dir.FindUsersByGivenName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to look up %q: %w", name, err)
	}

	if len(users) == 0 {
		return "", fmt.Errorf("%w for %q", ErrNoMatch, name)
	}
	email := users[0].Email()
	if email == "" {
		return "", fmt.Errorf("%w for %q: first match has no address", ErrNoMatch, name)
	}
	return email, nil
}

// Resolver runs lookups concurrently and records outcomes.
type Resolver struct {
	dir     Directory
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a resolver over dir. m and logger may be nil.
func New(dir Directory, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		dir:     dir,
		metrics: m,
		logger:  logging.WithOperation(logger, "resolve_attendees"),
	}
}

// Resolve looks up every name concurrently and waits for all of them.
// A failed lookup never fails the batch; it is reported in Unresolved.
func (r *Resolver) Resolve(ctx context.Context, names []string) *Resolution {
	type result struct {
		email string
		err   error
	}
	results := make([]result, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentLookups)
	for i, name := range names {
		g.Go(func() error {
			email, err := ResolveEmailByName(gctx, r.dir, name)
			results[i] = result{email: email, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := &Resolution{
		Resolved:   []ResolvedAttendee{},
		Unresolved: []UnresolvedAttendee{},
	}
	for i, name := range names {
		if err := results[i].err; err != nil {
			r.metrics.Resolution(metrics.ResolutionUnresolved)
			r.logger.Warn("attendee not resolved", logging.Attendee(name), logging.Err(err))
			res.Unresolved = append(res.Unresolved, UnresolvedAttendee{Name: name, Reason: reason(err)})
			continue
		}
		r.metrics.Resolution(metrics.ResolutionResolved)
		r.logger.Debug("attendee resolved", logging.Attendee(name), logging.UserHash(results[i].email))
		res.Resolved = append(res.Resolved, ResolvedAttendee{Name: name, Email: results[i].email})
	}
	return res
}

// ResolveEmails returns only the resolved addresses; misses are logged and
// dropped.
func (r *Resolver) ResolveEmails(ctx context.Context, names []string) []string {
	return r.Resolve(ctx, names).Emails()
}

// Resolve is a convenience for New(dir, nil, nil).Resolve.
func Resolve(ctx context.Context, dir Directory, names []string) *Resolution {
	return New(dir, nil, nil).Resolve(ctx, names)
}

// ResolveEmailsByNames resolves names concurrently and returns only the
// addresses that were found.
func ResolveEmailsByNames(ctx context.Context, dir Directory, names []string) []string {
	return New(dir, nil, nil).ResolveEmails(ctx, names)
}

func reason(err error) string {
	var apiErr *libgo365.Error
	switch {
	case errors.Is(err, ErrNoMatch):
		return "no match"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &apiErr):
		return "lookup failed: " + string(apiErr.Kind)
	default:
		return err.Error()
	}
}
