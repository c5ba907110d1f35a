// Package assistant wires sign-in, intent parsing, attendee resolution and
// event creation into the schedule pipeline.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/njt/schedule365/internal/authcode"
	"github.com/njt/schedule365/internal/intent"
	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/metrics"
	"github.com/njt/schedule365/internal/resolver"
	"github.com/njt/schedule365/internal/scheduler"
	"github.com/njt/schedule365/libgo365"
)

const shutdownTimeout = 5 * time.Second

// Authenticator is the identity side of sign-in. *libgo365.Authenticator
// implements it.
type Authenticator interface {
	AuthCodeURL(ctx context.Context, redirectURI string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (oauth2.TokenSource, error)
	LoginWithDeviceCode(ctx context.Context, prompt func(message string)) (oauth2.TokenSource, error)
}

// Options configures an Assistant.
type Options struct {
	Authenticator Authenticator
	Parser        intent.Parser

	RedirectURL string
	AuthTimeout time.Duration
	DeviceCode  bool

	// Prompt shows sign-in instructions to the user.
	Prompt func(message string)
	// OpenBrowser overrides the system browser launcher.
	OpenBrowser  func(url string) error
	GraphOptions []libgo365.ClientOption

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Assistant runs the schedule pipeline for one user.
type Assistant struct {
	opts   Options
	logger *slog.Logger
}

// Result is everything a completed run produced.
type Result struct {
	Intent     *intent.MeetingIntent     `json:"intent"`
	Event      *scheduler.ScheduledEvent `json:"event"`
	Resolution *resolver.Resolution      `json:"resolution"`
}

// New validates opts and returns an Assistant.
func New(opts Options) (*Assistant, error) {
	if opts.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if opts.RedirectURL == "" {
		opts.RedirectURL = libgo365.DefaultRedirectURL
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = authcode.DefaultTimeout
	}
	if opts.Prompt == nil {
		opts.Prompt = func(string) {}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	graphOpts := []libgo365.ClientOption{
		libgo365.WithObserver(opts.Metrics),
		libgo365.WithLogger(opts.Logger),
	}
	opts.GraphOptions = append(graphOpts, opts.GraphOptions...)

	return &Assistant{opts: opts, logger: opts.Logger}, nil
}

// Authenticate signs the user in and returns an authorized Graph client.
// The browser flow runs a callback receiver for exactly one login attempt.
func (a *Assistant) Authenticate(ctx context.Context) (*libgo365.Client, error) {
	var (
		ts  oauth2.TokenSource
		err error
	)
	if a.opts.DeviceCode {
		ts, err = a.opts.Authenticator.LoginWithDeviceCode(ctx, a.opts.Prompt)
	} else {
		ts, err = a.authCodeFlow(ctx)
	}
	if err != nil {
		return nil, err
	}
	return libgo365.NewClient(ctx, ts, a.opts.GraphOptions...), nil
}

func (a *Assistant) authCodeFlow(ctx context.Context) (oauth2.TokenSource, error) {
	logger := logging.WithOperation(a.logger, "login")
	handoff := authcode.NewHandoff()

	receiver, err := authcode.NewReceiver(authcode.Config{
		RedirectURL: a.opts.RedirectURL,
		AuthURL:     a.opts.Authenticator.AuthCodeURL,
		Handoff:     handoff,
		OpenBrowser: a.opts.OpenBrowser,
		Metrics:     a.opts.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	if err := receiver.Start(); err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := receiver.Shutdown(shutdownCtx); err != nil {
			logger.Warn("callback receiver did not shut down cleanly", logging.Err(err))
		}
	}()

	loginURL, err := receiver.OpenLogin(ctx)
	if err != nil {
		return nil, err
	}
	a.opts.Prompt(fmt.Sprintf("Sign in to Microsoft in your browser. If it did not open, visit:\n%s", loginURL))

	code, err := authcode.WaitForAuthCode(ctx, handoff, a.opts.AuthTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to complete sign-in: %w", err)
	}

	ts, err := a.opts.Authenticator.ExchangeCode(ctx, code, receiver.RedirectURI())
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	logger.Info("signed in")
	return ts, nil
}

// Prepare signs in and parses text concurrently. Neither step depends on
// the other; the first failure cancels the other.
func (a *Assistant) Prepare(ctx context.Context, text string) (*libgo365.Client, *intent.MeetingIntent, error) {
	if a.opts.Parser == nil {
		return nil, nil, fmt.Errorf("intent parser is not configured")
	}

	var (
		client *libgo365.Client
		m      *intent.MeetingIntent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := a.Authenticate(gctx)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	g.Go(func() error {
		parsed, err := a.opts.Parser.Parse(gctx, text)
		if err != nil {
			return err
		}
		m = parsed
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return client, m, nil
}

// Scheduler returns a scheduler bound to client.
func (a *Assistant) Scheduler(client *libgo365.Client) *scheduler.Scheduler {
	return scheduler.New(client, a.opts.Metrics, a.logger)
}

// Run executes the whole pipeline for a free-text request.
func (a *Assistant) Run(ctx context.Context, text string) (*Result, error) {
	client, m, err := a.Prepare(ctx, text)
	if err != nil {
		return nil, err
	}

	event, res, err := a.Scheduler(client).Schedule(ctx, m)
	if err != nil {
		return nil, err
	}
	return &Result{Intent: m, Event: event, Resolution: res}, nil
}
