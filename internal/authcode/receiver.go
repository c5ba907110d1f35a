package authcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/browser"

	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/metrics"
)

const metricsPath = "/metrics"

// AuthURLFunc builds the identity provider's authorize URL for redirectURI.
type AuthURLFunc func(ctx context.Context, redirectURI string) (string, error)

// Config configures a Receiver.
type Config struct {
	// RedirectURL is registered with the app, e.g. http://localhost:8000/callback.
	// Port 0 binds an ephemeral port and rewrites the redirect accordingly.
	RedirectURL string
	AuthURL     AuthURLFunc
	Handoff     *Handoff

	// OpenBrowser defaults to github.com/pkg/browser.OpenURL.
	OpenBrowser func(url string) error
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Receiver is the local HTTP listener that receives the browser redirect.
type Receiver struct {
	cfg          Config
	listenAddr   string
	callbackPath string

	mu          sync.Mutex
	server      *http.Server
	redirectURI string
	baseURL     string
	done        chan struct{}
}

// NewReceiver validates cfg and returns an unstarted receiver.
func NewReceiver(cfg Config) (*Receiver, error) {
	if cfg.AuthURL == nil {
		return nil, fmt.Errorf("auth URL builder is required")
	}
	if cfg.Handoff == nil {
		return nil, fmt.Errorf("handoff is required")
	}

	u, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect URL must be an http loopback URL, got %q", cfg.RedirectURL)
	}
	if u.Path == "" || u.Path == "/" {
		return nil, fmt.Errorf("redirect URL needs a callback path, got %q", cfg.RedirectURL)
	}
	if u.Path == metricsPath || strings.ContainsAny(u.Path, "{}") {
		return nil, fmt.Errorf("redirect URL path %q is reserved by the receiver", u.Path)
	}

	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = browser.OpenURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Receiver{
		cfg:          cfg,
		listenAddr:   u.Host,
		callbackPath: u.Path,
		redirectURI:  cfg.RedirectURL,
		baseURL:      "http://" + u.Host + "/",
	}, nil
}

// Handler returns the receiver's routes.
func (r *Receiver) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", r.handleRoot)
	mux.HandleFunc("GET "+r.callbackPath, r.handleCallback)
	mux.Handle("GET "+metricsPath, r.cfg.Metrics.Handler())
	return mux
}

// Start binds the listener and serves in a background goroutine.
func (r *Receiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.server != nil {
		return fmt.Errorf("receiver already started")
	}

	ln, err := net.Listen("tcp", r.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.listenAddr, err)
	}

	// Port 0 resolves to whatever the kernel picked
	host := ln.Addr().String()
	if strings.HasSuffix(r.listenAddr, ":0") {
		hostname, _, _ := net.SplitHostPort(r.listenAddr)
		_, port, _ := net.SplitHostPort(host)
		host = net.JoinHostPort(hostname, port)
		r.redirectURI = "http://" + host + r.callbackPath
	} else {
		host = r.listenAddr
	}
	r.baseURL = "http://" + host + "/"

	r.server = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	r.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.cfg.Logger.Error("callback receiver stopped", logging.Err(err))
		}
	}(r.server, r.done)

	r.cfg.Logger.Debug("callback receiver listening", "url", r.baseURL, "redirect_uri", r.redirectURI)
	return nil
}

// RedirectURI is the URI the identity provider must redirect to.
func (r *Receiver) RedirectURI() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirectURI
}

// URL is the receiver's root URL, which restarts sign-in when visited.
func (r *Receiver) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseURL
}

// OpenLogin builds the authorize URL and opens it in the default browser.
// A browser that cannot be launched is logged, not fatal: the user can paste
// the returned URL manually.
func (r *Receiver) OpenLogin(ctx context.Context) (string, error) {
	authURL, err := r.cfg.AuthURL(ctx, r.RedirectURI())
	if err != nil {
		return "", fmt.Errorf("failed to build authorization URL: %w", err)
	}

	if err := r.cfg.OpenBrowser(authURL); err != nil {
		r.cfg.Logger.Warn("could not open browser, visit the URL manually", "url", authURL, logging.Err(err))
	} else {
		r.cfg.Logger.Info("opened browser for sign-in", "url", authURL)
	}
	return authURL, nil
}

// Shutdown stops the listener gracefully.
func (r *Receiver) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	srv, done := r.server, r.done
	r.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down callback receiver: %w", err)
	}
	<-done
	return nil
}

func (r *Receiver) handleRoot(w http.ResponseWriter, req *http.Request) {
	if _, err := r.OpenLogin(req.Context()); err != nil {
		r.cfg.Logger.Error("failed to start sign-in", logging.Err(err))
		writeText(w, http.StatusInternalServerError, "Failed to start sign-in: "+err.Error())
		return
	}
	writeText(w, http.StatusOK, "Opening Microsoft login page...")
}

// handleCallback answers 200 even on failure so the browser shows the
// message instead of a generic error page.
func (r *Receiver) handleCallback(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	code := q.Get("code")

	if code == "" {
		r.cfg.Metrics.Callback(metrics.CallbackMissing)
		msg := "Authorization code not found."
		if e := q.Get("error"); e != "" {
			msg += " The identity provider returned " + e
			if d := q.Get("error_description"); d != "" {
				msg += ": " + d
			}
		}
		r.cfg.Logger.Warn("callback without authorization code", "provider_error", q.Get("error"))
		writeText(w, http.StatusOK, msg)
		return
	}

	if err := r.cfg.Handoff.Deliver(code); err != nil {
		r.cfg.Metrics.Callback(metrics.CallbackDuplicate)
		r.cfg.Logger.Warn("ignored authorization code", logging.Err(err))
		writeText(w, http.StatusOK, "Authorization was already completed; this code was ignored.")
		return
	}

	r.cfg.Metrics.Callback(metrics.CallbackDelivered)
	r.cfg.Logger.Debug("authorization code received", "code", logging.SanitizeToken(code))
	writeText(w, http.StatusOK, "Authorization complete! You may return to your app.")
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, msg)
}
