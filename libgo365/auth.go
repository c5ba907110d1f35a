package libgo365

import (
	"context"
	"fmt"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
	"golang.org/x/oauth2"
)

const (
	// AuthorityHost is the Microsoft identity platform login endpoint
	AuthorityHost = "https://login.microsoftonline.com/"

	// DefaultTenant accepts both work/school and personal accounts
	DefaultTenant = "common"
)

// DefaultScopes are the delegated permissions needed to look up users and create events
var DefaultScopes = []string{"User.Read", "User.ReadBasic.All", "Calendars.ReadWrite"}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	TenantID string
	ClientID string
	Scopes   []string
}

// Authenticator handles OAuth authentication through MSAL
type Authenticator struct {
	app      public.Client
	clientID string
	scopes   []string
}

// NewAuthenticator creates a new authenticator for a public client application
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}

	tenant := cfg.TenantID
	if tenant == "" {
		tenant = DefaultTenant
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	app, err := public.New(cfg.ClientID, public.WithAuthority(AuthorityHost+tenant))
	if err != nil {
		return nil, fmt.Errorf("failed to create public client: %w", err)
	}

	return &Authenticator{
		app:      app,
		clientID: cfg.ClientID,
		scopes:   scopes,
	}, nil
}

// Scopes returns the scopes requested at login
func (a *Authenticator) Scopes() []string {
	return a.scopes
}

// AuthCodeURL returns the URL the user must visit to sign in
func (a *Authenticator) AuthCodeURL(ctx context.Context, redirectURI string) (string, error) {
	u, err := a.app.AuthCodeURL(ctx, a.clientID, redirectURI, a.scopes)
	if err != nil {
		return "", &Error{Kind: KindAuth, Op: "authorization url", Err: err}
	}
	return u, nil
}

// ExchangeCode exchanges an authorization code for a token source. The code
// is single use, so failures are returned as-is without retrying.
func (a *Authenticator) ExchangeCode(ctx context.Context, code, redirectURI string) (oauth2.TokenSource, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	res, err := a.app.AcquireTokenByAuthCode(ctx, code, redirectURI, a.scopes)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Op: "token exchange", Err: err}
	}

	return a.tokenSource(res), nil
}

// LoginWithDeviceCode runs the device code flow. prompt receives the
// instructions the user must follow in a browser on any device.
func (a *Authenticator) LoginWithDeviceCode(ctx context.Context, prompt func(message string)) (oauth2.TokenSource, error) {
	dc, err := a.app.AcquireTokenByDeviceCode(ctx, a.scopes)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Op: "device code", Err: err}
	}

	if prompt != nil {
		prompt(dc.Result.Message)
	}

	res, err := dc.AuthenticationResult(ctx)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Op: "device code", Err: err}
	}

	return a.tokenSource(res), nil
}

func (a *Authenticator) tokenSource(res public.AuthResult) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(tokenFromResult(res), &silentSource{
		app:     a.app,
		account: res.Account,
		scopes:  a.scopes,
	})
}

// silentSource refreshes access tokens from MSAL's in-memory cache
type silentSource struct {
	app     public.Client
	account public.Account
	scopes  []string
}

func (s *silentSource) Token() (*oauth2.Token, error) {
	res, err := s.app.AcquireTokenSilent(context.Background(), s.scopes, public.WithSilentAccount(s.account))
	if err != nil {
		return nil, &Error{Kind: KindAuth, Op: "silent token refresh", Err: err}
	}
	return tokenFromResult(res), nil
}

func tokenFromResult(res public.AuthResult) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		Expiry:      res.ExpiresOn,
	}
}
