package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/jamspace/internal/apperror"
)

// Provider names, also used as metric and log labels.
const (
	ProviderPassword   = "password"
	ProviderGoogle     = "google"
	ProviderGoogleCode = "google-code"
	ProviderFacebook   = "facebook"
)

// DefaultProviderTimeout bounds every outbound call to Google or Facebook.
const DefaultProviderTimeout = 10 * time.Second

// Credentials is the union of what the login endpoints accept. Each provider
// reads only the fields it needs.
type Credentials struct {
	AccessToken  string
	Code         string
	CodeVerifier string
	RedirectURI  string
	Username     string
	Password     string
}

// VerifiedIdentity is a normalized identity payload from a provider that has
// already checked the client's credentials.
//
// Email is the only required field. Social providers leave AccountID empty;
// the password provider fills it because it authenticates an existing row.
type VerifiedIdentity struct {
	Provider    string
	AccountID   string
	Email       string
	GivenName   string
	FamilyName  string
	DisplayName string
	PictureURL  string
}

// IdentityProvider turns client credentials into a VerifiedIdentity.
type IdentityProvider interface {
	Name() string
	Resolve(ctx context.Context, creds Credentials) (*VerifiedIdentity, error)
}

// Failures surfaced to the client. Wrapped with the underlying cause, so
// match with errors.Is.
var (
	ErrNoAccessToken        = apperror.Unauthenticated("No access_token provided.")
	ErrInvalidGoogleToken   = apperror.Unauthenticated("Invalid Google token.")
	ErrGoogleNoEmail        = apperror.Unauthenticated("Google account has no email.")
	ErrCodeParamsRequired   = apperror.Unauthenticated("code and redirectUri are required.")
	ErrGoogleExchange       = apperror.Unauthenticated("Failed to exchange Google authorization code.")
	ErrGoogleNoAccessToken  = apperror.Unauthenticated("No access token in Google response.")
	ErrGoogleUserInfo       = apperror.Unauthenticated("Failed to fetch Google user info.")
	ErrInvalidFacebookToken = apperror.Unauthenticated("Invalid Facebook token.")
	ErrInvalidCredentials   = apperror.Unauthenticated("No active account found with the given credentials")
)

// newHTTPClient returns the client used for provider calls. A zero timeout
// uses DefaultProviderTimeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &http.Client{Timeout: timeout}
}
