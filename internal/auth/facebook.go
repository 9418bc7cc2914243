package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultFacebookGraphURL = "https://graph.facebook.com"

// FacebookPlaceholderDomain is used for Facebook accounts that don't share an
// email. The .invalid TLD can never receive mail, and registration refuses
// addresses under it so nobody can claim a Facebook user's placeholder.
const FacebookPlaceholderDomain = "facebook.invalid"

// FacebookProvider verifies a Facebook user access token against the Graph
// API /me endpoint.
type FacebookProvider struct {
	graphURL string
	client   *http.Client
}

// NewFacebookProvider uses DefaultFacebookGraphURL when graphURL is empty.
func NewFacebookProvider(graphURL string, timeout time.Duration) *FacebookProvider {
	if graphURL == "" {
		graphURL = DefaultFacebookGraphURL
	}
	return &FacebookProvider{
		graphURL: strings.TrimRight(graphURL, "/"),
		client:   newHTTPClient(timeout),
	}
}

func (p *FacebookProvider) Name() string { return ProviderFacebook }

type facebookMe struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Resolve looks the token up on the Graph API. Accounts without an email
// get an id-based placeholder address.
func (p *FacebookProvider) Resolve(ctx context.Context, creds Credentials) (*VerifiedIdentity, error) {
	if creds.AccessToken == "" {
		return nil, ErrNoAccessToken
	}

	me, err := p.fetchMe(ctx, creds.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("auth: facebook: %w: %w", ErrInvalidFacebookToken, err)
	}

	email := me.Email
	if email == "" {
		if me.ID == "" {
			return nil, ErrInvalidFacebookToken
		}
		email = me.ID + "@" + FacebookPlaceholderDomain
	}
	name := strings.TrimSpace(me.Name)
	if name == "" {
		name = "user"
	}

	return &VerifiedIdentity{
		Provider:    ProviderFacebook,
		Email:       email,
		DisplayName: name,
	}, nil
}

func (p *FacebookProvider) fetchMe(ctx context.Context, accessToken string) (*facebookMe, error) {
	q := url.Values{}
	q.Set("fields", "id,name,email")
	q.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+"/me?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building graph request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		// url.Error would echo the token back in the message.
		return nil, fmt.Errorf("calling graph api: %w", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("graph api returned status %d", resp.StatusCode)
	}

	var me facebookMe
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderBody)).Decode(&me); err != nil {
		return nil, fmt.Errorf("decoding graph response: %w", err)
	}
	return &me, nil
}

func stripURL(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}
