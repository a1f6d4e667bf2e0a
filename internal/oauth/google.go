// Package oauth talks to the Google OAuth 2.0 and OpenID Connect endpoints.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Still-River/river/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var (
	ErrConfiguration = errors.New("missing Google OAuth configuration. Set GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, and GOOGLE_REDIRECT_URI")
	ErrUpstream      = errors.New("google authentication failed")
)

// Identity is the subset of the OpenID userinfo document we keep.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type GoogleProvider struct {
	oauth       oauth2.Config
	prompt      string
	accessType  string
	userInfoURL string
	httpClient  *http.Client
}

func NewGoogleProvider(cfg *config.Config) *GoogleProvider {
	return &GoogleProvider{
		oauth: oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Scopes:       cfg.GoogleScopeList(),
			Endpoint:     endpoints.Google,
		},
		prompt:      cfg.GooglePrompt,
		accessType:  cfg.GoogleAccessType,
		userInfoURL: GoogleUserInfoURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithEndpoints points the provider at other servers, e.g. an httptest
// server in tests.
func (p *GoogleProvider) WithEndpoints(authURL, tokenURL, userInfoURL string) *GoogleProvider {
	p.oauth.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	p.userInfoURL = userInfoURL
	return p
}

func (p *GoogleProvider) configured() bool {
	return p.oauth.ClientID != "" && p.oauth.ClientSecret != "" && p.oauth.RedirectURL != ""
}

// AuthorizationURL builds the consent screen URL carrying state.
func (p *GoogleProvider) AuthorizationURL(state string) (string, error) {
	if !p.configured() {
		return "", ErrConfiguration
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if p.prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", p.prompt))
	}
	if p.accessType != "" {
		opts = append(opts, oauth2.SetAuthURLParam("access_type", p.accessType))
	}
	return p.oauth.AuthCodeURL(state, opts...), nil
}

// Exchange trades an authorization code for tokens.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !p.configured() {
		return nil, ErrConfiguration
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token request failed: %v", ErrUpstream, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrUpstream)
	}
	return token, nil
}

// FetchIdentity reads the userinfo document for token.
func (p *GoogleProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	client := p.oauth.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch user information: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: user information request returned %d", ErrUpstream, resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("%w: invalid user information payload: %v", ErrUpstream, err)
	}
	if identity.Subject == "" {
		return nil, fmt.Errorf("%w: invalid user information payload", ErrUpstream)
	}
	return &identity, nil
}
