package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/Still-River/river/internal/oauth"
	"golang.org/x/oauth2"
)

// FakeIdentityProvider stands in for Google. Codes registered with
// AddIdentity exchange successfully; any other code fails upstream.
type FakeIdentityProvider struct {
	mu         sync.Mutex
	identities map[string]*oauth.Identity
	LastState  string
	ConfigErr  bool
}

func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{identities: make(map[string]*oauth.Identity)}
}

// AddIdentity makes code resolve to identity.
func (p *FakeIdentityProvider) AddIdentity(code string, identity *oauth.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[code] = identity
}

func (p *FakeIdentityProvider) AuthorizationURL(state string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConfigErr {
		return "", oauth.ErrConfiguration
	}
	p.LastState = state
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state), nil
}

func (p *FakeIdentityProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.identities[code]; !ok {
		return nil, fmt.Errorf("%w: token request failed", oauth.ErrUpstream)
	}
	return &oauth2.Token{AccessToken: "token-" + code}, nil
}

func (p *FakeIdentityProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*oauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	const prefix = "token-"
	if len(token.AccessToken) <= len(prefix) {
		return nil, errors.New("unknown token")
	}
	identity, ok := p.identities[token.AccessToken[len(prefix):]]
	if !ok {
		return nil, fmt.Errorf("%w: failed to fetch user information", oauth.ErrUpstream)
	}
	clone := *identity
	return &clone, nil
}
