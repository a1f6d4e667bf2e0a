package oauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Still-River/river/internal/config"
	"github.com/Still-River/river/internal/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		GoogleRedirectURI:  "http://localhost:8080/auth/google/callback",
		GoogleScopes:       "openid email profile",
		GooglePrompt:       "consent",
		GoogleAccessType:   "offline",
	}
}

func newGoogleStub(t *testing.T, userInfoStatus int, userInfo map[string]string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-123", r.Header.Get("Authorization"))
		w.WriteHeader(userInfoStatus)
		json.NewEncoder(w).Encode(userInfo)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGoogleProvider_AuthorizationURL(t *testing.T) {
	provider := oauth.NewGoogleProvider(testConfig())

	raw, err := provider.AuthorizationURL("state-xyz")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "true", q.Get("include_granted_scopes"))
}

func TestGoogleProvider_MissingConfiguration(t *testing.T) {
	cfg := testConfig()
	cfg.GoogleClientSecret = ""
	provider := oauth.NewGoogleProvider(cfg)

	_, err := provider.AuthorizationURL("state")
	assert.ErrorIs(t, err, oauth.ErrConfiguration)

	_, err = provider.Exchange(context.Background(), "code")
	assert.ErrorIs(t, err, oauth.ErrConfiguration)
}

func TestGoogleProvider_ExchangeAndFetchIdentity(t *testing.T) {
	stub := newGoogleStub(t, http.StatusOK, map[string]string{
		"sub":     "google-sub-1",
		"email":   "river@example.com",
		"name":    "River User",
		"picture": "https://example.com/avatar.png",
	})
	provider := oauth.NewGoogleProvider(testConfig()).
		WithEndpoints(stub.URL+"/auth", stub.URL+"/token", stub.URL+"/userinfo")
	ctx := context.Background()

	token, err := provider.Exchange(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "access-123", token.AccessToken)

	identity, err := provider.FetchIdentity(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "google-sub-1", identity.Subject)
	assert.Equal(t, "river@example.com", identity.Email)
	assert.Equal(t, "River User", identity.Name)
}

func TestGoogleProvider_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		status   int
		userInfo map[string]string
	}{
		{name: "token request rejected", code: "bad-code", status: http.StatusOK, userInfo: map[string]string{"sub": "x"}},
		{name: "userinfo error status", code: "good-code", status: http.StatusUnauthorized, userInfo: map[string]string{}},
		{name: "userinfo without subject", code: "good-code", status: http.StatusOK, userInfo: map[string]string{"email": "a@b.c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newGoogleStub(t, tt.status, tt.userInfo)
			provider := oauth.NewGoogleProvider(testConfig()).
				WithEndpoints(stub.URL+"/auth", stub.URL+"/token", stub.URL+"/userinfo")
			ctx := context.Background()

			token, err := provider.Exchange(ctx, tt.code)
			if err == nil {
				_, err = provider.FetchIdentity(ctx, token)
			}
			assert.ErrorIs(t, err, oauth.ErrUpstream)
		})
	}
}
