package handlers_test

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"

	"github.com/Still-River/river/internal/api/handlers"
	"github.com/Still-River/river/internal/oauth"
	"github.com/Still-River/river/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBrowser returns a client that keeps cookies and does not follow
// redirects.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestAuthHandler_GoogleLogin(t *testing.T) {
	ts := testutil.NewTestServer(t)
	browser := newBrowser(t)

	ts.Provider.AddIdentity("good-code", &oauth.Identity{
		Subject: "google-123",
		Email:   "grace@example.com",
		Name:    "Grace",
	})

	redirect := url.QueryEscape("http://localhost:5173/values")
	resp, err := browser.Get(ts.APIURL("/auth/google/url?redirect=" + redirect))
	require.NoError(t, err)
	defer resp.Body.Close()

	var start handlers.AuthURLResponse
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	testutil.AssertJSONResponse(t, resp, &start)
	assert.Contains(t, start.AuthURL, url.QueryEscape(ts.Provider.LastState))

	callback := ts.APIURL("/auth/google/callback?code=good-code&state=" + url.QueryEscape(ts.Provider.LastState))
	resp, err = browser.Get(callback)
	require.NoError(t, err)
	defer resp.Body.Close()

	testutil.AssertStatusCode(t, resp, http.StatusFound)
	assert.Equal(t, "http://localhost:5173/values?login=success", resp.Header.Get("Location"))

	resp, err = browser.Get(ts.APIURL("/auth/me"))
	require.NoError(t, err)
	defer resp.Body.Close()

	var me handlers.MeResponse
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	testutil.AssertJSONResponse(t, resp, &me)
	require.NotNil(t, me.User)
	assert.Equal(t, "grace@example.com", me.User.Email)
	require.NotNil(t, me.User.Name)
	assert.Equal(t, "Grace", *me.User.Name)
}

func TestAuthHandler_GoogleCallback_Failures(t *testing.T) {
	ts := testutil.NewTestServer(t)

	tests := []struct {
		name      string
		query     func(state string) string
		wantError string
	}{
		{
			name:      "provider reported error",
			query:     func(string) string { return "error=access_denied" },
			wantError: "access_denied",
		},
		{
			name:      "state mismatch",
			query:     func(string) string { return "state=forged&code=abc" },
			wantError: "invalid_state",
		},
		{
			name:      "missing code",
			query:     func(state string) string { return "state=" + url.QueryEscape(state) },
			wantError: "missing_code",
		},
		{
			name:      "token exchange failed",
			query:     func(state string) string { return "state=" + url.QueryEscape(state) + "&code=unknown" },
			wantError: "google_auth_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			browser := newBrowser(t)

			resp, err := browser.Get(ts.APIURL("/auth/google/url"))
			require.NoError(t, err)
			resp.Body.Close()

			resp, err = browser.Get(ts.APIURL("/auth/google/callback?" + tt.query(ts.Provider.LastState)))
			require.NoError(t, err)
			defer resp.Body.Close()

			testutil.AssertStatusCode(t, resp, http.StatusFound)
			location, err := url.Parse(resp.Header.Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, "localhost:5173", location.Host)
			assert.Equal(t, tt.wantError, location.Query().Get("error"))

			resp, err = browser.Get(ts.APIURL("/auth/me"))
			require.NoError(t, err)
			defer resp.Body.Close()

			var me handlers.MeResponse
			testutil.AssertJSONResponse(t, resp, &me)
			assert.Nil(t, me.User)
		})
	}
}

func TestAuthHandler_GoogleURL_ConfigurationError(t *testing.T) {
	ts := testutil.NewTestServer(t)
	ts.Provider.ConfigErr = true

	resp, err := http.Get(ts.APIURL("/auth/google/url"))
	require.NoError(t, err)
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusInternalServerError, "configuration_error")
}

func TestAuthHandler_Me(t *testing.T) {
	ts := testutil.NewTestServer(t)

	user, cookie := testutil.NewUserBuilder().
		WithName("Ada").
		BuildAndAuthenticate(t, ts)

	tests := []struct {
		name     string
		cookie   *http.Cookie
		wantUser bool
	}{
		{
			name:     "signed in",
			cookie:   cookie,
			wantUser: true,
		},
		{
			name:     "anonymous",
			cookie:   nil,
			wantUser: false,
		},
		{
			name:     "garbage cookie",
			cookie:   &http.Cookie{Name: ts.Config.SessionName, Value: "garbage"},
			wantUser: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, tt.cookie)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			var me handlers.MeResponse
			testutil.AssertStatusCode(t, resp, http.StatusOK)
			testutil.AssertJSONResponse(t, resp, &me)

			if !tt.wantUser {
				assert.Nil(t, me.User)
				return
			}
			require.NotNil(t, me.User)
			assert.Equal(t, user.ID, me.User.ID)
			assert.Equal(t, user.Email, me.User.Email)
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, cookie := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/logout"), nil, cookie)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var result handlers.LogoutResponse
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	testutil.AssertJSONResponse(t, resp, &result)
	assert.True(t, result.LoggedOut)
	assert.Equal(t, int64(0), ts.DB.Count(t, "user_sessions"))

	req = testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, cookie)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var me handlers.MeResponse
	testutil.AssertJSONResponse(t, resp, &me)
	assert.Nil(t, me.User)
}
