package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/Still-River/river/internal/testutil"
	"github.com/Still-River/river/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketHandler_ProgressSavedFanOut(t *testing.T) {
	ts := testutil.NewTestServer(t)
	testutil.SeedValuesJournal(t, ts.DB.DB)

	user, cookie := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	other, otherCookie := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	tab := testutil.NewWSClient(t, ts.WebSocketURL("/journals/values-journal/events"), cookie)
	stranger := testutil.NewWSClient(t, ts.WebSocketURL("/journals/values-journal/events"), otherCookie)

	require.Eventually(t, func() bool {
		return ts.Hub.ConnectionCount(user.ID) == 1 && ts.Hub.ConnectionCount(other.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp := doRequest(t, http.MethodPut, ts.APIURL("/journals/values-journal/responses"),
		`{"responses":{"legacyVision":"plant trees"},"activeStep":3}`, cookie)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	event := tab.ExpectProgressSaved(2 * time.Second)
	assert.Equal(t, "values-journal", event.JournalSlug)
	assert.Equal(t, 3, event.State.ActiveStep)
	assert.Equal(t, "plant trees", event.Responses["legacyVision"])

	stranger.ExpectNoMessage(200 * time.Millisecond)
}

func TestWebSocketHandler_Ping(t *testing.T) {
	ts := testutil.NewTestServer(t)
	testutil.SeedValuesJournal(t, ts.DB.DB)
	_, cookie := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	client := testutil.NewWSClient(t, ts.WebSocketURL("/journals/values-journal/events"), cookie)
	client.Send(websocket.MessageTypePing)

	msg := client.ExpectMessage(websocket.MessageTypePong, 2*time.Second)
	assert.Equal(t, websocket.MessageTypePong, msg.Type)
}

func TestWebSocketHandler_Rejects(t *testing.T) {
	ts := testutil.NewTestServer(t)
	testutil.SeedValuesJournal(t, ts.DB.DB)
	_, cookie := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	tests := []struct {
		name           string
		path           string
		cookie         *http.Cookie
		expectedStatus int
	}{
		{"anonymous", "/journals/values-journal/events", nil, http.StatusUnauthorized},
		{"unknown journal", "/journals/nope/events", cookie, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.cookie != nil {
				header.Set("Cookie", tt.cookie.String())
			}

			conn, resp, err := gorillaWS.DefaultDialer.Dial(ts.WebSocketURL(tt.path), header)
			if conn != nil {
				conn.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}
