package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHubServer(t *testing.T, hub *Hub, userID uint) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, userID)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

func waitForConnections(t *testing.T, hub *Hub, userID uint, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(userID) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_NotifyUserReachesEveryConnectionOfThatUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	alice := newTestHubServer(t, hub, 1)
	bob := newTestHubServer(t, hub, 2)

	first := dial(t, alice)
	second := dial(t, alice)
	other := dial(t, bob)
	waitForConnections(t, hub, 1, 2)
	waitForConnections(t, hub, 2, 1)

	hub.NotifyUser(1, string(MessageTypeProgressSaved), map[string]int{"activeStep": 2})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeProgressSaved, msg.Type)
		assert.Equal(t, 1, msg.Seq)
		assert.JSONEq(t, `{"activeStep":2}`, string(msg.Payload))
	}

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "another user's connection must not receive the message")
}

func TestHub_SequenceIncreasesPerUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := newTestHubServer(t, hub, 7)
	conn := dial(t, server)
	waitForConnections(t, hub, 7, 1)

	hub.NotifyUser(7, string(MessageTypeProgressSaved), nil)
	hub.NotifyUser(7, string(MessageTypeProgressSaved), nil)

	assert.Equal(t, 1, readMessage(t, conn).Seq)
	assert.Equal(t, 2, readMessage(t, conn).Seq)
}

func TestHub_PingIsAnswered(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := newTestHubServer(t, hub, 3)
	conn := dial(t, server)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := newTestHubServer(t, hub, 5)
	conn := dial(t, server)
	waitForConnections(t, hub, 5, 1)

	conn.Close()
	waitForConnections(t, hub, 5, 0)
}

func TestHub_StopIsIdempotentAndDropsLateNotifications(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hub.Stop()
	hub.Stop()

	assert.NotPanics(t, func() {
		hub.NotifyUser(1, string(MessageTypeProgressSaved), nil)
	})
}
