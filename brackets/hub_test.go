package brackets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/retrorumble/tournament-lobby/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		player := r.URL.Query().Get("player")
		client := &Client{
			ID:    player,
			Hub:   hub,
			Conn:  conn,
			Send:  make(chan []byte, 8),
			Rooms: []string{PlayerRoom(player), TournamentRoom("cup"), LobbyRoom},
		}
		if !hub.Attach(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub, player string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?player=" + player
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.RoomSize(PlayerRoom(player)) == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubNotifyPlayer(t *testing.T) {
	hub := startHub(t)
	srv := newHubServer(t, hub)
	conn := dial(t, srv, hub, "A")

	match := &models.MatchDescriptor{MatchID: "cup-r1-m0", TournamentID: "cup", Players: []string{"A", "B"}}
	require.NoError(t, hub.NotifyPlayer(context.Background(), "A", match))

	msg := readMessage(t, conn)
	assert.JSONEq(t, `"matchStart"`, string(msg["type"]))
	var payload models.MatchDescriptor
	require.NoError(t, json.Unmarshal(msg["payload"], &payload))
	assert.Equal(t, "cup-r1-m0", payload.MatchID)
	assert.Equal(t, []string{"A", "B"}, payload.Players)
}

func TestHubNotifyOfflinePlayer(t *testing.T) {
	hub := startHub(t)

	err := hub.NotifyPlayer(context.Background(), "ghost", &models.MatchDescriptor{MatchID: "m"})
	assert.ErrorIs(t, err, ErrRecipientOffline)

	err = hub.NotifyPlayer(context.Background(), Bye, &models.MatchDescriptor{MatchID: "m"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHubNotifyFullBuffer(t *testing.T) {
	hub := startHub(t)
	client := &Client{ID: "slow", Hub: hub, Send: make(chan []byte), Rooms: []string{PlayerRoom("slow")}}
	require.True(t, hub.Attach(client))
	require.Eventually(t, func() bool { return hub.RoomSize(PlayerRoom("slow")) == 1 }, time.Second, 5*time.Millisecond)

	err := hub.NotifyPlayer(context.Background(), "slow", &models.MatchDescriptor{MatchID: "m"})
	assert.ErrorIs(t, err, ErrSendBufferFull)
}

func TestHubBroadcastChampion(t *testing.T) {
	hub := startHub(t)
	require.NoError(t, hub.BroadcastChampion(context.Background(), "cup", "A"), "no listeners is not a failure")

	srv := newHubServer(t, hub)
	conn := dial(t, srv, hub, "B")

	require.NoError(t, hub.BroadcastChampion(context.Background(), "cup", "A"))

	// Subscribed to both the tournament room and the lobby.
	for i := 0; i < 2; i++ {
		msg := readMessage(t, conn)
		assert.JSONEq(t, `"tournamentChampion"`, string(msg["type"]))
		assert.JSONEq(t, `{"tournamentId":"cup","champion":"A"}`, string(msg["payload"]))
	}
}

func TestHubLobbyBroadcast(t *testing.T) {
	hub := startHub(t)
	srv := newHubServer(t, hub)
	conn := dial(t, srv, hub, "C")

	hub.BroadcastLobby(EventTournamentCreated, map[string]string{"id": "cup-2"})

	msg := readMessage(t, conn)
	assert.JSONEq(t, `"tournamentCreated"`, string(msg["type"]))
	assert.JSONEq(t, `{"id":"cup-2"}`, string(msg["payload"]))
}

func TestHubUnregisterOnDisconnect(t *testing.T) {
	hub := startHub(t)
	srv := newHubServer(t, hub)
	conn := dial(t, srv, hub, "D")

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.RoomSize(PlayerRoom("D")) == 0 }, 2*time.Second, 10*time.Millisecond)
}
