package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/handlers"
	"github.com/retrorumble/tournament-lobby/repositories"
	"github.com/retrorumble/tournament-lobby/services"
	"github.com/retrorumble/tournament-lobby/storage"
	"github.com/retrorumble/tournament-lobby/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	hub *brackets.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	repo := repositories.NewMemoryTournamentRepository()

	hub := brackets.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	manager := brackets.NewManager(store, hub, repo, logger, brackets.ManagerConfig{})
	locks := utils.NewKeyedMutex()
	tournaments := services.NewTournamentService(repo, manager, hub, locks, logger)
	registration := services.NewRegistrationService(repo, tournaments, hub, locks, false, logger)
	matches := services.NewMatchService(repo, manager, store, logger)

	router := chi.NewRouter()
	SetupRoutes(router, []string{"*"},
		handlers.NewTournamentHandler(tournaments, registration, matches),
		handlers.NewMatchHandler(matches),
		handlers.NewWebSocketHandler(hub, []string{"*"}),
	)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{Server: srv, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = strings.NewReader(raw)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(b)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, eventType string) brackets.WebSocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg brackets.WebSocketMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == eventType {
			return msg
		}
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestTournamentLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodPost, "/tournaments", map[string]interface{}{
		"name": "Blue Line Cup", "kind": "sit-n-go", "capacity": 2,
	})
	require.Equal(t, http.StatusCreated, status)
	created := decode[map[string]interface{}](t, body["tournament"])
	assert.Equal(t, "blue-line-cup", created["id"])

	connA := srv.dial(t, "playerId=A&tournamentId=blue-line-cup")
	require.Eventually(t, func() bool {
		return srv.hub.RoomSize(brackets.PlayerRoom("A")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	status, _ = srv.do(t, http.MethodPost, "/tournaments/blue-line-cup/join", map[string]interface{}{"player_id": "A"})
	assert.Equal(t, http.StatusCreated, status)
	status, body = srv.do(t, http.MethodPost, "/tournaments/blue-line-cup/join", map[string]interface{}{"player_id": "A"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "true", string(body["already_registered"]))

	status, body = srv.do(t, http.MethodPost, "/tournaments/blue-line-cup/join", map[string]interface{}{"player_id": "B"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "true", string(body["started"]))

	msg := readUntil(t, connA, brackets.EventMatchStart)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "blue-line-cup-r1-m0", payload["match_id"])
	assert.Equal(t, []interface{}{"A", "B"}, payload["players"])

	status, body = srv.do(t, http.MethodGet, "/tournaments/blue-line-cup/bracket", nil)
	require.Equal(t, http.StatusOK, status)
	view := decode[brackets.BracketView](t, body["bracket"])
	assert.Equal(t, 1, view.CurrentRound)

	result := map[string]string{"tournamentId": "blue-line-cup", "matchId": "blue-line-cup-r1-m0", "winnerId": "B"}
	status, body = srv.do(t, http.MethodPost, "/match-result", result)
	require.Equal(t, http.StatusOK, status)
	outcome := decode[map[string]interface{}](t, body["outcome"])
	assert.Equal(t, "B", outcome["champion"])

	champ := readUntil(t, connA, brackets.EventTournamentChampion)
	assert.Equal(t, "B", champ.Payload.(map[string]interface{})["champion"])

	status, body = srv.do(t, http.MethodPost, "/match-result", result)
	require.Equal(t, http.StatusConflict, status, "completed tournaments reject further results")
	assert.Contains(t, string(body["error"]), "champion")

	status, body = srv.do(t, http.MethodGet, "/matches/blue-line-cup-r1-m0", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"B"`, string(body["winner"]))

	status, body = srv.do(t, http.MethodGet, "/tournaments/blue-line-cup/matches", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]interface{}](t, body["matches"]), 1)

	status, body = srv.do(t, http.MethodGet, "/tournaments/blue-line-cup", nil)
	require.Equal(t, http.StatusOK, status)
	final := decode[map[string]interface{}](t, body["tournament"])
	assert.Equal(t, "completed", final["status"])
	assert.Equal(t, "B", final["champion"])
}

func TestHTTPErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	status, _ := srv.do(t, http.MethodPost, "/tournaments", map[string]interface{}{"name": "Four", "kind": "sit-n-go", "capacity": 4})
	require.Equal(t, http.StatusCreated, status)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	status, _ = srv.do(t, http.MethodPost, "/tournaments", map[string]interface{}{"name": "Free", "kind": "freeroll", "start_time": future})
	require.Equal(t, http.StatusCreated, status)

	for _, p := range []string{"A", "B", "C", "D"} {
		status, _ = srv.do(t, http.MethodPost, "/tournaments/four/join", map[string]interface{}{"player_id": p})
		require.Equal(t, http.StatusCreated, status)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown tournament", http.MethodGet, "/tournaments/nope", nil, http.StatusNotFound},
		{"unknown match", http.MethodGet, "/matches/four-r9-m9", nil, http.StatusNotFound},
		{"malformed json", http.MethodPost, "/match-result", `{"matchId":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/match-result", `{"match":"x"}`, http.StatusBadRequest},
		{"winner not in match", http.MethodPost, "/match-result",
			map[string]string{"tournamentId": "four", "matchId": "four-r1-m0", "winnerId": "C"}, http.StatusBadRequest},
		{"bracket not started", http.MethodGet, "/tournaments/free/bracket", nil, http.StatusConflict},
		{"registration closed", http.MethodPost, "/tournaments/four/join", map[string]string{"player_id": "E"}, http.StatusConflict},
		{"guest in freeroll", http.MethodPost, "/tournaments/free/join", map[string]string{"player_id": "guest-1"}, http.StatusForbidden},
		{"leave unknown player", http.MethodPost, "/tournaments/free/leave", map[string]string{"player_id": "Z"}, http.StatusNotFound},
		{"invalid kind", http.MethodPost, "/tournaments", map[string]string{"name": "x", "kind": "league"}, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/tournaments?limit=0", nil, http.StatusBadRequest},
		{"start already started", http.MethodPost, "/tournaments/four/start", nil, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := srv.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, status)
		})
	}

	// Result conflict once the first report is in.
	first := map[string]string{"tournamentId": "four", "matchId": "four-r1-m0", "winnerId": "A"}
	status, _ = srv.do(t, http.MethodPost, "/match-result", first)
	require.Equal(t, http.StatusOK, status)
	status, body := srv.do(t, http.MethodPost, "/match-result", first)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body["outcome"]), `"duplicate": true`)
	status, _ = srv.do(t, http.MethodPost, "/match-result", map[string]string{"tournamentId": "four", "matchId": "four-r1-m0", "winnerId": "B"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestListTournaments(t *testing.T) {
	srv := newTestServer(t)
	for _, name := range []string{"One", "Two", "Three"} {
		status, _ := srv.do(t, http.MethodPost, "/tournaments", map[string]interface{}{"name": name, "kind": "sit-n-go"})
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := srv.do(t, http.MethodGet, "/tournaments?kind=sit-n-go&limit=2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]interface{}](t, body["tournaments"]), 2)

	status, body = srv.do(t, http.MethodGet, "/tournaments?status=active", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]interface{}](t, body["tournaments"]))

	status, _ = srv.do(t, http.MethodGet, "/tournaments?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
