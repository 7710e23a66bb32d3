package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/retrorumble/tournament-lobby/brackets"
)

const clientSendBuffer = 256

type WebSocketHandler struct {
	hub      *brackets.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler принимает список разрешённых Origin; "*" или пустой
// список разрешают любые подключения (режим разработки).
func NewWebSocketHandler(hub *brackets.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = true
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeWs обрабатывает GET /ws?playerId=&tournamentId=
// Клиент всегда попадает в комнату лобби, плюс в комнату игрока и турнира, если они указаны.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	playerID := strings.TrimSpace(query.Get("playerId"))
	tournamentID := strings.TrimSpace(query.Get("tournamentId"))
	if playerID == brackets.Bye {
		http.Error(w, "invalid playerId", http.StatusBadRequest)
		return
	}

	rooms := []string{brackets.LobbyRoom}
	if playerID != "" {
		rooms = append(rooms, brackets.PlayerRoom(playerID))
	}
	if tournamentID != "" {
		rooms = append(rooms, brackets.TournamentRoom(tournamentID))
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отправляет HTTP ошибку клиенту, здесь просто логируем.
		log.Printf("Failed to upgrade websocket connection (player %q): %v", playerID, err)
		return
	}

	client := &brackets.Client{
		ID:    uuid.NewString(),
		Hub:   h.hub,
		Conn:  conn,
		Send:  make(chan []byte, clientSendBuffer),
		Rooms: rooms,
	}
	if !h.hub.Attach(client) {
		log.Printf("Hub stopped, rejecting websocket client %s", client.ID)
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	log.Printf("Client %s (player %q) connected to rooms %v", client.ID, playerID, rooms)
}
