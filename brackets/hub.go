package brackets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/retrorumble/tournament-lobby/models"
)

const (
	EventMatchStart         = "matchStart"
	EventTournamentChampion = "tournamentChampion"
	EventTournamentUpdate   = "tournamentUpdate"
	EventTournamentCreated  = "tournamentCreated"
	EventSitNGoUpdated      = "sitngoUpdated"
	EventTournamentSchedule = "tournamentSchedule"
)

const LobbyRoom = "lobby"

var (
	ErrRecipientOffline = errors.New("recipient has no connected client")
	ErrSendBufferFull   = errors.New("recipient send buffer is full")
)

func PlayerRoom(playerID string) string         { return "player:" + playerID }
func TournamentRoom(tournamentID string) string { return "tournament:" + tournamentID }

type Client struct {
	ID       string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	Rooms    []string
	IsClosed bool
	Mu       sync.Mutex
}

type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

type ChampionPayload struct {
	TournamentID string `json:"tournamentId"`
	Champion     string `json:"champion"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Hub routes events to websocket clients grouped in rooms: one room per
// player, one per tournament and a shared lobby.
type Hub struct {
	clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			for _, room := range client.Rooms {
				if _, ok := h.rooms[room]; !ok {
					h.rooms[room] = make(map[*Client]bool)
				}
				h.rooms[room][client] = true
			}
			log.Printf("Client %s registered to rooms %v", client.ID, client.Rooms)
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for _, room := range client.Rooms {
					delete(h.rooms[room], client)
					if len(h.rooms[room]) == 0 {
						delete(h.rooms, room)
					}
				}
				client.close()
				log.Printf("Client %s unregistered", client.ID)
			}
			h.mu.Unlock()
		}
	}
}

// Attach registers a client unless the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
}

// RoomSize reports how many clients are subscribed to a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastToRoom sends a message to every client of a room and returns
// how many clients accepted it.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}) (int, error) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return 0, fmt.Errorf("marshal message for room %s: %w", roomID, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	roomClients, ok := h.rooms[roomID]
	if !ok || len(roomClients) == 0 {
		return 0, fmt.Errorf("%w: room %s", ErrRecipientOffline, roomID)
	}

	delivered := 0
	for client := range roomClients {
		if client.trySend(messageBytes) {
			delivered++
		} else {
			log.Printf("Client %s send channel full or closed for room %s. Skipping.", client.ID, roomID)
		}
	}
	if delivered == 0 {
		return 0, fmt.Errorf("%w: room %s", ErrSendBufferFull, roomID)
	}
	return delivered, nil
}

// NotifyPlayer sends matchStart to every connection of the player.
func (h *Hub) NotifyPlayer(ctx context.Context, playerID string, match *models.MatchDescriptor) error {
	if playerID == "" || playerID == Bye {
		return fmt.Errorf("%w: no addressable player", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	room := PlayerRoom(playerID)
	_, err := h.BroadcastToRoom(room, WebSocketMessage{Type: EventMatchStart, Payload: match, RoomID: room})
	return err
}

// BroadcastChampion announces the winner to the tournament room and the lobby.
// Having nobody listening is not a failure.
func (h *Hub) BroadcastChampion(ctx context.Context, tournamentID, championID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := ChampionPayload{TournamentID: tournamentID, Champion: championID}
	var errs []error
	for _, room := range []string{TournamentRoom(tournamentID), LobbyRoom} {
		_, err := h.BroadcastToRoom(room, WebSocketMessage{Type: EventTournamentChampion, Payload: payload, RoomID: room})
		if err != nil && !errors.Is(err, ErrRecipientOffline) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BroadcastTournament sends an event to everybody watching a tournament.
func (h *Hub) BroadcastTournament(tournamentID, eventType string, payload interface{}) {
	room := TournamentRoom(tournamentID)
	if _, err := h.BroadcastToRoom(room, WebSocketMessage{Type: eventType, Payload: payload, RoomID: room}); err != nil && !errors.Is(err, ErrRecipientOffline) {
		log.Printf("Broadcast %s to %s failed: %v", eventType, room, err)
	}
}

// BroadcastLobby sends an event to every client in the lobby.
func (h *Hub) BroadcastLobby(eventType string, payload interface{}) {
	if _, err := h.BroadcastToRoom(LobbyRoom, WebSocketMessage{Type: eventType, Payload: payload}); err != nil && !errors.Is(err, ErrRecipientOffline) {
		log.Printf("Lobby broadcast %s failed: %v", eventType, err)
	}
}

func (c *Client) trySend(message []byte) bool {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.IsClosed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if !c.IsClosed {
		close(c.Send)
		c.IsClosed = true
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.detach(c)
		c.Conn.Close()
		log.Printf("Client %s readPump closed", c.ID)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
		// Входящие сообщения клиентов игнорируются.
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One JSON document per frame.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Error writing to client %s: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Error sending ping to client %s: %v", c.ID, err)
				return
			}
		}
	}
}
