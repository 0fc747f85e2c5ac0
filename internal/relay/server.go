// Package relay implements the signaling relay endpoint shared by all
// participants. It carries only small control messages: targeted messages go
// to exactly one client, untargeted ones are broadcast to everyone else.
package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"lanparty/screenshare/internal/domain"
)

const sendBuffer = 256

type client struct {
	id   string
	name string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) deliver(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		// buffer full, drop
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
	c.conn.Close()
}

func (c *client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// Server routes signaling messages between registered participants.
type Server struct {
	mu       sync.Mutex
	clients  map[string]*client
	upgrader websocket.Upgrader
}

// NewServer creates a relay server.
func NewServer() *Server {
	return &Server{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades one participant connection and serves it until
// disconnect.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	s.readPump(c)
}

// ListenAndServe runs the relay on addr with the websocket endpoint at /ws.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)

	log.Printf("[relay] listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// ClientCount returns how many participants are registered.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.removeClient(c)
		c.stop()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[relay] read error: %v", err)
			}
			return
		}

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[relay] invalid message: %v", err)
			continue
		}

		if msg.Type == domain.TypeRegister {
			s.register(c, msg)
			continue
		}
		if c.id == "" {
			// unregistered clients may not relay anything
			continue
		}

		if msg.To != "" {
			s.forward(msg.To, data)
		} else {
			s.broadcastExcept(c.id, data)
		}
	}
}

// register records the participant, answers with the current player list,
// and announces the arrival to everyone else. Registering an id that is
// already connected supersedes the old connection.
func (s *Server) register(c *client, msg domain.Message) {
	if msg.ClientID == "" {
		return
	}

	// id and name are read under s.mu by other connections' register and
	// broadcast paths, so they are only ever written under it. A connection
	// cannot change its id once registered.
	s.mu.Lock()
	if c.id != "" && c.id != msg.ClientID {
		s.mu.Unlock()
		log.Printf("[relay] %s ignored re-register as %s", c.id, msg.ClientID)
		return
	}
	c.id = msg.ClientID
	c.name = msg.PlayerName

	old, existed := s.clients[c.id]
	s.clients[c.id] = c

	players := make([]domain.PlayerInfo, 0, len(s.clients)-1)
	for id, other := range s.clients {
		if id != c.id {
			players = append(players, domain.PlayerInfo{PlayerID: id, PlayerName: other.name})
		}
	}
	online := len(s.clients)
	s.mu.Unlock()

	if existed && old != c {
		old.stop()
	}

	log.Printf("[relay] registered %s (%s), %d online", c.name, c.id, online)

	c.deliver(mustMarshal(domain.Message{Type: domain.TypePlayersList, Players: players}))
	s.broadcastExcept(c.id, mustMarshal(domain.Message{
		Type:       domain.TypePlayerJoined,
		PlayerID:   c.id,
		PlayerName: c.name,
	}))
}

func (s *Server) removeClient(c *client) {
	if c.id == "" {
		return
	}

	s.mu.Lock()
	current, ok := s.clients[c.id]
	if ok && current == c {
		delete(s.clients, c.id)
	}
	superseded := ok && current != c
	s.mu.Unlock()

	if superseded {
		// a reconnect already took over this id
		return
	}

	log.Printf("[relay] %s disconnected", c.id)
	s.broadcastExcept(c.id, mustMarshal(domain.Message{
		Type:     domain.TypePlayerLeft,
		PlayerID: c.id,
	}))
}

func (s *Server) forward(to string, data []byte) {
	s.mu.Lock()
	target, ok := s.clients[to]
	s.mu.Unlock()

	if !ok {
		log.Printf("[relay] drop message for unknown client %s", to)
		return
	}
	target.deliver(data)
}

func (s *Server) broadcastExcept(exclude string, data []byte) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for id, other := range s.clients {
		if id != exclude {
			targets = append(targets, other)
		}
	}
	s.mu.Unlock()

	for _, t := range targets {
		t.deliver(data)
	}
}

func mustMarshal(msg domain.Message) []byte {
	data, _ := json.Marshal(msg)
	return data
}
