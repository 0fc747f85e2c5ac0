// Package signal implements the websocket client side of the relay channel.
package signal

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lanparty/screenshare/internal/domain"
)

const pingInterval = 30 * time.Second

// Client manages the persistent websocket connection to the relay endpoint.
// It carries only small control messages, never media.
type Client struct {
	relayURL   string
	playerID   string
	playerName string
	handler    domain.Handler

	conn *websocket.Conn

	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

// NewClient creates a signaling client. Call SetHandler before Connect to
// complete the circular dependency (the manager needs the client to send,
// the client needs the manager to dispatch).
func NewClient(relayURL, playerID, playerName string) *Client {
	return &Client{
		relayURL:   relayURL,
		playerID:   playerID,
		playerName: playerName,
		closed:     make(chan struct{}),
	}
}

// SetHandler injects the inbound message handler after construction.
func (c *Client) SetHandler(h domain.Handler) {
	c.handler = h
}

// Connect dials the relay, registers the local participant, and starts the
// read and ping loops.
func (c *Client) Connect() error {
	log.Printf("[signal] connecting to %s", c.relayURL)

	conn, _, err := websocket.DefaultDialer.Dial(c.relayURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	if err := c.Send(domain.Message{
		Type:       domain.TypeRegister,
		ClientID:   c.playerID,
		PlayerName: c.playerName,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("register: %w", err)
	}

	go c.readLoop()
	go c.pingLoop()

	return nil
}

// Send marshals and writes one message. Writes are serialized; gorilla
// permits only one concurrent writer.
func (c *Client) Send(msg domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.closed) })
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				log.Printf("[signal] read error: %v", err)
			}
			return
		}

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[signal] unmarshal error: %v", err)
			continue
		}

		c.handler.HandleSignal(msg)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(5*time.Second),
			)
			c.mu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
				default:
					log.Printf("[signal] ping error: %v", err)
				}
				return
			}
		}
	}
}
