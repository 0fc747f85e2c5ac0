package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lanparty/screenshare/internal/domain"
)

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialRelay(t *testing.T, server *httptest.Server) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msg domain.Message) {
	c.t.Helper()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) recv() domain.Message {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg domain.Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return msg
}

func (c *testClient) register(id, name string) {
	c.t.Helper()
	c.send(domain.Message{Type: domain.TypeRegister, ClientID: id, PlayerName: name})
	if msg := c.recv(); msg.Type != domain.TypePlayersList {
		c.t.Fatalf("expected players-list after register, got %q", msg.Type)
	}
}

func newRelayServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer()
	ts := httptest.NewServer(http.HandlerFunc(s.HandleWebSocket))
	t.Cleanup(ts.Close)
	return s, ts
}

func waitCount(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", want, s.ClientCount())
}

func TestRegister_ReturnsPlayerList(t *testing.T) {
	_, ts := newRelayServer(t)

	alice := dialRelay(t, ts)
	alice.send(domain.Message{Type: domain.TypeRegister, ClientID: "P1", PlayerName: "Alice"})
	list := alice.recv()
	if list.Type != domain.TypePlayersList || len(list.Players) != 0 {
		t.Fatalf("expected empty players-list, got %+v", list)
	}

	bob := dialRelay(t, ts)
	bob.send(domain.Message{Type: domain.TypeRegister, ClientID: "P2", PlayerName: "Bob"})
	list = bob.recv()
	if len(list.Players) != 1 || list.Players[0].PlayerID != "P1" || list.Players[0].PlayerName != "Alice" {
		t.Fatalf("expected [Alice], got %+v", list.Players)
	}

	joined := alice.recv()
	if joined.Type != domain.TypePlayerJoined || joined.PlayerID != "P2" {
		t.Fatalf("expected player-joined for P2, got %+v", joined)
	}
}

func TestForward_TargetedMessage(t *testing.T) {
	_, ts := newRelayServer(t)

	alice := dialRelay(t, ts)
	alice.register("P1", "Alice")
	bob := dialRelay(t, ts)
	bob.register("P2", "Bob")
	_ = alice.recv() // player-joined P2

	alice.send(domain.Message{
		Type:    domain.TypeShareOffer,
		From:    "P1",
		To:      "P2",
		ShareID: "share-P1-1",
	})

	got := bob.recv()
	if got.Type != domain.TypeShareOffer || got.From != "P1" || got.ShareID != "share-P1-1" {
		t.Fatalf("unexpected forwarded message %+v", got)
	}
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	_, ts := newRelayServer(t)

	alice := dialRelay(t, ts)
	alice.register("P1", "Alice")
	bob := dialRelay(t, ts)
	bob.register("P2", "Bob")
	carol := dialRelay(t, ts)
	carol.register("P3", "Carol")
	_ = alice.recv() // player-joined P2
	_ = alice.recv() // player-joined P3
	_ = bob.recv()   // player-joined P3

	alice.send(domain.Message{Type: domain.TypeShareStart, From: "P1", ShareID: "share-P1-1"})

	for _, c := range []*testClient{bob, carol} {
		got := c.recv()
		if got.Type != domain.TypeShareStart || got.ShareID != "share-P1-1" {
			t.Fatalf("unexpected broadcast %+v", got)
		}
	}

	// the sender must not see its own broadcast; the next message it
	// receives is something else entirely
	alice.send(domain.Message{Type: domain.TypeShareOffer, From: "P1", To: "P1", ShareID: "x"})
	if got := alice.recv(); got.Type != domain.TypeShareOffer {
		t.Fatalf("sender received its own broadcast: %+v", got)
	}
}

func TestUnregisteredClientCannotRelay(t *testing.T) {
	_, ts := newRelayServer(t)

	alice := dialRelay(t, ts)
	alice.register("P1", "Alice")

	ghost := dialRelay(t, ts)
	ghost.send(domain.Message{Type: domain.TypeShareStart, From: "ghost", ShareID: "share-ghost-1"})

	// a registered follow-up proves the ghost message was dropped
	bob := dialRelay(t, ts)
	bob.register("P2", "Bob")
	got := alice.recv()
	if got.Type != domain.TypePlayerJoined || got.PlayerID != "P2" {
		t.Fatalf("expected player-joined, got %+v", got)
	}
}

func TestDisconnect_BroadcastsPlayerLeft(t *testing.T) {
	s, ts := newRelayServer(t)

	alice := dialRelay(t, ts)
	alice.register("P1", "Alice")
	bob := dialRelay(t, ts)
	bob.register("P2", "Bob")
	_ = alice.recv() // player-joined P2

	bob.conn.Close()

	got := alice.recv()
	if got.Type != domain.TypePlayerLeft || got.PlayerID != "P2" {
		t.Fatalf("expected player-left for P2, got %+v", got)
	}
	waitCount(t, s, 1)
}

func TestRegister_IdChangeIgnored(t *testing.T) {
	s, ts := newRelayServer(t)

	alice := dialRelay(t, ts)
	alice.register("P1", "Alice")

	// a registered connection cannot take over a different id
	alice.send(domain.Message{Type: domain.TypeRegister, ClientID: "P9", PlayerName: "Mallory"})

	bob := dialRelay(t, ts)
	bob.send(domain.Message{Type: domain.TypeRegister, ClientID: "P2", PlayerName: "Bob"})
	list := bob.recv()
	if list.Type != domain.TypePlayersList {
		t.Fatalf("expected players-list, got %q", list.Type)
	}
	if len(list.Players) != 1 || list.Players[0].PlayerID != "P1" {
		t.Fatalf("expected only P1 registered, got %+v", list.Players)
	}
	waitCount(t, s, 2)

	// the original registration keeps receiving targeted traffic
	bob.send(domain.Message{Type: domain.TypeShareOffer, From: "P2", To: "P1", ShareID: "share-P2-1"})
	got := alice.recv()
	if got.Type != domain.TypePlayerJoined {
		t.Fatalf("expected player-joined first, got %+v", got)
	}
	got = alice.recv()
	if got.Type != domain.TypeShareOffer || got.From != "P2" {
		t.Fatalf("expected forwarded offer, got %+v", got)
	}
}

func TestRegister_SupersedesOldConnection(t *testing.T) {
	s, ts := newRelayServer(t)

	alice := dialRelay(t, ts)
	alice.register("P1", "Alice")
	bob := dialRelay(t, ts)
	bob.register("P2", "Bob")
	_ = alice.recv() // player-joined P2

	// the same id reconnects; the old socket is cut without a player-left
	bob2 := dialRelay(t, ts)
	bob2.register("P2", "Bob")
	waitCount(t, s, 2)

	got := alice.recv()
	if got.Type != domain.TypePlayerJoined || got.PlayerID != "P2" {
		t.Fatalf("expected re-join announcement, got %+v", got)
	}

	// the replacement connection still receives targeted traffic
	alice.send(domain.Message{Type: domain.TypeShareOffer, From: "P1", To: "P2", ShareID: "share-P1-1"})
	fwd := bob2.recv()
	if fwd.Type != domain.TypeShareOffer {
		t.Fatalf("expected forward to replacement, got %+v", fwd)
	}
}
