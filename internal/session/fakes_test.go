package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"lanparty/screenshare/internal/domain"
)

// fakeSignaler records outbound messages and optionally routes them onward.
type fakeSignaler struct {
	mu      sync.Mutex
	sent    []domain.Message
	deliver func(domain.Message)
}

func (s *fakeSignaler) Send(msg domain.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	deliver := s.deliver
	s.mu.Unlock()

	if deliver != nil {
		deliver(msg)
	}
	return nil
}

func (s *fakeSignaler) Close() {}

func (s *fakeSignaler) setDeliver(fn func(domain.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliver = fn
}

func (s *fakeSignaler) ofType(msgType string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// fakeStream is a trivial RemoteStream.
type fakeStream struct{ id string }

func (f fakeStream) ID() string    { return f.id }
func (f fakeStream) Kind() string  { return "video" }
func (f fakeStream) Codec() string { return "video/H264" }

// fakeTrack is a trivial LocalTrack.
type fakeTrack struct{ id string }

func (f fakeTrack) ID() string   { return f.id }
func (f fakeTrack) Kind() string { return "video" }

// fakePeer is a scriptable domain.Peer that records every interaction and
// lets tests fire the registered callbacks.
type fakePeer struct {
	mu          sync.Mutex
	localDescs  []domain.SessionDescription
	remoteDescs []domain.SessionDescription
	candidates  []domain.ICECandidate
	tracks      []domain.LocalTrack
	closeCount  int

	onTrack     func(domain.RemoteStream)
	onCandidate func(domain.ICECandidate)
	onState     func(domain.PeerState)

	// autoTrackOnAnswer fires a track as soon as a remote answer lands,
	// simulating media arriving right after negotiation.
	autoTrackOnAnswer bool

	failAddCandidate bool
}

func (p *fakePeer) CreateOffer() (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: "offer", SDP: "v=0\r\nfake-offer"}, nil
}

func (p *fakePeer) CreateAnswer() (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: "answer", SDP: "v=0\r\nfake-answer"}, nil
}

func (p *fakePeer) SetLocalDescription(desc domain.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.localDescs = append(p.localDescs, desc)
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc domain.SessionDescription) error {
	p.mu.Lock()
	p.remoteDescs = append(p.remoteDescs, desc)
	auto := p.autoTrackOnAnswer && desc.Type == "answer"
	fn := p.onTrack
	p.mu.Unlock()

	if auto && fn != nil {
		go fn(fakeStream{id: "auto"})
	}
	return nil
}

func (p *fakePeer) AddICECandidate(c domain.ICECandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAddCandidate {
		return errors.New("bad candidate")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) AddTrack(track domain.LocalTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePeer) OnTrack(fn func(domain.RemoteStream)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *fakePeer) OnICECandidate(fn func(domain.ICECandidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *fakePeer) OnStateChange(fn func(domain.PeerState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCount++
	return nil
}

func (p *fakePeer) fireTrack(stream domain.RemoteStream) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(stream)
	}
}

func (p *fakePeer) fireState(st domain.PeerState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (p *fakePeer) closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount > 0
}

func (p *fakePeer) remoteDescCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remoteDescs)
}

func (p *fakePeer) appliedCandidates() []domain.ICECandidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ICECandidate(nil), p.candidates...)
}

// peerMaker is a PeerFactory that hands out fakePeers and remembers them.
// onCreate, when set, runs before each connection is constructed.
type peerMaker struct {
	mu        sync.Mutex
	peers     []*fakePeer
	autoTrack bool
	onCreate  func()
}

func (pm *peerMaker) factory() (domain.Peer, error) {
	if fn := pm.onCreate; fn != nil {
		fn()
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	p := &fakePeer{autoTrackOnAnswer: pm.autoTrack}
	pm.peers = append(pm.peers, p)
	return p, nil
}

func (pm *peerMaker) peer(i int) *fakePeer {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if i < 0 {
		i += len(pm.peers)
	}
	if i < 0 || i >= len(pm.peers) {
		return nil
	}
	return pm.peers[i]
}

func (pm *peerMaker) count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.peers)
}

// fakeCapture is a CaptureSource with one fake track.
type fakeCapture struct {
	mu      sync.Mutex
	onEnded func()
	closed  bool
}

func (c *fakeCapture) Tracks() []domain.LocalTrack {
	return []domain.LocalTrack{fakeTrack{id: "screen"}}
}

func (c *fakeCapture) OnEnded(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = fn
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCapture) end() {
	c.mu.Lock()
	fn := c.onEnded
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *fakeCapture) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type testRig struct {
	mgr     *Manager
	sig     *fakeSignaler
	peers   *peerMaker
	capture *fakeCapture
}

func newTestRig(playerID, playerName string, timeout time.Duration) *testRig {
	sig := &fakeSignaler{}
	peers := &peerMaker{}
	cap := &fakeCapture{}
	mgr := NewManager(Config{
		PlayerID:    playerID,
		PlayerName:  playerName,
		Signaler:    sig,
		NewPeer:     peers.factory,
		Capture:     func() (domain.CaptureSource, error) { return cap, nil },
		ViewTimeout: timeout,
	})
	return &testRig{mgr: mgr, sig: sig, peers: peers, capture: cap}
}

// mirrorShare teaches a rig about a remote share.
func (r *testRig) mirrorShare(ownerID, ownerName, shareID string, hasPassword bool) {
	r.mgr.HandleSignal(domain.Message{
		Type:        domain.TypeShareStart,
		From:        ownerID,
		ShareID:     shareID,
		PlayerName:  ownerName,
		HasPassword: hasPassword,
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
