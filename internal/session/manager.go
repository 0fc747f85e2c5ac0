// Package session creates, advertises, gates, and tears down peer-to-peer
// screen-share sessions over a relay-assisted signaling channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"lanparty/screenshare/internal/domain"
	"lanparty/screenshare/internal/registry"
)

// DefaultViewTimeout bounds how long a view request waits for media.
const DefaultViewTimeout = 30 * time.Second

var (
	errSuperseded = errors.New("superseded by a newer negotiation")
	errStopped    = errors.New("viewing stopped")
)

// Config carries the injected capabilities the manager drives. Everything is
// explicit so independent instances can run side by side in tests.
type Config struct {
	PlayerID   string
	PlayerName string
	Signaler   domain.Signaler
	NewPeer    domain.PeerFactory
	Capture    domain.CaptureProvider

	// ViewTimeout defaults to DefaultViewTimeout when zero.
	ViewTimeout time.Duration
}

// Manager composes the share registry and the per-key negotiation sessions
// behind the start/stop/view/stop-viewing surface, and dispatches every
// inbound signaling message to the right place.
type Manager struct {
	localID     string
	localName   string
	signaler    domain.Signaler
	newPeer     domain.PeerFactory
	capture     domain.CaptureProvider
	registry    *registry.Registry
	viewTimeout time.Duration

	mu       sync.Mutex
	sessions map[Key]*Session
	captures map[string]domain.CaptureSource
}

// NewManager wires a manager from its injected dependencies.
func NewManager(cfg Config) *Manager {
	timeout := cfg.ViewTimeout
	if timeout == 0 {
		timeout = DefaultViewTimeout
	}
	return &Manager{
		localID:     cfg.PlayerID,
		localName:   cfg.PlayerName,
		signaler:    cfg.Signaler,
		newPeer:     cfg.NewPeer,
		capture:     cfg.Capture,
		registry:    registry.New(cfg.PlayerID, cfg.PlayerName, cfg.Signaler),
		viewTimeout: timeout,
		sessions:    make(map[Key]*Session),
		captures:    make(map[string]domain.CaptureSource),
	}
}

// StartSharing acquires a capture source, registers the share, and broadcasts
// its availability. The returned id embeds the owner identity.
func (m *Manager) StartSharing(requiresPassword bool, password string) (string, error) {
	src, err := m.capture()
	if err != nil {
		return "", fmt.Errorf("acquire capture: %w", err)
	}

	share, err := m.registry.Create(requiresPassword, password)
	if err != nil {
		_ = src.Close()
		return "", err
	}

	m.mu.Lock()
	m.captures[share.ID] = src
	m.mu.Unlock()

	// Capture ending out-of-band (source disappears) stops the share.
	src.OnEnded(func() {
		log.Printf("[session] capture ended for %s", share.ID)
		m.StopSharing(share.ID)
	})

	log.Printf("[session] sharing started: %s", share.ID)
	return share.ID, nil
}

// StopSharing removes the share, tears down every session keyed to it in
// either role, and releases the capture source. Stopping an unknown or
// already-stopped share is a no-op.
func (m *Manager) StopSharing(shareID string) {
	if m.registry.Remove(shareID) {
		log.Printf("[session] sharing stopped: %s", shareID)
	}

	m.mu.Lock()
	src := m.captures[shareID]
	delete(m.captures, shareID)
	var doomed []*Session
	for key, sess := range m.sessions {
		if key.ShareID == shareID {
			delete(m.sessions, key)
			doomed = append(doomed, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range doomed {
		sess.reject(domain.ErrShareNotFound)
		sess.close()
	}
	if src != nil {
		_ = src.Close()
	}
}

// RequestView negotiates a viewing session for a remote share and blocks
// until media arrives, the owner rejects, the deadline expires, or ctx is
// cancelled. Failures return with the session already torn down, so a retry
// is always a fresh call.
func (m *Manager) RequestView(ctx context.Context, shareID, password string) (domain.RemoteStream, error) {
	share, ok := m.registry.Get(shareID)
	if !ok {
		return nil, domain.ErrShareNotFound
	}
	if share.RequiresPassword && password == "" {
		return nil, domain.ErrPasswordRequired
	}

	key := Key{ShareID: shareID, Role: RoleInitiator, Counterpart: share.OwnerID}

	// A previous attempt for this key must release its connection before
	// the replacement's exists.
	m.supersede(key)

	peer, err := m.newPeer()
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	sess := newSession(key, peer)

	peer.OnTrack(func(stream domain.RemoteStream) {
		log.Printf("[session] media resolved for %s", shareID)
		sess.resolve(stream)
	})
	peer.OnICECandidate(func(c domain.ICECandidate) {
		m.send(domain.Message{
			Type:      domain.TypeShareCandidate,
			From:      m.localID,
			To:        share.OwnerID,
			ShareID:   shareID,
			Candidate: &c,
		})
	})
	peer.OnStateChange(func(st domain.PeerState) {
		if st == domain.PeerFailed {
			sess.reject(domain.ErrTransportFailure)
			m.teardown(key, sess)
		}
	})

	m.install(key, sess)

	offer, err := peer.CreateOffer()
	if err == nil {
		err = peer.SetLocalDescription(offer)
	}
	if err != nil {
		m.teardown(key, sess)
		return nil, fmt.Errorf("create offer: %w", err)
	}
	sess.markLocalOffer()

	// The secret travels on this single message only.
	m.send(domain.Message{
		Type:       domain.TypeShareOffer,
		From:       m.localID,
		To:         share.OwnerID,
		ShareID:    shareID,
		PlayerName: m.localName,
		Password:   password,
		Offer:      &offer,
	})

	sess.armDeadline(m.viewTimeout, func() {
		sess.reject(domain.ErrNegotiationTimeout)
		m.teardown(key, sess)
	})

	select {
	case res := <-sess.resultCh:
		if res.err != nil {
			m.teardown(key, sess)
			return nil, res.err
		}
		return res.stream, nil
	case <-ctx.Done():
		sess.reject(ctx.Err())
		m.teardown(key, sess)
		return nil, ctx.Err()
	}
}

// StopViewing closes the viewing session for a share and tells the owner to
// reclaim the viewer slot. Safe to call multiple times.
func (m *Manager) StopViewing(shareID string) {
	m.mu.Lock()
	var doomed []*Session
	for key, sess := range m.sessions {
		if key.ShareID == shareID && key.Role == RoleInitiator {
			delete(m.sessions, key)
			doomed = append(doomed, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range doomed {
		sess.reject(errStopped)
		sess.close()
		m.send(domain.Message{
			Type:    domain.TypeShareViewerLeft,
			From:    m.localID,
			To:      sess.key.Counterpart,
			ShareID: shareID,
		})
	}
}

// ListShares returns every known share, owned and mirrored. Secrets are
// never part of the records.
func (m *Manager) ListShares() []domain.Share {
	return m.registry.List()
}

// Close tears down every share, session, and capture source.
func (m *Manager) Close() {
	for _, share := range m.registry.List() {
		if share.OwnerID == m.localID {
			m.StopSharing(share.ID)
		}
	}

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[Key]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.reject(errStopped)
		sess.close()
	}
}

// HandleSignal demultiplexes one inbound signaling message. Messages that
// reference an unknown share or session are dropped without raising an
// error, since the relay may replay or duplicate.
func (m *Manager) HandleSignal(msg domain.Message) {
	switch msg.Type {
	case domain.TypeShareStart:
		m.registry.ApplyStart(msg)

	case domain.TypeShareStop:
		m.registry.ApplyStop(msg)
		m.rejectViewsOf(msg.ShareID, domain.ErrShareNotFound)

	case domain.TypeShareUpdate:
		m.registry.ApplyUpdate(msg)

	case domain.TypeShareOffer:
		m.handleOffer(msg)

	case domain.TypeShareAnswer:
		m.handleAnswer(msg)

	case domain.TypeShareCandidate:
		m.handleCandidate(msg)

	case domain.TypeShareError:
		m.handleError(msg)

	case domain.TypeShareViewerLeft:
		m.handleViewerLeft(msg)

	case domain.TypePlayerLeft:
		m.handlePlayerLeft(msg.PlayerID)

	case domain.TypePlayersList, domain.TypePlayerJoined:
		// membership bookkeeping lives with the relay; nothing to do here

	default:
		log.Printf("[session] unhandled message type: %s", msg.Type)
	}
}

// handleOffer runs the responder path: the three gate checks in order, then
// viewer marking, peer construction, and the answer back to the requester.
func (m *Manager) handleOffer(msg domain.Message) {
	if msg.Offer == nil {
		return
	}

	if !m.registry.Owns(msg.ShareID) {
		m.sendError(msg.From, msg.ShareID, domain.ReasonShareNotFound)
		return
	}
	if err := m.registry.CheckPassword(msg.ShareID, msg.Password); err != nil {
		reason := domain.ReasonPasswordRejected
		if errors.Is(err, domain.ErrShareNotFound) {
			reason = domain.ReasonShareNotFound
		}
		m.sendError(msg.From, msg.ShareID, reason)
		return
	}
	if err := m.registry.MarkViewer(msg.ShareID, msg.From, msg.PlayerName); err != nil {
		reason := domain.ReasonViewerConflict
		if errors.Is(err, domain.ErrShareNotFound) {
			reason = domain.ReasonShareNotFound
		}
		m.sendError(msg.From, msg.ShareID, reason)
		return
	}

	m.mu.Lock()
	src := m.captures[msg.ShareID]
	m.mu.Unlock()
	if src == nil {
		// capture raced away between the gate and here
		m.registry.ClearViewer(msg.ShareID)
		m.sendError(msg.From, msg.ShareID, domain.ReasonShareNotFound)
		return
	}

	key := Key{ShareID: msg.ShareID, Role: RoleResponder, Counterpart: msg.From}

	// A re-offer by the accepted viewer replaces its session; the old
	// connection goes away before the new one is created.
	m.supersede(key)

	peer, err := m.newPeer()
	if err != nil {
		log.Printf("[session] responder peer for %s: %v", msg.ShareID, err)
		m.registry.ClearViewer(msg.ShareID)
		m.sendError(msg.From, msg.ShareID, "negotiation failed")
		return
	}
	sess := newSession(key, peer)

	peer.OnICECandidate(func(c domain.ICECandidate) {
		m.send(domain.Message{
			Type:      domain.TypeShareCandidate,
			From:      m.localID,
			To:        msg.From,
			ShareID:   msg.ShareID,
			Candidate: &c,
		})
	})
	// The slot is reclaimed even if the viewer crashes without sending an
	// explicit viewer-left.
	peer.OnStateChange(func(st domain.PeerState) {
		if st.Terminal() {
			m.dropResponder(key)
		}
	})

	m.install(key, sess)

	fail := func(stage string, err error) {
		log.Printf("[session] responder %s for %s: %v", stage, msg.ShareID, err)
		m.teardown(key, sess)
		m.clearViewerIf(msg.ShareID, msg.From)
		m.sendError(msg.From, msg.ShareID, "negotiation failed")
	}

	for _, track := range src.Tracks() {
		if err := peer.AddTrack(track); err != nil {
			fail("add track", err)
			return
		}
	}

	if err := sess.applyRemoteOffer(*msg.Offer); err != nil {
		fail("apply offer", err)
		return
	}

	answer, err := peer.CreateAnswer()
	if err == nil {
		err = peer.SetLocalDescription(answer)
	}
	if err != nil {
		fail("create answer", err)
		return
	}
	sess.markLocalAnswer()

	m.send(domain.Message{
		Type:    domain.TypeShareAnswer,
		From:    m.localID,
		To:      msg.From,
		ShareID: msg.ShareID,
		Answer:  &answer,
	})
}

func (m *Manager) handleAnswer(msg domain.Message) {
	if msg.Answer == nil {
		return
	}
	key := Key{ShareID: msg.ShareID, Role: RoleInitiator, Counterpart: msg.From}
	sess := m.lookup(key)
	if sess == nil {
		return
	}

	applied, err := sess.applyAnswer(*msg.Answer)
	if err != nil {
		sess.reject(fmt.Errorf("apply answer: %w", err))
		m.teardown(key, sess)
		return
	}
	if !applied {
		log.Printf("[session] stale answer for %s ignored", msg.ShareID)
	}
}

func (m *Manager) handleCandidate(msg domain.Message) {
	if msg.Candidate == nil {
		return
	}
	for _, role := range []Role{RoleInitiator, RoleResponder} {
		key := Key{ShareID: msg.ShareID, Role: role, Counterpart: msg.From}
		if sess := m.lookup(key); sess != nil {
			if err := sess.addCandidate(*msg.Candidate); err != nil {
				log.Printf("[session] add candidate for %s: %v", msg.ShareID, err)
			}
			return
		}
	}
}

func (m *Manager) handleError(msg domain.Message) {
	key := Key{ShareID: msg.ShareID, Role: RoleInitiator, Counterpart: msg.From}
	sess := m.lookup(key)
	if sess == nil {
		return
	}
	sess.reject(reasonError(msg.Error))
	m.teardown(key, sess)
}

func (m *Manager) handleViewerLeft(msg domain.Message) {
	key := Key{ShareID: msg.ShareID, Role: RoleResponder, Counterpart: msg.From}
	if sess := m.lookup(key); sess != nil {
		m.teardown(key, sess)
	}
	m.clearViewerIf(msg.ShareID, msg.From)
}

// handlePlayerLeft reclaims everything tied to a departed participant: their
// mirrored shares, any pending views of those shares, and any sessions they
// were the counterpart of.
func (m *Manager) handlePlayerLeft(playerID string) {
	for _, shareID := range m.registry.DropOwner(playerID) {
		m.rejectViewsOf(shareID, domain.ErrShareNotFound)
	}

	m.mu.Lock()
	var doomed []*Session
	for key, sess := range m.sessions {
		if key.Counterpart == playerID {
			delete(m.sessions, key)
			doomed = append(doomed, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range doomed {
		sess.reject(domain.ErrTransportFailure)
		sess.close()
		if sess.key.Role == RoleResponder {
			m.clearViewerIf(sess.key.ShareID, playerID)
		}
	}
}

// supersede rejects, closes, and removes any existing session for a key.
// Callers invoke it before constructing a replacement so that no two native
// connections for the same key ever coexist.
func (m *Manager) supersede(key Key) {
	m.mu.Lock()
	prev := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if prev != nil {
		prev.reject(errSuperseded)
		prev.close()
	}
}

func (m *Manager) install(key Key, sess *Session) {
	m.mu.Lock()
	m.sessions[key] = sess
	m.mu.Unlock()
}

func (m *Manager) lookup(key Key) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key]
}

// teardown removes a session from the table and closes it. Only the exact
// instance is removed, so a superseding session is never torn down by its
// predecessor's cleanup.
func (m *Manager) teardown(key Key, sess *Session) {
	m.mu.Lock()
	if m.sessions[key] == sess {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	sess.close()
}

// dropResponder handles a responder connection reaching a terminal state:
// the session goes away and the exclusivity slot is reclaimed.
func (m *Manager) dropResponder(key Key) {
	sess := m.lookup(key)
	if sess != nil {
		m.teardown(key, sess)
	}
	m.clearViewerIf(key.ShareID, key.Counterpart)
}

// clearViewerIf clears the viewer slot only when the given viewer holds it,
// tolerating replayed or stale notifications.
func (m *Manager) clearViewerIf(shareID, viewerID string) {
	share, ok := m.registry.Get(shareID)
	if !ok || share.ViewerID != viewerID {
		return
	}
	m.registry.ClearViewer(shareID)
}

// rejectViewsOf fails every pending or established viewing session of a
// share that no longer exists.
func (m *Manager) rejectViewsOf(shareID string, err error) {
	m.mu.Lock()
	var doomed []*Session
	for key, sess := range m.sessions {
		if key.ShareID == shareID && key.Role == RoleInitiator {
			delete(m.sessions, key)
			doomed = append(doomed, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range doomed {
		sess.reject(err)
		sess.close()
	}
}

func (m *Manager) send(msg domain.Message) {
	if err := m.signaler.Send(msg); err != nil {
		log.Printf("[session] send %s: %v", msg.Type, err)
	}
}

func (m *Manager) sendError(to, shareID, reason string) {
	m.send(domain.Message{
		Type:    domain.TypeShareError,
		From:    m.localID,
		To:      to,
		ShareID: shareID,
		Error:   reason,
	})
}

// reasonError maps a wire reason code back to its sentinel.
func reasonError(reason string) error {
	switch reason {
	case domain.ReasonShareNotFound:
		return domain.ErrShareNotFound
	case domain.ReasonPasswordRejected:
		return domain.ErrPasswordRejected
	case domain.ReasonViewerConflict:
		return domain.ErrViewerConflict
	default:
		return fmt.Errorf("negotiation rejected: %s", reason)
	}
}
