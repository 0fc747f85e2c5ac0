package session

import (
	"sync"
	"time"

	"lanparty/screenshare/internal/domain"
)

// signalingState advances strictly in one direction per role:
// initiator: stateNew -> stateLocalOfferSet -> stateRemoteAnswerSet
// responder: stateNew -> stateRemoteOfferSet -> stateLocalAnswerSet
type signalingState int

const (
	stateNew signalingState = iota
	stateLocalOfferSet
	stateRemoteOfferSet
	stateLocalAnswerSet
	stateRemoteAnswerSet
)

type result struct {
	stream domain.RemoteStream
	err    error
}

// Session drives one peer-connection attempt for a (share, role, counterpart)
// key. It owns the native connection handle, queues candidates that arrive
// before the remote description is applicable, and, on the initiator side,
// settles a one-shot result exactly once.
type Session struct {
	key  Key
	peer domain.Peer

	mu      sync.Mutex
	state   signalingState
	pending []domain.ICECandidate
	timer   *time.Timer
	settled bool
	closed  bool

	// resultCh is buffered and written at most once; initiator only.
	resultCh chan result
}

func newSession(key Key, peer domain.Peer) *Session {
	s := &Session{key: key, peer: peer}
	if key.Role == RoleInitiator {
		s.resultCh = make(chan result, 1)
	}
	return s
}

// markLocalOffer records that the local offer was committed.
func (s *Session) markLocalOffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateNew {
		s.state = stateLocalOfferSet
	}
}

// markLocalAnswer records that the local answer was committed.
func (s *Session) markLocalAnswer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateRemoteOfferSet {
		s.state = stateLocalAnswerSet
	}
}

// applyRemoteOffer applies the counterpart's offer and flushes any queued
// candidates in arrival order.
func (s *Session) applyRemoteOffer(desc domain.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.peer.SetRemoteDescription(desc); err != nil {
		return err
	}
	s.state = stateRemoteOfferSet
	return s.flushPendingLocked()
}

// applyAnswer applies the owner's answer. A late or duplicate answer must not
// corrupt a session that has moved on: anything but "local offer set, no
// remote description yet" is refused and the answer ignored by the caller.
func (s *Session) applyAnswer(desc domain.SessionDescription) (applied bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateLocalOfferSet {
		return false, nil
	}
	if err := s.peer.SetRemoteDescription(desc); err != nil {
		return false, err
	}
	s.state = stateRemoteAnswerSet
	return true, s.flushPendingLocked()
}

// addCandidate applies a remote candidate immediately once the remote
// description is in place, and queues it otherwise.
func (s *Session) addCandidate(c domain.ICECandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remoteReadyLocked() {
		s.pending = append(s.pending, c)
		return nil
	}
	return s.peer.AddICECandidate(c)
}

func (s *Session) remoteReadyLocked() bool {
	switch s.state {
	case stateRemoteOfferSet, stateLocalAnswerSet, stateRemoteAnswerSet:
		return true
	}
	return false
}

func (s *Session) flushPendingLocked() error {
	var firstErr error
	for _, c := range s.pending {
		if err := s.peer.AddICECandidate(c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.pending = nil
	return firstErr
}

// armDeadline starts the negotiation timer. When it fires the pending result
// is rejected exactly once; a session settled earlier cancels the timer.
func (s *Session) armDeadline(d time.Duration, onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled || s.closed {
		return
	}
	s.timer = time.AfterFunc(d, onExpire)
}

// resolve settles the initiator's pending result with a usable stream and
// cancels the deadline. Only the first settlement wins.
func (s *Session) resolve(stream domain.RemoteStream) {
	s.settle(result{stream: stream})
}

// reject settles the initiator's pending result with an error.
func (s *Session) reject(err error) {
	s.settle(result{err: err})
}

func (s *Session) settle(r result) {
	s.mu.Lock()
	if s.settled || s.resultCh == nil {
		s.mu.Unlock()
		return
	}
	s.settled = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.resultCh <- r
}

// close releases the native connection and cancels the deadline. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.mu.Unlock()

	_ = s.peer.Close()
}
