package domain

// Signaler sends control messages over the relay channel.
type Signaler interface {
	Send(msg Message) error
	Close()
}

// Handler receives inbound signaling messages. The session manager
// implements it.
type Handler interface {
	HandleSignal(msg Message)
}

// PeerState is the coarse connection state of a native peer connection.
type PeerState int

const (
	PeerNew PeerState = iota
	PeerConnecting
	PeerConnected
	PeerDisconnected
	PeerFailed
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerNew:
		return "new"
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	case PeerFailed:
		return "failed"
	case PeerClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether the state means the connection is gone for good.
func (s PeerState) Terminal() bool {
	return s == PeerDisconnected || s == PeerFailed || s == PeerClosed
}

// Peer manages one native peer connection. Handlers must be registered
// before the offer/answer exchange begins.
type Peer interface {
	CreateOffer() (SessionDescription, error)
	CreateAnswer() (SessionDescription, error)
	SetLocalDescription(desc SessionDescription) error
	SetRemoteDescription(desc SessionDescription) error
	AddICECandidate(candidate ICECandidate) error
	AddTrack(track LocalTrack) error
	OnTrack(fn func(RemoteStream))
	OnICECandidate(fn func(ICECandidate))
	OnStateChange(fn func(PeerState))
	Close() error
}

// PeerFactory creates a native peer connection configured with the
// environment's relay/reflection servers.
type PeerFactory func() (Peer, error)

// LocalTrack is an outgoing media track attached to a responder's peer
// connection.
type LocalTrack interface {
	ID() string
	Kind() string
}

// RemoteStream is a usable handle on received media, resolved by a viewer
// negotiation.
type RemoteStream interface {
	ID() string
	Kind() string
	Codec() string
}

// CaptureSource yields the local capture tracks for a share and notifies
// when the source ends out-of-band.
type CaptureSource interface {
	Tracks() []LocalTrack
	OnEnded(fn func())
	Close() error
}

// CaptureProvider acquires a capture source when sharing starts.
type CaptureProvider func() (CaptureSource, error)
