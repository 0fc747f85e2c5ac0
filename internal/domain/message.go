package domain

// Message type discriminators. Relay membership types come first, then the
// screen-share control family exchanged between participants.
const (
	TypeRegister     = "register"
	TypePlayersList  = "players-list"
	TypePlayerJoined = "player-joined"
	TypePlayerLeft   = "player-left"

	TypeShareStart      = "screen-share-start"
	TypeShareStop       = "screen-share-stop"
	TypeShareUpdate     = "screen-share-update"
	TypeShareOffer      = "screen-share-offer"
	TypeShareAnswer     = "screen-share-answer"
	TypeShareCandidate  = "screen-share-ice-candidate"
	TypeShareError      = "screen-share-error"
	TypeShareViewerLeft = "screen-share-viewer-left"
)

// Reason codes carried in the Error field of screen-share-error replies.
const (
	ReasonShareNotFound    = "share-not-found"
	ReasonPasswordRejected = "password-rejected"
	ReasonViewerConflict   = "viewer-conflict"
)

// Message is the JSON envelope for every signaling message. A message with To
// set is forwarded by the relay to exactly one client; without To it is
// broadcast to every other client.
type Message struct {
	Type string `json:"type"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Relay membership fields.
	ClientID string       `json:"clientId,omitempty"`
	PlayerID string       `json:"playerId,omitempty"`
	Players  []PlayerInfo `json:"players,omitempty"`

	// Screen-share fields.
	ShareID     string              `json:"shareId,omitempty"`
	PlayerName  string              `json:"playerName,omitempty"`
	HasPassword bool                `json:"hasPassword,omitempty"`
	Password    string              `json:"password,omitempty"`
	ViewerID    string              `json:"viewerId,omitempty"`
	ViewerName  string              `json:"viewerName,omitempty"`
	Offer       *SessionDescription `json:"offer,omitempty"`
	Answer      *SessionDescription `json:"answer,omitempty"`
	Candidate   *ICECandidate       `json:"candidate,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// PlayerInfo identifies a participant connected to the relay.
type PlayerInfo struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// SessionDescription is the JSON structure for SDP offer/answer payloads.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is the JSON structure for trickled ICE candidate payloads.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	SDPMid        *string `json:"sdpMid"`
}
