package session

// Role distinguishes the two ends of a negotiation: the viewing side sends
// the offer, the sharing side answers it.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// Key identifies one negotiation. Exactly one live session may exist per key
// at a time; a new attempt for the same key supersedes the previous one.
// A struct key avoids the prefix-collision bugs of concatenated strings.
type Key struct {
	ShareID     string
	Role        Role
	Counterpart string
}
