package domain

import "errors"

// Sentinel errors surfaced by the session layer. Callers match them with
// errors.Is; every failed operation cleans up its native resources before one
// of these propagates.
var (
	// ErrCaptureDenied means the user refused capture permission.
	ErrCaptureDenied = errors.New("screen capture permission denied")

	// ErrCaptureUnavailable means no capturable source exists.
	ErrCaptureUnavailable = errors.New("no capturable source available")

	// ErrShareNotFound means the referenced share vanished between listing
	// and negotiation.
	ErrShareNotFound = errors.New("share not found")

	// ErrPasswordRequired means the share is password-gated and no secret
	// was supplied. The caller may retry with one.
	ErrPasswordRequired = errors.New("share requires a password")

	// ErrPasswordRejected means the owner refused the supplied secret. The
	// caller may retry with a new one.
	ErrPasswordRejected = errors.New("share password rejected")

	// ErrViewerConflict means another viewer already holds the single
	// viewer slot.
	ErrViewerConflict = errors.New("share already has a viewer")

	// ErrNegotiationTimeout means no media or answer arrived within the
	// negotiation deadline.
	ErrNegotiationTimeout = errors.New("negotiation timed out")

	// ErrTransportFailure means the native connection entered a failed
	// state.
	ErrTransportFailure = errors.New("peer connection failed")
)
