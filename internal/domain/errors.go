package domain

import "errors"

// Sentinel errors for the session core. Every error here ends in a defined,
// resumable state; none is fatal to the process.
var (
	// ErrNotConnected is returned when a send or submit is attempted while
	// the transport is not in the Connected state. Recoverable: retry after
	// reconnection.
	ErrNotConnected = errors.New("transport not connected")

	// ErrPermissionDenied is returned when the audio capture capability is
	// unavailable. Surfaced once; no retry loop.
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrAlreadySubmitting is returned by the second of two overlapping
	// submit calls. The in-flight submission is unaffected.
	ErrAlreadySubmitting = errors.New("submission already in flight")

	// ErrHandshakeFailed is returned when the polling handshake or the
	// namespace attach is rejected by the server.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrRetriesExhausted is surfaced on the event stream once the bounded
	// reconnect policy has spent its budget. The session is then terminally
	// disconnected until an explicit connect call.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrNoArtifact is returned by submit when there is no finalized
	// recording to send (pipeline not in the Stopped state).
	ErrNoArtifact = errors.New("no finalized recording artifact")
)
