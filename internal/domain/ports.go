package domain

import "context"

// FrameSender is the send-only, non-owning view of the transport session
// handed to collaborators such as the audio pipeline. Holders must never
// open or close the underlying channel.
type FrameSender interface {
	Connected() bool
	Send(env Envelope) error
}

// Recorder is the opaque audio capture capability. Codec internals, device
// selection and platform permission dialogs live behind it; the core only
// sees granted/denied plus start/stop.
type Recorder interface {
	// Granted reports whether the capture capability is available.
	Granted(ctx context.Context) bool

	// Start begins capturing into the artifact at path, overwriting any
	// prior artifact in that slot.
	Start(ctx context.Context, path string) error

	// Stop ends the capture. It must fully flush and close the artifact
	// before returning; callers rely on that to read the file safely.
	Stop(ctx context.Context) error
}
