// Package audio guards the capture → encode → transmit path with a
// finite state machine.
package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chatlink/internal/domain"
)

// Status is the pipeline state. Transitions are strictly sequential per
// recording session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRecording  Status = "recording"
	StatusStopped    Status = "stopped"
	StatusSubmitting Status = "submitting"
)

// Config wires the pipeline's collaborators.
type Config struct {
	Recorder domain.Recorder
	// Sender is a non-owning, send-only view of the transport session.
	// The pipeline never opens or closes the channel.
	Sender domain.FrameSender
	// ArtifactPath is the single fixed artifact slot. Starting a new
	// recording overwrites the prior artifact; the status gate makes that
	// safe (no start while a submission is reading the slot).
	ArtifactPath string
	SenderName   string
	Logger       *slog.Logger
}

// Pipeline orchestrates recording and submission of voice messages.
type Pipeline struct {
	recorder domain.Recorder
	sender   domain.FrameSender
	artifact string
	name     string
	logger   *slog.Logger

	mu        sync.Mutex
	status    Status
	startedAt time.Time
}

func New(cfg Config) *Pipeline {
	if cfg.SenderName == "" {
		cfg.SenderName = "anonymous"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		recorder: cfg.Recorder,
		sender:   cfg.Sender,
		artifact: cfg.ArtifactPath,
		name:     cfg.SenderName,
		logger:   cfg.Logger.With("component", "audio"),
		status:   StatusIdle,
	}
}

// Status returns the current pipeline state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Start begins a recording. It requires the capture capability and a
// connected transport; on refusal the state is unchanged and the artifact
// slot is untouched. Calling Start while already Recording is a no-op.
// Starting from Stopped discards the unsent artifact by overwriting the
// slot; only an in-flight submission blocks a new recording.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.status {
	case StatusRecording:
		p.mu.Unlock()
		return nil
	case StatusIdle, StatusStopped:
	default:
		p.mu.Unlock()
		return fmt.Errorf("cannot start while %s", p.status)
	}

	if !p.recorder.Granted(ctx) {
		p.mu.Unlock()
		return domain.ErrPermissionDenied
	}
	if !p.sender.Connected() {
		p.mu.Unlock()
		return domain.ErrNotConnected
	}

	if err := p.recorder.Start(ctx, p.artifact); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("start recorder: %w", err)
	}
	p.status = StatusRecording
	p.startedAt = time.Now()
	p.mu.Unlock()

	p.logger.Info("recording started", "artifact", p.artifact)
	return nil
}

// Stop ends the recording. It returns only after the recorder has flushed
// and closed the artifact; submission must never read a half-written file,
// so there is no fixed-delay shortcut here.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.status != StatusRecording {
		p.mu.Unlock()
		return fmt.Errorf("cannot stop while %s", p.status)
	}

	if err := p.recorder.Stop(ctx); err != nil {
		// The capture is over either way; the artifact may be unusable.
		p.status = StatusIdle
		p.mu.Unlock()
		return fmt.Errorf("stop recorder: %w", err)
	}
	duration := time.Since(p.startedAt)
	p.status = StatusStopped
	p.mu.Unlock()

	p.logger.Info("recording stopped", "duration", duration)
	return nil
}

// Submit reads the finalized artifact, encodes it and sends it as one
// audio envelope. Single-flight: a second Submit while one is in flight
// returns ErrAlreadySubmitting and changes nothing. On success the
// pipeline returns to Idle; on any failure it reverts to Stopped so the
// caller can retry without re-recording.
func (p *Pipeline) Submit(ctx context.Context) error {
	p.mu.Lock()
	switch p.status {
	case StatusSubmitting:
		p.mu.Unlock()
		return domain.ErrAlreadySubmitting
	case StatusStopped:
	default:
		p.mu.Unlock()
		return domain.ErrNoArtifact
	}
	p.status = StatusSubmitting
	p.mu.Unlock()

	err := p.transmit(ctx)

	p.mu.Lock()
	if err != nil {
		p.status = StatusStopped
	} else {
		p.status = StatusIdle
	}
	p.mu.Unlock()
	return err
}

// transmit does the slow part outside the state lock so the single-flight
// gate stays observable while the send is in flight.
func (p *Pipeline) transmit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(p.artifact)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("read artifact: %w", domain.ErrNoArtifact)
	}

	env := domain.Envelope{
		Type:      "audio",
		Content:   base64.StdEncoding.EncodeToString(data),
		Sender:    p.name,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Format:    artifactFormat(p.artifact),
	}
	if err := p.sender.Send(env); err != nil {
		return err
	}

	p.logger.Info("voice message submitted", "bytes", len(data), "format", env.Format)
	return nil
}

// StopAndSubmit is the press-and-hold release path: stop, then submit.
// The Stopped state remains an observable checkpoint between the two
// phases; this never jumps straight from Recording to Submitting.
func (p *Pipeline) StopAndSubmit(ctx context.Context) error {
	if err := p.Stop(ctx); err != nil {
		return err
	}
	return p.Submit(ctx)
}

// artifactFormat derives the container hint from the slot's extension.
func artifactFormat(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "wav"
	}
	return ext
}
