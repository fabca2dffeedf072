// Package session composes the transport, the payload normalizer and the
// message log into the unit the UI shell consumes.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"chatlink/internal/audio"
	"chatlink/internal/domain"
	"chatlink/internal/history"
	"chatlink/internal/metrics"
	"chatlink/internal/normalize"
	"chatlink/internal/transport"
)

// Config wires a Controller.
type Config struct {
	Transport  transport.Options
	SenderName string
	// AudioArtifactPath is the fixed slot for voice recordings.
	AudioArtifactPath string
	Recorder          domain.Recorder
	// OnAppend is the UI shell's re-render hook, called once per message
	// in insertion order.
	OnAppend func(domain.Message)
	Logger   *slog.Logger
}

// Controller exclusively owns its transport session; the audio pipeline
// receives only a send-only view and must never open or close the channel.
type Controller struct {
	transport *transport.Session
	log       *history.Log
	audio     *audio.Pipeline
	sender    string
	logger    *slog.Logger

	stats    *metrics.Registry
	sent     *metrics.Counter
	received *metrics.Counter
	closures *metrics.Counter
	faults   *metrics.Counter
}

// New builds the controller and wires the inbound path: every payload the
// channel produces is normalized and appended to the log in arrival order.
func New(cfg Config) *Controller {
	if cfg.SenderName == "" {
		cfg.SenderName = normalize.DefaultSender
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "session")

	stats := metrics.NewRegistry()
	c := &Controller{
		transport: transport.NewSession(cfg.Transport),
		log:       history.New(cfg.OnAppend),
		sender:    cfg.SenderName,
		logger:    logger,
		stats:     stats,
		sent:      stats.Counter("messages_sent", "Frames transmitted by this client"),
		received:  stats.Counter("messages_received", "Payloads delivered by the server"),
		closures:  stats.Counter("channel_closures", "Channel closures of any kind"),
		faults:    stats.Counter("channel_faults", "Transport errors observed"),
	}

	if cfg.Recorder != nil {
		c.audio = audio.New(audio.Config{
			Recorder:     cfg.Recorder,
			Sender:       c.transport,
			ArtifactPath: cfg.AudioArtifactPath,
			SenderName:   cfg.SenderName,
			Logger:       cfg.Logger,
		})
	}

	c.transport.OnInboundPayload(func(raw json.RawMessage) {
		c.received.Inc()
		c.log.AppendRemote(normalize.Normalize(raw, time.Now()))
	})
	c.transport.OnServerAck(func(info transport.AckInfo) {
		logger.Debug("server ack", "sid", info.SID)
	})
	c.transport.OnChannelError(func(err error) {
		c.faults.Inc()
		if errors.Is(err, domain.ErrRetriesExhausted) {
			// Retry budget spent: surface once as a visible notice, then
			// wait for an explicit reconnect.
			c.log.AppendRemote(domain.Message{
				ID:           normalize.NewMessageID(time.Now()),
				Body:         domain.SystemNoticeBody("connection lost, reconnect attempts exhausted"),
				Sender:       "system",
				OriginatedAt: time.Now(),
			})
			return
		}
		logger.Warn("channel error", "err", err)
	})
	c.transport.OnClosed(func(reason transport.CloseReason) {
		c.closures.Inc()
		logger.Info("channel closed", "reason", string(reason))
	})

	return c
}

// Connect starts the session. Idempotent while a connection is live or
// being established.
func (c *Controller) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Disconnect releases the channel without scheduling a reconnect.
func (c *Controller) Disconnect() {
	c.transport.Disconnect()
}

// State exposes the transport connection state.
func (c *Controller) State() transport.State {
	return c.transport.State()
}

// SendText appends the optimistic local echo and then transmits. The echo
// happens synchronously with the send action, before any network
// confirmation, and stays in the log even when the transmit fails.
func (c *Controller) SendText(text string) (domain.Message, error) {
	msg := c.log.AppendLocal(domain.TextBody(text), c.sender)
	err := c.transport.Send(domain.Envelope{
		Type:      "text",
		Content:   text,
		Sender:    c.sender,
		Timestamp: msg.OriginatedAt.UTC().Format(time.RFC3339),
	})
	if err == nil {
		c.sent.Inc()
	}
	return msg, err
}

// SendImage base64-encodes the image bytes and transmits them, with the
// same optimistic-echo contract as SendText.
func (c *Controller) SendImage(data []byte, format string) (domain.Message, error) {
	b64 := base64.StdEncoding.EncodeToString(data)
	msg := c.log.AppendLocal(domain.ImageBody(b64), c.sender)
	err := c.transport.Send(domain.Envelope{
		Type:      "image",
		Content:   b64,
		Sender:    c.sender,
		Timestamp: msg.OriginatedAt.UTC().Format(time.RFC3339),
		Format:    format,
	})
	if err == nil {
		c.sent.Inc()
	}
	return msg, err
}

// Messages returns the log snapshot in insertion order.
func (c *Controller) Messages() []domain.Message {
	return c.log.Snapshot()
}

// Audio returns the capture pipeline, or nil when no recorder was wired.
func (c *Controller) Audio() *audio.Pipeline {
	return c.audio
}

// Stats renders the session counters, one line per metric.
func (c *Controller) Stats() []string {
	return c.stats.Render()
}
