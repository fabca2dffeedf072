// Package transport owns the logical duplex channel to the chat server.
//
// The server speaks a layered protocol: a request/response handshake first
// yields a session id and capability list, then the client attaches to the
// message namespace and, when the server advertises it, upgrades to a
// persistent websocket. When no upgrade is possible the channel keeps
// running over repeated request/response polling.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chatlink/internal/domain"

	"github.com/gorilla/websocket"
)

// State is the connection lifecycle. Exactly one value is active at a
// time; transitions are serialized under the session mutex.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

const (
	DefaultPath                 = "/ws/chat/"
	DefaultReconnectDelay       = 1000 * time.Millisecond
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 20 * time.Second
)

// Options configures a Session. Zero values fall back to the defaults
// above.
type Options struct {
	Endpoint             string        // base address, e.g. http://localhost:8000
	Path                 string        // logical channel path
	Transports           []string      // preference order, e.g. ["websocket", "polling"]
	ReconnectDelay       time.Duration // fixed delay between reconnect attempts
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// Session negotiates and owns one logical duplex channel. It is the only
// component allowed to open or close the channel; collaborators receive a
// send-only view (domain.FrameSender).
type Session struct {
	opts   Options
	logger *slog.Logger
	events *emitter

	mu             sync.Mutex
	state          State
	conn           substrate
	sid            string
	closures       int // consecutive faults since the last explicit Connect
	generation     int // bumped on Connect/Disconnect to invalidate stale loops
	reconnectTimer *time.Timer
}

// NewSession creates a disconnected session.
func NewSession(opts Options) *Session {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if len(opts.Transports) == 0 {
		opts.Transports = []string{"websocket", "polling"}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "transport")
	return &Session{
		opts:   opts,
		logger: logger,
		events: newEmitter(logger),
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SID returns the session id obtained during the handshake, or "".
func (s *Session) SID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

// Connected implements domain.FrameSender.
func (s *Session) Connected() bool { return s.State() == StateConnected }

// Event subscriptions. Handlers run synchronously on the reader goroutine,
// at most once per event, in arrival order.
func (s *Session) OnOpened(fn func())                      { s.events.onOpened(fn) }
func (s *Session) OnServerAck(fn func(AckInfo))            { s.events.onServerAck(fn) }
func (s *Session) OnInboundPayload(fn func(json.RawMessage)) { s.events.onInboundPayload(fn) }
func (s *Session) OnChannelError(fn func(error))           { s.events.onChannelError(fn) }
func (s *Session) OnClosed(fn func(CloseReason))           { s.events.onClosed(fn) }

// Connect starts the layered negotiation. It is idempotent: while the
// session is Connecting, Connected or already Reconnecting it is a no-op.
// A failed initial attempt still arms the bounded reconnect policy.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.closures = 0
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if err := s.dial(ctx, gen); err != nil {
		s.events.emitChannelError(err)
		s.mu.Lock()
		terminal := false
		if gen == s.generation && s.state == StateConnecting {
			terminal = !s.scheduleReconnectLocked(gen)
		}
		s.mu.Unlock()
		if terminal {
			s.events.emitChannelError(domain.ErrRetriesExhausted)
		}
		return err
	}
	return nil
}

// Disconnect releases the channel. No automatic reconnect follows a
// client-initiated close.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.generation++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		if err := conn.close(); err != nil {
			s.logger.Debug("close failed", "err", err)
		}
	}
	s.logger.Info("disconnected")
	s.events.emitClosed(CloseClientInitiated)
}

// Send enqueues one message envelope as a single frame. Fire-and-forget:
// no delivery acknowledgment is guaranteed, though the server may emit an
// out-of-band receipt event later. Fails while not Connected — including
// while Reconnecting; callers must not assume buffering.
func (s *Session) Send(env domain.Envelope) error {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return domain.ErrNotConnected
	}
	conn := s.conn
	s.mu.Unlock()

	pkt, err := encodeEvent("message", env)
	if err != nil {
		return err
	}
	if err := conn.send(pkt); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// dial runs the full negotiation: handshake, namespace attach over
// polling, then the optional websocket upgrade. On success it installs the
// substrate, marks the session Connected and starts the reader.
func (s *Session) dial(ctx context.Context, gen int) error {
	ctx, cancel := withHandshakeTimeout(ctx, s.opts.HandshakeTimeout)
	defer cancel()

	info, err := doHandshake(ctx, s.opts.HTTPClient, s.opts.Endpoint, s.opts.Path)
	if err != nil {
		return err
	}
	s.logger.Debug("handshake complete", "sid", info.SID, "upgrades", info.Upgrades)

	pc, err := newPollingConn(s.opts.HTTPClient, s.opts.Endpoint, s.opts.Path, info.SID, s.logger)
	if err != nil {
		return err
	}

	if err := pc.send(packet{typ: packetMessage, data: string(frameConnect)}); err != nil {
		pc.abandon()
		return fmt.Errorf("%w: namespace attach: %v", domain.ErrHandshakeFailed, err)
	}
	ack, err := awaitAttachAck(pc)
	if err != nil {
		pc.abandon()
		return err
	}

	var conn substrate = pc
	if s.wantsTransport("websocket") && info.supportsUpgrade("websocket") {
		ws, err := upgradeWebsocket(ctx, s.opts.Dialer, s.opts.Endpoint, s.opts.Path, info, s.logger)
		if err != nil {
			s.logger.Warn("websocket upgrade failed, staying on polling", "err", err)
		} else {
			pc.abandon()
			conn = ws
		}
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		conn.close()
		return fmt.Errorf("connect superseded")
	}
	s.conn = conn
	s.sid = info.SID
	s.state = StateConnected
	s.mu.Unlock()

	s.logger.Info("connected", "substrate", conn.name(), "sid", info.SID)

	// Emit before the reader starts so no inbound payload can overtake the
	// open notification.
	s.events.emitOpened()
	s.events.emitServerAck(parseAck(ack))

	go s.readLoop(conn, gen)
	return nil
}

// awaitAttachAck drains the polling channel until the server confirms the
// namespace attach. Heartbeats arriving early are answered in place.
func awaitAttachAck(pc *pollingConn) (json.RawMessage, error) {
	for i := 0; i < 32; i++ {
		pkt, err := pc.receive()
		if err != nil {
			return nil, fmt.Errorf("%w: await attach ack: %v", domain.ErrHandshakeFailed, err)
		}
		switch pkt.typ {
		case packetPing:
			if err := pc.send(packet{typ: packetPong, data: pkt.data}); err != nil {
				return nil, fmt.Errorf("%w: pong: %v", domain.ErrHandshakeFailed, err)
			}
		case packetNoop:
		case packetMessage:
			if pkt.data == "" {
				continue
			}
			switch pkt.data[0] {
			case frameConnect:
				return json.RawMessage(pkt.data[1:]), nil
			case frameError:
				return nil, fmt.Errorf("%w: namespace rejected: %s", domain.ErrHandshakeFailed, pkt.data[1:])
			}
		case packetClose:
			return nil, fmt.Errorf("%w: server closed during attach", domain.ErrHandshakeFailed)
		}
	}
	return nil, fmt.Errorf("%w: no attach ack", domain.ErrHandshakeFailed)
}

// readLoop pumps the substrate until it fails or the session is torn
// down. It is the only goroutine reading frames, which gives subscribers
// in-order, at-most-once event delivery.
func (s *Session) readLoop(conn substrate, gen int) {
	for {
		pkt, err := conn.receive()
		if err != nil {
			s.handleFault(gen, err)
			return
		}
		switch pkt.typ {
		case packetPing:
			if err := conn.send(packet{typ: packetPong, data: pkt.data}); err != nil {
				s.handleFault(gen, fmt.Errorf("pong: %w", err))
				return
			}
		case packetClose:
			s.handleServerClose(gen)
			return
		case packetMessage:
			s.dispatchFrame(pkt.data)
		case packetNoop:
		default:
			s.logger.Debug("ignoring packet", "type", string(pkt.typ))
		}
	}
}

// dispatchFrame routes one socket-level frame to the event stream.
func (s *Session) dispatchFrame(data string) {
	if data == "" {
		return
	}
	switch data[0] {
	case frameConnect:
		s.events.emitServerAck(parseAck(json.RawMessage(data[1:])))
	case frameError:
		// Application-level rejection (e.g. invalid message format); the
		// channel itself is still healthy.
		s.logger.Warn("server rejected frame", "detail", truncate(data[1:], 256))
	case frameEvent:
		ev, err := decodeEvent(data[1:])
		if err != nil {
			s.logger.Warn("undecodable event frame", "err", err)
			return
		}
		switch ev.Name {
		case "message", "broadcast":
			s.events.emitInboundPayload(ev.Arg)
		case "connected":
			s.events.emitServerAck(parseAck(ev.Arg))
		case "error":
			s.logger.Warn("server error event", "detail", truncate(string(ev.Arg), 256))
		default:
			s.logger.Debug("unhandled event", "name", ev.Name)
		}
	}
}

func parseAck(raw json.RawMessage) AckInfo {
	info := AckInfo{Raw: raw}
	var fields struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(raw, &fields); err == nil {
		info.SID = fields.SID
	}
	return info
}

// handleFault reacts to a mid-session channel fault: surface the error,
// report the closure, then arm the reconnect policy.
func (s *Session) handleFault(gen int, err error) {
	if !s.beginClosure(gen) {
		return
	}
	s.logger.Warn("channel fault", "err", err)
	s.events.emitChannelError(err)
	s.events.emitClosed(CloseTransportFailure)
	s.afterClosure(gen)
}

// handleServerClose reacts to an orderly server-initiated close.
func (s *Session) handleServerClose(gen int) {
	if !s.beginClosure(gen) {
		return
	}
	s.logger.Info("server closed channel")
	s.events.emitClosed(CloseServerInitiated)
	s.afterClosure(gen)
}

// afterClosure arms the reconnect policy and, once the budget is spent,
// surfaces the terminal condition on the event stream.
func (s *Session) afterClosure(gen int) {
	s.mu.Lock()
	terminal := false
	if gen == s.generation && s.state != StateDisconnected {
		terminal = !s.scheduleReconnectLocked(gen)
	}
	s.mu.Unlock()
	if terminal {
		s.events.emitChannelError(domain.ErrRetriesExhausted)
	}
}

// beginClosure tears down the current substrate if this closure is still
// current. Returns false when a newer generation owns the session (a
// stale reader must exit silently).
func (s *Session) beginClosure(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state == StateDisconnected {
		return false
	}
	if s.conn != nil {
		s.conn.close()
		s.conn = nil
	}
	return true
}

// scheduleReconnectLocked arms one reconnect attempt after the fixed
// delay, or settles the session in terminal Disconnected once the budget
// of consecutive closures is spent. Returns false in the terminal case.
// Callers hold s.mu.
//
// The budget counts closures since the last explicit Connect, not since
// the last successful reconnect: after MaxReconnectAttempts consecutive
// closures the session stays down until connect() is called again.
func (s *Session) scheduleReconnectLocked(gen int) bool {
	s.closures++
	if s.closures >= s.opts.MaxReconnectAttempts {
		s.state = StateDisconnected
		s.logger.Warn("reconnect budget exhausted", "closures", s.closures)
		return false
	}
	s.state = StateReconnecting
	s.logger.Info("reconnect scheduled",
		"delay", s.opts.ReconnectDelay,
		"attempt", s.closures,
		"max", s.opts.MaxReconnectAttempts,
	)
	s.reconnectTimer = time.AfterFunc(s.opts.ReconnectDelay, func() {
		s.attemptReconnect(gen)
	})
	return true
}

// attemptReconnect is the single in-flight reconnect attempt. No second
// attempt can be scheduled while this one runs: the next schedule happens
// only from this attempt's failure or from a fault of the connection it
// establishes.
func (s *Session) attemptReconnect(gen int) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	attempt := s.closures
	s.mu.Unlock()

	s.logger.Info("reconnecting", "attempt", attempt)
	if err := s.dial(context.Background(), gen); err != nil {
		s.events.emitChannelError(err)
		s.mu.Lock()
		terminal := false
		if gen == s.generation && s.state == StateReconnecting {
			terminal = !s.scheduleReconnectLocked(gen)
		}
		s.mu.Unlock()
		if terminal {
			s.events.emitChannelError(domain.ErrRetriesExhausted)
		}
	}
}

func (s *Session) wantsTransport(name string) bool {
	for _, t := range s.opts.Transports {
		if t == name {
			return true
		}
	}
	return false
}
