package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// CloseReason says which side tore down the channel.
type CloseReason string

const (
	CloseClientInitiated  CloseReason = "client_initiated"
	CloseServerInitiated  CloseReason = "server_initiated"
	CloseTransportFailure CloseReason = "transport_failure"
)

// AckInfo is the server's out-of-band acknowledgment: the session id from
// the namespace attach, or the "connected" welcome event payload.
type AckInfo struct {
	SID string
	Raw json.RawMessage
}

// emitter dispatches session events to subscribers. Dispatch is
// synchronous and happens from the session's single reader goroutine, so
// every subscriber sees each event at most once, in arrival order.
type emitter struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	opened   []func()
	acks     []func(AckInfo)
	payloads []func(json.RawMessage)
	errors   []func(error)
	closes   []func(CloseReason)
}

func newEmitter(logger *slog.Logger) *emitter {
	return &emitter{logger: logger}
}

func (e *emitter) onOpened(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = append(e.opened, fn)
}

func (e *emitter) onServerAck(fn func(AckInfo)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.acks = append(e.acks, fn)
}

func (e *emitter) onInboundPayload(fn func(json.RawMessage)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, fn)
}

func (e *emitter) onChannelError(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, fn)
}

func (e *emitter) onClosed(fn func(CloseReason)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes = append(e.closes, fn)
}

func (e *emitter) emitOpened() {
	e.mu.RLock()
	handlers := e.opened
	e.mu.RUnlock()
	for _, fn := range handlers {
		e.safeCall("opened", func() { fn() })
	}
}

func (e *emitter) emitServerAck(info AckInfo) {
	e.mu.RLock()
	handlers := e.acks
	e.mu.RUnlock()
	for _, fn := range handlers {
		e.safeCall("server_ack", func() { fn(info) })
	}
}

func (e *emitter) emitInboundPayload(raw json.RawMessage) {
	e.mu.RLock()
	handlers := e.payloads
	e.mu.RUnlock()
	for _, fn := range handlers {
		e.safeCall("inbound_payload", func() { fn(raw) })
	}
}

func (e *emitter) emitChannelError(err error) {
	e.mu.RLock()
	handlers := e.errors
	e.mu.RUnlock()
	for _, fn := range handlers {
		e.safeCall("channel_error", func() { fn(err) })
	}
}

func (e *emitter) emitClosed(reason CloseReason) {
	e.mu.RLock()
	handlers := e.closes
	e.mu.RUnlock()
	for _, fn := range handlers {
		e.safeCall("closed", func() { fn(reason) })
	}
}

// safeCall keeps a panicking subscriber from killing the reader goroutine.
func (e *emitter) safeCall(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panic", "event", event, "panic", r)
		}
	}()
	fn()
}
