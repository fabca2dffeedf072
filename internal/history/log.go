// Package history holds the session's ordered, append-only message log.
package history

import (
	"sync"
	"time"

	"chatlink/internal/domain"
	"chatlink/internal/normalize"
)

// Log is an append-only message store. Iteration order is insertion order,
// stable, never reordered retroactively; timestamps do not affect position.
// Entries live until the session resets (no persistence across restarts).
type Log struct {
	mu       sync.RWMutex
	messages []domain.Message
	onAppend func(domain.Message)
	now      func() time.Time
}

// New creates an empty log. onAppend, if non-nil, is invoked synchronously
// after each insertion (the UI shell's re-render hook).
func New(onAppend func(domain.Message)) *Log {
	return &Log{
		onAppend: onAppend,
		now:      time.Now,
	}
}

// AppendLocal constructs and inserts an optimistic local echo. It runs
// synchronously with the user's send action, before any transport
// confirmation, and returns the inserted message.
func (l *Log) AppendLocal(body domain.Body, sender string) domain.Message {
	l.mu.Lock()
	now := l.now()
	msg := domain.Message{
		ID:           normalize.NewMessageID(now),
		Body:         body,
		Sender:       sender,
		OriginatedAt: now,
		Origin:       domain.OriginLocal,
	}
	l.messages = append(l.messages, msg)
	hook := l.onAppend
	l.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return msg
}

// AppendRemote inserts a normalized inbound message. No deduplication is
// performed against local echoes: if the server reflects a message back to
// its sender, both copies coexist in the log.
func (l *Log) AppendRemote(msg domain.Message) {
	msg.Origin = domain.OriginRemote
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	hook := l.onAppend
	l.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
}

// Snapshot returns a copy of all messages to date in insertion order.
func (l *Log) Snapshot() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len reports the number of messages appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
