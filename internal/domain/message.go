package domain

import "time"

// BodyKind discriminates the payload carried by a Message.
type BodyKind string

const (
	BodyText         BodyKind = "text"
	BodyImage        BodyKind = "image"
	BodySystemNotice BodyKind = "system"
)

// Origin records which side of the wire produced a Message.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Body is a tagged variant: Text and SystemNotice carry plain strings,
// Image carries base64-encoded bytes in Content.
type Body struct {
	Kind    BodyKind
	Content string
}

func TextBody(s string) Body         { return Body{Kind: BodyText, Content: s} }
func ImageBody(b64 string) Body      { return Body{Kind: BodyImage, Content: b64} }
func SystemNoticeBody(s string) Body { return Body{Kind: BodySystemNotice, Content: s} }

// Message is one entry in the session's message log. Messages are never
// mutated after insertion; ordering is insertion order, not OriginatedAt
// (timestamps are untrusted client/server clock data).
type Message struct {
	ID           string
	Body         Body
	Sender       string
	OriginatedAt time.Time
	Origin       Origin
}

// Envelope is the unified outbound wire shape for text, image and audio
// messages (matches the server's Message model).
type Envelope struct {
	Type      string `json:"type"` // "text" | "image" | "audio"
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"` // ISO-8601
	Format    string `json:"format,omitempty"`
}
