// Package normalize maps arbitrary inbound payloads into canonical Messages.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"chatlink/internal/domain"

	"github.com/google/uuid"
)

// DefaultSender labels payloads that carry no sender information. Matches
// the server's fallback.
const DefaultSender = "anonymous"

// textAliases are probed in order when the payload carries no explicit
// image content.
var textAliases = []string{"text", "content", "message"}

// imageFields are probed in order for the base64 image bytes.
var imageFields = []string{"content", "image_data", "data"}

// Normalize converts a raw inbound payload into a Message. It never fails:
// malformed or unexpected shapes degrade to a literal text rendering of the
// payload rather than being dropped.
//
// Rule order (first match wins):
//  1. image kind with image bytes → Image body
//  2. text kind or any of the aliases text/content/message → Text body
//  3. anything else → Text body holding the serialized payload
func Normalize(raw []byte, receivedAt time.Time) domain.Message {
	msg := domain.Message{
		ID:           NewMessageID(receivedAt),
		Sender:       DefaultSender,
		OriginatedAt: receivedAt,
		Origin:       domain.OriginRemote,
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		msg.Body = domain.TextBody(string(raw))
		return msg
	}

	if s := firstString(fields, "sender", "username"); s != "" {
		msg.Sender = s
	}
	if ts, ok := parseTimestamp(fields["timestamp"]); ok {
		msg.OriginatedAt = ts
	}
	if id, ok := fields["id"].(string); ok && id != "" {
		msg.ID = id
	}

	if kind, _ := fields["type"].(string); kind == "image" {
		if b64 := firstString(fields, imageFields...); b64 != "" {
			msg.Body = domain.ImageBody(b64)
			return msg
		}
	}

	if s := firstString(fields, textAliases...); s != "" {
		msg.Body = domain.TextBody(s)
		return msg
	}

	// Lossless fallback: the whole payload as a literal JSON string.
	serialized, err := json.Marshal(fields)
	if err != nil {
		serialized = raw
	}
	msg.Body = domain.TextBody(string(serialized))
	return msg
}

// NewMessageID produces ids in the server's format: msg_<12 hex>_<millis>.
func NewMessageID(t time.Time) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "msg_" + hex[:12] + "_" + strconv.FormatInt(t.UnixMilli(), 10)
}

func firstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// parseTimestamp accepts the formats the server is known to emit.
func parseTimestamp(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999", // datetime.utcnow().isoformat()
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
