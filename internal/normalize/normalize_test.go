package normalize

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"chatlink/internal/domain"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNormalize_ImageKind(t *testing.T) {
	msg := Normalize([]byte(`{"type":"image","image_data":"QQ=="}`), now)
	if msg.Body.Kind != domain.BodyImage {
		t.Fatalf("expected image body, got %s", msg.Body.Kind)
	}
	if msg.Body.Content != "QQ==" {
		t.Fatalf("expected image content QQ==, got %q", msg.Body.Content)
	}
	if msg.Origin != domain.OriginRemote {
		t.Fatalf("expected remote origin, got %s", msg.Origin)
	}
}

func TestNormalize_PriorityLaw_ImageWinsOverTextAliases(t *testing.T) {
	// A payload carrying both image bytes and text aliases must always
	// normalize to Image.
	msg := Normalize([]byte(`{"type":"image","image_data":"QQ==","text":"hello","content":"hello","message":"hello"}`), now)
	if msg.Body.Kind != domain.BodyImage {
		t.Fatalf("image must win over text aliases, got %s", msg.Body.Kind)
	}
}

func TestNormalize_TextAliasOrder(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"text wins over content", `{"text":"a","content":"b","message":"c"}`, "a"},
		{"content wins over message", `{"content":"b","message":"c"}`, "b"},
		{"message last", `{"message":"c"}`, "c"},
		{"declared text kind", `{"type":"text","content":"b"}`, "b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := Normalize([]byte(tc.payload), now)
			if msg.Body.Kind != domain.BodyText {
				t.Fatalf("expected text body, got %s", msg.Body.Kind)
			}
			if msg.Body.Content != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, msg.Body.Content)
			}
		})
	}
}

func TestNormalize_FallbackSerializesPayload(t *testing.T) {
	msg := Normalize([]byte(`{"foo":"bar"}`), now)
	if msg.Body.Kind != domain.BodyText {
		t.Fatalf("expected text fallback, got %s", msg.Body.Kind)
	}
	var round map[string]string
	if err := json.Unmarshal([]byte(msg.Body.Content), &round); err != nil {
		t.Fatalf("fallback body is not the serialized payload: %v", err)
	}
	if round["foo"] != "bar" {
		t.Fatalf("fallback lost data: %q", msg.Body.Content)
	}
}

func TestNormalize_NeverFails(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte(""),
		[]byte("not json at all"),
		[]byte("[1,2,3]"),
		[]byte(`"just a string"`),
		[]byte(`{"type":"image"}`), // image kind but no bytes
		[]byte(`{}`),
		[]byte(`{"sender":12345}`),
	}
	for _, p := range payloads {
		msg := Normalize(p, now)
		if msg.Sender == "" {
			t.Fatalf("payload %q: empty sender", p)
		}
		if msg.Body.Kind == "" {
			t.Fatalf("payload %q: undefined body", p)
		}
		if msg.ID == "" {
			t.Fatalf("payload %q: empty id", p)
		}
	}
}

func TestNormalize_SenderResolution(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{`{"text":"x","sender":"alice","username":"bob"}`, "alice"},
		{`{"text":"x","username":"bob"}`, "bob"},
		{`{"text":"x"}`, DefaultSender},
	}
	for _, tc := range cases {
		msg := Normalize([]byte(tc.payload), now)
		if msg.Sender != tc.want {
			t.Fatalf("payload %s: expected sender %q, got %q", tc.payload, tc.want, msg.Sender)
		}
	}
}

func TestNormalize_TimestampParseable(t *testing.T) {
	msg := Normalize([]byte(`{"text":"x","timestamp":"2025-05-31T08:30:00Z"}`), now)
	want := time.Date(2025, 5, 31, 8, 30, 0, 0, time.UTC)
	if !msg.OriginatedAt.Equal(want) {
		t.Fatalf("expected payload timestamp, got %v", msg.OriginatedAt)
	}

	// The server emits bare isoformat without a zone.
	msg = Normalize([]byte(`{"text":"x","timestamp":"2025-05-31T08:30:00.123456"}`), now)
	if msg.OriginatedAt.Year() != 2025 || msg.OriginatedAt.Month() != 5 {
		t.Fatalf("isoformat timestamp not parsed: %v", msg.OriginatedAt)
	}
}

func TestNormalize_TimestampUnparseableUsesReceiptTime(t *testing.T) {
	msg := Normalize([]byte(`{"text":"x","timestamp":"yesterday-ish"}`), now)
	if !msg.OriginatedAt.Equal(now) {
		t.Fatalf("expected local receipt time, got %v", msg.OriginatedAt)
	}
}

func TestNormalize_KeepsServerMessageID(t *testing.T) {
	msg := Normalize([]byte(`{"text":"x","id":"msg_abc123def456_1717243200000"}`), now)
	if msg.ID != "msg_abc123def456_1717243200000" {
		t.Fatalf("server id not preserved: %q", msg.ID)
	}
}

func TestNewMessageID_Format(t *testing.T) {
	id := NewMessageID(now)
	if !strings.HasPrefix(id, "msg_") {
		t.Fatalf("bad id prefix: %q", id)
	}
	parts := strings.Split(id, "_")
	if len(parts) != 3 || len(parts[1]) != 12 {
		t.Fatalf("bad id shape: %q", id)
	}
	if parts[2] != "1748779200000" {
		t.Fatalf("bad millis suffix: %q", id)
	}
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMessageID(now)
		if seen[id] {
			t.Fatalf("duplicate id: %q", id)
		}
		seen[id] = true
	}
}
