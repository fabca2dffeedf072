package transport

import (
	"encoding/json"
	"testing"
)

func TestDecodePacket(t *testing.T) {
	p, err := decodePacket(`0{"sid":"abc"}`)
	if err != nil {
		t.Fatal(err)
	}
	if p.typ != packetOpen || p.data != `{"sid":"abc"}` {
		t.Fatalf("unexpected packet: %+v", p)
	}

	if _, err := decodePacket(""); err == nil {
		t.Fatal("expected error for empty packet")
	}
	if _, err := decodePacket("x"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestDecodePayload_MultiplePackets(t *testing.T) {
	body := "2" + recordSep + `42["message",{"text":"hi"}]` + recordSep + "6"
	packets, err := decodePayload(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(packets))
	}
	if packets[0].typ != packetPing {
		t.Fatalf("first packet should be ping, got %q", packets[0].typ)
	}
	if packets[1].typ != packetMessage {
		t.Fatalf("second packet should be message, got %q", packets[1].typ)
	}
	if packets[2].typ != packetNoop {
		t.Fatalf("third packet should be noop, got %q", packets[2].typ)
	}
}

func TestDecodePayload_Empty(t *testing.T) {
	packets, err := decodePayload("")
	if err != nil || packets != nil {
		t.Fatalf("empty body should decode to nothing, got %v, %v", packets, err)
	}
}

func TestEncodeEvent(t *testing.T) {
	pkt, err := encodeEvent("message", map[string]string{"type": "text", "content": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	encoded := pkt.encode()
	if encoded[:2] != "42" {
		t.Fatalf("expected event frame prefix 42, got %q", encoded[:2])
	}

	ev, err := decodeEvent(encoded[2:])
	if err != nil {
		t.Fatal(err)
	}
	if ev.Name != "message" {
		t.Fatalf("expected event name message, got %q", ev.Name)
	}
	var arg map[string]string
	if err := json.Unmarshal(ev.Arg, &arg); err != nil {
		t.Fatal(err)
	}
	if arg["content"] != "hi" {
		t.Fatalf("round trip lost content: %v", arg)
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	if _, err := decodeEvent("not json"); err == nil {
		t.Fatal("expected error for malformed frame")
	}
	if _, err := decodeEvent("[]"); err == nil {
		t.Fatal("expected error for empty event array")
	}
}
