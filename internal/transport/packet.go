package transport

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Engine-level packet types (first byte of every frame). The server speaks
// a layered protocol: engine packets carry session control (open, ping,
// close), and type '4' wraps the socket-level frames defined below.
const (
	packetOpen    = '0'
	packetClose   = '1'
	packetPing    = '2'
	packetPong    = '3'
	packetMessage = '4'
	packetUpgrade = '5'
	packetNoop    = '6'
)

// Socket-level frame types, nested inside a '4' engine packet.
const (
	frameConnect = '0'
	frameError   = '4'
	frameEvent   = '2'
)

// recordSep separates packets batched into one polling response body.
const recordSep = "\x1e"

type packet struct {
	typ  byte
	data string
}

func (p packet) encode() string {
	return string(p.typ) + p.data
}

func decodePacket(s string) (packet, error) {
	if s == "" {
		return packet{}, fmt.Errorf("empty packet")
	}
	switch s[0] {
	case packetOpen, packetClose, packetPing, packetPong, packetMessage, packetUpgrade, packetNoop:
		return packet{typ: s[0], data: s[1:]}, nil
	}
	return packet{}, fmt.Errorf("unknown packet type %q", s[0])
}

// decodePayload splits a polling response body into its packets.
func decodePayload(body string) ([]packet, error) {
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, recordSep)
	packets := make([]packet, 0, len(parts))
	for _, part := range parts {
		p, err := decodePacket(part)
		if err != nil {
			return nil, err
		}
		packets = append(packets, p)
	}
	return packets, nil
}

// encodeEvent builds the socket-level event frame for an emitted event:
// 42["<name>",<arg>] wrapped in an engine message packet.
func encodeEvent(name string, arg any) (packet, error) {
	args := []any{name}
	if arg != nil {
		args = append(args, arg)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return packet{}, fmt.Errorf("encode event %q: %w", name, err)
	}
	return packet{typ: packetMessage, data: string(frameEvent) + string(data)}, nil
}

// eventFrame is a decoded socket-level event: a name plus one optional
// JSON argument, left raw for the payload normalizer.
type eventFrame struct {
	Name string
	Arg  json.RawMessage
}

// decodeEvent parses the body of a socket-level event frame (the part
// after "42").
func decodeEvent(data string) (eventFrame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(data), &parts); err != nil {
		return eventFrame{}, fmt.Errorf("decode event frame: %w", err)
	}
	if len(parts) == 0 {
		return eventFrame{}, fmt.Errorf("decode event frame: empty array")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return eventFrame{}, fmt.Errorf("decode event name: %w", err)
	}
	ev := eventFrame{Name: name}
	if len(parts) > 1 {
		ev.Arg = parts[1]
	}
	return ev, nil
}
