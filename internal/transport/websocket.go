package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the persistent bidirectional substrate.
type wsConn struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	readDeadline time.Duration
	closeOne     sync.Once
}

func (w *wsConn) name() string { return "websocket" }

func (w *wsConn) receive() (packet, error) {
	if w.readDeadline > 0 {
		_ = w.conn.SetReadDeadline(time.Now().Add(w.readDeadline))
	}
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return packet{}, err
	}
	return decodePacket(string(data))
}

func (w *wsConn) send(p packet) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, []byte(p.encode()))
}

func (w *wsConn) close() error {
	var err error
	w.closeOne.Do(func() {
		w.writeMu.Lock()
		_ = w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}

// upgradeWebsocket attempts the second negotiation phase: promote the
// handshaken session to a persistent channel. The probe/commit exchange
// runs on the new socket while the polling substrate still owns the
// session, exactly as the layered protocol requires.
func upgradeWebsocket(ctx context.Context, dialer *websocket.Dialer, endpoint, path string, info *handshakeInfo, logger *slog.Logger) (*wsConn, error) {
	u, err := websocketURL(endpoint, path, info.SID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial websocket: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	ws := &wsConn{conn: conn}
	if info.PingInterval > 0 {
		// A missed heartbeat cycle means the channel is dead.
		ws.readDeadline = time.Duration(info.PingInterval+info.PingTimeout) * time.Millisecond
	}

	// Probe, expect echo, then commit the upgrade.
	if err := ws.send(packet{typ: packetPing, data: "probe"}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("upgrade probe: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	reply, err := ws.receive()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("upgrade probe reply: %w", err)
	}
	if reply.typ != packetPong || reply.data != "probe" {
		conn.Close()
		return nil, fmt.Errorf("upgrade probe reply: unexpected packet %q", reply.encode())
	}
	if err := ws.send(packet{typ: packetUpgrade}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("upgrade commit: %w", err)
	}

	logger.Debug("channel upgraded", "substrate", "websocket", "sid", info.SID)
	return ws, nil
}
