package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"chatlink/internal/domain"
)

// handshakeInfo is the server's open packet: the session identifier, the
// substrates it is willing to upgrade to, and the heartbeat schedule.
type handshakeInfo struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
}

func (h handshakeInfo) supportsUpgrade(name string) bool {
	for _, u := range h.Upgrades {
		if u == name {
			return true
		}
	}
	return false
}

// doHandshake performs the first phase of the layered negotiation: a plain
// request/response exchange that yields the session identifier. Opening a
// raw bidirectional socket without this step fails outright — the server
// only recognizes the layered handshake.
func doHandshake(ctx context.Context, client *http.Client, endpoint, path string) (*handshakeInfo, error) {
	u, err := pollingURL(endpoint, path, "")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build handshake request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrHandshakeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrHandshakeFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read handshake body: %v", domain.ErrHandshakeFailed, err)
	}

	packets, err := decodePayload(string(body))
	if err != nil || len(packets) == 0 || packets[0].typ != packetOpen {
		return nil, fmt.Errorf("%w: malformed open packet %q", domain.ErrHandshakeFailed, truncate(string(body), 128))
	}

	var info handshakeInfo
	if err := json.Unmarshal([]byte(packets[0].data), &info); err != nil {
		return nil, fmt.Errorf("%w: decode open packet: %v", domain.ErrHandshakeFailed, err)
	}
	if info.SID == "" {
		return nil, fmt.Errorf("%w: open packet missing sid", domain.ErrHandshakeFailed)
	}
	return &info, nil
}

// pollingURL builds the request/response substrate URL. sid is empty for
// the initial handshake.
func pollingURL(endpoint, path, sid string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	u.Path = path
	q := url.Values{}
	q.Set("EIO", "4")
	q.Set("transport", "polling")
	if sid != "" {
		q.Set("sid", sid)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// websocketURL builds the persistent-channel URL for the upgrade attempt.
func websocketURL(endpoint, path, sid string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = path
	q := url.Values{}
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	q.Set("sid", sid)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// handshakeTimeout bounds the whole connect sequence when the caller's
// context has no earlier deadline.
func withHandshakeTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
