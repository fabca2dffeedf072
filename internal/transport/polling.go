package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// substrate is one concrete carrier for the logical duplex channel: either
// the persistent websocket or the request/response polling fallback.
type substrate interface {
	name() string
	// receive blocks until the next engine packet arrives. It is called
	// from a single reader goroutine only.
	receive() (packet, error)
	send(p packet) error
	close() error
}

// pollingConn emulates a duplex channel over repeated request/response
// cycles: long GETs to receive, POSTs to send. It is the degraded
// substrate used when the persistent channel cannot be established.
type pollingConn struct {
	client   *http.Client
	url      string
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	pending  []packet // decoded but not yet delivered
	sendMu   sync.Mutex
	closeOne sync.Once
}

func newPollingConn(client *http.Client, endpoint, path, sid string, logger *slog.Logger) (*pollingConn, error) {
	u, err := pollingURL(endpoint, path, sid)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &pollingConn{
		client: client,
		url:    u,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (p *pollingConn) name() string { return "polling" }

func (p *pollingConn) receive() (packet, error) {
	for len(p.pending) == 0 {
		packets, err := p.poll()
		if err != nil {
			return packet{}, err
		}
		p.pending = packets
	}
	pkt := p.pending[0]
	p.pending = p.pending[1:]
	return pkt, nil
}

// poll issues one long GET. The server holds the request open until it has
// packets to deliver or its heartbeat interval elapses.
func (p *pollingConn) poll() ([]packet, error) {
	req, err := http.NewRequestWithContext(p.ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("poll: read body: %w", err)
	}
	return decodePayload(string(body))
}

func (p *pollingConn) send(pkt packet) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	req, err := http.NewRequestWithContext(p.ctx, http.MethodPost, p.url, strings.NewReader(pkt.encode()))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (p *pollingConn) close() error {
	p.closeOne.Do(func() {
		// Best-effort close packet so the server can reap the session.
		if err := p.send(packet{typ: packetClose}); err != nil {
			p.logger.Debug("polling close packet failed", "err", err)
		}
		p.cancel()
	})
	return nil
}

// abandon cancels the polling cycle without closing the session. Used
// once the session has been promoted to the websocket substrate, which
// now owns the same sid.
func (p *pollingConn) abandon() {
	p.closeOne.Do(p.cancel)
}
