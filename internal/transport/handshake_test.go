package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatlink/internal/domain"
)

func TestDoHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("EIO") != "4" {
			t.Errorf("missing EIO param: %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("transport") != "polling" {
			t.Errorf("handshake must use polling, got %q", r.URL.Query().Get("transport"))
		}
		w.Write([]byte(`0{"sid":"s1","upgrades":["websocket"],"pingInterval":25000,"pingTimeout":20000}`))
	}))
	defer srv.Close()

	info, err := doHandshake(context.Background(), srv.Client(), srv.URL, "/ws/chat/")
	if err != nil {
		t.Fatal(err)
	}
	if info.SID != "s1" {
		t.Fatalf("expected sid s1, got %q", info.SID)
	}
	if !info.supportsUpgrade("websocket") {
		t.Fatal("upgrade capability lost")
	}
	if info.PingInterval != 25000 {
		t.Fatalf("ping interval lost: %d", info.PingInterval)
	}
}

func TestDoHandshake_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := doHandshake(context.Background(), srv.Client(), srv.URL, "/ws/chat/")
	if !errors.Is(err, domain.ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed, got %v", err)
	}
}

func TestDoHandshake_MalformedOpenPacket(t *testing.T) {
	for _, body := range []string{"", "hello", `0{"upgrades":[]}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		_, err := doHandshake(context.Background(), srv.Client(), srv.URL, "/ws/chat/")
		srv.Close()
		if !errors.Is(err, domain.ErrHandshakeFailed) {
			t.Fatalf("body %q: expected ErrHandshakeFailed, got %v", body, err)
		}
	}
}

func TestWebsocketURL_SchemeConversion(t *testing.T) {
	u, err := websocketURL("http://example.com:8000", "/ws/chat/", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "ws://example.com:8000/ws/chat/?") {
		t.Fatalf("unexpected url: %q", u)
	}
	if !strings.Contains(u, "sid=s1") || !strings.Contains(u, "transport=websocket") {
		t.Fatalf("missing params: %q", u)
	}

	u, err = websocketURL("https://example.com", "/ws/chat/", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "wss://") {
		t.Fatalf("https must map to wss: %q", u)
	}
}

func TestPollingURL(t *testing.T) {
	u, err := pollingURL("http://example.com", "/ws/chat/", "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(u, "sid=") {
		t.Fatalf("handshake url must not carry sid: %q", u)
	}
	u, err = pollingURL("http://example.com", "/ws/chat/", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(u, "sid=s1") {
		t.Fatalf("session url must carry sid: %q", u)
	}
}
