// ABOUTME: Tests for the websocket metric feed
// ABOUTME: Dials the feed over httptest and checks broadcast, dropping and shutdown
package feed

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pcmprobe/pcmprobe/pkg/meter"
)

func dial(t *testing.T, s *Server) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(s.Handler())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("dial failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func TestPublishReachesClient(t *testing.T) {
	s := New(Config{Device: "Sine 440 Hz"})
	conn, cleanup := dial(t, s)
	defer cleanup()

	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	s.Publish(meter.Reading{Seq: 7, RMS: 1234.5, Peak: 4000, DBFS: -28.5, At: at})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Errorf("expected text message, got %d", msgType)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid JSON %q: %v", data, err)
	}
	if msg.Seq != 7 || msg.RMS != 1234.5 || msg.Peak != 4000 || msg.DBFS != -28.5 {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Device != "Sine 440 Hz" || !msg.At.Equal(at) {
		t.Errorf("unexpected device or time %+v", msg)
	}

	for _, key := range []string{`"seq"`, `"rms"`, `"peak"`, `"dbfs"`, `"device"`, `"at"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("expected key %s in %s", key, data)
		}
	}
}

func TestPublishWithoutClients(t *testing.T) {
	s := New(Config{})
	s.Publish(meter.Reading{Seq: 1})
	if s.Clients() != 0 {
		t.Errorf("expected no clients, got %d", s.Clients())
	}
}

func TestSlowClientDrops(t *testing.T) {
	s := New(Config{})
	c := &client{id: "slow", sendChan: make(chan []byte, 1)}
	s.clients[c.id] = c

	done := make(chan struct{})
	go func() {
		s.Publish(meter.Reading{Seq: 1})
		s.Publish(meter.Reading{Seq: 2})
		s.Publish(meter.Reading{Seq: 3})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow client")
	}
	if c.dropped.Load() != 2 {
		t.Errorf("expected 2 dropped readings, got %d", c.dropped.Load())
	}
}

func TestClientDisconnect(t *testing.T) {
	s := New(Config{})
	conn, cleanup := dial(t, s)
	defer cleanup()

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never deregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	s := New(Config{})
	conn, cleanup := dial(t, s)
	defer cleanup()

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read error after Close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestStartAndPort(t *testing.T) {
	s := New(Config{Port: 0})
	if s.Port() != 0 {
		t.Error("expected no port before Start")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	if s.Port() == 0 {
		t.Error("expected a bound port")
	}
}
