// ABOUTME: Websocket metric feed
// ABOUTME: Broadcasts meter readings as JSON to every connected client
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pcmprobe/pcmprobe/pkg/meter"
)

// Path is the websocket endpoint
const Path = "/meter"

const (
	sendBuffer    = 32
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Message is one reading on the wire. It carries levels only, never samples.
type Message struct {
	Seq    uint64    `json:"seq"`
	RMS    float64   `json:"rms"`
	Peak   float64   `json:"peak"`
	DBFS   float64   `json:"dbfs"`
	Device string    `json:"device"`
	At     time.Time `json:"at"`
}

// Config holds feed configuration
type Config struct {
	// Port to listen on; 0 picks a free port
	Port   int
	Device string
}

type client struct {
	id       string
	conn     *websocket.Conn
	sendChan chan []byte
	dropped  atomic.Uint64
}

// Server accepts websocket clients on Path and fans readings out to them
type Server struct {
	config   Config
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	logger   *slog.Logger

	httpServer *http.Server
	listener   net.Listener

	clientsMu  sync.RWMutex
	clients    map[string]*client
	isShutdown bool

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a feed server
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// The feed is read-only and meant for trusted local networks
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		logger:  slog.Default().With("component", "feed"),
	}
	s.mux.HandleFunc(Path, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the feed
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("feed listen failed: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.mux}

	s.logger.Info("metric feed listening", "addr", ln.Addr().String(), "path", Path)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("feed server error", "err", err)
		}
	}()
	return nil
}

// Port returns the listening port, or 0 before Start
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Publish sends r to every client. A client whose queue is full misses it.
func (s *Server) Publish(r meter.Reading) {
	data, err := json.Marshal(Message{
		Seq:    r.Seq,
		RMS:    r.RMS,
		Peak:   r.Peak,
		DBFS:   r.DBFS,
		Device: s.config.Device,
		At:     r.At,
	})
	if err != nil {
		s.logger.Warn("failed to marshal reading", "err", err)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.sendChan <- data:
		default:
			if c.dropped.Add(1) == 1 {
				s.logger.Warn("feed client falling behind, dropping readings", "client", c.id)
			}
		}
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", "err", err)
		return
	}
	defer conn.Close()

	c := &client{
		id:       uuid.New().String(),
		conn:     conn,
		sendChan: make(chan []byte, sendBuffer),
	}

	s.clientsMu.Lock()
	if s.isShutdown {
		s.clientsMu.Unlock()
		return
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	s.clientsMu.Unlock()

	s.logger.Info("feed client connected", "client", c.id, "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.clientWriter(c)
	}()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		close(c.sendChan)
		<-writerDone
		s.wg.Done()
		s.logger.Info("feed client disconnected", "client", c.id, "dropped", c.dropped.Load())
	}()

	// Incoming messages are ignored; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

// clientWriter sends queued readings to the client
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.sendChan:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("error writing reading", "client", c.id, "err", err)
				c.conn.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// Close disconnects clients and stops the server
func (s *Server) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.clientsMu.Lock()
		s.isShutdown = true
		for _, c := range s.clients {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "probe stopping"),
				time.Now().Add(time.Second))
			c.conn.Close()
		}
		s.clientsMu.Unlock()

		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = s.httpServer.Shutdown(ctx)
		}
		s.wg.Wait()
	})
	return err
}
