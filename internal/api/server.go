package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/swap"
)

const (
	writeTimeout = 5 * time.Second
	pingPeriod   = 30 * time.Second
	// clientBuffer frames per client; a client that cannot keep up is
	// dropped rather than allowed to stall everyone else.
	clientBuffer = 16
)

// Applier receives intents decoded from the HTTP and WS surfaces.
type Applier func(ctx context.Context, intent swap.Intent) error

// Server exposes the engine to the browser: a JSON state snapshot, an
// intent endpoint, and a websocket that pushes a fresh frame on every
// state change.
type Server struct {
	addr  string
	apply Applier
	log   *zap.Logger

	mu      sync.RWMutex
	latest  []byte
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The swap page may be served from any origin during development.
	CheckOrigin: func(*http.Request) bool { return true },
}

func NewServer(addr string, apply Applier, log *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		apply:   apply,
		log:     log,
		latest:  []byte("{}"),
		clients: make(map[*client]struct{}),
	}
}

// Publish installs the latest state frame and fans it out to every
// connected websocket client.
func (s *Server) Publish(frame interface{}) {
	buf, err := json.Marshal(frame)
	if err != nil {
		s.log.Error("api: marshal frame", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.latest = buf
	for c := range s.clients {
		select {
		case c.send <- buf:
		default:
			delete(s.clients, c)
			close(c.send)
		}
	}
	s.mu.Unlock()
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/state", s.handleState)
	mux.HandleFunc("/v1/intent", s.handleIntent)
	mux.HandleFunc("/ws", s.handleWS)
	return withCORS(mux)
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 3 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api: listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeClients()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	buf := s.latest
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf)
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var intent swap.Intent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		http.Error(w, "bad intent: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.apply(r.Context(), intent); err != nil {
		s.log.Warn("api: intent rejected",
			zap.String("type", string(intent.Type)), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("api: ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	c.send <- s.latest
	s.mu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

// readPump discards inbound messages; the websocket is push-only and
// intents go through POST /v1/intent. Reading is still required to
// process close frames.
func (s *Server) readPump(c *client) {
	defer s.dropClient(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case buf, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	_ = c.conn.Close()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
		_ = c.conn.Close()
	}
	s.mu.Unlock()
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
