package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
)

//go:embed web/*
var webFS embed.FS

type Options struct {
	Host     string
	Port     int
	Status   func() map[string]any
	Snapshot func() any
	Config   func() map[string]any
	Log      *logrus.Logger
}

// Server is the browser preview: a static page plus a websocket that
// receives every published snapshot.
type Server struct {
	opts     Options
	log      *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func New(opts Options) *Server {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Log == nil {
		opts.Log = logging.L()
	}
	return &Server{
		opts: opts,
		log:  opts.Log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (s *Server) Handler() (http.Handler, error) {
	static, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}
	routes := map[string]http.Handler{
		"/":        http.FileServer(http.FS(static)),
		"/ws":      http.HandlerFunc(s.handleWS),
		"/healthz": http.HandlerFunc(s.handleHealth),
		"/config":  http.HandlerFunc(s.handleConfig),
		"/status":  http.HandlerFunc(s.handleStatus),
	}
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.Handle(pattern, h)
	}
	return mux, nil
}

// Run serves until ctx is cancelled, forwarding messages to every
// websocket client.
func (s *Server) Run(ctx context.Context, messages <-chan any) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		s.closeAll()
	}()
	go s.broadcast(ctx, messages)

	s.log.WithField("url", "http://"+addr).Info("preview UI listening")
	err = httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	c := newClient(conn)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.WithField("remote", r.RemoteAddr).Debug("preview client connected")

	_ = c.sendJSON(s.configPayload())
	go func() {
		defer s.drop(c)
		c.serve(s.reply)
	}()
}

// reply answers a request read from a client, or returns nil to ignore it.
func (s *Server) reply(req clientRequest) any {
	switch req.Type {
	case "snapshot_request":
		if s.opts.Snapshot == nil {
			return nil
		}
		if snapshot := s.opts.Snapshot(); snapshot != nil {
			return snapshot
		}
	case "config_request":
		return s.configPayload()
	}
	return nil
}

func (s *Server) configPayload() map[string]any {
	payload := map[string]any{}
	if s.opts.Config != nil {
		if cfg := s.opts.Config(); cfg != nil {
			payload = cfg
		}
	}
	payload["type"] = "config"
	return payload
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	payload := s.configPayload()
	payload["ui_port"] = s.opts.Port
	writeJSONResponse(w, payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{}
	if s.opts.Status != nil {
		if status := s.opts.Status(); status != nil {
			payload = status
		}
	}
	target := payload
	if metrics, ok := payload["metrics"].(map[string]any); ok {
		target = metrics
	}
	target["ws_clients"] = s.clientCount()
	writeJSONResponse(w, payload)
}

func writeJSONResponse(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// broadcast encodes each message once and writes it to a copy of the client
// list, so slow sockets never hold the registry lock.
func (s *Server) broadcast(ctx context.Context, messages <-chan any) {
	for {
		var message any
		select {
		case <-ctx.Done():
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			message = m
		}
		payload, err := json.Marshal(message)
		if err != nil {
			s.log.WithError(err).Warn("cannot encode preview message")
			continue
		}
		for _, c := range s.snapshotClients() {
			if err := c.send(websocket.TextMessage, payload); err != nil {
				s.drop(c)
			}
		}
	}
}

func (s *Server) snapshotClients() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.close()
	}
}

func (s *Server) closeAll() {
	for _, c := range s.snapshotClients() {
		s.drop(c)
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
