// Package portal serves the live platform dashboard over the shared output
// directory: the services the compose stack publishes, their health, the
// agents' decisions and a websocket feed of file changes.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/health"
	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/soyeahso/idpforge/internal/metrics"
	"github.com/soyeahso/idpforge/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

// Server is the dashboard HTTP + WebSocket server.
type Server struct {
	cfg     config.PortalConfig
	ws      *workspace.Workspace
	checker *health.Checker
	hub     *Hub
	log     *logging.Logger

	upgrader  websocket.Upgrader
	startedAt time.Time

	mu   sync.Mutex
	addr string
}

// Option configures the server.
type Option func(*Server)

// WithChecker replaces the health checker.
func WithChecker(c *health.Checker) Option {
	return func(s *Server) { s.checker = c }
}

// New creates a dashboard server over ws.
func New(cfg config.PortalConfig, ws *workspace.Workspace, log *logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.Nop()
	}
	log = log.Sub("portal")
	s := &Server{
		cfg:     cfg,
		ws:      ws,
		checker: health.NewChecker(health.DefaultTimeout, log),
		hub:     NewHub(log.Sub("ws")),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkOrigin accepts same-origin and non-browser clients, plus the
// configured origins.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u := "http://" + r.Host; origin == u {
			return true
		}
		return originAllowed(origin, allowed)
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(cors(s.cfg.AllowedOrigins))
	r.Use(accessLog(s.log))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RateLimit))
		r.Get("/services", s.handleServices)
		r.Get("/health", s.handleServiceHealth)
		r.Get("/decisions", s.handleDecisions)
		r.Get("/config", s.handleConfig)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

// Addr returns the listen address once the server is serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAddr is the configured bind address.
func (s *Server) ListenAddr() string {
	bind := s.cfg.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	port := s.cfg.Port
	if port == 0 {
		port = config.DefaultPortalPort
	}
	return net.JoinHostPort(bind, strconv.Itoa(port))
}

// Start serves until ctx is cancelled. When watch is set, file changes
// under the output directory are pushed to websocket clients. Every
// goroutine it starts has exited when Start returns.
func (s *Server) Start(ctx context.Context, watch bool) error {
	ln, err := net.Listen("tcp", s.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.ListenAddr(), err)
	}
	return s.Serve(ctx, ln, watch)
}

// Serve is Start over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, watch bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if watch {
		w, err := NewWatcher(s.ws.Root(), s.log.Sub("watch"))
		if err != nil {
			ln.Close()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, func(c Change) {
				s.hub.Broadcast(Event{Type: "artifact", Path: c.Path, Op: c.Op})
			})
		}()
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	s.log.Info().Str("addr", ln.Addr().String()).Str("output", s.ws.Root()).Bool("watch", watch).Msg("portal ready")

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		s.log.Info().Msg("shutting down portal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.hub.CloseAll()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err := srv.Serve(ln)
	cancel()
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWebSocket upgrades the request and keeps the client registered
// until it disconnects. Clients only receive.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(4096)

	client := NewClient(conn)
	s.hub.Add(client)
	defer func() {
		s.hub.Remove(client.ConnID)
		client.Close()
	}()

	if err := client.Send(Event{Type: "hello", At: time.Now().UTC().Format(time.RFC3339)}); err != nil {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}
	}
}
