package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/agentmesh/corectl/internal/consensus"
	"github.com/agentmesh/corectl/internal/lock"
	"github.com/agentmesh/corectl/internal/observability/events"
	"github.com/agentmesh/corectl/internal/observability/metrics"
	"github.com/agentmesh/corectl/internal/queue"
	"github.com/agentmesh/corectl/internal/registry"
)

const logPrefix = "[HTTPAPI]"

// Server is the read-only observability HTTP surface: GET /snapshot and
// the /events/ws live feed, adapted from teacher's Server
// (internal/server/server.go) trimmed to this spec's scope.
type Server struct {
	router *mux.Router
	hub    *hub
	src    *sources
	bus    *events.Bus
}

// New builds a Server. Any of the collaborator arguments may be relied on
// concurrently by the dispatcher/lock/registry/consensus packages that own
// them; Server only ever reads.
func New(reg *registry.Registry, queues *queue.Engine, locks *lock.Manager, cons *consensus.Coordinator, collector metrics.Collector, bus *events.Bus) *Server {
	s := &Server{
		hub: newHub(),
		src: &sources{registry: reg, queues: queues, locks: locks, consensus: cons, collector: collector},
		bus: bus,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(securityHeadersMiddleware)
	s.router.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	s.router.HandleFunc("/events/ws", s.handleWebSocket)
}

// Handler returns the composed http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// Run starts the hub loop and the bus-to-websocket bridge, blocking until
// ctx is canceled.
func (s *Server) Run(ctx context.Context) {
	go s.hub.run()
	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.hub.broadcastJSON(e)
		}
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.src.Build(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("%s encode snapshot: %v", logPrefix, err)
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: checkWebSocketOrigin}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{hub: s.hub, conn: conn, send: make(chan []byte, hubBufferSize)}
	s.hub.register <- client

	snap := s.src.Build(r.Context())
	if data, err := json.Marshal(snap); err == nil {
		client.send <- data
	}

	go client.writePump()
	go client.readPump()
}

// allowedOrigins and checkWebSocketOrigin are adapted from teacher's
// internal/server/handlers.go localhost-or-configured-origin CSRF guard.
var allowedOrigins = initAllowedOrigins()

func initAllowedOrigins() []string {
	defaults := []string{
		"http://localhost:3000", "http://localhost:8080",
		"http://127.0.0.1:3000", "http://127.0.0.1:8080",
	}
	if extra := os.Getenv("CORECTL_ALLOWED_ORIGINS"); extra != "" {
		for _, origin := range strings.Split(extra, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				defaults = append(defaults, origin)
			}
		}
	}
	return defaults
}

func checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if host := originURL.Hostname(); host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Hostname() != allowedURL.Hostname() || originURL.Scheme != allowedURL.Scheme {
			continue
		}
		if allowedURL.Port() == "" || originURL.Port() == allowedURL.Port() {
			return true
		}
	}
	return false
}

// securityHeadersMiddleware strips the Go-version-revealing Server header,
// matching teacher's internal/server/middleware.go.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "corectl")
		next.ServeHTTP(w, r)
	})
}
