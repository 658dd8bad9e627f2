// Package server exposes bulk actions over HTTP and streams their progress over WebSocket.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/bulk"
)

// SessionHeader carries owner identity. Query parameter "session" is accepted as well.
const SessionHeader = "X-Session-Id"

// Server routes HTTP requests to registry and hub.
type Server struct {
	router   *mux.Router
	registry *bulk.Registry
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New builds router. Registry should publish snapshots to hub.
func New(registry *bulk.Registry, hub *Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.L()
	}
	s := &Server{
		router:   mux.NewRouter(),
		registry: registry,
		hub:      hub,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/databases/{databaseId}/bulk-actions", s.createAction).Methods(http.MethodPost)
	api.HandleFunc("/bulk-actions/{id}", s.getAction).Methods(http.MethodGet)
	api.HandleFunc("/bulk-actions/{id}", s.abortAction).Methods(http.MethodDelete)
	api.HandleFunc("/bulk-actions/{id}/ws", s.streamAction).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// WithCORS wraps router with CORS handling for listed origins.
// Empty list means no cross-origin access.
func (s *Server) WithCORS(origins []string) http.Handler {
	if len(origins) == 0 {
		return s
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", SessionHeader},
	}).Handler(s)
}

func owner(r *http.Request) string {
	if o := r.Header.Get(SessionHeader); o != "" {
		return o
	}
	return r.URL.Query().Get("session")
}
