package network

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

// HTTPServer exposes the node's control surface: health, entity
// state reads, local mutations and runtime stats. Handlers for the
// sync layer are injected by the host.
type HTTPServer struct {
	port      int
	mux       *http.ServeMux
	replicaID string
	server    *http.Server

	UpdateHandler http.HandlerFunc
	StateHandler  http.HandlerFunc
	StatsHandler  http.HandlerFunc
}

// NewHTTPServer creates the server and registers its routes.
func NewHTTPServer(replicaID string, port int) *HTTPServer {
	mux := http.NewServeMux()

	httpServer := &HTTPServer{
		replicaID: replicaID,
		port:      port,
		mux:       mux,
		server: &http.Server{
			Addr:    ":" + strconv.Itoa(port),
			Handler: mux,
		},
	}

	httpServer.setupRoutes()
	return httpServer
}

func (s *HTTPServer) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/update", s.handleUpdateWrapper)
	s.mux.HandleFunc("/state", s.handleStateWrapper)
	s.mux.HandleFunc("/stats", s.handleStatsWrapper)
}

// Start launches the HTTP server.
func (s *HTTPServer) Start() error {
	log.Printf("[HTTP] Server started on port %d", s.port)
	return s.server.ListenAndServe()
}

// Stop shuts down the HTTP server.
func (s *HTTPServer) Stop() error {
	log.Printf("[HTTP] Stopping server on port %d", s.port)
	return s.server.Close()
}

// handleHealth provides a basic health-check endpoint.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"replica_id": s.replicaID,
		"status":     "healthy",
		"port":       s.port,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *HTTPServer) handleUpdateWrapper(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Replica-ID", s.replicaID)
	if s.UpdateHandler != nil {
		s.UpdateHandler(w, r)
	} else {
		s.sendNotWired(w, "Update handler")
	}
}

func (s *HTTPServer) handleStateWrapper(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Replica-ID", s.replicaID)
	if s.StateHandler != nil {
		s.StateHandler(w, r)
	} else {
		s.sendNotWired(w, "State handler")
	}
}

func (s *HTTPServer) handleStatsWrapper(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Replica-ID", s.replicaID)
	if s.StatsHandler != nil {
		s.StatsHandler(w, r)
	} else {
		s.sendNotWired(w, "Stats handler")
	}
}

func (s *HTTPServer) sendNotWired(w http.ResponseWriter, feature string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotImplemented)

	response := map[string]interface{}{
		"error":   "Not wired",
		"feature": feature,
	}

	json.NewEncoder(w).Encode(response)
}
