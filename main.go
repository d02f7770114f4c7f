package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/heitortanoue/collabsync/internal/config"
	"github.com/heitortanoue/collabsync/logging"
	"github.com/heitortanoue/collabsync/pkg/network"
	csync "github.com/heitortanoue/collabsync/pkg/sync"
	"github.com/heitortanoue/collabsync/pkg/transport"
)

func main() {
	// Command line flags
	var (
		replicaID   = flag.String("id", "replica-1", "Unique ID of this replica")
		bindAddr    = flag.String("bind", "0.0.0.0", "Bind address")
		clusterPort = flag.Int("cluster-port", 7946, "SWIM gossip port")
		httpPort    = flag.Int("http-port", 8080, "Control API port")
		seeds       = flag.String("seeds", "", "Comma-separated cluster seed addresses")
		relayURL    = flag.String("relay", "", "Websocket relay URL (overrides cluster transport)")
		queueCap    = flag.Int("queue-cap", 256, "Offline update buffer capacity")
		resyncSec   = flag.Int("resync-sec", 60, "Anti-entropy resync interval in seconds")
		showUsage   = flag.Bool("help", false, "Show usage help")
	)
	flag.Parse()

	if *showUsage {
		printUsage()
		return
	}

	cfg := config.DefaultConfig()
	cfg.ReplicaID = *replicaID
	cfg.BindAddr = *bindAddr
	cfg.ClusterPort = *clusterPort
	cfg.HTTPPort = *httpPort
	cfg.RelayURL = *relayURL
	cfg.QueueCapacity = *queueCap
	cfg.ResyncInterval = time.Duration(*resyncSec) * time.Second
	if *seeds != "" {
		cfg.Seeds = strings.Split(*seeds, ",")
	}

	logger := logging.NewSyncLogger(cfg.ReplicaID)

	// Transport: websocket relay when configured, SWIM cluster otherwise
	var (
		registry *csync.Registry
		shutdown func()
	)

	if cfg.RelayURL != "" {
		ws := transport.NewWebSocketTransport(cfg.RelayURL, cfg.SendTimeout)
		registry = csync.NewRegistry(cfg, ws, logger)
		ws.OnConnect(registry.ConnectAll)
		ws.OnDisconnect(registry.DisconnectAll)
		ws.Start()
		shutdown = ws.Stop
	} else {
		cluster, err := transport.NewClusterTransport(transport.ClusterConfig{
			NodeID:   cfg.ReplicaID,
			BindAddr: cfg.BindAddr,
			BindPort: cfg.ClusterPort,
			Seeds:    cfg.Seeds,
		})
		if err != nil {
			log.Fatalf("Error starting cluster transport: %v", err)
		}
		registry = csync.NewRegistry(cfg, cluster, logger)
		// The cluster transport has no single connect event; members
		// are reachable as soon as the gossip layer is up.
		registry.ConnectAll()
		shutdown = func() {
			if err := cluster.Shutdown(); err != nil {
				log.Printf("Error stopping cluster transport: %v", err)
			}
		}
	}

	httpServer := network.NewHTTPServer(cfg.ReplicaID, cfg.HTTPPort)
	httpServer.UpdateHandler = createUpdateHandler(registry, cfg)
	httpServer.StateHandler = createStateHandler(registry)
	httpServer.StatsHandler = createStatsHandler(registry, cfg)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutdown signal received, stopping...")

		fmt.Println("Stopping coordinators...")
		registry.Shutdown()

		fmt.Println("Stopping transport...")
		shutdown()

		fmt.Println("Stopping HTTP server...")
		if err := httpServer.Stop(); err != nil {
			fmt.Printf("Error stopping HTTP: %v\n", err)
		}

		os.Exit(0)
	}()

	// Startup info
	fmt.Printf("=== Replica %s ===\n", cfg.ReplicaID)
	if cfg.RelayURL != "" {
		fmt.Printf("Relay: %s\n", cfg.RelayURL)
	} else {
		fmt.Printf("Cluster (SWIM): %s:%d seeds=%v\n", cfg.BindAddr, cfg.ClusterPort, cfg.Seeds)
	}
	fmt.Printf("Control API: http://%s:%d\n", cfg.BindAddr, cfg.HTTPPort)
	fmt.Printf("Anti-entropy: every %v\n", cfg.ResyncInterval)
	fmt.Printf("Starting...\n\n")

	if err := httpServer.Start(); err != nil {
		log.Fatalf("Error starting HTTP server: %v", err)
	}
}

// printUsage shows available options and endpoints
func printUsage() {
	fmt.Fprintf(os.Stderr, `
=== Collabsync Node ===

USAGE:
  %s [options]

EXAMPLES:
  %s -id=replica-1
  %s -id=replica-2 -cluster-port=7947 -http-port=8081 -seeds=127.0.0.1:7946
  %s -id=replica-3 -relay=ws://relay.local:9000/ws

OPTIONS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])

	flag.PrintDefaults()

	fmt.Fprintf(os.Stderr, `
ENDPOINTS (HTTP):
  POST /update     - Apply a local mutation {entity, kind, mutation}
  GET  /state      - Converged value of an entity (?entity=...)
  GET  /stats      - Replica statistics
`)
}

// updateRequest is the body of POST /update.
type updateRequest struct {
	Entity   string            `json:"entity"`
	Kind     csync.PayloadKind `json:"kind"`
	Mutation csync.Mutation    `json:"mutation"`
}

// createUpdateHandler handles POST /update
func createUpdateHandler(registry *csync.Registry, cfg *config.NodeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Entity == "" {
			http.Error(w, "Missing entity", http.StatusBadRequest)
			return
		}

		coordinator, ok := registry.Get(req.Entity)
		if !ok {
			var err error
			coordinator, err = registry.Create(req.Entity, req.Kind)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			coordinator.HandleConnect()
			coordinator.StartResync(cfg.ResyncInterval)
		}

		value, err := coordinator.Update(req.Mutation)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		response := map[string]interface{}{
			"entity":  req.Entity,
			"value":   value,
			"version": coordinator.Version(),
			"state":   coordinator.State().String(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// createStateHandler handles GET /state
func createStateHandler(registry *csync.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		entityID := r.URL.Query().Get("entity")
		if entityID == "" {
			http.Error(w, "Missing entity parameter", http.StatusBadRequest)
			return
		}

		coordinator, ok := registry.Get(entityID)
		if !ok {
			http.Error(w, "Unknown entity", http.StatusNotFound)
			return
		}

		response := map[string]interface{}{
			"entity":  entityID,
			"kind":    coordinator.Kind(),
			"value":   coordinator.Value(),
			"version": coordinator.Version(),
			"state":   coordinator.State().String(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// createStatsHandler handles GET /stats
func createStatsHandler(registry *csync.Registry, cfg *config.NodeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		entities := registry.Entities()
		response := map[string]interface{}{
			"replica_id":      cfg.ReplicaID,
			"entities":        entities,
			"entity_count":    len(entities),
			"queue_capacity":  cfg.QueueCapacity,
			"resync_interval": cfg.ResyncInterval.String(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
