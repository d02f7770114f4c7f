package config

import (
	"time"
)

// NodeConfig is the centralized configuration of a sync node.
type NodeConfig struct {
	// Identification
	ReplicaID string `json:"replica_id"`

	// Network
	BindAddr    string   `json:"bind_addr"`    // address for bind
	ClusterPort int      `json:"cluster_port"` // SWIM gossip port
	HTTPPort    int      `json:"http_port"`    // control API port
	Seeds       []string `json:"seeds"`        // cluster seeds for initial join
	RelayURL    string   `json:"relay_url"`    // websocket relay (empty = cluster transport)

	// Coordinator
	QueueCapacity  int           `json:"queue_capacity"`  // offline update buffer size
	SeenCacheSize  int           `json:"seen_cache_size"` // dedup cache for message ids
	ResyncInterval time.Duration `json:"resync_interval"` // anti-entropy full resync

	// Timeouts
	SendTimeout time.Duration `json:"send_timeout"` // transport write timeout
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *NodeConfig {
	return &NodeConfig{
		ReplicaID:      "replica-1",
		BindAddr:       "0.0.0.0",
		ClusterPort:    7946,
		HTTPPort:       8080,
		QueueCapacity:  256,
		SeenCacheSize:  10000,
		ResyncInterval: 60 * time.Second, // anti-entropy every 60s
		SendTimeout:    5 * time.Second,
	}
}
