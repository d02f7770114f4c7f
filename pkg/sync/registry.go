package sync

import (
	"fmt"
	"sync"
	"time"

	"github.com/heitortanoue/collabsync/internal/config"
	"github.com/heitortanoue/collabsync/logging"
	"github.com/heitortanoue/collabsync/pkg/transport"
)

// Registry owns the coordinators of one replica, keyed by entity id,
// and routes inbound transport messages to them. Coordinators come
// into being when an entity is first synchronized locally or when the
// first inbound message names an unknown entity, and live until
// explicitly disposed.
type Registry struct {
	cfg    *config.NodeConfig
	tr     transport.Transport
	logger *logging.SyncLogger

	coordinators map[string]*Coordinator
	mutex        sync.RWMutex
}

// NewRegistry creates a registry and wires itself as the transport's
// receive handler.
func NewRegistry(cfg *config.NodeConfig, tr transport.Transport, logger *logging.SyncLogger) *Registry {
	r := &Registry{
		cfg:          cfg,
		tr:           tr,
		logger:       logger,
		coordinators: make(map[string]*Coordinator),
	}
	tr.OnReceive(r.Dispatch)
	return r
}

// Create registers a new entity for synchronization.
func (r *Registry) Create(entityID string, kind PayloadKind) (*Coordinator, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.coordinators[entityID]; exists {
		return nil, fmt.Errorf("entity %q already registered", entityID)
	}
	return r.create(entityID, kind)
}

// create assumes the write lock is held.
func (r *Registry) create(entityID string, kind PayloadKind) (*Coordinator, error) {
	entity, err := NewEntity(kind, r.cfg.ReplicaID)
	if err != nil {
		return nil, err
	}
	coordinator := NewCoordinator(r.cfg.ReplicaID, entityID, entity, r.tr, r.logger,
		r.cfg.QueueCapacity, r.cfg.SeenCacheSize)
	r.coordinators[entityID] = coordinator
	return coordinator, nil
}

// Get returns the coordinator for an entity id.
func (r *Registry) Get(entityID string) (*Coordinator, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	coordinator, ok := r.coordinators[entityID]
	return coordinator, ok
}

// Entities returns the ids of all registered entities.
func (r *Registry) Entities() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]string, 0, len(r.coordinators))
	for id := range r.coordinators {
		ids = append(ids, id)
	}
	return ids
}

// Dispose tears an entity down, discarding its buffered updates.
func (r *Registry) Dispose(entityID string) {
	r.mutex.Lock()
	coordinator, ok := r.coordinators[entityID]
	delete(r.coordinators, entityID)
	r.mutex.Unlock()

	if ok {
		coordinator.Close()
	}
}

// Dispatch decodes a raw transport message and routes it. A message
// for an unknown entity with a known payload kind creates that entity
// on the fly; anything undecodable is dropped with a logged error and
// affects no other entity.
func (r *Registry) Dispatch(data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		r.logger.LogMessageDropped("?", "malformed", err)
		return
	}
	if msg.Replica == r.cfg.ReplicaID {
		return // our own broadcast echoed back
	}

	r.mutex.Lock()
	coordinator, ok := r.coordinators[msg.Entity]
	var created *Coordinator
	if !ok {
		if msg.Payload == nil {
			r.mutex.Unlock()
			r.logger.LogMessageDropped(msg.Entity, "unknown_entity_without_payload", nil)
			return
		}
		coordinator, err = r.create(msg.Entity, msg.Payload.Type)
		if err != nil {
			r.mutex.Unlock()
			r.logger.LogMessageDropped(msg.Entity, "entity_create_failed", err)
			return
		}
		created = coordinator
	}
	r.mutex.Unlock()

	if created != nil {
		// A freshly discovered entity starts its own handshake so it
		// catches up on state older than this first message.
		created.HandleConnect()
		created.StartResync(r.cfg.ResyncInterval)
	}
	coordinator.Receive(msg)
}

// ConnectAll propagates a transport connect to every coordinator.
func (r *Registry) ConnectAll() {
	for _, coordinator := range r.snapshot() {
		coordinator.HandleConnect()
	}
}

// DisconnectAll propagates a transport disconnect to every coordinator.
func (r *Registry) DisconnectAll() {
	for _, coordinator := range r.snapshot() {
		coordinator.HandleDisconnect()
	}
}

// StartResync launches every coordinator's anti-entropy loop.
func (r *Registry) StartResync(interval time.Duration) {
	for _, coordinator := range r.snapshot() {
		coordinator.StartResync(interval)
	}
}

// Shutdown closes every coordinator.
func (r *Registry) Shutdown() {
	r.mutex.Lock()
	coordinators := r.coordinators
	r.coordinators = make(map[string]*Coordinator)
	r.mutex.Unlock()

	for _, coordinator := range coordinators {
		coordinator.Close()
	}
}

func (r *Registry) snapshot() []*Coordinator {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	coordinators := make([]*Coordinator, 0, len(r.coordinators))
	for _, c := range r.coordinators {
		coordinators = append(coordinators, c)
	}
	return coordinators
}
