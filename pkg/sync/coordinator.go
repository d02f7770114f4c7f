package sync

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heitortanoue/collabsync/logging"
	"github.com/heitortanoue/collabsync/pkg/transport"
)

// State is the coordinator's connection state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSyncing
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	}
	return "unknown"
}

// pendingTTL bounds how long an unanswered sync request correlation
// stays in the pending table.
const pendingTTL = 5 * time.Minute

// Coordinator owns one synchronized entity: it applies local
// mutations, broadcasts them, merges inbound updates and notifies
// observers of every state-changing operation. All merge and mutation
// paths complete synchronously; the only suspension point is message
// arrival on the transport.
type Coordinator struct {
	replicaID string
	entityID  string
	entity    Entity
	tr        transport.Transport
	logger    *logging.SyncLogger

	state     State
	version   int64
	queue     *updateQueue
	pending   map[uuid.UUID]time.Time
	seen      *seenCache
	observers []func(any)

	resyncStop    chan struct{}
	resyncRunning bool

	mutex sync.Mutex
}

// NewCoordinator creates a coordinator in the Disconnected state.
func NewCoordinator(replicaID, entityID string, entity Entity, tr transport.Transport, logger *logging.SyncLogger, queueCapacity, seenCacheSize int) *Coordinator {
	return &Coordinator{
		replicaID: replicaID,
		entityID:  entityID,
		entity:    entity,
		tr:        tr,
		logger:    logger,
		state:     StateDisconnected,
		queue:     newUpdateQueue(queueCapacity),
		pending:   make(map[uuid.UUID]time.Time),
		seen:      newSeenCache(seenCacheSize),
	}
}

// EntityID returns the synchronized entity's id.
func (c *Coordinator) EntityID() string { return c.entityID }

// Kind returns the entity's payload kind.
func (c *Coordinator) Kind() PayloadKind { return c.entity.Kind() }

// State returns the current connection state.
func (c *Coordinator) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Version returns the local logical revision.
func (c *Coordinator) Version() int64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.version
}

// Value returns the current converged value.
func (c *Coordinator) Value() any {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.entity.Value()
}

// OnChange registers an observer invoked exactly once per
// state-changing merge or local update, with the new converged value.
// No-op merges do not notify.
func (c *Coordinator) OnChange(callback func(any)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.observers = append(c.observers, callback)
}

// Update applies a local mutation and returns the converged value.
// While Synced the resulting update is broadcast immediately; in any
// other state it is buffered for replay after the next handshake.
// Invalid mutations return an error with local state unchanged.
func (c *Coordinator) Update(m Mutation) (any, error) {
	c.mutex.Lock()

	changed, update, err := c.entity.ApplyLocal(m)
	if err != nil {
		value := c.entity.Value()
		c.mutex.Unlock()
		return value, err
	}

	var outbound []byte
	if changed {
		c.version++
		c.logger.LogLocalUpdate(c.entityID, string(m.Op), c.version)

		encoded, encErr := c.encodeUpdate(update)
		if encErr != nil {
			c.logger.LogError("encode_update", encErr)
		} else if c.state == StateSynced {
			outbound = encoded
		} else if c.queue.Push(encoded) {
			c.logger.LogQueueOverflow(c.entityID, c.queue.capacity)
		}
	}

	value := c.entity.Value()
	observers := c.notifiable(changed)
	c.mutex.Unlock()

	if outbound != nil {
		if err := c.tr.Send(outbound); err != nil {
			c.logger.LogError("send_update", err)
		}
	}
	for _, fn := range observers {
		fn(value)
	}
	return value, nil
}

// HandleConnect moves Disconnected -> Connecting and emits a sync
// request carrying the last known version. The host wires this to its
// transport's connect event.
func (c *Coordinator) HandleConnect() {
	c.mutex.Lock()
	if c.state != StateDisconnected {
		c.mutex.Unlock()
		return
	}
	c.transition(StateConnecting)
	request := c.newSyncRequest()
	c.mutex.Unlock()

	c.sendRequest(request)
}

// HandleDisconnect returns to Disconnected. Buffering of subsequent
// local mutations resumes; pending correlations are discarded.
func (c *Coordinator) HandleDisconnect() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state == StateDisconnected {
		return
	}
	c.transition(StateDisconnected)
	c.pending = make(map[uuid.UUID]time.Time)
}

// ReceiveMessage parses and dispatches a raw transport message.
// Malformed payloads are dropped with a logged error and never alter
// state.
func (c *Coordinator) ReceiveMessage(data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		c.logger.LogMessageDropped(c.entityID, "malformed", err)
		return
	}
	c.Receive(msg)
}

// Receive dispatches an already decoded message.
func (c *Coordinator) Receive(msg *Message) {
	if msg.Entity != c.entityID {
		c.logger.LogMessageDropped(c.entityID, "wrong_entity:"+msg.Entity, nil)
		return
	}
	if msg.Replica == c.replicaID {
		return // our own broadcast echoed back
	}

	switch msg.Kind {
	case KindUpdate:
		c.handleUpdate(msg)
	case KindSyncRequest:
		c.handleSyncRequest(msg)
	case KindSyncResponse:
		c.handleSyncResponse(msg)
	default:
		c.logger.LogMessageDropped(c.entityID, "unknown_kind:"+string(msg.Kind), nil)
	}
}

// StartResync launches the periodic anti-entropy loop: while not
// Disconnected it emits a fresh sync request so dropped updates
// self-heal through full-state exchange.
func (c *Coordinator) StartResync(interval time.Duration) {
	c.mutex.Lock()
	if c.resyncRunning || interval <= 0 {
		c.mutex.Unlock()
		return
	}
	c.resyncRunning = true
	c.resyncStop = make(chan struct{})
	stop := c.resyncStop
	c.mutex.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.resyncTick()
			}
		}
	}()
}

// StopResync halts the anti-entropy loop.
func (c *Coordinator) StopResync() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.resyncRunning {
		close(c.resyncStop)
		c.resyncRunning = false
	}
}

// Close tears the coordinator down. Buffered updates are discarded;
// merges are atomic and synchronous, so none is left half-applied.
func (c *Coordinator) Close() {
	c.StopResync()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.state = StateDisconnected
	c.queue = newUpdateQueue(c.queue.capacity)
	c.pending = make(map[uuid.UUID]time.Time)
	c.observers = nil
}

// ---------------------------------------------------------------

func (c *Coordinator) handleUpdate(msg *Message) {
	c.mutex.Lock()

	if c.seen.Contains(msg.ID) {
		c.mutex.Unlock()
		c.logger.LogMessageDropped(c.entityID, "duplicate", nil)
		return
	}
	c.seen.Add(msg.ID)

	if msg.Payload.Type != c.entity.Kind() {
		c.mutex.Unlock()
		c.logger.LogMessageDropped(c.entityID, "payload_kind_mismatch:"+string(msg.Payload.Type), nil)
		return
	}

	changed, err := c.entity.MergeUpdate(msg.Payload.State)
	if err != nil {
		c.mutex.Unlock()
		c.logger.LogMessageDropped(c.entityID, "merge_failed", err)
		return
	}
	if changed {
		c.version++
	}
	version := c.version
	value := c.entity.Value()
	observers := c.notifiable(changed)
	c.mutex.Unlock()

	c.logger.LogMergeApplied(c.entityID, msg.Replica, version, changed)
	for _, fn := range observers {
		fn(value)
	}
}

func (c *Coordinator) handleSyncRequest(msg *Message) {
	c.mutex.Lock()

	// Push-pull: the request carries the requester's snapshot, so
	// both sides converge from a single round trip.
	changed := false
	if msg.Payload != nil && msg.Payload.Type == c.entity.Kind() {
		var err error
		changed, err = c.entity.MergeSnapshot(msg.Payload.State)
		if err != nil {
			c.mutex.Unlock()
			c.logger.LogMessageDropped(c.entityID, "snapshot_merge_failed", err)
			return
		}
		if changed {
			c.version++
		}
	}
	value := c.entity.Value()
	observers := c.notifiable(changed)

	snapshot, err := c.entity.Snapshot()
	if err != nil {
		c.mutex.Unlock()
		c.logger.LogError("snapshot", err)
		return
	}
	response := &Message{
		ID:          uuid.New(),
		Kind:        KindSyncResponse,
		Replica:     c.replicaID,
		Entity:      c.entityID,
		Version:     c.version,
		Correlation: msg.Correlation,
		Payload:     &Payload{Type: c.entity.Kind(), State: snapshot},
	}
	c.mutex.Unlock()

	encoded, err := response.Encode()
	if err != nil {
		c.logger.LogError("encode_sync_response", err)
		return
	}
	if err := c.tr.Send(encoded); err != nil {
		c.logger.LogError("send_sync_response", err)
		return
	}
	c.logger.LogSyncResponse(c.entityID, msg.Correlation.String(), changed)

	for _, fn := range observers {
		fn(value)
	}
}

func (c *Coordinator) handleSyncResponse(msg *Message) {
	c.mutex.Lock()

	if _, ok := c.pending[msg.Correlation]; !ok {
		c.mutex.Unlock()
		c.logger.LogMessageDropped(c.entityID, "unsolicited_sync_response", nil)
		return
	}
	delete(c.pending, msg.Correlation)

	if msg.Payload.Type != c.entity.Kind() {
		c.mutex.Unlock()
		c.logger.LogMessageDropped(c.entityID, "payload_kind_mismatch:"+string(msg.Payload.Type), nil)
		return
	}

	changed, err := c.entity.MergeSnapshot(msg.Payload.State)
	if err != nil {
		c.mutex.Unlock()
		c.logger.LogMessageDropped(c.entityID, "snapshot_merge_failed", err)
		return
	}
	if changed {
		c.version++
	}
	if msg.Version > c.version {
		c.version = msg.Version
	}

	var replay [][]byte
	if c.state == StateConnecting || c.state == StateSyncing {
		if c.queue.Len() > 0 {
			c.transition(StateSyncing)
			replay = c.queue.Drain()
		}
		c.transition(StateSynced)
	}

	value := c.entity.Value()
	observers := c.notifiable(changed)
	c.mutex.Unlock()

	c.logger.LogSyncResponse(c.entityID, msg.Correlation.String(), changed)

	if len(replay) > 0 {
		c.logger.LogReplay(c.entityID, len(replay))
		for _, pending := range replay {
			if err := c.tr.Send(pending); err != nil {
				c.logger.LogError("replay_update", err)
			}
		}
	}
	for _, fn := range observers {
		fn(value)
	}
}

func (c *Coordinator) resyncTick() {
	c.mutex.Lock()
	if c.state == StateDisconnected {
		c.mutex.Unlock()
		return
	}
	c.prunePending()
	request := c.newSyncRequest()
	c.mutex.Unlock()

	c.sendRequest(request)
}

// newSyncRequest registers a fresh correlation and builds the request.
// The request carries the local snapshot so the responder learns this
// replica's state (and the entity itself, if it never saw it) from the
// request alone. Caller holds the mutex.
func (c *Coordinator) newSyncRequest() *Message {
	correlation := uuid.New()
	c.pending[correlation] = time.Now()

	request := &Message{
		ID:          uuid.New(),
		Kind:        KindSyncRequest,
		Replica:     c.replicaID,
		Entity:      c.entityID,
		Version:     c.version,
		Correlation: correlation,
	}
	if snapshot, err := c.entity.Snapshot(); err == nil {
		request.Payload = &Payload{Type: c.entity.Kind(), State: snapshot}
	} else {
		c.logger.LogError("snapshot", err)
	}
	return request
}

func (c *Coordinator) sendRequest(request *Message) {
	encoded, err := request.Encode()
	if err != nil {
		c.logger.LogError("encode_sync_request", err)
		return
	}
	if err := c.tr.Send(encoded); err != nil {
		c.logger.LogError("send_sync_request", err)
		return
	}
	c.logger.LogSyncRequest(c.entityID, request.Correlation.String())
}

// encodeUpdate wraps an entity update payload in a wire message.
// Caller holds the mutex.
func (c *Coordinator) encodeUpdate(state []byte) ([]byte, error) {
	msg := &Message{
		ID:      uuid.New(),
		Kind:    KindUpdate,
		Replica: c.replicaID,
		Entity:  c.entityID,
		Version: c.version,
		Payload: &Payload{Type: c.entity.Kind(), State: state},
	}
	return msg.Encode()
}

// transition moves the state machine and logs it. Caller holds the mutex.
func (c *Coordinator) transition(next State) {
	if c.state == next {
		return
	}
	c.logger.LogStateTransition(c.entityID, c.state.String(), next.String())
	c.state = next
}

// notifiable snapshots the observer list when a change happened.
// Caller holds the mutex; callbacks run after it is released.
func (c *Coordinator) notifiable(changed bool) []func(any) {
	if !changed || len(c.observers) == 0 {
		return nil
	}
	observers := make([]func(any), len(c.observers))
	copy(observers, c.observers)
	return observers
}

// prunePending expires stale correlations. Caller holds the mutex.
func (c *Coordinator) prunePending() {
	cutoff := time.Now().Add(-pendingTTL)
	for correlation, created := range c.pending {
		if created.Before(cutoff) {
			delete(c.pending, correlation)
		}
	}
}
