package logging

import (
	"fmt"
	"log"
	"os"
	"time"
)

// SyncLogger emits structured log lines for one replica. Every entry
// carries the replica prefix and a wall-clock ms timestamp so traces
// from several replicas can be interleaved and compared.
type SyncLogger struct {
	replicaID string
	logger    *log.Logger
}

// NewSyncLogger creates a logger prefixed with the replica id.
func NewSyncLogger(replicaID string) *SyncLogger {
	logger := log.New(os.Stdout, fmt.Sprintf("[%s] ", replicaID), log.LstdFlags|log.Lmicroseconds)
	return &SyncLogger{
		replicaID: replicaID,
		logger:    logger,
	}
}

// LogStateTransition registers a coordinator state machine transition.
func (l *SyncLogger) LogStateTransition(entity, from, to string) {
	l.logger.Printf("STATE_TRANSITION: entity=%s from=%s to=%s at=%d",
		entity, from, to, time.Now().UnixMilli())
}

// LogLocalUpdate registers a local mutation applied to an entity.
func (l *SyncLogger) LogLocalUpdate(entity, op string, version int64) {
	l.logger.Printf("LOCAL_UPDATE: entity=%s op=%s version=%d at=%d",
		entity, op, version, time.Now().UnixMilli())
}

// LogMergeApplied registers an inbound update merged into local state.
func (l *SyncLogger) LogMergeApplied(entity, sender string, version int64, changed bool) {
	l.logger.Printf("MERGE_APPLIED: entity=%s sender=%s version=%d changed=%t at=%d",
		entity, sender, version, changed, time.Now().UnixMilli())
}

// LogMessageDropped registers a message discarded without touching state.
func (l *SyncLogger) LogMessageDropped(entity, reason string, err error) {
	detail := ""
	if err != nil {
		detail = " error=" + err.Error()
	}
	l.logger.Printf("MESSAGE_DROPPED: entity=%s reason=%s%s at=%d",
		entity, reason, detail, time.Now().UnixMilli())
}

// LogQueueOverflow warns that the offline queue dropped its oldest entry.
func (l *SyncLogger) LogQueueOverflow(entity string, capacity int) {
	l.logger.Printf("QUEUE_OVERFLOW: entity=%s capacity=%d dropped=oldest at=%d",
		entity, capacity, time.Now().UnixMilli())
}

// LogSyncRequest registers an outbound full-state sync request.
func (l *SyncLogger) LogSyncRequest(entity, correlation string) {
	l.logger.Printf("SYNC_REQUEST: entity=%s correlation=%s at=%d",
		entity, correlation, time.Now().UnixMilli())
}

// LogSyncResponse registers a served or merged sync response.
func (l *SyncLogger) LogSyncResponse(entity, correlation string, changed bool) {
	l.logger.Printf("SYNC_RESPONSE: entity=%s correlation=%s changed=%t at=%d",
		entity, correlation, changed, time.Now().UnixMilli())
}

// LogReplay registers the replay of buffered updates after a reconnect.
func (l *SyncLogger) LogReplay(entity string, count int) {
	l.logger.Printf("REPLAY: entity=%s updates=%d at=%d",
		entity, count, time.Now().UnixMilli())
}

// LogTransportEvent registers transport lifecycle events (connects,
// disconnects, peer joins).
func (l *SyncLogger) LogTransportEvent(message string) {
	l.logger.Printf("TRANSPORT_EVENT: %s at=%d", message, time.Now().UnixMilli())
}

// LogError registers operational errors outside the message path.
func (l *SyncLogger) LogError(operation string, err error) {
	l.logger.Printf("ERROR: operation=%s error=%s at=%d",
		operation, err.Error(), time.Now().UnixMilli())
}
