package sync

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageKind tags the three message variants exchanged with the transport.
type MessageKind string

const (
	KindUpdate       MessageKind = "update"
	KindSyncRequest  MessageKind = "sync_request"
	KindSyncResponse MessageKind = "sync_response"
)

// PayloadKind is the closed enumeration of synchronizable value types.
type PayloadKind string

const (
	PayloadRegister    PayloadKind = "register"
	PayloadGSet        PayloadKind = "gset"
	PayloadTwoPhaseSet PayloadKind = "2pset"
	PayloadGCounter    PayloadKind = "gcounter"
	PayloadPNCounter   PayloadKind = "pncounter"
	PayloadText        PayloadKind = "text"
)

// KnownPayloadKind reports whether k is one of the supported kinds.
func KnownPayloadKind(k PayloadKind) bool {
	switch k {
	case PayloadRegister, PayloadGSet, PayloadTwoPhaseSet, PayloadGCounter, PayloadPNCounter, PayloadText:
		return true
	}
	return false
}

// Payload carries type-tagged CRDT or OT state.
type Payload struct {
	Type  PayloadKind     `json:"type"`
	State json.RawMessage `json:"state"`
}

// Message is the only unit exchanged with the transport.
type Message struct {
	ID          uuid.UUID   `json:"id"`
	Kind        MessageKind `json:"kind"`
	Replica     string      `json:"replica"`
	Entity      string      `json:"entity"`
	Version     int64       `json:"version"`
	Correlation uuid.UUID   `json:"correlation"`
	Payload     *Payload    `json:"payload,omitempty"`
}

// Encode serializes the message for the transport.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses and schema-validates a wire message. A failure
// here is a structured parse error: the caller logs and drops the
// message without touching any state. An unknown kind is not a decode
// error; the coordinator ignores it with a log line.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	if msg.Kind == "" {
		return nil, fmt.Errorf("message missing kind")
	}
	if msg.Replica == "" {
		return nil, fmt.Errorf("message missing replica")
	}
	if msg.Entity == "" {
		return nil, fmt.Errorf("message missing entity")
	}

	switch msg.Kind {
	case KindUpdate, KindSyncResponse:
		if msg.Payload == nil {
			return nil, fmt.Errorf("%s message missing payload", msg.Kind)
		}
		if !KnownPayloadKind(msg.Payload.Type) {
			return nil, fmt.Errorf("unknown payload type: %s", msg.Payload.Type)
		}
	case KindSyncRequest:
		if msg.Correlation == uuid.Nil {
			return nil, fmt.Errorf("sync_request missing correlation id")
		}
		if msg.Payload != nil && !KnownPayloadKind(msg.Payload.Type) {
			return nil, fmt.Errorf("unknown payload type: %s", msg.Payload.Type)
		}
	}

	return &msg, nil
}
