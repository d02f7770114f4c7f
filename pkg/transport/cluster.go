package transport

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/hashicorp/memberlist"
)

// clusterFrame is the msgpack envelope broadcast through memberlist.
type clusterFrame struct {
	Sender string `codec:"sender"`
	Data   []byte `codec:"data"`
}

// ClusterConfig configures a ClusterTransport.
type ClusterConfig struct {
	NodeID   string   // unique node name (ex: "replica-1")
	BindAddr string   // address for bind (ex: "0.0.0.0")
	BindPort int      // SWIM port (default 7946)
	Seeds    []string // seed addresses for initial join
}

// ClusterTransport broadcasts sync messages over a SWIM-managed
// cluster using memberlist's gossip-piggybacked broadcast queue.
type ClusterTransport struct {
	ml      *memberlist.Memberlist
	queue   *memberlist.TransmitLimitedQueue
	nodeID  string
	handler func([]byte)
	mutex   sync.RWMutex
}

// NewClusterTransport creates the memberlist instance and joins the
// configured seeds.
func NewClusterTransport(config ClusterConfig) (*ClusterTransport, error) {
	t := &ClusterTransport{nodeID: config.NodeID}

	cfg := memberlist.DefaultLANConfig()
	cfg.Name = config.NodeID
	cfg.BindAddr = config.BindAddr
	cfg.BindPort = config.BindPort
	cfg.Delegate = &clusterDelegate{transport: t}
	cfg.Events = &clusterEvents{nodeID: config.NodeID}

	// Reduce background push/pull traffic; the sync layer runs its
	// own anti-entropy.
	cfg.PushPullInterval = 30 * time.Second

	ml, err := memberlist.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	t.ml = ml
	t.queue = &memberlist.TransmitLimitedQueue{
		NumNodes:       ml.NumMembers,
		RetransmitMult: cfg.RetransmitMult,
	}

	if len(config.Seeds) > 0 {
		joined, err := ml.Join(config.Seeds)
		if err != nil {
			log.Printf("[CLUSTER] Join failed: %v", err)
		} else {
			log.Printf("[CLUSTER] Joined cluster via %d seed(s)", joined)
		}
	}

	return t, nil
}

// Send queues the message for gossip broadcast to the cluster.
func (t *ClusterTransport) Send(message []byte) error {
	frame := clusterFrame{Sender: t.nodeID, Data: message}

	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &codec.MsgpackHandle{})
	if err := enc.Encode(frame); err != nil {
		return fmt.Errorf("failed to encode cluster frame: %w", err)
	}

	t.queue.QueueBroadcast(&clusterBroadcast{payload: buf})
	return nil
}

// OnReceive registers the inbound handler.
func (t *ClusterTransport) OnReceive(handler func([]byte)) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handler = handler
}

// Members returns the current cluster member names.
func (t *ClusterTransport) Members() []string {
	members := t.ml.Members()
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

// Shutdown leaves the cluster and stops the listeners.
func (t *ClusterTransport) Shutdown() error {
	if err := t.ml.Leave(time.Second); err != nil {
		log.Printf("[CLUSTER] Leave failed: %v", err)
	}
	return t.ml.Shutdown()
}

func (t *ClusterTransport) notify(data []byte) {
	var frame clusterFrame
	dec := codec.NewDecoderBytes(data, &codec.MsgpackHandle{})
	if err := dec.Decode(&frame); err != nil {
		log.Printf("[CLUSTER] Dropping undecodable frame: %v", err)
		return
	}
	if frame.Sender == t.nodeID {
		return // our own broadcast echoed back
	}

	t.mutex.RLock()
	handler := t.handler
	t.mutex.RUnlock()

	if handler != nil {
		handler(frame.Data)
	}
}

// clusterBroadcast adapts a frame to memberlist's Broadcast interface.
type clusterBroadcast struct {
	payload []byte
}

func (b *clusterBroadcast) Invalidates(other memberlist.Broadcast) bool { return false }
func (b *clusterBroadcast) Message() []byte                             { return b.payload }
func (b *clusterBroadcast) Finished()                                   {}

// clusterDelegate feeds user-level gossip into the transport.
type clusterDelegate struct {
	transport *ClusterTransport
}

func (d *clusterDelegate) NodeMeta(limit int) []byte { return nil }

func (d *clusterDelegate) NotifyMsg(data []byte) {
	if len(data) == 0 {
		return
	}
	// memberlist reuses the buffer after we return.
	dup := make([]byte, len(data))
	copy(dup, data)
	d.transport.notify(dup)
}

func (d *clusterDelegate) GetBroadcasts(overhead, limit int) [][]byte {
	return d.transport.queue.GetBroadcasts(overhead, limit)
}

// Full-state exchange stays empty here: anti-entropy belongs to the
// sync layer, which already exchanges full snapshots.
func (d *clusterDelegate) LocalState(join bool) []byte            { return nil }
func (d *clusterDelegate) MergeRemoteState(buf []byte, join bool) {}

// clusterEvents logs membership changes.
type clusterEvents struct {
	nodeID string
}

func (e *clusterEvents) NotifyJoin(n *memberlist.Node) {
	if n.Name != e.nodeID {
		log.Printf("[CLUSTER] Node %s (%s) joined the cluster", n.Name, n.Address())
	}
}

func (e *clusterEvents) NotifyLeave(n *memberlist.Node) {
	log.Printf("[CLUSTER] Node %s left the cluster", n.Name)
}

func (e *clusterEvents) NotifyUpdate(n *memberlist.Node) {
	log.Printf("[CLUSTER] Node %s was updated", n.Name)
}
