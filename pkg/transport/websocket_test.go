package transport

import (
	"testing"
	"time"
)

// Stopping and starting again must leave the transport usable: each
// run gets a fresh stop channel, so a restart is not shut down by the
// previous run's Stop.
func TestWebSocketTransportRestart(t *testing.T) {
	tr := NewWebSocketTransport("ws://127.0.0.1:1/relay", time.Second)

	tr.Start()
	tr.Stop()
	tr.Start()
	defer tr.Stop()

	tr.mutex.RLock()
	running := tr.running
	stopped := false
	select {
	case <-tr.stopCh:
		stopped = true
	default:
	}
	tr.mutex.RUnlock()

	if !running {
		t.Fatalf("Expected transport running after restart")
	}
	if stopped {
		t.Errorf("Expected a fresh stop channel after restart")
	}
}

func TestWebSocketTransportStopIdempotent(t *testing.T) {
	tr := NewWebSocketTransport("ws://127.0.0.1:1/relay", time.Second)

	tr.Start()
	tr.Stop()
	tr.Stop()

	if err := tr.Send([]byte("x")); err == nil {
		t.Errorf("Expected send to fail while stopped")
	}
}
