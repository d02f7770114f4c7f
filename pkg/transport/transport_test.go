package transport

import "testing"

func TestLocalBusBroadcastSkipsSender(t *testing.T) {
	bus := NewLocalBus()
	a := bus.Endpoint()
	b := bus.Endpoint()
	c := bus.Endpoint()

	var gotA, gotB, gotC [][]byte
	a.OnReceive(func(m []byte) { gotA = append(gotA, m) })
	b.OnReceive(func(m []byte) { gotB = append(gotB, m) })
	c.OnReceive(func(m []byte) { gotC = append(gotC, m) })

	a.Connect()
	b.Connect()
	c.Connect()

	if err := a.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(gotA) != 0 {
		t.Errorf("Expected sender not to receive its own message, got %d", len(gotA))
	}
	if len(gotB) != 1 || string(gotB[0]) != "ping" {
		t.Errorf("Expected b to receive 'ping', got %v", gotB)
	}
	if len(gotC) != 1 || string(gotC[0]) != "ping" {
		t.Errorf("Expected c to receive 'ping', got %v", gotC)
	}
}

func TestLocalBusDisconnectedEndpoints(t *testing.T) {
	bus := NewLocalBus()
	a := bus.Endpoint()
	b := bus.Endpoint()

	var gotB [][]byte
	b.OnReceive(func(m []byte) { gotB = append(gotB, m) })

	// Sending while disconnected fails
	if err := a.Send([]byte("lost")); err == nil {
		t.Errorf("Expected error sending from a disconnected endpoint")
	}

	// Messages to a disconnected receiver vanish silently
	a.Connect()
	if err := a.Send([]byte("dropped")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotB) != 0 {
		t.Errorf("Expected disconnected receiver to get nothing, got %v", gotB)
	}

	// Reconnecting does not replay; only new messages arrive
	b.Connect()
	a.Send([]byte("fresh"))
	if len(gotB) != 1 || string(gotB[0]) != "fresh" {
		t.Errorf("Expected only 'fresh' after reconnect, got %v", gotB)
	}
}

func TestLocalBusCopiesBuffers(t *testing.T) {
	bus := NewLocalBus()
	a := bus.Endpoint()
	b := bus.Endpoint()

	var got []byte
	b.OnReceive(func(m []byte) { got = m })

	a.Connect()
	b.Connect()

	message := []byte("original")
	a.Send(message)
	message[0] = 'X'

	if string(got) != "original" {
		t.Errorf("Expected receiver to be isolated from sender mutations, got %q", got)
	}
}
