package transport

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// WebSocketTransport connects to a relay hub that fans every message
// out to the other connected replicas. It reconnects with exponential
// backoff and reports lifecycle changes through the OnConnect and
// OnDisconnect callbacks, which the coordinator maps onto its state
// machine.
type WebSocketTransport struct {
	url          string
	conn         *websocket.Conn
	handler      func([]byte)
	onConnect    func()
	onDisconnect func()
	writeTimeout time.Duration
	stopCh       chan struct{}
	running      bool
	mutex        sync.RWMutex
}

// NewWebSocketTransport creates a transport for the given relay URL.
func NewWebSocketTransport(url string, writeTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{
		url:          url,
		writeTimeout: writeTimeout,
		stopCh:       make(chan struct{}),
	}
}

// OnConnect registers the callback invoked after each (re)connect.
func (t *WebSocketTransport) OnConnect(fn func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.onConnect = fn
}

// OnDisconnect registers the callback invoked when the link drops.
func (t *WebSocketTransport) OnDisconnect(fn func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.onDisconnect = fn
}

// OnReceive registers the inbound handler.
func (t *WebSocketTransport) OnReceive(handler func([]byte)) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handler = handler
}

// Start launches the connect/read loop. A stopped transport can be
// started again; each run gets its own stop channel.
func (t *WebSocketTransport) Start() {
	t.mutex.Lock()
	if t.running {
		t.mutex.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	stop := t.stopCh
	t.mutex.Unlock()

	go t.connectLoop(stop)
}

// Stop closes the connection and halts reconnection.
func (t *WebSocketTransport) Stop() {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	conn := t.conn
	t.conn = nil
	t.mutex.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send writes the message to the relay. Fails when disconnected; the
// caller's buffering handles that case.
func (t *WebSocketTransport) Send(message []byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.conn == nil {
		return fmt.Errorf("relay not connected")
	}
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.BinaryMessage, message)
}

func (t *WebSocketTransport) connectLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = 0 // retry until stopped

		var conn *websocket.Conn
		err := backoff.Retry(func() error {
			select {
			case <-stop:
				return backoff.Permanent(fmt.Errorf("transport stopped"))
			default:
			}
			c, _, err := websocket.DefaultDialer.Dial(t.url, nil)
			if err != nil {
				log.Printf("[RELAY] Connect to %s failed: %v", t.url, err)
				return err
			}
			conn = c
			return nil
		}, policy)
		if err != nil {
			return
		}

		t.mutex.Lock()
		t.conn = conn
		onConnect := t.onConnect
		t.mutex.Unlock()

		log.Printf("[RELAY] Connected to %s", t.url)
		if onConnect != nil {
			onConnect()
		}

		t.readPump(conn)

		t.mutex.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		onDisconnect := t.onDisconnect
		t.mutex.Unlock()

		log.Printf("[RELAY] Disconnected from %s", t.url)
		if onDisconnect != nil {
			onDisconnect()
		}
	}
}

func (t *WebSocketTransport) readPump(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		t.mutex.RLock()
		handler := t.handler
		t.mutex.RUnlock()

		if handler != nil {
			handler(message)
		}
	}
}
