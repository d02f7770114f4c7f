package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// The relay fans every frame out to all connected replicas except the
// sender. It does not inspect payloads; replicas validate messages
// themselves. With -redis set, frames are also published to a Redis
// channel so multiple relay instances can bridge the same swarm.

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is a single connected replica.
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

type frame struct {
	sender *Client
	data   []byte
}

// Hub maintains the set of connected replicas and fans frames out.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan frame
	register   chan *Client
	unregister chan *Client

	relayID   string
	redisClt  *redis.Client
	redisChan string
}

func newHub(redisClt *redis.Client, redisChan string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan frame),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		relayID:    uuid.NewString(),
		redisClt:   redisClt,
		redisChan:  redisChan,
	}
}

// envelope tags backplane frames with the relay that published them,
// so a relay can drop its own frames coming back from Redis.
type envelope struct {
	Origin string `json:"origin"`
	Data   []byte `json:"data"`
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("Replica connected. Total: %d", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Replica disconnected. Total: %d", len(h.clients))
			}
		case f := <-h.broadcast:
			h.fanOut(f)
			if h.redisClt != nil && f.sender != nil {
				h.publish(ctx, f.data)
			}
		case <-ctx.Done():
			return
		}
	}
}

// fanOut delivers a frame to every client except its sender.
func (h *Hub) fanOut(f frame) {
	for client := range h.clients {
		if client == f.sender {
			continue
		}
		select {
		case client.send <- f.data:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) publish(ctx context.Context, data []byte) {
	payload, err := json.Marshal(envelope{Origin: h.relayID, Data: data})
	if err != nil {
		log.Printf("Error encoding backplane frame: %v", err)
		return
	}
	if err := h.redisClt.Publish(ctx, h.redisChan, payload).Err(); err != nil {
		log.Printf("Error publishing to Redis: %v", err)
	}
}

// subscribeBackplane rebroadcasts frames published by other relay
// instances to the local clients.
func (h *Hub) subscribeBackplane(ctx context.Context) {
	pubsub := h.redisClt.Subscribe(ctx, h.redisChan)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("Error decoding backplane frame: %v", err)
			continue
		}
		if env.Origin == h.relayID {
			continue
		}
		h.broadcast <- frame{sender: nil, data: env.Data}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade failed: %v", err)
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, 256)}
	hub.register <- client
	go client.writePump()
	go client.readPump(hub)
}

func (c *Client) readPump(hub *Hub) {
	defer func() {
		hub.unregister <- c
		c.conn.Close()
	}()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		hub.broadcast <- frame{sender: c, data: message}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
			return
		}
	}
}

func main() {
	var (
		port      = flag.Int("port", 9000, "Relay listen port")
		redisAddr = flag.String("redis", "", "Redis address for the backplane (empty disables)")
		redisCh   = flag.String("channel", "collabsync", "Redis backplane channel")
	)
	flag.Parse()

	ctx := context.Background()

	var redisClt *redis.Client
	if *redisAddr == "" {
		*redisAddr = os.Getenv("REDIS_ADDR")
	}
	if *redisAddr != "" {
		redisClt = redis.NewClient(&redis.Options{Addr: *redisAddr})
		if _, err := redisClt.Ping(ctx).Result(); err != nil {
			log.Fatalf("Could not connect to Redis: %v", err)
		}
		log.Printf("Backplane connected: redis://%s channel=%s", *redisAddr, *redisCh)
	}

	hub := newHub(redisClt, *redisCh)
	go hub.run(ctx)
	if redisClt != nil {
		go hub.subscribeBackplane(ctx)
	}

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Relay listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Failed to start relay: %v", err)
	}
}
