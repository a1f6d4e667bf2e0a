package websocket

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub tracks the live connections of every signed-in user and fans
// messages out to all connections of one user.
type Hub struct {
	clients    map[uint]map[*Client]bool
	seq        map[uint]int
	register   chan *Client
	unregister chan *Client
	broadcast  chan *userMessage
	stop       chan struct{}
	done       chan struct{} // closed when Run() exits
	stopped    bool
	mu         sync.RWMutex
}

type userMessage struct {
	userID  uint
	message *Message
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		seq:        make(map[uint]int),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *userMessage, 256),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			h.stopped = true
			for _, conns := range h.clients {
				for client := range conns {
					client.Close()
				}
			}
			h.clients = make(map[uint]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.stopped {
				client.Close()
			} else {
				if h.clients[client.userID] == nil {
					h.clients[client.userID] = make(map[*Client]bool)
				}
				h.clients[client.userID][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.userID]; ok && conns[client] {
				delete(conns, client)
				client.Close()
				if len(conns) == 0 {
					delete(h.clients, client.userID)
				}
			}
			h.mu.Unlock()

		case um := <-h.broadcast:
			h.deliver(um)
		}
	}
}

func (h *Hub) deliver(um *userMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq[um.userID]++
	um.message.Seq = h.seq[um.userID]

	data, err := json.Marshal(um.message)
	if err != nil {
		log.Printf("ERROR [hub.deliver] failed to marshal message: %v", err)
		return
	}

	for client := range h.clients[um.userID] {
		select {
		case client.send <- data:
		default:
			// slow consumer
			delete(h.clients[um.userID], client)
			client.Close()
		}
	}
	if len(h.clients[um.userID]) == 0 {
		delete(h.clients, um.userID)
	}
}

// NotifyUser queues a message for every connection of userID. Messages are
// dropped when the hub is stopped or its queue is full.
func (h *Hub) NotifyUser(userID uint, messageType string, payload interface{}) {
	msg, err := NewMessage(MessageType(messageType), payload)
	if err != nil {
		log.Printf("ERROR [hub.NotifyUser] failed to build %s: %v", messageType, err)
		return
	}

	select {
	case <-h.done:
	case h.broadcast <- &userMessage{userID: userID, message: msg}:
	default:
		log.Printf("WARN [hub.NotifyUser] queue full, dropping %s for user %d", messageType, userID)
	}
}

// ConnectionCount reports the live connections of userID.
func (h *Hub) ConnectionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Register adds a client. It is a no-op once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Stop gracefully shuts down the hub and closes every client.
// It blocks until the hub has fully shut down.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	close(h.stop)
	<-h.done
}
