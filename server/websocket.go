package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/mrazakos/revwatch/internal/store"
	"github.com/mrazakos/revwatch/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsHub fans newly applied revocation facts out to connected clients
type wsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	events  chan []byte
	done    chan struct{}
	logger  types.Logger
}

func newWSHub(logger types.Logger) *wsHub {
	return &wsHub{
		clients: make(map[*websocket.Conn]chan []byte),
		events:  make(chan []byte, 256),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.events:
			h.mu.Lock()
			for conn, ch := range h.clients {
				select {
				case ch <- msg:
				default:
					// slow client, drop it
					close(ch)
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *wsHub) broadcast(fact store.RevocationFact) {
	data, err := json.Marshal(map[string]interface{}{
		"type":       "revocation",
		"revocation": fact,
	})
	if err != nil {
		return
	}

	select {
	case h.events <- data:
	default:
		h.logger.Printf("[server] websocket event queue full, dropping broadcast")
	}
}

func (h *wsHub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *wsHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *wsHub) close() {
	close(h.done)
	h.mu.Lock()
	for conn, ch := range h.clients {
		close(ch)
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (s *Server) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Printf("[server] websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		ch := s.hub.register(conn)
		defer s.hub.unregister(conn)

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		// reader goroutine just watches for the client going away
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pingTicker := time.NewTicker(30 * time.Second)
		defer pingTicker.Stop()

		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case msg, ok := <-ch:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	}
}
