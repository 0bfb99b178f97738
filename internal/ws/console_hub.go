package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zaqqye/fiche_backend_v1/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

const (
	MessageFiche          = "fiche"
	MessageSessionRevoked = "session_revoked"
)

// ConsoleMessage is what operator consoles receive. Fiche events never
// carry the form payload.
type ConsoleMessage struct {
	Type  string               `json:"type"`
	Fiche *services.FicheEvent `json:"fiche,omitempty"`
}

type revocation struct {
	operatorID string
	payload    []byte
}

// ConsoleHub fans fiche changes out to every connected operator console
// and drops the connections of operators who signed out.
type ConsoleHub struct {
	register   chan *consoleClient
	unregister chan *consoleClient
	broadcast  chan []byte
	revoke     chan revocation
	clients    map[*consoleClient]struct{}
	count      atomic.Int64
	done       chan struct{}
}

func NewConsoleHub() *ConsoleHub {
	return &ConsoleHub{
		register:   make(chan *consoleClient),
		unregister: make(chan *consoleClient),
		broadcast:  make(chan []byte, 256),
		revoke:     make(chan revocation, 16),
		clients:    make(map[*consoleClient]struct{}),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done, then closes every client.
func (h *ConsoleHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
		case payload := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					h.drop(client)
				}
			}
		case rev := <-h.revoke:
			for client := range h.clients {
				if client.operatorID != rev.operatorID {
					continue
				}
				select {
				case client.send <- rev.payload:
				default:
				}
				h.drop(client)
			}
		}
	}
}

func (h *ConsoleHub) drop(client *consoleClient) {
	delete(h.clients, client)
	close(client.send)
	h.count.Store(int64(len(h.clients)))
}

// Clients is the number of registered consoles.
func (h *ConsoleHub) Clients() int {
	if h == nil {
		return 0
	}
	return int(h.count.Load())
}

// FicheChanged queues an event for every console. It never blocks the
// caller; events are dropped when the hub is saturated.
func (h *ConsoleHub) FicheChanged(ev services.FicheEvent) {
	if h == nil {
		return
	}
	data, err := json.Marshal(ConsoleMessage{Type: MessageFiche, Fiche: &ev})
	if err != nil {
		log.WithError(err).Error("ws: failed to marshal fiche event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.WithField("fiche_id", ev.FicheID).Warn("ws: broadcast queue full, event dropped")
	}
}

// AuthStateChanged is subscribed to the auth service; signing out (or
// resetting a password) closes that operator's live consoles.
func (h *ConsoleHub) AuthStateChanged(ch services.AuthStateChange) {
	if h == nil {
		return
	}
	if ch.Event != services.AuthSignedOut && ch.Event != services.AuthPasswordRecovery {
		return
	}
	data, err := json.Marshal(ConsoleMessage{Type: MessageSessionRevoked})
	if err != nil {
		return
	}
	select {
	case h.revoke <- revocation{operatorID: ch.OperatorID, payload: data}:
	default:
		log.WithField("operator_id", ch.OperatorID).Warn("ws: revoke queue full")
	}
}

var _ services.FicheNotifier = (*ConsoleHub)(nil)
