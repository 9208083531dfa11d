package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lootroom/internal/core/service"
	"lootroom/internal/protocol"
)

const (
	sendQueueSize = 64
	writeTimeout  = 10 * time.Second
)

// Hub is the websocket transport adapter. It owns every live connection,
// assigns connection ids, feeds inbound envelopes to the sync service and
// implements the Broadcaster port for outbound traffic. A peer that cannot
// drain its queue has frames dropped rather than ever stalling a commit;
// the next change notice triggers a full resync anyway.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	peers map[string]*peer

	svc *service.SyncService
}

type peer struct {
	id   string
	conn *websocket.Conn
	send chan protocol.Envelope
	once sync.Once
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		peers: make(map[string]*peer),
	}
}

// Bind attaches the sync service after construction; the hub and the service
// reference each other (hub dispatches in, service broadcasts out).
func (h *Hub) Bind(svc *service.SyncService) {
	h.svc = svc
}

// HandleWS upgrades the connection, registers the participant and runs the
// read loop until the peer goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	displayName := r.URL.Query().Get("name")
	if displayName == "" {
		displayName = "adventurer"
	}

	p := &peer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan protocol.Envelope, sendQueueSize),
	}

	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()

	go h.writePump(p)

	h.svc.Connect(p.id, displayName)
	if err := h.svc.FullSync(p.id); err != nil {
		h.logger.Error("initial sync failed", "connection", p.id, "err", err)
	}

	h.readPump(p)

	h.mu.Lock()
	delete(h.peers, p.id)
	h.mu.Unlock()
	p.close()
	h.svc.Disconnect(p.id)
}

func (h *Hub) readPump(p *peer) {
	for {
		var env protocol.Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("read failed", "connection", p.id, "err", err)
			}
			return
		}
		if err := h.svc.Dispatch(p.id, env); err != nil {
			h.logger.Info("request rejected", "connection", p.id, "type", env.Type, "reason", err)
		}
	}
}

func (h *Hub) writePump(p *peer) {
	for env := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := p.conn.WriteJSON(env); err != nil {
			h.logger.Warn("write failed", "connection", p.id, "err", err)
			_ = p.conn.Close()
			return
		}
	}
	_ = p.conn.Close()
}

// Broadcast queues env for every connected peer without blocking.
func (h *Hub) Broadcast(env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.peers {
		h.enqueue(p, env)
	}
}

// Send queues env for a single peer; unknown ids are a no-op. The lock is
// held across the enqueue, like Broadcast, so the peer's send channel cannot
// be closed out from under it.
func (h *Hub) Send(connectionID string, env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if p, ok := h.peers[connectionID]; ok {
		h.enqueue(p, env)
	}
}

func (h *Hub) enqueue(p *peer, env protocol.Envelope) {
	select {
	case p.send <- env:
	default:
		h.logger.Warn("send queue full, dropping frame", "connection", p.id, "type", env.Type)
	}
}

func (p *peer) close() {
	p.once.Do(func() { close(p.send) })
}
