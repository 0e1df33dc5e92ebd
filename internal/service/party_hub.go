package service

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"go.uber.org/zap"
)

// Peer represents a WebSocket subscriber of a party.
type Peer struct {
	SessionID string
	UserID    string
	Conn      *websocket.Conn
	Send      chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues data without blocking; it reports false when the buffer is
// full or the peer is already closed.
func (p *Peer) trySend(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.Send <- data:
		return true
	default:
		return false
	}
}

// close ends the send queue; the write pump drains it and closes the connection.
func (p *Peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.Send)
}

// PartyHubForHandler is what the WebSocket handler needs from the hub.
type PartyHubForHandler interface {
	Register(sessionID, userID string, conn *websocket.Conn) (*Peer, func())
	Upgrader() *websocket.Upgrader
	SendTo(p *Peer, ev model.PartyEvent) bool
}

// PartyHub fans party events out to WebSocket subscribers.
type PartyHub struct {
	mu         sync.RWMutex
	peers      map[string]map[*Peer]struct{} // sessionID -> set of peers
	upgrader   websocket.Upgrader
	maxMsgSize int64
	sendBuffer int
	log        *zap.Logger
}

// NewPartyHub creates a new party hub.
func NewPartyHub(readBufferSize, writeBufferSize int, maxMessageSize int64, log *zap.Logger) *PartyHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &PartyHub{
		peers:      make(map[string]map[*Peer]struct{}),
		maxMsgSize: maxMessageSize,
		sendBuffer: 256,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
		},
	}
}

// Register adds a peer to a party and returns a cleanup function.
func (h *PartyHub) Register(sessionID, userID string, conn *websocket.Conn) (*Peer, func()) {
	if h.maxMsgSize > 0 && conn != nil {
		conn.SetReadLimit(h.maxMsgSize)
	}
	p := &Peer{
		SessionID: sessionID,
		UserID:    userID,
		Conn:      conn,
		Send:      make(chan []byte, h.sendBuffer),
	}
	h.mu.Lock()
	if h.peers[sessionID] == nil {
		h.peers[sessionID] = make(map[*Peer]struct{})
	}
	h.peers[sessionID][p] = struct{}{}
	h.mu.Unlock()

	h.log.Info("peer registered",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))

	cleanup := func() {
		h.unregister(sessionID, p)
	}
	return p, cleanup
}

func (h *PartyHub) unregister(sessionID string, p *Peer) {
	h.mu.Lock()
	if m, ok := h.peers[sessionID]; ok {
		delete(m, p)
		if len(m) == 0 {
			delete(h.peers, sessionID)
		}
	}
	h.mu.Unlock()
	p.close()
	h.log.Info("peer unregistered",
		zap.String("session_id", sessionID),
		zap.String("user_id", p.UserID))
}

// Publish stamps the event with a ULID and sends it to every peer of the
// party. A party_ended event also closes the party's peers.
func (h *PartyHub) Publish(ev model.PartyEvent) {
	raw, ok := h.encode(&ev)
	if !ok {
		return
	}
	if ev.Kind == model.EventPartyEnded {
		h.closeSession(ev.SessionID, raw)
		return
	}

	h.mu.RLock()
	m, ok := h.peers[ev.SessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy peers so we don't hold lock while queueing
	peers := make([]*Peer, 0, len(m))
	for p := range m {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		if !p.trySend(raw) {
			h.log.Warn("peer send buffer full, event dropped",
				zap.String("session_id", ev.SessionID),
				zap.String("user_id", p.UserID),
				zap.String("event", string(ev.Kind)))
		}
	}
}

// SendTo queues one event for a single peer (snapshot on connect, errors).
func (h *PartyHub) SendTo(p *Peer, ev model.PartyEvent) bool {
	raw, ok := h.encode(&ev)
	if !ok {
		return false
	}
	return p.trySend(raw)
}

func (h *PartyHub) encode(ev *model.PartyEvent) ([]byte, bool) {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("encode party event", zap.String("session_id", ev.SessionID), zap.Error(err))
		return nil, false
	}
	return raw, true
}

// closeSession delivers the final event and closes all peers of the party.
func (h *PartyHub) closeSession(sessionID string, final []byte) {
	h.mu.Lock()
	m, ok := h.peers[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.peers, sessionID)
	h.mu.Unlock()

	for p := range m {
		_ = p.trySend(final)
		p.close()
	}
	h.log.Info("party closed", zap.String("session_id", sessionID), zap.Int("peers", len(m)))
}

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *PartyHub) Upgrader() *websocket.Upgrader {
	return &h.upgrader
}

// PeerCount returns number of peers in a party (for debugging).
func (h *PartyHub) PeerCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers[sessionID])
}
