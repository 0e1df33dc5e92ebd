package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"github.com/psds-microservice/watchparty-service/internal/service"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// PartyWSHandler handles WebSocket connections for /ws/parties/:id.
type PartyWSHandler struct {
	hub    service.PartyHubForHandler
	svc    service.SessionServicer
	logger *zap.Logger
}

// NewPartyWSHandler creates the WebSocket party handler.
func NewPartyWSHandler(hub service.PartyHubForHandler, svc service.SessionServicer, logger *zap.Logger) *PartyWSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartyWSHandler{hub: hub, svc: svc, logger: logger}
}

// ServeWS upgrades the request to WebSocket and runs the party loop.
// Path: /ws/parties/:id
// The subscriber first gets a snapshot, then every event of the party.
// Opening the channel does not join the party.
func (h *PartyWSHandler) ServeWS(c *gin.Context) {
	sessionID := c.Param("id")
	caller := callerOf(c)

	sess, err := h.svc.Get(c.Request.Context(), sessionID)
	if err != nil {
		code, label := statusOf(err)
		c.JSON(code, gin.H{"error": label})
		return
	}
	if !sess.IsActive {
		c.JSON(http.StatusGone, gin.H{"error": "session is not active"})
		return
	}

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	peer, cleanup := h.hub.Register(sessionID, caller, conn)
	done := make(chan struct{})
	go func() {
		h.writePump(peer)
		close(done)
	}()
	defer func() {
		cleanup()
		<-done
	}()

	// Снимок берём уже после регистрации: всё, что случится дальше, придёт событием.
	sess, err = h.svc.Get(c.Request.Context(), sessionID)
	switch {
	case err != nil:
		h.hub.SendTo(peer, model.PartyEvent{Kind: model.EventError, SessionID: sessionID, Error: err.Error()})
		return
	case !sess.IsActive:
		h.hub.SendTo(peer, model.PartyEvent{Kind: model.EventPartyEnded, SessionID: sessionID, Session: sess})
		return
	}
	h.hub.SendTo(peer, model.PartyEvent{Kind: model.EventSnapshot, SessionID: sessionID, Session: sess, At: time.Now().UTC()})

	h.readPump(c, peer)
}

func (h *PartyWSHandler) readPump(c *gin.Context, p *service.Peer) {
	for {
		_, data, err := p.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read error", zap.String("session_id", p.SessionID), zap.Error(err))
			}
			return
		}
		var frame model.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reject(p, "malformed frame")
			continue
		}
		switch frame.Type {
		case "chat":
			_, err = h.svc.PostChat(c.Request.Context(), p.UserID, p.SessionID, frame.Message)
		case "reaction":
			_, err = h.svc.PostReaction(c.Request.Context(), p.UserID, p.SessionID, frame.ReactionType)
		default:
			h.reject(p, "unknown frame type "+frame.Type)
			continue
		}
		if err != nil {
			h.reject(p, err.Error())
		}
	}
}

func (h *PartyWSHandler) reject(p *service.Peer, msg string) {
	h.hub.SendTo(p, model.PartyEvent{Kind: model.EventError, SessionID: p.SessionID, User: p.UserID, Error: msg, At: time.Now().UTC()})
}

// writePump is the only writer of the connection.
func (h *PartyWSHandler) writePump(p *service.Peer) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for data := range p.Send {
		_ = p.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := p.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = p.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = p.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "party closed"))
}
