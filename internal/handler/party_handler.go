package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/watchparty-service/internal/errs"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"github.com/psds-microservice/watchparty-service/internal/service"
	"go.uber.org/zap"
)

// PartyHandler handles REST API for watch parties.
type PartyHandler struct {
	svc service.SessionServicer
	cfg *service.WSConfig
	log *zap.Logger
}

// NewPartyHandler creates a party handler (D: принимает SessionServicer).
func NewPartyHandler(svc service.SessionServicer, wsBaseURL string, log *zap.Logger) *PartyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PartyHandler{
		svc: svc,
		cfg: &service.WSConfig{BaseURL: wsBaseURL},
		log: log,
	}
}

// CreateParty godoc
// POST /parties
func (h *PartyHandler) CreateParty(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	sess, err := h.svc.Create(c.Request.Context(), callerOf(c), req.MovieTitle)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.CreateSessionResponse{
		Session: *sess,
		WSURL:   h.cfg.WSURL(sess.ID),
	})
}

// ListParties godoc
// GET /parties?active=true&host=alice&limit=20
func (h *PartyHandler) ListParties(c *gin.Context) {
	var filter model.ListFilter
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": "active must be a boolean"})
			return
		}
		filter.ActiveOnly = active
	}
	filter.Host = c.Query("host")
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": "limit must be an integer"})
			return
		}
		filter.Limit = limit
	}
	list, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []model.Summary{}
	}
	c.JSON(http.StatusOK, model.ListSessionsResponse{Sessions: list})
}

// GetParty godoc
// GET /parties/:id
func (h *PartyHandler) GetParty(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// JoinParty godoc
// POST /parties/:id/join
func (h *PartyHandler) JoinParty(c *gin.Context) {
	sess, err := h.svc.Join(c.Request.Context(), callerOf(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// LeaveParty godoc
// POST /parties/:id/leave
func (h *PartyHandler) LeaveParty(c *gin.Context) {
	if err := h.svc.Leave(c.Request.Context(), callerOf(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostChat godoc
// POST /parties/:id/chat
func (h *PartyHandler) PostChat(c *gin.Context) {
	var req model.PostChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	sess, err := h.svc.PostChat(c.Request.Context(), callerOf(c), c.Param("id"), req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// PostReaction godoc
// POST /parties/:id/reactions
func (h *PartyHandler) PostReaction(c *gin.Context) {
	var req model.PostReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	sess, err := h.svc.PostReaction(c.Request.Context(), callerOf(c), c.Param("id"), req.ReactionType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// EndParty godoc
// POST /parties/:id/end
func (h *PartyHandler) EndParty(c *gin.Context) {
	if err := h.svc.End(c.Request.Context(), callerOf(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PartyHandler) writeError(c *gin.Context, err error) {
	code, label := statusOf(err)
	if code == http.StatusInternalServerError {
		h.log.Error("party request failed",
			zap.String("path", c.FullPath()),
			zap.String("session_id", c.Param("id")),
			zap.Error(err))
		c.JSON(code, gin.H{"error": label})
		return
	}
	c.JSON(code, gin.H{"error": label, "message": err.Error()})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, errs.ErrSessionInactive):
		return http.StatusGone, "session is not active"
	case errors.Is(err, errs.ErrNotHost):
		return http.StatusForbidden, "only the host can do this"
	case errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid request"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
