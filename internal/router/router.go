package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/watchparty-service/internal/auth"
	"github.com/psds-microservice/watchparty-service/internal/handler"
	"github.com/psds-microservice/watchparty-service/pkg/constants"
	"go.uber.org/zap"
)

// New builds the HTTP router. Reads are public; every action that acts on
// behalf of a caller goes through the authenticator.
func New(
	partyHandler *handler.PartyHandler,
	partyWS *handler.PartyWSHandler,
	health *handler.HealthHandler,
	authn auth.Authenticator,
	logger *zap.Logger,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	if logger != nil {
		r.Use(handler.RequestLogger(logger))
	}

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	requireCaller := handler.RequireCaller(authn)

	// REST parties
	parties := r.Group(constants.PathParties)
	{
		parties.GET("", partyHandler.ListParties)
		parties.GET("/:id", partyHandler.GetParty)

		parties.POST("", requireCaller, partyHandler.CreateParty)
		parties.POST("/:id/join", requireCaller, partyHandler.JoinParty)
		parties.POST("/:id/leave", requireCaller, partyHandler.LeaveParty)
		parties.POST("/:id/chat", requireCaller, partyHandler.PostChat)
		parties.POST("/:id/reactions", requireCaller, partyHandler.PostReaction)
		parties.POST("/:id/end", requireCaller, partyHandler.EndParty)
	}

	// WebSocket: /ws/parties/:id
	r.GET(constants.PathWSParties+"/:id", requireCaller, partyWS.ServeWS)

	return r
}
