package rpc

import "github.com/psds-microservice/watchparty-service/internal/model"

type CreateRequest struct {
	MovieTitle string `json:"movie_title"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ReactionRequest struct {
	SessionID    string `json:"session_id"`
	ReactionType string `json:"reaction_type"`
}

type ListRequest struct {
	ActiveOnly bool   `json:"active_only,omitempty"`
	Host       string `json:"host,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Empty is the response of actions that return nothing.
type Empty struct{}

type (
	CreateResponse = model.CreateSessionResponse
	ListResponse   = model.ListSessionsResponse
)
