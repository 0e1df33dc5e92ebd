package model

import "time"

// Session is the API view of a watch party (not GORM entity).
type Session struct {
	ID           string        `json:"id"`
	Host         string        `json:"host"`
	MovieTitle   string        `json:"movie_title"`
	StartTime    time.Time     `json:"start_time"`
	IsActive     bool          `json:"is_active"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Participants []string      `json:"participants"`
	ChatHistory  []ChatMessage `json:"chat_history"`
	Reactions    []Reaction    `json:"reactions"`
}

// ChatMessage is one entry of a party's chat log.
type ChatMessage struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Reaction is one entry of a party's reaction log.
type Reaction struct {
	User         string    `json:"user"`
	ReactionType string    `json:"reaction_type"`
	Timestamp    time.Time `json:"timestamp"`
}

// HasParticipant reports whether user is on the roster.
func (s *Session) HasParticipant(user string) bool {
	for _, p := range s.Participants {
		if p == user {
			return true
		}
	}
	return false
}

// Summary is the lobby view of a party, without the logs.
type Summary struct {
	ID               string    `json:"id"`
	Host             string    `json:"host"`
	MovieTitle       string    `json:"movie_title"`
	StartTime        time.Time `json:"start_time"`
	IsActive         bool      `json:"is_active"`
	ParticipantCount int       `json:"participant_count"`
}

// ListFilter narrows ListSessions.
type ListFilter struct {
	ActiveOnly bool
	Host       string
	Limit      int
}

// CreateSessionRequest is the request body for POST /parties.
type CreateSessionRequest struct {
	MovieTitle string `json:"movie_title" binding:"required"`
}

// CreateSessionResponse is the response for POST /parties.
type CreateSessionResponse struct {
	Session
	WSURL string `json:"ws_url"`
}

// PostChatRequest is the request body for POST /parties/:id/chat.
type PostChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// PostReactionRequest is the request body for POST /parties/:id/reactions.
type PostReactionRequest struct {
	ReactionType string `json:"reaction_type" binding:"required"`
}

// ListSessionsResponse is the response for GET /parties.
type ListSessionsResponse struct {
	Sessions []Summary `json:"sessions"`
}
