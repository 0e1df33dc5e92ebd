package model

import "time"

// EventKind names a live party event pushed to WebSocket subscribers.
type EventKind string

const (
	EventSnapshot          EventKind = "snapshot"
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	EventChatMessage       EventKind = "chat_message"
	EventReaction          EventKind = "reaction"
	EventPartyEnded        EventKind = "party_ended"
	EventError             EventKind = "error"
)

// PartyEvent is the envelope sent over the live channel. Position is the
// entry's index in its log (chat or reactions), so subscribers can restore
// store order if two events overtake each other in flight.
type PartyEvent struct {
	ID        string       `json:"event_id"`
	Kind      EventKind    `json:"event"`
	SessionID string       `json:"session_id"`
	User      string       `json:"user,omitempty"`
	Position  int          `json:"position,omitempty"`
	Chat      *ChatMessage `json:"chat,omitempty"`
	Reaction  *Reaction    `json:"reaction,omitempty"`
	Session   *Session     `json:"session,omitempty"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}

// InboundFrame is a message a subscriber sends over the live channel.
// Type is "chat" or "reaction".
type InboundFrame struct {
	Type         string `json:"type"`
	Message      string `json:"message,omitempty"`
	ReactionType string `json:"reaction_type,omitempty"`
}
