package model

import "time"

// WatchParty is the GORM entity of a party. Seq is the last sequence number
// handed out to a child row; it only grows while the row is locked.
type WatchParty struct {
	ID         string     `gorm:"size:36;primaryKey"`
	Host       string     `gorm:"size:255;not null;index"`
	MovieTitle string     `gorm:"size:512;not null"`
	StartTime  time.Time  `gorm:"column:start_time;not null"`
	IsActive   bool       `gorm:"column:is_active;not null;default:true;index"`
	Seq        int64      `gorm:"column:seq;not null;default:0"`
	EndedAt    *time.Time `gorm:"column:ended_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime"`

	Participants []PartyParticipant `gorm:"foreignKey:PartyID;constraint:OnDelete:CASCADE"`
	Chat         []PartyChatMessage `gorm:"foreignKey:PartyID;constraint:OnDelete:CASCADE"`
	Reactions    []PartyReaction    `gorm:"foreignKey:PartyID;constraint:OnDelete:CASCADE"`
}

func (WatchParty) TableName() string { return "watch_parties" }

// PartyParticipant is one roster entry.
type PartyParticipant struct {
	ID       uint      `gorm:"primaryKey"`
	PartyID  string    `gorm:"size:36;not null;uniqueIndex:idx_party_participant"`
	UserID   string    `gorm:"size:255;not null;uniqueIndex:idx_party_participant"`
	Seq      int64     `gorm:"not null"`
	JoinedAt time.Time `gorm:"column:joined_at;not null"`
}

func (PartyParticipant) TableName() string { return "party_participants" }

// PartyChatMessage is an append-only chat row.
type PartyChatMessage struct {
	ID      uint      `gorm:"primaryKey"`
	PartyID string    `gorm:"size:36;not null;index:idx_party_chat_seq"`
	Seq     int64     `gorm:"not null;index:idx_party_chat_seq"`
	Sender  string    `gorm:"size:255;not null"`
	Message string    `gorm:"type:text;not null"`
	SentAt  time.Time `gorm:"column:sent_at;not null"`
}

func (PartyChatMessage) TableName() string { return "party_chat_messages" }

// PartyReaction is an append-only reaction row.
type PartyReaction struct {
	ID           uint      `gorm:"primaryKey"`
	PartyID      string    `gorm:"size:36;not null;index:idx_party_reaction_seq"`
	Seq          int64     `gorm:"not null;index:idx_party_reaction_seq"`
	UserID       string    `gorm:"size:255;not null"`
	ReactionType string    `gorm:"size:64;not null"`
	ReactedAt    time.Time `gorm:"column:reacted_at;not null"`
}

func (PartyReaction) TableName() string { return "party_reactions" }
