package domain

import "time"

// Message is a persisted chat event. The unique index on EventID makes the
// worker's retried batch inserts idempotent; InsertedAt is storage-assigned
// and independent of the gateway receipt time.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID        string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"event_id"`
	ConversationID string    `gorm:"type:varchar(64);index;not null" json:"conversation_id"`
	SenderID       string    `gorm:"type:varchar(64);not null" json:"sender_id"`
	SenderType     string    `gorm:"type:varchar(16);not null" json:"sender_type"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index;not null" json:"created_at"`
	InsertedAt     time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName implements the gorm tabler interface.
func (Message) TableName() string { return "chat_messages" }

// Conversation is the relational record behind the conversation-list query.
// Party columns start empty and are filled in as events from each side are
// persisted.
type Conversation struct {
	ID            string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID        string    `gorm:"type:varchar(64);index" json:"user_id"`
	SellerID      string    `gorm:"type:varchar(64);index" json:"seller_id"`
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`
}

// TableName implements the gorm tabler interface.
func (Conversation) TableName() string { return "conversations" }

// ConversationSummary is one row of the conversation-list endpoint,
// enriched with last message, unseen count and peer presence.
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"last_message,omitempty"`
	UnseenCount int64    `json:"unseen_count"`
	PeerOnline  bool     `json:"peer_online"`
}
