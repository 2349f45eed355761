package domain

import "strings"

// party kinds
const (
	// SenderUser buyer side of a conversation
	SenderUser = "user"
	// SenderSeller seller side of a conversation
	SenderSeller = "seller"
)

// SellerKeyPrefix marks seller identities in registration tokens and in the
// connection registry; user identities are bare ids.
const SellerKeyPrefix = "seller_"

// inbound frame types
const (
	// FrameMarkAsSeen clear the caller's unseen counter for a conversation
	FrameMarkAsSeen = "MARK_AS_SEEN"
)

// outbound frame types
const (
	// FrameNewMessage deliver a chat event to a live connection
	FrameNewMessage = "NEW_MESSAGE"
	// FrameUnseenCountUpdate notify a live connection its unseen count moved
	FrameUnseenCountUpdate = "UNSEEN_COUNT_UPDATE"
)

// ChatEvent is the wire/log record of one chat message. EventID and
// CreatedAt are stamped by the gateway at receipt time, never by storage,
// and the record is immutable once published to the log.
type ChatEvent struct {
	EventID        string `json:"eventId"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderType     string `json:"senderType"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
}

// InboundFrame is a structured frame read from a registered connection.
// Type is set for control frames (MARK_AS_SEEN); chat events carry the
// sender/recipient fields instead.
type InboundFrame struct {
	Type           string `json:"type,omitempty"`
	ConversationID string `json:"conversationId"`
	FromUserID     string `json:"fromUserId"`
	ToUserID       string `json:"toUserId"`
	MessageBody    string `json:"messageBody"`
	SenderType     string `json:"senderType"`
}

// OutboundFrame is the envelope written to live connections.
type OutboundFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// UnseenCountPayload payload of UNSEEN_COUNT_UPDATE
type UnseenCountPayload struct {
	ConversationID string `json:"conversationId"`
	Count          int64  `json:"count"`
}

// OfflineNotification is handed to the notification boundary when a chat
// event targets a party with no live connection.
type OfflineNotification struct {
	RecipientID    string `json:"recipientId"`
	RecipientKind  string `json:"recipientKind"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Preview        string `json:"preview"`
}

// RegistryKey derives the connection-registry key for a party.
func RegistryKey(kind, id string) string {
	if kind == SenderSeller {
		return SellerKeyPrefix + id
	}
	return id
}

// OppositeKind returns the other party kind.
func OppositeKind(kind string) string {
	if kind == SenderUser {
		return SenderSeller
	}
	return SenderUser
}

// ParseIdentityToken splits a first-frame registration token into party kind
// and id.
func ParseIdentityToken(token string) (kind, id string) {
	if strings.HasPrefix(token, SellerKeyPrefix) {
		return SenderSeller, strings.TrimPrefix(token, SellerKeyPrefix)
	}
	return SenderUser, token
}
