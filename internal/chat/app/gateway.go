package app

import (
	"context"
	"encoding/json"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher appends chat events to the durable log, keyed so that one
// conversation always lands on one partition.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// OfflineNotifier hands events addressed to parties with no live connection
// to the notification boundary.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, n domain.OfflineNotification) error
}

// GatewayUseCase routes chat events between live connections, publishes
// every event to the durable log and owns connection/presence lifecycle.
// The live-delivery path and the log path are independent: a failure on one
// never blocks the other.
type GatewayUseCase struct {
	registry  *Registry
	presence  repository.PresenceRepository
	publisher EventPublisher
	notifier  OfflineNotifier

	presenceTTL time.Duration
}

// NewGatewayUseCase create a GatewayUseCase. notifier may be nil when no
// notification broker is configured.
func NewGatewayUseCase(
	registry *Registry,
	presence repository.PresenceRepository,
	publisher EventPublisher,
	notifier OfflineNotifier,
	presenceTTL time.Duration,
) *GatewayUseCase {
	if presenceTTL <= 0 {
		presenceTTL = 300 * time.Second
	}
	return &GatewayUseCase{
		registry:    registry,
		presence:    presence,
		publisher:   publisher,
		notifier:    notifier,
		presenceTTL: presenceTTL,
	}
}

// RegisterFirstFrame binds a bare identity token to the connection, keys it
// into the registry and writes the presence marker. One-time transition:
// a connection that never sends this frame stays unroutable.
func (uc *GatewayUseCase) RegisterFirstFrame(ctx context.Context, c *Client, token string) {
	kind, id := domain.ParseIdentityToken(token)
	c.Kind = kind
	c.ID = id
	c.Key = domain.RegistryKey(kind, id)
	uc.registry.Add(c.Key, c)

	if err := uc.presence.SetOnline(ctx, kind, id, uc.presenceTTL); err != nil {
		logger.Log.Warn("presence set failed", zap.String("key", c.Key), zap.Error(err))
	}
	logger.Log.Info("connection registered", zap.String("key", c.Key))
}

// RenewPresence extends the presence TTL of a registered connection.
func (uc *GatewayUseCase) RenewPresence(ctx context.Context, c *Client) {
	if !c.Registered() {
		return
	}
	if err := uc.presence.RenewOnline(ctx, c.Kind, c.ID, uc.presenceTTL); err != nil {
		logger.Log.Warn("presence renew failed", zap.String("key", c.Key), zap.Error(err))
	}
}

// HandleFrame processes one structured frame. Malformed frames are dropped
// with a warning; the protocol has no acknowledgment channel to report back
// on.
func (uc *GatewayUseCase) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	var frame domain.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.Log.Warn("malformed frame dropped", zap.String("key", c.Key), zap.Error(err))
		return
	}

	if frame.Type == domain.FrameMarkAsSeen {
		uc.handleMarkSeen(ctx, c, frame)
		return
	}
	uc.handleChatEvent(ctx, c, frame)
}

// handleMarkSeen clears the caller's unseen counter for the conversation.
// The durable counter and the live badge are reset on the same path so a
// conversation-list fetch cannot disagree with the badge.
func (uc *GatewayUseCase) handleMarkSeen(ctx context.Context, c *Client, frame domain.InboundFrame) {
	// the caller's party kind comes from registration, not the frame
	if !c.Registered() {
		logger.Log.Warn("mark-as-seen from unregistered connection dropped")
		return
	}
	if frame.ConversationID == "" {
		logger.Log.Warn("mark-as-seen without conversationId dropped", zap.String("key", c.Key))
		return
	}
	if err := uc.presence.ClearUnseen(ctx, c.Kind, frame.ConversationID); err != nil {
		logger.Log.Warn("unseen clear failed",
			zap.String("key", c.Key),
			zap.String("conversationId", frame.ConversationID),
			zap.Error(err),
		)
		return
	}
	if err := c.WriteJSON(domain.OutboundFrame{
		Type:    domain.FrameUnseenCountUpdate,
		Payload: domain.UnseenCountPayload{ConversationID: frame.ConversationID, Count: 0},
	}); err != nil {
		logger.Log.Warn("unseen update write failed", zap.String("key", c.Key), zap.Error(err))
	}
}

// handleChatEvent stamps, routes and publishes one chat event.
func (uc *GatewayUseCase) handleChatEvent(ctx context.Context, c *Client, frame domain.InboundFrame) {
	if frame.ToUserID == "" || frame.MessageBody == "" || frame.ConversationID == "" {
		logger.Log.Warn("chat event missing required fields dropped",
			zap.String("key", c.Key),
			zap.String("conversationId", frame.ConversationID),
		)
		return
	}

	event := domain.ChatEvent{
		EventID:        uuid.New().String(),
		ConversationID: frame.ConversationID,
		SenderID:       frame.FromUserID,
		SenderType:     frame.SenderType,
		Content:        frame.MessageBody,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}

	recipientKind := domain.OppositeKind(frame.SenderType)
	recipientKey := domain.RegistryKey(recipientKind, frame.ToUserID)
	senderKey := domain.RegistryKey(frame.SenderType, frame.FromUserID)

	// live delivery when the recipient holds a connection
	if recipient, ok := uc.registry.Get(recipientKey); ok {
		uc.deliver(ctx, recipient, recipientKind, event)
	} else if uc.notifier != nil {
		if err := uc.notifier.NotifyOffline(ctx, domain.OfflineNotification{
			RecipientID:    frame.ToUserID,
			RecipientKind:  recipientKind,
			ConversationID: event.ConversationID,
			SenderID:       event.SenderID,
			Preview:        event.Content,
		}); err != nil {
			logger.Log.Warn("offline notification failed", zap.String("key", recipientKey), zap.Error(err))
		}
	}

	// echo to the sender's own live connection for multi-device consistency
	if sender, ok := uc.registry.Get(senderKey); ok {
		if err := sender.WriteJSON(domain.OutboundFrame{Type: domain.FrameNewMessage, Payload: event}); err != nil {
			logger.Log.Warn("echo write failed", zap.String("key", senderKey), zap.Error(err))
		}
	}

	// durable log append; a failure here is logged and not retried so live
	// delivery is never held back by the broker
	value, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("chat event marshal failed", zap.Error(err))
		return
	}
	if err := uc.publisher.Publish(ctx, event.ConversationID, value); err != nil {
		logger.Log.Error("chat event publish failed",
			zap.String("conversationId", event.ConversationID),
			zap.String("eventId", event.EventID),
			zap.Error(err),
		)
	}
}

// deliver writes the NEW_MESSAGE frame plus an unseen-count notice to a live
// recipient. The notice is display-only; the durable counter moves when the
// persistence worker flushes.
func (uc *GatewayUseCase) deliver(ctx context.Context, recipient *Client, recipientKind string, event domain.ChatEvent) {
	if err := recipient.WriteJSON(domain.OutboundFrame{Type: domain.FrameNewMessage, Payload: event}); err != nil {
		logger.Log.Warn("live delivery write failed", zap.String("key", recipient.Key), zap.Error(err))
		return
	}

	count, err := uc.presence.UnseenCount(ctx, recipientKind, event.ConversationID)
	if err != nil {
		logger.Log.Warn("unseen count lookup failed", zap.String("key", recipient.Key), zap.Error(err))
		return
	}
	if err := recipient.WriteJSON(domain.OutboundFrame{
		Type:    domain.FrameUnseenCountUpdate,
		Payload: domain.UnseenCountPayload{ConversationID: event.ConversationID, Count: count + 1},
	}); err != nil {
		logger.Log.Warn("unseen update write failed", zap.String("key", recipient.Key), zap.Error(err))
	}
}

// HandleDisconnect removes the connection from the registry and revokes the
// presence marker eagerly rather than waiting for the TTL.
func (uc *GatewayUseCase) HandleDisconnect(ctx context.Context, c *Client) {
	if !c.Registered() {
		return
	}
	uc.registry.Remove(c.Key, c)
	if err := uc.presence.SetOffline(ctx, c.Kind, c.ID); err != nil {
		logger.Log.Warn("presence delete failed", zap.String("key", c.Key), zap.Error(err))
	}
	logger.Log.Info("connection deregistered", zap.String("key", c.Key))
}
