package app

import (
	"strconv"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg"
	"marketplace_chat_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var partyKinds = []string{domain.SenderUser, domain.SenderSeller}

// QueryHandler serves the presence/unseen/history read side consumed by the
// conversation-listing endpoints.
type QueryHandler struct {
	presence repository.PresenceRepository
	history  repository.HistoryRepository
}

// NewQueryHandler create a QueryHandler
func NewQueryHandler(presence repository.PresenceRepository, history repository.HistoryRepository) *QueryHandler {
	return &QueryHandler{presence: presence, history: history}
}

// GetPresence GET /presence/:kind/:id
func (h *QueryHandler) GetPresence(c *fiber.Ctx) error {
	kind := c.Params("kind")
	if !pkg.Contains(partyKinds, kind) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown party kind"})
	}
	online, err := h.presence.IsOnline(c.Context(), kind, c.Params("id"))
	if err != nil {
		logger.Log.Error("presence lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "presence lookup failed"})
	}
	return c.JSON(fiber.Map{"online": online})
}

// GetUnseen GET /conversations/:id/unseen?kind=
func (h *QueryHandler) GetUnseen(c *fiber.Ctx) error {
	kind := c.Query("kind")
	if !pkg.Contains(partyKinds, kind) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown party kind"})
	}
	count, err := h.presence.UnseenCount(c.Context(), kind, c.Params("id"))
	if err != nil {
		logger.Log.Error("unseen lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "unseen lookup failed"})
	}
	return c.JSON(fiber.Map{"count": count})
}

// MarkSeen POST /conversations/:id/seen
func (h *QueryHandler) MarkSeen(c *fiber.Ctx) error {
	var body struct {
		Kind string `json:"kind"`
	}
	if err := c.BodyParser(&body); err != nil || !pkg.Contains(partyKinds, body.Kind) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown party kind"})
	}
	if err := h.presence.ClearUnseen(c.Context(), body.Kind, c.Params("id")); err != nil {
		logger.Log.Error("unseen clear failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "unseen clear failed"})
	}
	return c.JSON(fiber.Map{"cleared": true})
}

// GetMessages GET /conversations/:id/messages?before=&limit=
func (h *QueryHandler) GetMessages(c *fiber.Ctx) error {
	before, _ := strconv.ParseUint(c.Query("before"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.history.FindMessages(c.Context(), c.Params("id"), before, limit)
	if err != nil {
		logger.Log.Error("history fetch failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history fetch failed"})
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// ListConversations GET /conversations?kind=&party=
func (h *QueryHandler) ListConversations(c *fiber.Ctx) error {
	kind, party := c.Query("kind"), c.Query("party")
	if !pkg.Contains(partyKinds, kind) || party == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "kind and party are required"})
	}

	convs, err := h.history.ListConversations(c.Context(), kind, party)
	if err != nil {
		logger.Log.Error("conversation list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "conversation list failed"})
	}

	peerKind := domain.OppositeKind(kind)
	summaries := make([]domain.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		s := domain.ConversationSummary{Conversation: conv}

		last, err := h.history.LastMessage(c.Context(), conv.ID)
		if err != nil {
			logger.Log.Warn("last message lookup failed", zap.String("conversationId", conv.ID), zap.Error(err))
		} else {
			s.LastMessage = last
		}

		// enrichment failures degrade to zero values, the list itself still
		// renders
		if count, err := h.presence.UnseenCount(c.Context(), kind, conv.ID); err == nil {
			s.UnseenCount = count
		} else {
			logger.Log.Warn("unseen lookup failed", zap.String("conversationId", conv.ID), zap.Error(err))
		}

		peerID := conv.SellerID
		if peerKind == domain.SenderUser {
			peerID = conv.UserID
		}
		if peerID != "" {
			if online, err := h.presence.IsOnline(c.Context(), peerKind, peerID); err == nil {
				s.PeerOnline = online
			} else {
				logger.Log.Warn("peer presence lookup failed", zap.String("conversationId", conv.ID), zap.Error(err))
			}
		}

		summaries = append(summaries, s)
	}

	return c.JSON(fiber.Map{"conversations": summaries})
}
