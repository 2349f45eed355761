package router

import (
	"context"

	"marketplace_chat_service/internal/chat/app"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes wires the websocket entry point and the presence/unseen/
// history query endpoints.
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, query *app.QueryHandler) {
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))

	r.Get("/presence/:kind/:id", query.GetPresence)
	r.Get("/conversations", query.ListConversations)
	r.Get("/conversations/:id/messages", query.GetMessages)
	r.Get("/conversations/:id/unseen", query.GetUnseen)
	r.Post("/conversations/:id/seen", query.MarkSeen)
}
