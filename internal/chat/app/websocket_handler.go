package app

import (
	"bytes"
	"context"
	"time"

	"marketplace_chat_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// ChatWebsocketHandler owns the read loop of every gateway connection.
type ChatWebsocketHandler struct {
	gatewayUC    *GatewayUseCase
	pingInterval time.Duration
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(gatewayUC *GatewayUseCase) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		gatewayUC:    gatewayUC,
		pingInterval: 60 * time.Second,
	}
}

// HandleConnection is the WebSocket entry point. The first non-JSON frame is
// the identity token; everything after that is dispatched as a structured
// frame. Each connection runs this loop on its own goroutine so no
// connection can block another.
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	client := NewClient(conn)
	ticker := time.NewTicker(h.pingInterval)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		h.gatewayUC.HandleDisconnect(ctx, client)
		logger.Log.Info("websocket close", zap.String("key", client.Key))
		conn.Close()
		cancel()
	}()

	// fiber answers close/ping/pong internally, the handlers only surface them
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("WebSocket closed:", conn.RemoteAddr())
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		return nil
	})

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	// periodic ping doubles as the presence TTL renewal, so a long-lived
	// connection never ages out of the presence store
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
				h.gatewayUC.RenewPresence(ctxClose, client)
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("Connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		raw := bytes.TrimSpace(message)
		if len(raw) == 0 {
			continue
		}

		// one-time transition: a bare token on an unregistered connection
		// binds the party identity
		if !client.Registered() && raw[0] != '{' {
			h.gatewayUC.RegisterFirstFrame(ctx, client, string(raw))
			continue
		}

		h.gatewayUC.HandleFrame(ctx, client, raw)
	}
}
