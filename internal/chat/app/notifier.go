package app

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/database"
	errprocess "marketplace_chat_service/pkg/err"

	"github.com/streadway/amqp"
)

// RabbitOfflineNotifier publishes offline-recipient events to the exchange
// the notification service consumes. Routing key is the recipient kind so
// user and seller pushes can fan out to different queues.
type RabbitOfflineNotifier struct {
	rabbit   database.RabbitRepo
	exchange string
}

// NewRabbitOfflineNotifier create a RabbitOfflineNotifier
func NewRabbitOfflineNotifier(rabbit database.RabbitRepo, exchange string) *RabbitOfflineNotifier {
	return &RabbitOfflineNotifier{rabbit: rabbit, exchange: exchange}
}

// NotifyOffline implements OfflineNotifier.
func (n *RabbitOfflineNotifier) NotifyOffline(ctx context.Context, notice domain.OfflineNotification) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	err = n.rabbit.Publish(n.exchange, notice.RecipientKind, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return errprocess.Set(fmt.Sprintf("offline notification publish failed(recipient: %s): %v", notice.RecipientID, err))
	}
	return nil
}
