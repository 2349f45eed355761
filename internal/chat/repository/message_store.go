package repository

import (
	"context"

	"marketplace_chat_service/internal/chat/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// MessageStore definition the worker's bulk write side
type MessageStore interface {
	SaveBatch(ctx context.Context, batch []domain.Message) error
}

type messageStore struct {
	db *pgxpool.Pool
}

// NewMessageStore create a MessageStore
func NewMessageStore(db *pgxpool.Pool) MessageStore {
	return &messageStore{db: db}
}

// SaveBatch writes a drained batch in one transaction. A replay after a
// partial commit is absorbed by the event_id conflict target, so the worker
// may retry the same batch safely.
func (s *messageStore) SaveBatch(ctx context.Context, batch []domain.Message) error {
	if len(batch) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, m := range batch {
		b.Queue(
			`INSERT INTO chat_messages (event_id, conversation_id, sender_id, sender_type, content, created_at, inserted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now())
			 ON CONFLICT (event_id) DO NOTHING`,
			m.EventID, m.ConversationID, m.SenderID, m.SenderType, m.Content, m.CreatedAt,
		)

		userID, sellerID := "", ""
		if m.SenderType == domain.SenderUser {
			userID = m.SenderID
		} else {
			sellerID = m.SenderID
		}
		b.Queue(
			`INSERT INTO conversations (id, user_id, seller_id, last_message_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET
				last_message_at = GREATEST(conversations.last_message_at, EXCLUDED.last_message_at),
				user_id = CASE WHEN EXCLUDED.user_id <> '' THEN EXCLUDED.user_id ELSE conversations.user_id END,
				seller_id = CASE WHEN EXCLUDED.seller_id <> '' THEN EXCLUDED.seller_id ELSE conversations.seller_id END`,
			m.ConversationID, userID, sellerID, m.CreatedAt,
		)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
