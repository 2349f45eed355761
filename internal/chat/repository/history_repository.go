package repository

import (
	"context"
	"errors"

	"marketplace_chat_service/internal/chat/domain"

	"gorm.io/gorm"
)

// HistoryRepository definition the query side of the message store
type HistoryRepository interface {
	AutoMigrate() error
	// FindMessages pages backwards through a conversation; beforeID = 0 means
	// start from the newest message.
	FindMessages(ctx context.Context, conversationID string, beforeID uint64, limit int) ([]domain.Message, error)
	LastMessage(ctx context.Context, conversationID string) (*domain.Message, error)
	ListConversations(ctx context.Context, kind, partyID string) ([]domain.Conversation, error)
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository create a HistoryRepository
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Message{}, &domain.Conversation{})
}

func (r *historyRepository) FindMessages(ctx context.Context, conversationID string, beforeID uint64, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var list []domain.Message
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *historyRepository) LastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	var m domain.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *historyRepository) ListConversations(ctx context.Context, kind, partyID string) ([]domain.Conversation, error) {
	column := "user_id"
	if kind == domain.SenderSeller {
		column = "seller_id"
	}
	var list []domain.Conversation
	err := r.db.WithContext(ctx).
		Where(column+" = ?", partyID).
		Order("last_message_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}
