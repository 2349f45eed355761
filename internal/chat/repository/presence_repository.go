package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// redis key formats; absence of a presence key means offline.
const (
	presenceKeyFmt = "online:%s:%s" // online:<partyKind>:<id>
	unseenKeyFmt   = "unseen:%s:%s" // unseen:<recipientKind>:<conversationId>
)

// PresenceRepository definition presence markers and unseen counters
type PresenceRepository interface {
	SetOnline(ctx context.Context, kind, id string, ttl time.Duration) error
	RenewOnline(ctx context.Context, kind, id string, ttl time.Duration) error
	SetOffline(ctx context.Context, kind, id string) error
	IsOnline(ctx context.Context, kind, id string) (bool, error)
	IncrUnseen(ctx context.Context, recipientKind, conversationID string) (int64, error)
	UnseenCount(ctx context.Context, recipientKind, conversationID string) (int64, error)
	ClearUnseen(ctx context.Context, recipientKind, conversationID string) error
}

type presenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository create a PresenceRepository
func NewPresenceRepository(client *redis.Client) PresenceRepository {
	return &presenceRepository{client: client}
}

func (r *presenceRepository) SetOnline(ctx context.Context, kind, id string, ttl time.Duration) error {
	return r.client.Set(ctx, fmt.Sprintf(presenceKeyFmt, kind, id), "1", ttl).Err()
}

func (r *presenceRepository) RenewOnline(ctx context.Context, kind, id string, ttl time.Duration) error {
	return r.client.Expire(ctx, fmt.Sprintf(presenceKeyFmt, kind, id), ttl).Err()
}

// SetOffline removes the marker eagerly, ahead of TTL expiry.
func (r *presenceRepository) SetOffline(ctx context.Context, kind, id string) error {
	return r.client.Del(ctx, fmt.Sprintf(presenceKeyFmt, kind, id)).Err()
}

func (r *presenceRepository) IsOnline(ctx context.Context, kind, id string) (bool, error) {
	n, err := r.client.Exists(ctx, fmt.Sprintf(presenceKeyFmt, kind, id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *presenceRepository) IncrUnseen(ctx context.Context, recipientKind, conversationID string) (int64, error) {
	return r.client.Incr(ctx, fmt.Sprintf(unseenKeyFmt, recipientKind, conversationID)).Result()
}

// UnseenCount returns 0 for a missing counter.
func (r *presenceRepository) UnseenCount(ctx context.Context, recipientKind, conversationID string) (int64, error) {
	n, err := r.client.Get(ctx, fmt.Sprintf(unseenKeyFmt, recipientKind, conversationID)).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *presenceRepository) ClearUnseen(ctx context.Context, recipientKind, conversationID string) error {
	return r.client.Del(ctx, fmt.Sprintf(unseenKeyFmt, recipientKind, conversationID)).Err()
}
