package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"marketplace_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockPresenceRepository Mock PresenceRepository
type MockPresenceRepository struct {
	mock.Mock
}

// SetOnline mock write presence marker
func (m *MockPresenceRepository) SetOnline(ctx context.Context, kind, id string, ttl time.Duration) error {
	args := m.Called(ctx, kind, id, ttl)
	return args.Error(0)
}

// RenewOnline mock extend presence marker
func (m *MockPresenceRepository) RenewOnline(ctx context.Context, kind, id string, ttl time.Duration) error {
	args := m.Called(ctx, kind, id, ttl)
	return args.Error(0)
}

// SetOffline mock delete presence marker
func (m *MockPresenceRepository) SetOffline(ctx context.Context, kind, id string) error {
	args := m.Called(ctx, kind, id)
	return args.Error(0)
}

// IsOnline mock presence lookup
func (m *MockPresenceRepository) IsOnline(ctx context.Context, kind, id string) (bool, error) {
	args := m.Called(ctx, kind, id)
	return args.Bool(0), args.Error(1)
}

// IncrUnseen mock unseen increment
func (m *MockPresenceRepository) IncrUnseen(ctx context.Context, recipientKind, conversationID string) (int64, error) {
	args := m.Called(ctx, recipientKind, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

// UnseenCount mock unseen lookup
func (m *MockPresenceRepository) UnseenCount(ctx context.Context, recipientKind, conversationID string) (int64, error) {
	args := m.Called(ctx, recipientKind, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

// ClearUnseen mock unseen reset
func (m *MockPresenceRepository) ClearUnseen(ctx context.Context, recipientKind, conversationID string) error {
	args := m.Called(ctx, recipientKind, conversationID)
	return args.Error(0)
}

// MockEventPublisher Mock EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

// Publish mock durable log append
func (m *MockEventPublisher) Publish(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// MockOfflineNotifier Mock OfflineNotifier
type MockOfflineNotifier struct {
	mock.Mock
}

// NotifyOffline mock notification publish
func (m *MockOfflineNotifier) NotifyOffline(ctx context.Context, n domain.OfflineNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// fakeConn records every frame written to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	f.frames = append(f.frames, buf)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// outbound decodes the recorded frames into envelopes.
func (f *fakeConn) outbound() []domain.OutboundFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.OutboundFrame, 0, len(f.frames))
	for _, raw := range f.frames {
		var frame domain.OutboundFrame
		if err := json.Unmarshal(raw, &frame); err == nil {
			out = append(out, frame)
		}
	}
	return out
}
