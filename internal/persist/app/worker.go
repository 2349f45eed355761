package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventFetcher is the consumer-group view of the durable log. Offsets are
// committed explicitly, only after the fetched events are durable in the
// message store. *kafka.Reader implements it.
type EventFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// UnseenCounter is the slice of the presence store the worker writes.
type UnseenCounter interface {
	IncrUnseen(ctx context.Context, recipientKind, conversationID string) (int64, error)
}

// pending couples a decoded event with the log record it came from so the
// offset moves only once the row is durable.
type pending struct {
	msg kafka.Message
	row domain.Message
}

// BatchPersistWorker drains the durable log into the message store with
// batched idempotent writes, then bumps the unseen counter of the opposite
// party per persisted message. A failed flush requeues the whole batch at
// the buffer front and retries at the same interval, indefinitely; under a
// permanently failing store the buffer grows without bound until restart.
type BatchPersistWorker struct {
	fetcher EventFetcher
	store   repository.MessageStore
	counter UnseenCounter

	flushInterval time.Duration

	mu       sync.Mutex
	buffer   []pending
	armed    bool
	flushing bool

	runCtx context.Context
}

// NewBatchPersistWorker create a BatchPersistWorker
func NewBatchPersistWorker(
	fetcher EventFetcher,
	store repository.MessageStore,
	counter UnseenCounter,
	flushInterval time.Duration,
) *BatchPersistWorker {
	if flushInterval <= 0 {
		flushInterval = 3 * time.Second
	}
	return &BatchPersistWorker{
		fetcher:       fetcher,
		store:         store,
		counter:       counter,
		flushInterval: flushInterval,
		runCtx:        context.Background(),
	}
}

// Run consumes until ctx is cancelled, then makes one final flush attempt.
func (w *BatchPersistWorker) Run(ctx context.Context) error {
	w.runCtx = ctx

	for {
		msg, err := w.fetcher.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.Flush(context.Background())
				return nil
			}
			logger.Log.Error("fetch from durable log failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		w.consume(ctx, msg)
	}
}

// consume decodes one log record into the buffer and arms the flush timer
// when the buffer was empty.
func (w *BatchPersistWorker) consume(ctx context.Context, msg kafka.Message) {
	var event domain.ChatEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Log.Warn("undecodable log record skipped",
			zap.String("key", string(msg.Key)),
			zap.Error(err),
		)
		if err := w.fetcher.CommitMessages(ctx, msg); err != nil {
			logger.Log.Warn("offset commit failed", zap.Error(err))
		}
		return
	}

	createdAt, err := time.Parse(time.RFC3339Nano, event.CreatedAt)
	if err != nil {
		logger.Log.Warn("event without parsable timestamp, using receipt time",
			zap.String("eventId", event.EventID),
		)
		createdAt = time.Now().UTC()
	}

	w.mu.Lock()
	w.buffer = append(w.buffer, pending{
		msg: msg,
		row: domain.Message{
			EventID:        event.EventID,
			ConversationID: event.ConversationID,
			SenderID:       event.SenderID,
			SenderType:     event.SenderType,
			Content:        event.Content,
			CreatedAt:      createdAt,
		},
	})
	w.armTimerLocked()
	w.mu.Unlock()
}

// armTimerLocked schedules a flush unless one is already pending. Caller
// holds w.mu.
func (w *BatchPersistWorker) armTimerLocked() {
	if w.armed {
		return
	}
	w.armed = true
	time.AfterFunc(w.flushInterval, func() {
		w.Flush(w.runCtx)
	})
}

// Flush drains the buffer and attempts a single bulk insert. On success the
// drained offsets are committed and unseen counters incremented; on failure
// the batch goes back to the buffer front and the timer is re-armed. At most
// one flush runs at a time: a timer firing into an in-flight flush backs off,
// and the in-flight flush re-arms on completion while the buffer is
// non-empty, so batches of one conversation can never overtake each other.
func (w *BatchPersistWorker) Flush(ctx context.Context) {
	w.mu.Lock()
	if w.flushing {
		// completion of the active flush re-arms for whatever is buffered
		w.armed = false
		w.mu.Unlock()
		return
	}
	batch := w.buffer
	w.buffer = nil
	w.armed = false
	if len(batch) == 0 {
		w.mu.Unlock()
		return
	}
	w.flushing = true
	w.mu.Unlock()

	rows := make([]domain.Message, len(batch))
	for i, p := range batch {
		rows[i] = p.row
	}

	if err := w.store.SaveBatch(ctx, rows); err != nil {
		logger.Log.Error("bulk insert failed, batch requeued",
			zap.Int("batch", len(batch)),
			zap.Error(err),
		)
		w.mu.Lock()
		w.buffer = append(batch, w.buffer...)
		w.flushing = false
		w.armTimerLocked()
		w.mu.Unlock()
		return
	}

	msgs := make([]kafka.Message, len(batch))
	for i, p := range batch {
		msgs[i] = p.msg
	}
	// a commit failure only widens the at-least-once window; the event_id
	// conflict target absorbs the re-delivery
	if err := w.fetcher.CommitMessages(ctx, msgs...); err != nil {
		logger.Log.Warn("offset commit failed", zap.Int("batch", len(batch)), zap.Error(err))
	}

	for _, p := range batch {
		recipient := domain.OppositeKind(p.row.SenderType)
		if _, err := w.counter.IncrUnseen(ctx, recipient, p.row.ConversationID); err != nil {
			logger.Log.Warn("unseen increment failed",
				zap.String("conversationId", p.row.ConversationID),
				zap.Error(err),
			)
		}
	}

	logger.Log.Info("batch persisted", zap.Int("messages", len(batch)))

	w.mu.Lock()
	w.flushing = false
	if len(w.buffer) > 0 {
		w.armTimerLocked()
	}
	w.mu.Unlock()
}

// BufferLen reports the number of buffered events, used by tests and the
// shutdown log.
func (w *BatchPersistWorker) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}
