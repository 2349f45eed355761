package bdd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	chatapp "marketplace_chat_service/internal/chat/app"
	"marketplace_chat_service/internal/chat/domain"
	persistapp "marketplace_chat_service/internal/persist/app"
	"marketplace_chat_service/pkg/logger"

	"github.com/cucumber/godog"
	"github.com/segmentio/kafka-go"
)

const chatFeature = `Feature: buyer/seller chat delivery
  In order to talk to sellers about listings
  As a buyer
  I want messages delivered live, stored durably and counted until seen

  Scenario: live delivery to a connected seller
    Given the buyer "u1" is connected
    And the seller "s1" is connected
    When "u1" sends "is this still available?" to "s1" in conversation "c1"
    Then the seller "s1" receives "is this still available?"
    And the buyer "u1" receives the echo "is this still available?"
    And conversation "c1" durably stores "is this still available?"
    And the seller unseen counter for "c1" becomes 1

  Scenario: delivery to an offline seller still reaches storage
    Given the buyer "u1" is connected
    When "u1" sends "hello?" to "s1" in conversation "c1"
    Then an offline notification for seller "s1" is emitted
    And conversation "c1" durably stores "hello?"
    And the seller unseen counter for "c1" becomes 1

  Scenario: marking a conversation as seen resets the counter
    Given the buyer "u1" is connected
    And the seller "s1" is connected
    When "u1" sends "ping" to "s1" in conversation "c1"
    And conversation "c1" durably stores "ping"
    And the seller unseen counter for "c1" becomes 1
    And the seller "s1" marks conversation "c1" as seen
    Then the seller unseen counter for "c1" becomes 0

  Scenario: disconnecting revokes presence immediately
    Given the buyer "u1" is connected
    Then the buyer "u1" shows as online
    When the buyer "u1" disconnects
    Then the buyer "u1" shows as offline
`

// memPresence is an in-memory PresenceRepository; TTLs are accepted but not
// aged, the suite only exercises set/renew/delete semantics.
type memPresence struct {
	mu      sync.Mutex
	online  map[string]bool
	counter map[string]int64
}

func newMemPresence() *memPresence {
	return &memPresence{online: map[string]bool{}, counter: map[string]int64{}}
}

func (p *memPresence) SetOnline(ctx context.Context, kind, id string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[kind+":"+id] = true
	return nil
}

func (p *memPresence) RenewOnline(ctx context.Context, kind, id string, ttl time.Duration) error {
	return nil
}

func (p *memPresence) SetOffline(ctx context.Context, kind, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, kind+":"+id)
	return nil
}

func (p *memPresence) IsOnline(ctx context.Context, kind, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[kind+":"+id], nil
}

func (p *memPresence) IncrUnseen(ctx context.Context, recipientKind, conversationID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter[recipientKind+":"+conversationID]++
	return p.counter[recipientKind+":"+conversationID], nil
}

func (p *memPresence) UnseenCount(ctx context.Context, recipientKind, conversationID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counter[recipientKind+":"+conversationID], nil
}

func (p *memPresence) ClearUnseen(ctx context.Context, recipientKind, conversationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.counter, recipientKind+":"+conversationID)
	return nil
}

// logPipe plays the durable log: the gateway publishes into it and the
// persistence worker fetches from it.
type logPipe struct {
	records chan kafka.Message
}

func (l *logPipe) Publish(ctx context.Context, key string, value []byte) error {
	l.records <- kafka.Message{Key: []byte(key), Value: value}
	return nil
}

func (l *logPipe) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-l.records:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (l *logPipe) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return nil
}

// memStore is an in-memory MessageStore.
type memStore struct {
	mu   sync.Mutex
	rows []domain.Message
}

func (s *memStore) SaveBatch(ctx context.Context, batch []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, batch...)
	return nil
}

func (s *memStore) find(conversationID, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ConversationID == conversationID && m.Content == content {
			return true
		}
	}
	return false
}

// captureNotifier records offline notifications.
type captureNotifier struct {
	mu   sync.Mutex
	sent []domain.OfflineNotification
}

func (n *captureNotifier) NotifyOffline(ctx context.Context, notification domain.OfflineNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *captureNotifier) forRecipient(kind, id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.sent {
		if s.RecipientKind == kind && s.RecipientID == id {
			return true
		}
	}
	return false
}

// recordingConn collects the frames written to one connection.
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) hasNewMessage(content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, raw := range c.frames {
		var frame struct {
			Type    string           `json:"type"`
			Payload domain.ChatEvent `json:"payload"`
		}
		if json.Unmarshal(raw, &frame) == nil &&
			frame.Type == domain.FrameNewMessage && frame.Payload.Content == content {
			return true
		}
	}
	return false
}

// chatSuite wires the gateway and the persistence worker around in-memory
// infrastructure for one scenario.
type chatSuite struct {
	presence *memPresence
	pipe     *logPipe
	store    *memStore
	notifier *captureNotifier
	gateway  *chatapp.GatewayUseCase

	cancelWorker context.CancelFunc

	mu      sync.Mutex
	clients map[string]*chatapp.Client
	conns   map[string]*recordingConn
}

func newChatSuite() *chatSuite {
	s := &chatSuite{
		presence: newMemPresence(),
		pipe:     &logPipe{records: make(chan kafka.Message, 64)},
		store:    &memStore{},
		notifier: &captureNotifier{},
		clients:  map[string]*chatapp.Client{},
		conns:    map[string]*recordingConn{},
	}
	s.gateway = chatapp.NewGatewayUseCase(chatapp.NewRegistry(), s.presence, s.pipe, s.notifier, 300*time.Second)

	worker := persistapp.NewBatchPersistWorker(s.pipe, s.store, s.presence, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelWorker = cancel
	go worker.Run(ctx)
	return s
}

func (s *chatSuite) connect(token string) {
	conn := &recordingConn{}
	client := chatapp.NewClient(conn)
	s.gateway.RegisterFirstFrame(context.Background(), client, token)
	s.mu.Lock()
	s.clients[token] = client
	s.conns[token] = conn
	s.mu.Unlock()
}

func (s *chatSuite) client(token string) (*chatapp.Client, *recordingConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[token]
	if !ok {
		return nil, nil, fmt.Errorf("no connection for %q", token)
	}
	return c, s.conns[token], nil
}

// eventually polls cond until it holds or a second passes. The worker flushes
// on its own timer, so most assertions need a grace window.
func eventually(cond func() bool) error {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("condition not met within deadline")
}

func (s *chatSuite) buyerConnected(id string) error {
	s.connect(id)
	return nil
}

func (s *chatSuite) sellerConnected(id string) error {
	s.connect(domain.SellerKeyPrefix + id)
	return nil
}

func (s *chatSuite) buyerSends(from, body, to, conversation string) error {
	client, _, err := s.client(from)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(domain.InboundFrame{
		ConversationID: conversation,
		FromUserID:     from,
		ToUserID:       to,
		MessageBody:    body,
		SenderType:     domain.SenderUser,
	})
	if err != nil {
		return err
	}
	s.gateway.HandleFrame(context.Background(), client, frame)
	return nil
}

func (s *chatSuite) sellerReceives(id, body string) error {
	_, conn, err := s.client(domain.SellerKeyPrefix + id)
	if err != nil {
		return err
	}
	return eventually(func() bool { return conn.hasNewMessage(body) })
}

func (s *chatSuite) buyerReceivesEcho(id, body string) error {
	_, conn, err := s.client(id)
	if err != nil {
		return err
	}
	return eventually(func() bool { return conn.hasNewMessage(body) })
}

func (s *chatSuite) durablyStored(conversation, body string) error {
	return eventually(func() bool { return s.store.find(conversation, body) })
}

func (s *chatSuite) sellerUnseenBecomes(conversation string, want int64) error {
	return eventually(func() bool {
		n, err := s.presence.UnseenCount(context.Background(), domain.SenderSeller, conversation)
		return err == nil && n == want
	})
}

func (s *chatSuite) offlineNotificationEmitted(id string) error {
	return eventually(func() bool { return s.notifier.forRecipient(domain.SenderSeller, id) })
}

func (s *chatSuite) sellerMarksSeen(id, conversation string) error {
	client, _, err := s.client(domain.SellerKeyPrefix + id)
	if err != nil {
		return err
	}
	frame := fmt.Sprintf(`{"type":%q,"conversationId":%q}`, domain.FrameMarkAsSeen, conversation)
	s.gateway.HandleFrame(context.Background(), client, []byte(frame))
	return nil
}

func (s *chatSuite) buyerShowsOnline(id string) error {
	online, err := s.presence.IsOnline(context.Background(), domain.SenderUser, id)
	if err != nil {
		return err
	}
	if !online {
		return fmt.Errorf("buyer %q is not online", id)
	}
	return nil
}

func (s *chatSuite) buyerDisconnects(id string) error {
	client, _, err := s.client(id)
	if err != nil {
		return err
	}
	s.gateway.HandleDisconnect(context.Background(), client)
	return nil
}

func (s *chatSuite) buyerShowsOffline(id string) error {
	online, err := s.presence.IsOnline(context.Background(), domain.SenderUser, id)
	if err != nil {
		return err
	}
	if online {
		return fmt.Errorf("buyer %q is still online", id)
	}
	return nil
}

func InitializeScenario(sc *godog.ScenarioContext) {
	var suite *chatSuite

	sc.Before(func(ctx context.Context, scenario *godog.Scenario) (context.Context, error) {
		suite = newChatSuite()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, scenario *godog.Scenario, err error) (context.Context, error) {
		suite.cancelWorker()
		return ctx, nil
	})

	sc.Step(`^the buyer "([^"]*)" is connected$`, func(id string) error { return suite.buyerConnected(id) })
	sc.Step(`^the seller "([^"]*)" is connected$`, func(id string) error { return suite.sellerConnected(id) })
	sc.Step(`^"([^"]*)" sends "([^"]*)" to "([^"]*)" in conversation "([^"]*)"$`,
		func(from, body, to, conversation string) error { return suite.buyerSends(from, body, to, conversation) })
	sc.Step(`^the seller "([^"]*)" receives "([^"]*)"$`,
		func(id, body string) error { return suite.sellerReceives(id, body) })
	sc.Step(`^the buyer "([^"]*)" receives the echo "([^"]*)"$`,
		func(id, body string) error { return suite.buyerReceivesEcho(id, body) })
	sc.Step(`^conversation "([^"]*)" durably stores "([^"]*)"$`,
		func(conversation, body string) error { return suite.durablyStored(conversation, body) })
	sc.Step(`^the seller unseen counter for "([^"]*)" becomes (\d+)$`,
		func(conversation string, want int64) error { return suite.sellerUnseenBecomes(conversation, want) })
	sc.Step(`^an offline notification for seller "([^"]*)" is emitted$`,
		func(id string) error { return suite.offlineNotificationEmitted(id) })
	sc.Step(`^the seller "([^"]*)" marks conversation "([^"]*)" as seen$`,
		func(id, conversation string) error { return suite.sellerMarksSeen(id, conversation) })
	sc.Step(`^the buyer "([^"]*)" shows as online$`, func(id string) error { return suite.buyerShowsOnline(id) })
	sc.Step(`^the buyer "([^"]*)" disconnects$`, func(id string) error { return suite.buyerDisconnects(id) })
	sc.Step(`^the buyer "([^"]*)" shows as offline$`, func(id string) error { return suite.buyerShowsOffline(id) })
}

func TestFeatures(t *testing.T) {
	logger.SetNewNop()

	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			FeatureContents: []godog.Feature{
				{Name: "chat", Contents: []byte(chatFeature)},
			},
			Format: "pretty",
			Output: os.Stdout,
		},
	}

	if suite.Run() != 0 {
		t.Fail()
	}
}
