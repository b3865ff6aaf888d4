package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// fakeGroup держит Consume до отмены контекста сессии.
type fakeGroup struct {
	mu       sync.Mutex
	sessions int
	errs     chan error
	closeErr error
}

func newFakeGroup() *fakeGroup { return &fakeGroup{errs: make(chan error, 1)} }

func (g *fakeGroup) Consume(ctx context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.sessions++
	g.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	if g.closeErr != nil {
		return g.closeErr
	}
	close(g.errs)
	return nil
}

func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "notifier-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return TopicOrderEvents }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func testConsumer(handler MessageHandler, cfg ConsumerConfig) *Consumer {
	cfg.Logger = log.WithField("test", "kafka-consumer")
	c := newConsumer(newFakeGroup(), cfg, handler)
	c.now = func() time.Time { return time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC) }
	return c
}

func orderMessage(offset int64, retries string) *sarama.ConsumerMessage {
	msg := &sarama.ConsumerMessage{
		Topic:  TopicOrderEvents,
		Offset: offset,
		Key:    []byte("order-1"),
		Value:  []byte(`{"id":"outbox-1","event_type":"OrderPlaced","payload":{}}`),
	}
	if retries != "" {
		msg.Headers = []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte(retries)}}
	}
	return msg
}

func TestNewConsumer_Validation(t *testing.T) {
	noop := func(context.Context, *sarama.ConsumerMessage) error { return nil }
	cases := map[string]ConsumerConfig{
		"no brokers": {GroupID: "g", Topics: []string{"t"}},
		"no group":   {Brokers: []string{"localhost:9092"}, Topics: []string{"t"}},
		"no topics":  {Brokers: []string{"localhost:9092"}, GroupID: "g"},
	}
	for name, cfg := range cases {
		if _, err := NewConsumer(cfg, noop); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	full := ConsumerConfig{Brokers: []string{"localhost:9092"}, GroupID: "g", Topics: []string{"t"}}
	if _, err := NewConsumer(full, nil); err == nil {
		t.Fatal("nil handler: expected error")
	}
}

func TestConsumerConfig_Defaults(t *testing.T) {
	cfg := ConsumerConfig{RetryDelay: -time.Second}.withDefaults()
	if cfg.DeadLetterTopic != TopicNotificationsDLQ || cfg.MaxAttempts != defaultMaxAttempts || cfg.RetryDelay != defaultRetryDelay || cfg.Logger == nil {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestConsumer_StartStop(t *testing.T) {
	group := newFakeGroup()
	c := newConsumer(group, ConsumerConfig{Topics: []string{TopicOrderEvents}, Logger: log.WithField("test", "start-stop")},
		func(context.Context, *sarama.ConsumerMessage) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	group.errs <- errors.New("rebalance hiccup")
	time.Sleep(10 * time.Millisecond)
	cancel()

	done := make(chan error, 1)
	go func() { done <- c.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	group.mu.Lock()
	defer group.mu.Unlock()
	if group.sessions == 0 {
		t.Fatal("expected at least one consume session")
	}
}

func TestConsumer_StopError(t *testing.T) {
	group := newFakeGroup()
	group.closeErr = errors.New("close failed")
	c := newConsumer(group, ConsumerConfig{}, func(context.Context, *sarama.ConsumerMessage) error { return nil })
	if err := c.Stop(); err == nil {
		t.Fatal("expected close error")
	}
}

func TestConsumer_ProcessOutcomes(t *testing.T) {
	permanent := errors.New("smtp: mailbox unavailable")

	t.Run("handled on first attempt", func(t *testing.T) {
		calls := 0
		c := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { calls++; return nil }, ConsumerConfig{MaxAttempts: 3})
		if got := c.process(context.Background(), orderMessage(1, "")); got != outcomeHandled || calls != 1 {
			t.Fatalf("outcome=%v calls=%d", got, calls)
		}
	})

	t.Run("recovers on retry", func(t *testing.T) {
		calls := 0
		c := testConsumer(func(context.Context, *sarama.ConsumerMessage) error {
			calls++
			if calls < 3 {
				return permanent
			}
			return nil
		}, ConsumerConfig{MaxAttempts: 3})
		if got := c.process(context.Background(), orderMessage(1, "")); got != outcomeHandled || calls != 3 {
			t.Fatalf("outcome=%v calls=%d", got, calls)
		}
	})

	t.Run("previous retries shrink the budget to one attempt", func(t *testing.T) {
		calls := 0
		c := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { calls++; return permanent }, ConsumerConfig{MaxAttempts: 3})
		if got := c.process(context.Background(), orderMessage(1, "5")); got != outcomeFailed || calls != 1 {
			t.Fatalf("outcome=%v calls=%d", got, calls)
		}
	})

	t.Run("dead lettered with accumulated retry count", func(t *testing.T) {
		mock := mocks.NewSyncProducer(t, nil)
		mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != TopicNotificationsDLQ {
				t.Errorf("unexpected dlq topic %s", msg.Topic)
			}
			value, _ := msg.Value.Encode()
			var letter DeadLetter
			if err := json.Unmarshal(value, &letter); err != nil {
				t.Errorf("dead letter is not json: %v", err)
			}
			if letter.RetryCount != 3 || letter.OriginalOffset != 7 || letter.ErrorMessage != permanent.Error() || letter.OriginalKey != "order-1" {
				t.Errorf("unexpected dead letter: %+v", letter)
			}
			return nil
		})
		c := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return permanent },
			ConsumerConfig{MaxAttempts: 3, DeadLetters: newProducer(mock, log.WithField("test", "dlq"))})

		if got := c.process(context.Background(), orderMessage(7, "1")); got != outcomeDeadLettered {
			t.Fatalf("expected dead lettered, got %v", got)
		}
		if err := mock.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("dead letter publish failure keeps the offset", func(t *testing.T) {
		mock := mocks.NewSyncProducer(t, nil)
		mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		c := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return permanent },
			ConsumerConfig{MaxAttempts: 1, DeadLetters: newProducer(mock, log.WithField("test", "dlq"))})

		if got := c.process(context.Background(), orderMessage(2, "")); got != outcomeFailed {
			t.Fatalf("expected failed, got %v", got)
		}
		if err := mock.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		c := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { cancel(); return permanent },
			ConsumerConfig{MaxAttempts: 3, RetryDelay: time.Hour})
		if got := c.process(ctx, orderMessage(3, "")); got != outcomeFailed {
			t.Fatalf("expected failed, got %v", got)
		}
	})
}

func TestConsumer_ConsumeClaimMarksOnlySettledMessages(t *testing.T) {
	c := testConsumer(func(_ context.Context, msg *sarama.ConsumerMessage) error {
		if msg.Offset == 2 {
			return errors.New("broken template")
		}
		return nil
	}, ConsumerConfig{MaxAttempts: 1})

	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	for offset := int64(1); offset <= 3; offset++ {
		claim.messages <- orderMessage(offset, "")
	}
	close(claim.messages)

	if err := c.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("consume claim: %v", err)
	}
	if len(session.marked) != 2 || session.marked[0] != 1 || session.marked[1] != 3 {
		t.Fatalf("unexpected marked offsets: %v", session.marked)
	}
}

func TestConsumer_ConsumeClaimStopsOnSessionEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return nil }, ConsumerConfig{})
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = c.ConsumeClaim(&fakeSession{ctx: ctx}, claim)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not return after the session ended")
	}
}

func TestRetryCount(t *testing.T) {
	cases := map[string]int{"": 0, "4": 4, "bad": 0, "-2": 0}
	for header, want := range cases {
		if got := retryCount(orderMessage(1, header)); got != want {
			t.Fatalf("header %q: got %d want %d", header, got, want)
		}
	}
}

func TestOutboxHandler_DeliversEnvelope(t *testing.T) {
	var got []domain.OutboxMessage
	handler := OutboxHandler(publisherFunc(func(_ context.Context, msg domain.OutboxMessage) error {
		got = append(got, msg)
		return nil
	}))

	value, err := json.Marshal(NewEnvelope(domain.OutboxMessage{
		ID:            "outbox-7",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-7",
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"orderNumber":"ORDER-007"}`),
	}, time.Now().UTC()))
	if err != nil {
		t.Fatal(err)
	}

	if err := handler(context.Background(), &sarama.ConsumerMessage{Value: value}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(got) != 1 || got[0].AggregateID != "order-7" || string(got[0].Payload) != `{"orderNumber":"ORDER-007"}` {
		t.Fatalf("unexpected delivered messages: %+v", got)
	}
	if err := handler(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"payload":{}}`)}); !errors.Is(err, ErrEmptyEnvelope) {
		t.Fatalf("expected ErrEmptyEnvelope, got %v", err)
	}
}

type publisherFunc func(ctx context.Context, msg domain.OutboxMessage) error

func (f publisherFunc) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	return f(ctx, msg)
}
