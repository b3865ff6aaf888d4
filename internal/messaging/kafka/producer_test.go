package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func newMockProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mock := mocks.NewSyncProducer(t, nil)
	return newProducer(mock, log.WithField("component", "kafka-producer-test")), mock
}

func TestProducer_SendEncodesAndSortsHeaders(t *testing.T) {
	producer, mock := newMockProducer(t)

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		if len(msg.Headers) != 2 || string(msg.Headers[0].Key) != HeaderEventType || string(msg.Headers[1].Key) != HeaderRetryCount {
			t.Errorf("headers must be sorted by key: %+v", msg.Headers)
		}
		value, _ := msg.Value.Encode()
		var body map[string]string
		if err := json.Unmarshal(value, &body); err != nil || body["orderNumber"] != "ORDER-123" {
			t.Errorf("unexpected value %s (%v)", value, err)
		}
		return nil
	})

	delivery, err := producer.Send(context.Background(), TopicOrderEvents, "order-123",
		map[string]string{"orderNumber": "ORDER-123"},
		map[string]string{HeaderRetryCount: "1", HeaderEventType: "OrderPlaced"},
	)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if delivery.Topic != TopicOrderEvents {
		t.Fatalf("unexpected delivery: %+v", delivery)
	}
	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_SendRawBytesAsIs(t *testing.T) {
	producer, mock := newMockProducer(t)
	raw := []byte(`{"already":"encoded"}`)

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		value, _ := msg.Value.Encode()
		if string(value) != string(raw) {
			t.Errorf("raw value must not be re-encoded, got %s", value)
		}
		if msg.Headers != nil {
			t.Errorf("expected no headers, got %+v", msg.Headers)
		}
		return nil
	})

	if err := producer.PublishEvent(context.Background(), TopicNotificationsDLQ, "k", raw, nil); err != nil {
		t.Fatalf("publish raw: %v", err)
	}
	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_SendFailures(t *testing.T) {
	producer, mock := newMockProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if err := producer.PublishEvent(context.Background(), TopicOrderEvents, "order-1", map[string]int{"quantity": 2}, nil); err == nil {
		t.Fatal("expected broker error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := producer.Send(ctx, TopicOrderEvents, "k", "v", nil); err == nil {
		t.Fatal("expected context error")
	}
	if _, err := producer.Send(context.Background(), TopicOrderEvents, "k", make(chan int), nil); err == nil {
		t.Fatal("expected encode error")
	}

	if err := mock.Close(); err != nil {
		t.Fatal(err)
	}
}
