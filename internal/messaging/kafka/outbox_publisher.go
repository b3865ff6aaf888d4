package kafka

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// ErrNoProducer: паблишер создан без producer.
var ErrNoProducer = errors.New("kafka: outbox publisher has no producer")

// OutboxTopicPublisher кладёт outbox-сообщения в один topic, завернув их в Envelope.
// Ключ: id заказа: события одного заказа попадают в одну партицию.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return ErrNoProducer
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	delivery, err := p.producer.Send(ctx, p.topic, key, NewEnvelope(msg, p.now()), map[string]string{
		HeaderEventType: msg.EventType,
	})
	if err != nil {
		return err
	}

	p.producer.logger.WithFields(log.Fields{
		"outbox_id": msg.ID,
		"topic":     delivery.Topic,
		"partition": delivery.Partition,
		"offset":    delivery.Offset,
	}).Debug("outbox message handed to kafka")
	return nil
}

func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
