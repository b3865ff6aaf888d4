package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ProducerOption правит конфигурацию sarama до подключения.
type ProducerOption func(*sarama.Config)

func WithClientID(id string) ProducerOption {
	return func(c *sarama.Config) { c.ClientID = id }
}

// WithSendRetries задаёт число повторов внутри sarama на один SendMessage.
func WithSendRetries(n int) ProducerOption {
	return func(c *sarama.Config) { c.Producer.Retry.Max = n }
}

// Delivery: куда брокер записал сообщение.
type Delivery struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Producer отправляет JSON-события заказов синхронно, с подтверждением от всех реплик.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "lahmacun"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	// идемпотентный producer требует одного запроса в полёте
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	for _, opt := range opts {
		opt(cfg)
	}

	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	return newProducer(sync, log.WithFields(log.Fields{
		"component": "kafka-producer",
		"client_id": cfg.ClientID,
	})), nil
}

func newProducer(sync sarama.SyncProducer, logger *log.Entry) *Producer {
	return &Producer{sync: sync, logger: logger}
}

// Send кодирует value и ждёт подтверждения брокера.
// []byte и json.RawMessage уходят как есть, остальное через json.Marshal.
func (p *Producer) Send(ctx context.Context, topic, key string, value any, headers map[string]string) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	body, err := encodeValue(value)
	if err != nil {
		return Delivery{}, err
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(body),
		Headers:   recordHeaders(headers),
		Timestamp: time.Now(),
	}
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{"topic": topic, "key": key}).Error("kafka send failed")
		return Delivery{}, fmt.Errorf("send to %s: %w", topic, err)
	}

	delivery := Delivery{Topic: topic, Partition: partition, Offset: offset}
	p.logger.WithFields(log.Fields{
		"topic":     topic,
		"key":       key,
		"partition": partition,
		"offset":    offset,
	}).Debug("kafka message delivered")
	return delivery, nil
}

// PublishEvent: Send без сведений о партиции.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event any, headers map[string]string) error {
	_, err := p.Send(ctx, topic, key, event, headers)
	return err
}

func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

func encodeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode kafka value: %w", err)
	}
	return body, nil
}

// recordHeaders сортирует ключи, чтобы порядок заголовков был стабильным.
func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(headers[k])})
	}
	return out
}
