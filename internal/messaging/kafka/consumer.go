package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение topic.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerConfig: параметры consumer group уведомлений.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// DeadLetters может быть nil: тогда необработанное сообщение не коммитится.
	DeadLetters     *Producer
	DeadLetterTopic string
	// MaxAttempts учитывает попытки из предыдущих прогонов (заголовок x-retry-count).
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *log.Entry
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.DeadLetterTopic == "" {
		c.DeadLetterTopic = TopicNotificationsDLQ
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.Logger == nil {
		c.Logger = log.WithField("component", "kafka-consumer")
	}
	return c
}

// DeadLetter: запись в DLQ о сообщении, которое не удалось обработать.
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	FailedAt          time.Time `json:"failed_at"`
	RetryCount        int       `json:"retry_count"`
}

type outcome int

const (
	outcomeHandled outcome = iota
	outcomeDeadLettered
	outcomeFailed
)

// Consumer читает consumer group, повторяет обработку и сдаёт безнадёжные сообщения в DLQ.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	cfg     ConsumerConfig
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler) (*Consumer, error) {
	switch {
	case len(cfg.Brokers) == 0:
		return nil, errors.New("kafka consumer: no brokers")
	case cfg.GroupID == "":
		return nil, errors.New("kafka consumer: group id is required")
	case len(cfg.Topics) == 0:
		return nil, errors.New("kafka consumer: no topics")
	case handler == nil:
		return nil, errors.New("kafka consumer: handler is required")
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = "lahmacun-" + cfg.GroupID
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("join consumer group %s: %w", cfg.GroupID, err)
	}
	return newConsumer(group, cfg, handler), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler) *Consumer {
	return &Consumer{
		group:   group,
		handler: handler,
		cfg:     cfg.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OutboxHandler распаковывает Envelope и отдаёт сообщение publisher-у,
// поэтому notifier шлёт письма тем же Dispatcher-ом, что и inline-воркер.
func OutboxHandler(publisher domain.OutboxPublisher) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		env, err := ParseEnvelope(message)
		if err != nil {
			return err
		}
		return publisher.Publish(ctx, env.OutboxMessage())
	}
}

// Start не блокирует: чтение и журнал ошибок группы идут в своих горутинах до Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume возвращается на каждом rebalance
		for ctx.Err() == nil {
			if err := c.group.Consume(ctx, c.cfg.Topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.cfg.Logger.WithError(err).Error("consumer group session failed")
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.cfg.Logger.WithError(err).Warn("consumer group error")
		}
	}()

	c.cfg.Logger.WithFields(log.Fields{
		"group":  c.cfg.GroupID,
		"topics": c.cfg.Topics,
	}).Info("kafka consumer started")
	return nil
}

func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close consumer group: %w", err)
	}
	c.wg.Wait()
	c.cfg.Logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim коммитит offset только для обработанных или сданных в DLQ сообщений.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if c.process(ctx, message) != outcomeFailed {
				session.MarkMessage(message, "")
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) outcome {
	entry := c.cfg.Logger.WithFields(log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	})

	previous := retryCount(message)
	budget := max(c.cfg.MaxAttempts-previous, 1)

	var err error
	for attempt := 1; attempt <= budget; attempt++ {
		if err = c.handler(ctx, message); err == nil {
			return outcomeHandled
		}
		if attempt == budget {
			break
		}
		entry.WithError(err).WithField("attempt", attempt).Warn("message handling failed, retrying")
		if !c.wait(ctx) {
			break
		}
	}
	if ctx.Err() != nil {
		return outcomeFailed
	}

	if c.cfg.DeadLetters == nil {
		entry.WithError(err).Error("message handling failed, no dead letter topic configured")
		return outcomeFailed
	}
	total := previous + budget
	if dlqErr := c.deadLetter(ctx, message, err, total); dlqErr != nil {
		entry.WithError(dlqErr).Error("failed to publish dead letter")
		return outcomeFailed
	}
	entry.WithField("retry_count", total).Info("message moved to dead letter topic")
	return outcomeDeadLettered
}

// wait выдерживает паузу между попытками; false: контекст отменён.
func (c *Consumer) wait(ctx context.Context) bool {
	if c.cfg.RetryDelay == 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(c.cfg.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Consumer) deadLetter(ctx context.Context, message *sarama.ConsumerMessage, cause error, retries int) error {
	letter := DeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          c.now(),
		RetryCount:        retries,
	}
	return c.cfg.DeadLetters.PublishEvent(ctx, c.cfg.DeadLetterTopic, letter.OriginalKey, letter, map[string]string{
		HeaderRetryCount:    strconv.Itoa(retries),
		HeaderOriginalTopic: letter.OriginalTopic,
		HeaderErrorMessage:  letter.ErrorMessage,
		HeaderFailedAt:      letter.FailedAt.Format(time.RFC3339),
	})
}

// retryCount читает x-retry-count; отсутствующий или битый заголовок даёт 0.
func retryCount(message *sarama.ConsumerMessage) int {
	for _, h := range message.Headers {
		if h == nil || string(h.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
