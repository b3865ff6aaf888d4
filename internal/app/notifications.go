package app

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/lahmacun/internal/metrics"
	"github.com/vladislavdragonenkov/lahmacun/internal/notification"
)

// LoadLocation возвращает часовой пояс ресторана; при ошибке: UTC.
func LoadLocation(name string, logger *log.Entry) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.WithError(err).WithField("timezone", name).Warn("unknown timezone, falling back to UTC")
		return time.UTC
	}
	return loc
}

// NewNotificationSender выбирает SMTP, если задан хост, иначе пишет письма в лог.
func NewNotificationSender(cfg Config, logger *log.Entry) (notification.Sender, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("EMAIL_SERVER_HOST is empty, emails are written to the log")
		return notification.NewLogSender(logger.WithField("component", "log-sender")), nil
	}
	sender, err := notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		SSL:      cfg.SMTPSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("configure smtp sender: %w", err)
	}
	return sender, nil
}

// NewNotificationDispatcher собирает доставку писем о заказах.
// Её используют и inline outbox-воркер, и cmd/notifier.
func NewNotificationDispatcher(cfg Config, loc *time.Location, logger *log.Entry) (*notification.Dispatcher, error) {
	renderer, err := notification.NewRenderer(cfg.BaseURL, loc)
	if err != nil {
		return nil, err
	}
	sender, err := NewNotificationSender(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.OperatorEmail == "" {
		logger.Warn("OPERATOR_EMAIL is empty, restaurant receipts are not sent")
	}
	return notification.NewDispatcher(renderer, sender, cfg.OperatorEmail,
		notification.WithDispatcherLogger(logger.WithField("component", "notification-dispatcher")),
		notification.WithDispatcherMetrics(metrics.NewNotificationMetrics()),
	), nil
}

// outboxDelivery: куда outbox-воркер отдаёт сообщения.
type outboxDelivery struct {
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	producer  *kafka.Producer
	// onDead снимает отметки диспетчера о частично отправленных письмах
	onDead func(domain.OutboxMessage)
}

// close отпускает kafka producer, если он поднимался.
func (d outboxDelivery) close(logger *log.Entry) {
	if d.producer == nil {
		return
	}
	if err := d.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// dialKafka подключает producer; без брокеров возвращает nil, nil.
func dialKafka(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	producer, err := kafka.NewProducer(brokers, kafka.WithClientID("lahmacun-order-service"))
	if err != nil {
		return nil, err
	}
	logger.WithField("brokers", brokers).Info("kafka producer connected")
	return producer, nil
}

// initOutboxDelivery выбирает транспорт уведомлений. Kafka-DLQ подключается,
// если брокеры заданы, в inline-режиме её недоступность не мешает старту.
func initOutboxDelivery(cfg Config, loc *time.Location, logger *log.Entry) (outboxDelivery, error) {
	producer, kafkaErr := dialKafka(cfg.KafkaBrokerList(), logger)

	delivery := outboxDelivery{producer: producer}
	if producer != nil {
		delivery.dlq = kafka.NewOutboxPublisher(producer, kafka.TopicNotificationsDLQ)
	}

	switch cfg.NotificationTransport {
	case NotificationTransportKafka:
		if producer == nil {
			if kafkaErr == nil {
				kafkaErr = errors.New("KAFKA_BROKERS is empty")
			}
			return outboxDelivery{}, fmt.Errorf("kafka notification transport: %w", kafkaErr)
		}
		delivery.publisher = kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
		logger.WithField("topic", kafka.TopicOrderEvents).Info("notifications are delivered through kafka")
	default:
		if kafkaErr != nil {
			logger.WithError(kafkaErr).Warn("kafka is unreachable, dead letters stay in the outbox only")
		}
		dispatcher, err := NewNotificationDispatcher(cfg, loc, logger)
		if err != nil {
			delivery.close(logger)
			return outboxDelivery{}, err
		}
		delivery.publisher = dispatcher
		delivery.onDead = func(msg domain.OutboxMessage) { dispatcher.Forget(msg.ID) }
	}
	return delivery, nil
}
