// Command notifier читает события заказов из Kafka и рассылает письма.
// Используется, когда order-service запущен с NOTIFICATION_TRANSPORT=kafka.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/app"
	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/messaging/kafka"
)

const defaultGroupID = "lahmacun-notifier"

type options struct {
	groupID    string
	maxRetries int
	retryDelay time.Duration
	brokers    []string
	app        app.Config
}

func parseOptions(args []string, cfg app.Config, output io.Writer) (options, error) {
	opts := options{app: cfg}

	fs := flag.NewFlagSet("notifier", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.groupID, "group", defaultGroupID, "kafka consumer group")
	fs.IntVar(&opts.maxRetries, "max-retries", 3, "delivery attempts before the message goes to DLQ")
	fs.DurationVar(&opts.retryDelay, "retry-delay", 500*time.Millisecond, "pause between delivery attempts")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.brokers = cfg.KafkaBrokerList()
	switch {
	case len(opts.brokers) == 0:
		return opts, fmt.Errorf("%s is required", app.EnvKafkaBrokers)
	case opts.groupID == "":
		return opts, errors.New("group is required")
	case opts.maxRetries <= 0:
		return opts, errors.New("max-retries must be > 0")
	case opts.retryDelay < 0:
		return opts, errors.New("retry-delay must be >= 0")
	}
	return opts, nil
}

// consumer: то, что нужно от kafka.Consumer.
type consumer interface {
	Start(ctx context.Context) error
	Stop() error
}

type consumerFactory func(opts options, handler kafka.MessageHandler, dlq *kafka.Producer, logger *log.Entry) (consumer, error)

func newKafkaConsumer(opts options, handler kafka.MessageHandler, dlq *kafka.Producer, logger *log.Entry) (consumer, error) {
	c, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         opts.brokers,
		GroupID:         opts.groupID,
		Topics:          []string{kafka.TopicOrderEvents},
		DeadLetters:     dlq,
		DeadLetterTopic: kafka.TopicNotificationsDLQ,
		MaxAttempts:     opts.maxRetries,
		RetryDelay:      opts.retryDelay,
		Logger:          logger.WithField("component", "kafka-consumer"),
	}, handler)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// run держит consumer до отмены ctx. dlq может быть nil: тогда сообщение
// без доставки остаётся незакоммиченным и будет перечитано.
func run(ctx context.Context, opts options, publisher domain.OutboxPublisher, dlq *kafka.Producer, newConsumer consumerFactory, logger *log.Entry) error {
	c, err := newConsumer(opts, kafka.OutboxHandler(publisher), dlq, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	logger.WithFields(log.Fields{
		"group": opts.groupID,
		"topic": kafka.TopicOrderEvents,
	}).Info("notifier started")

	<-ctx.Done()

	if err := c.Stop(); err != nil {
		return fmt.Errorf("stop consumer: %w", err)
	}
	return nil
}

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.WithError(err).Warn("не удалось прочитать .env")
		}
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("service", "notifier")

	cfg, warnings := app.LoadConfig(os.LookupEnv)
	for _, w := range warnings {
		logger.Warn(w)
	}
	opts, err := parseOptions(os.Args[1:], cfg, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.WithError(err).Fatal("invalid configuration")
	}

	dispatcher, err := app.NewNotificationDispatcher(cfg, app.LoadLocation(cfg.TimeZone, logger), logger)
	if err != nil {
		logger.WithError(err).Fatal("configure notifications")
	}

	dlq, err := kafka.NewProducer(opts.brokers)
	if err != nil {
		logger.WithError(err).Warn("dlq producer is unavailable, failed messages stay uncommitted")
	} else {
		defer func() {
			if err := dlq.Close(); err != nil {
				logger.WithError(err).Warn("close dlq producer")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, dispatcher, dlq, newKafkaConsumer, logger); err != nil {
		logger.WithError(err).Error("notifier failed")
		stop()
		os.Exit(1)
	}
	logger.Info("notifier stopped")
}
