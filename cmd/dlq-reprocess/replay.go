package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/messaging/kafka"
)

// errNotDeadLetter: сообщение не похоже ни на один формат DLQ.
var errNotDeadLetter = errors.New("message is not a dead letter")

// replayMessage: что и куда отправить повторно.
type replayMessage struct {
	topic     string
	key       string
	eventType string
	value     []byte
}

// workerDeadLetter пишет outbox-воркер order-service внутрь kafka.Envelope.
type workerDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// decodeDeadLetter восстанавливает исходное событие заказа из записи DLQ.
func decodeDeadLetter(msg *sarama.ConsumerMessage, targetTopic string, now time.Time) (replayMessage, error) {
	// kafka.DeadLetter пишет notifier, когда исчерпал попытки
	var consumed kafka.DeadLetter
	if err := json.Unmarshal(msg.Value, &consumed); err == nil && consumed.OriginalValue != "" {
		topic := strings.TrimSpace(consumed.OriginalTopic)
		if topic == "" {
			topic = targetTopic
		}
		replay := replayMessage{
			topic: topic,
			key:   consumed.OriginalKey,
			value: []byte(consumed.OriginalValue),
		}
		var env kafka.Envelope
		if json.Unmarshal(replay.value, &env) == nil {
			replay.eventType = env.EventType
		}
		return replay, nil
	}

	env, err := kafka.ParseEnvelope(msg)
	if err != nil {
		return replayMessage{}, errNotDeadLetter
	}
	var dead workerDeadLetter
	if err := json.Unmarshal(env.Payload, &dead); err != nil {
		return replayMessage{}, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(dead.Payload) == 0 || string(dead.Payload) == "null" {
		return replayMessage{}, errors.New("outbox dead letter has no original payload")
	}

	original := domain.OutboxMessage{
		ID:            firstNonEmpty(dead.OutboxID, env.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, env.AggregateType),
		AggregateID:   firstNonEmpty(dead.AggregateID, env.AggregateID),
		EventType:     firstNonEmpty(dead.EventType, env.EventType),
		Payload:       dead.Payload,
	}
	value, err := json.Marshal(kafka.NewEnvelope(original, now.UTC()))
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}
	return replayMessage{
		topic:     targetTopic,
		key:       firstNonEmpty(original.AggregateID, original.ID),
		eventType: original.EventType,
		value:     value,
	}, nil
}

// headers сохраняет тип события, чтобы фильтры consumer-ов работали и после повтора.
func (m replayMessage) headers() map[string]string {
	if m.eventType == "" {
		return nil
	}
	return map[string]string{kafka.HeaderEventType: m.eventType}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
