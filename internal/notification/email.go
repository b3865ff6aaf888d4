// Package notification собирает и отправляет письма о новых заказах.
package notification

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrRecipientRequired: у письма нет адресата.
var ErrRecipientRequired = errors.New("email recipient is required")

// Email: готовое к отправке письмо.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Sender доставляет письмо адресату.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// LogSender пишет письма в лог вместо отправки. Используется, когда SMTP не настроен.
type LogSender struct {
	logger *log.Entry
}

func NewLogSender(logger *log.Entry) *LogSender {
	if logger == nil {
		logger = log.WithField("component", "notification-log-sender")
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(email.To) == "" {
		return ErrRecipientRequired
	}
	s.logger.WithFields(log.Fields{
		"to":      email.To,
		"subject": email.Subject,
		"bytes":   len(email.HTML),
	}).Info("email delivery skipped: smtp is not configured")
	return nil
}

var _ Sender = (*LogSender)(nil)
