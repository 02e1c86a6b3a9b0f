// Package mailer — транспорт, которому диспетчер outbox отдаёт уже отрендеренное письмо.
package mailer

import (
	"context"
	"fmt"
	"time"
	"vereinsportal/internal/transport/producer"
	"vereinsportal/pkg/config"
	"vereinsportal/pkg/metrics"

	"go.uber.org/zap"
)

type Message struct {
	ID      int64  `json:"id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Transport возвращает ошибку, если письмо не принято. Любая ошибка считается временной.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// New выбирает транспорт по mail.transport. Для kafka нужен producer.
func New(conf config.Mail, p producer.Producer, logger *zap.SugaredLogger, m *metrics.Metrics) (Transport, error) {
	var t Transport
	switch conf.Transport {
	case "smtp":
		if conf.SMTPHost == "" {
			return nil, fmt.Errorf("mail transport smtp: smtp_host is empty")
		}
		t = NewSMTP(conf)
	case "kafka":
		if p == nil {
			return nil, fmt.Errorf("mail transport kafka: broker is disabled")
		}
		t = NewKafka(p)
	case "log", "":
		t = NewLog(logger)
	default:
		return nil, fmt.Errorf("unknown mail transport %q", conf.Transport)
	}
	return Instrument(t, m), nil
}

type instrumented struct {
	Transport
	m *metrics.Metrics
}

// Instrument пишет латентность отправки в mail_send_duration_seconds
func Instrument(t Transport, m *metrics.Metrics) Transport {
	if m == nil {
		return t
	}
	return &instrumented{Transport: t, m: m}
}

func (i *instrumented) Send(ctx context.Context, msg Message) error {
	start := time.Now()
	err := i.Transport.Send(ctx, msg)
	res := "ok"
	if err != nil {
		res = "error"
	}
	i.m.Mail.SendDurationSeconds.WithLabelValues(i.Name(), res).Observe(time.Since(start).Seconds())
	return err
}
