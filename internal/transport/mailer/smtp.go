package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"vereinsportal/pkg/config"

	"gopkg.in/gomail.v2"
)

type SMTP struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTP(conf config.Mail) *SMTP {
	d := gomail.NewDialer(conf.SMTPHost, conf.SMTPPort, conf.SMTPUser, conf.SMTPPwd)
	d.SSL = conf.SMTPSSL
	d.TLSConfig = &tls.Config{ServerName: conf.SMTPHost, MinVersion: tls.VersionTLS12}
	return &SMTP{from: conf.From, dialer: d}
}

func (s *SMTP) Name() string { return "smtp" }

// Send ограничен контекстом: gomail сам таймауты не умеет, поэтому ждём в отдельной горутине.
// Если контекст истёк раньше, письмо может всё же уйти. Это допустимо, доставка at-least-once.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}
