package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Log только пишет письмо в лог. Для локального запуска без SMTP.
type Log struct {
	logger *zap.SugaredLogger
}

func NewLog(logger *zap.SugaredLogger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Infow("mail (log transport)", "id", msg.ID, "to", msg.To, "subject", msg.Subject, "bodyLen", len(msg.Body))
	return nil
}
