package service

import (
	"context"
	"errors"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/mailtemplate"
)

// EnqueueMail — постановка письма по заявке извне (Kafka). Шаблон и переменные проверяются сразу.
func (s *ServiceImpl) EnqueueMail(ctx context.Context, req entity.MailRequest) (int64, error) {
	mail, err := s.newMail(mailtemplate.TemplateID(req.TemplateID), common.NormalizeEmail(req.Recipient), req.Variables)
	if err != nil {
		if errors.Is(err, mailtemplate.ErrUnknownTemplate) || errors.Is(err, mailtemplate.ErrMissingVariable) {
			return 0, appers.ValidationError{Details: []string{err.Error()}}
		}
		return 0, err
	}

	id, err := s.repo.EnqueueEmail(ctx, mail)
	if err != nil {
		return 0, err
	}
	s.countEnqueued(mail.TemplateID)
	s.logger.Infof("[ID %d] mail %s enqueued", id, mail.TemplateID)
	return id, nil
}

func (s *ServiceImpl) ListOutbox(ctx context.Context, actor entity.Actor, status entity.OutboxStatus, limit int) ([]entity.OutboxEmail, error) {
	if !actor.IsAdmin() {
		return nil, appers.ErrForbidden
	}
	if status != "" && !status.Valid() {
		return nil, appers.ValidationError{Details: []string{"Feld 'status' muss PENDING, RETRYING, SENT oder FAILED sein"}}
	}
	return s.repo.ListEmails(ctx, status, limit)
}

// RetryOutbox — ручной повтор админом: письмо снова RETRYING, счётчик попыток обнулён
func (s *ServiceImpl) RetryOutbox(ctx context.Context, actor entity.Actor, id int64) error {
	if !actor.IsAdmin() {
		return appers.ErrForbidden
	}
	if err := s.repo.RetryEmail(ctx, id, s.clock.Now().UTC()); err != nil {
		return err
	}
	s.logger.Infof("[ID %d] manual retry by %s", id, actor.UserID)
	return nil
}
