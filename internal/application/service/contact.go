package service

import (
	"context"
	"strings"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/mailtemplate"
	"vereinsportal/pkg/ratelimit"
)

// SubmitContact пересылает сообщение из контактной формы правлению.
// Лимитер fail-open: форма важнее защиты от спама при падении Redis.
func (s *ServiceImpl) SubmitContact(ctx context.Context, client string, req entity.ContactRequest) error {
	if err := s.guard(ctx, client, ResourceContact, ratelimit.FailOpen); err != nil {
		return err
	}

	recipient := s.cfg.Mail.ContactRecipient
	if recipient == "" {
		s.logger.Errorf("[client %s] contact form submitted but mail.contact_recipient is empty", client)
		return appers.ErrServiceUnavailable
	}

	mail, err := s.newMail(mailtemplate.ContactRequest, recipient, map[string]string{
		"name":    strings.TrimSpace(req.Name),
		"email":   common.NormalizeEmail(req.Email),
		"message": strings.TrimSpace(req.Message),
	})
	if err != nil {
		return err
	}

	id, err := s.repo.EnqueueEmail(ctx, mail)
	if err != nil {
		return err
	}
	s.countEnqueued(mail.TemplateID)
	s.logger.Infof("[ID %d] contact request queued", id)
	return nil
}

func (s *ServiceImpl) Geocode(ctx context.Context, client, query string) ([]entity.GeoResult, error) {
	if err := s.guard(ctx, client, ResourceGeocode, ratelimit.FailOpen); err != nil {
		return nil, err
	}

	res, err := s.geocoder.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		s.logger.Warnf("[client %s] geocode failed: %v", client, err)
		return nil, appers.ErrServiceUnavailable
	}
	return res, nil
}
