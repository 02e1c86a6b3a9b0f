package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/mailtemplate"
	"vereinsportal/internal/application/repo"
	"vereinsportal/pkg/token"
)

// SendEventReminders ставит в outbox напоминания о терминах, которые начнутся через daysBefore дней.
// Повторный запуск в тот же день ничего не дублирует: (event, user, daysBefore) уникален.
func (s *ServiceImpl) SendEventReminders(ctx context.Context) (int, error) {
	loc := s.location()
	now := s.clock.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var errs []error
	queued := 0
	for _, days := range s.cfg.Reminders.DaysBefore {
		if days < 0 {
			continue
		}
		from := today.AddDate(0, 0, days)
		to := from.AddDate(0, 0, 1)

		events, err := s.repo.ListEventsStartingBetween(ctx, from.UTC(), to.UTC())
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, ev := range events {
			if !ev.StartsAt.After(now) {
				continue
			}
			n, err := s.remindEvent(ctx, ev, days, loc)
			queued += n
			if err != nil {
				errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
			}
			if ctx.Err() != nil {
				return queued, errors.Join(append(errs, ctx.Err())...)
			}
		}
	}

	s.logger.Infof("event reminders queued: %d", queued)
	return queued, errors.Join(errs...)
}

func (s *ServiceImpl) remindEvent(ctx context.Context, ev entity.Event, days int, loc *time.Location) (int, error) {
	users, err := s.repo.ListReminderRecipients(ctx, ev.ID, days)
	if err != nil {
		return 0, err
	}

	var errs []error
	queued := 0
	for _, u := range users {
		err := s.remindUser(ctx, ev, u, days, loc)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, appers.ErrReminderAlreadySent):
			// параллельный запуск на другой реплике успел раньше
			s.logger.Debugf("[event %s] reminder for %s already queued", ev.ID, u.ID)
		default:
			s.logger.Errorf("[event %s] reminder for %s failed: %v", ev.ID, u.ID, err)
			errs = append(errs, err)
		}
	}
	return queued, errors.Join(errs...)
}

func (s *ServiceImpl) remindUser(ctx context.Context, ev entity.Event, u entity.User, days int, loc *time.Location) error {
	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		rsvpRaw, err := token.Generate()
		if err != nil {
			return err
		}
		unsubRaw, err := token.Generate()
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()

		mail, err := s.newMail(mailtemplate.EventReminder, u.Email, map[string]string{
			"name":            u.Name,
			"eventTitle":      ev.Title,
			"eventDate":       common.GermanDate(ev.StartsAt, loc),
			"eventTime":       ev.StartsAt.In(loc).Format("15:04"),
			"eventLocation":   ev.Location,
			"daysBefore":      strconv.Itoa(days),
			"rsvpLink":        s.link("termine/rsvp", rsvpRaw),
			"unsubscribeLink": s.link("termine/abmelden", unsubRaw),
		})
		if err != nil {
			return err
		}

		d := &entity.ReminderDispatch{
			EventID:              ev.ID,
			UserID:               u.ID,
			DaysBefore:           days,
			RsvpTokenHash:        token.Hash(rsvpRaw),
			RsvpExpiresAt:        ev.StartsAt,
			UnsubscribeTokenHash: token.Hash(unsubRaw),
			UnsubscribeExpiresAt: now.Add(s.cfg.Tokens.UnsubscribeTTL),
			CreatedAt:            now,
		}
		err = s.transactions.CreateReminderDispatch(ctx, d, mail)
		if repo.IsTokenCollision(err) {
			continue
		}
		if err != nil {
			return err
		}
		s.countEnqueued(mail.TemplateID)
		return nil
	}
	return fmt.Errorf("reminder: no unique token after %d attempts", tokenAttempts)
}

// CleanupExpiredTokens удаляет токены, истёкшие или использованные раньше, чем retention назад
func (s *ServiceImpl) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	retention := s.cfg.Cron.TokenRetention
	if retention <= 0 {
		s.logger.Warnf("token retention is %s, skipping cleanup", retention)
		return 0, nil
	}
	return s.repo.DeleteExpiredTokens(ctx, s.clock.Now().UTC().Add(-retention))
}
