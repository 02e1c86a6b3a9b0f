package service

import (
	"context"
	"errors"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"
	"vereinsportal/pkg/ratelimit"
	"vereinsportal/pkg/token"
)

// GetRsvp: термин должен быть видим и ещё не начаться, иначе "не найден", даже при живом токене
func (s *ServiceImpl) GetRsvp(ctx context.Context, client, rawToken string) (*entity.RsvpView, error) {
	if err := s.guard(ctx, client, ResourceRsvp, ratelimit.FailClosed); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	d, err := s.repo.GetReminderByRsvpHash(ctx, token.Hash(rawToken))
	if err != nil {
		return nil, err
	}
	if !d.RsvpValid(now) {
		return nil, appers.ErrTokenInvalidOrExpired
	}

	event, err := s.openEvent(ctx, d, now)
	if err != nil {
		return nil, err
	}
	vote, err := s.repo.GetVote(ctx, d.EventID, d.UserID)
	if err != nil {
		return nil, err
	}

	s.recordSuccess(ctx, client, ResourceRsvp)
	return &entity.RsvpView{Event: *event, DaysBefore: d.DaysBefore, CurrentVote: vote}, nil
}

// CastRsvp гасит RSVP-токен и записывает голос в одной транзакции
func (s *ServiceImpl) CastRsvp(ctx context.Context, client, rawToken string, vote entity.Vote) (*entity.RsvpView, error) {
	if err := s.guard(ctx, client, ResourceRsvp, ratelimit.FailClosed); err != nil {
		return nil, err
	}

	hash := token.Hash(rawToken)
	now := s.clock.Now().UTC()

	eventID, err := s.transactions.CastRsvpVote(ctx, hash, vote, now)
	if errors.Is(err, appers.ErrTokenInvalidOrExpired) {
		return nil, s.explainRsvpFailure(ctx, hash, now)
	}
	if err != nil {
		return nil, err
	}

	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	s.recordSuccess(ctx, client, ResourceRsvp)
	v := vote
	return &entity.RsvpView{Event: *event, CurrentVote: &v}, nil
}

// explainRsvpFailure отличает скрытый/прошедший термин от негодного токена, как и GET
func (s *ServiceImpl) explainRsvpFailure(ctx context.Context, hash string, now time.Time) error {
	d, err := s.repo.GetReminderByRsvpHash(ctx, hash)
	if err != nil || !d.RsvpValid(now) {
		return appers.ErrTokenInvalidOrExpired
	}
	if _, err := s.openEvent(ctx, d, now); err != nil {
		return err
	}
	return appers.ErrTokenInvalidOrExpired
}

func (s *ServiceImpl) openEvent(ctx context.Context, d *entity.ReminderDispatch, now time.Time) (*entity.Event, error) {
	event, err := s.repo.GetEvent(ctx, d.EventID)
	if err != nil {
		return nil, err
	}
	if !event.Visible || !event.StartsAt.After(now) {
		return nil, appers.ErrEventNotFound
	}
	return event, nil
}

// Unsubscribe отключает напоминания. Повторный клик по живой ссылке не ошибка.
func (s *ServiceImpl) Unsubscribe(ctx context.Context, client, rawToken string) error {
	if err := s.guard(ctx, client, ResourceUnsubscribe, ratelimit.FailClosed); err != nil {
		return err
	}

	if err := s.transactions.Unsubscribe(ctx, token.Hash(rawToken), s.clock.Now().UTC()); err != nil {
		return err
	}

	s.recordSuccess(ctx, client, ResourceUnsubscribe)
	return nil
}
