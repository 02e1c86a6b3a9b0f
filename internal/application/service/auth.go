package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/mailtemplate"
	"vereinsportal/internal/application/repo"
	"vereinsportal/pkg/ratelimit"
	"vereinsportal/pkg/token"

	"golang.org/x/crypto/bcrypt"
)

// RequestPasswordReset отвечает одинаково, есть такой пользователь или нет.
// Внутренние ошибки логируются и не возвращаются: по ответу нельзя понять, существует ли адрес.
// Ошибку получает только клиент, упёршийся в лимит.
func (s *ServiceImpl) RequestPasswordReset(ctx context.Context, client, email string) error {
	if err := s.guard(ctx, client, ResourceForgotPassword, ratelimit.FailClosed); err != nil {
		return err
	}

	email = common.NormalizeEmail(email)
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, appers.ErrUserNotFound) {
			s.logger.Debugf("[client %s] password reset requested for unknown address", client)
		} else {
			s.logger.Errorf("[client %s] password reset lookup failed: %v", client, err)
		}
		return nil
	}

	if err := s.createPasswordReset(ctx, user); err != nil {
		s.logger.Errorf("[user %s] password reset not created: %v", user.ID, err)
	}
	return nil
}

func (s *ServiceImpl) createPasswordReset(ctx context.Context, user *entity.User) error {
	ttl := s.cfg.Tokens.PasswordResetTTL

	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		raw, err := token.Generate()
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()

		mail, err := s.newMail(mailtemplate.PasswordReset, user.Email, map[string]string{
			"name":       user.Name,
			"resetLink":  s.link("passwort-zuruecksetzen", raw),
			"validHours": strconv.Itoa(int(ttl.Hours())),
		})
		if err != nil {
			return err
		}

		reset := &entity.PasswordReset{
			UserID:    user.ID,
			Email:     user.Email,
			TokenHash: token.Hash(raw),
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}
		err = s.transactions.CreatePasswordReset(ctx, reset, mail)
		if repo.IsTokenCollision(err) {
			s.logger.Warnf("[user %s] token hash collision, attempt %d", user.ID, attempt)
			continue
		}
		if err != nil {
			return err
		}

		s.countEnqueued(mail.TemplateID)
		s.logger.Infof("[user %s] password reset issued, outbox id %d", user.ID, mail.ID)
		return nil
	}
	return fmt.Errorf("password reset: no unique token after %d attempts", tokenAttempts)
}

// CheckPasswordReset — GET по ссылке: токен проверяется, но не гасится
func (s *ServiceImpl) CheckPasswordReset(ctx context.Context, client, rawToken string) error {
	if err := s.guard(ctx, client, ResourceResetPassword, ratelimit.FailClosed); err != nil {
		return err
	}

	reset, err := s.repo.GetPasswordResetByHash(ctx, token.Hash(rawToken))
	if err != nil {
		return err
	}
	if !reset.Valid(s.clock.Now()) {
		return appers.ErrTokenInvalidOrExpired
	}

	s.recordSuccess(ctx, client, ResourceResetPassword)
	return nil
}

// ResetPassword гасит токен и меняет пароль в одной транзакции
func (s *ServiceImpl) ResetPassword(ctx context.Context, client, rawToken, password string) error {
	if err := s.guard(ctx, client, ResourceResetPassword, ratelimit.FailClosed); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.transactions.ConsumePasswordReset(ctx, token.Hash(rawToken), string(hash), s.clock.Now().UTC()); err != nil {
		return err
	}

	s.recordSuccess(ctx, client, ResourceResetPassword)
	return nil
}
