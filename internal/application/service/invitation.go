package service

import (
	"context"
	"fmt"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/mailtemplate"
	"vereinsportal/internal/application/repo"
	"vereinsportal/pkg/ratelimit"
	"vereinsportal/pkg/token"

	"golang.org/x/crypto/bcrypt"
)

// IssueInvitation доступно только администратору; actor приходит от провайдера идентичности.
// Прежние активные приглашения на этот адрес гасятся.
func (s *ServiceImpl) IssueInvitation(ctx context.Context, actor entity.Actor, email string, role entity.Role) (*entity.Invitation, error) {
	if !actor.IsAdmin() {
		return nil, appers.ErrForbidden
	}
	if role == "" {
		role = entity.RoleMember
	}
	email = common.NormalizeEmail(email)
	ttl := s.cfg.Tokens.InvitationTTL

	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		raw, err := token.Generate()
		if err != nil {
			return nil, err
		}
		now := s.clock.Now().UTC()
		expires := now.Add(ttl)

		mail, err := s.newMail(mailtemplate.Invitation, email, map[string]string{
			"inviteLink": s.link("einladung", raw),
			"expiresAt":  expires.In(s.location()).Format("02.01.2006 15:04"),
		})
		if err != nil {
			return nil, err
		}

		inv := &entity.Invitation{
			Email:     email,
			Role:      role,
			InvitedBy: actor.UserID,
			TokenHash: token.Hash(raw),
			ExpiresAt: expires,
			CreatedAt: now,
		}
		err = s.transactions.CreateInvitation(ctx, inv, mail)
		if repo.IsTokenCollision(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.countEnqueued(mail.TemplateID)
		s.logger.Infof("[invitation %d] issued by %s, role %s", inv.ID, actor.UserID, role)
		return inv, nil
	}
	return nil, fmt.Errorf("invitation: no unique token after %d attempts", tokenAttempts)
}

func (s *ServiceImpl) CheckInvitation(ctx context.Context, client, rawToken string) (*entity.Invitation, error) {
	if err := s.guard(ctx, client, ResourceInvitation, ratelimit.FailClosed); err != nil {
		return nil, err
	}

	inv, err := s.repo.GetInvitationByHash(ctx, token.Hash(rawToken))
	if err != nil {
		return nil, err
	}
	if !inv.Valid(s.clock.Now()) {
		return nil, appers.ErrTokenInvalidOrExpired
	}

	s.recordSuccess(ctx, client, ResourceInvitation)
	return inv, nil
}

// RedeemInvitation гасит приглашение и создаёт пользователя в одной транзакции
func (s *ServiceImpl) RedeemInvitation(ctx context.Context, client, rawToken, name, password string) (*entity.User, error) {
	if err := s.guard(ctx, client, ResourceInvitation, ratelimit.FailClosed); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := newUserID()
	if err != nil {
		return nil, err
	}

	user := &entity.User{ID: id, Name: name, PasswordHash: string(hash)}
	if err := s.transactions.RedeemInvitation(ctx, token.Hash(rawToken), user, s.clock.Now().UTC()); err != nil {
		return nil, err
	}

	s.recordSuccess(ctx, client, ResourceInvitation)
	return user, nil
}
