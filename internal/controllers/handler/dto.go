package handler

import (
	"time"
	"vereinsportal/internal/application/entity"
)

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254" example:"anna@verein.example"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,password" example:"neuesPasswort1"`
}

type InvitationRequest struct {
	Email string `json:"email" validate:"required,email,max=254" example:"neu@verein.example"`
	Role  string `json:"role" validate:"role" example:"member"`
}

type RedeemInvitationRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120" example:"Anna Schmidt"`
	Password string `json:"password" validate:"required,password" example:"geheimesPasswort1"`
}

type RsvpRequest struct {
	Vote string `json:"vote" validate:"required,vote" example:"YES"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type CsrfResponse struct {
	Token string `json:"token"`
}

// InvitationResponse — без хэша токена и без самого токена: он уходит только в письме
type InvitationResponse struct {
	Email     string    `json:"email" example:"neu@verein.example"`
	Role      string    `json:"role" example:"member"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newInvitationResponse(i *entity.Invitation) InvitationResponse {
	return InvitationResponse{Email: i.Email, Role: string(i.Role), ExpiresAt: i.ExpiresAt}
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func newUserResponse(u *entity.User) UserResponse {
	return UserResponse{ID: u.ID.String(), Email: u.Email, Name: u.Name, Role: string(u.Role)}
}
