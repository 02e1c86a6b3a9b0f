package validator

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	// Validate - singleton экземпляр валидатора для переиспользования
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("vote", validateVote)
	_ = Validate.RegisterValidation("password", validatePassword)
	_ = Validate.RegisterValidation("role", validateRole)
}

// validateVote допускает только YES, NO или MAYBE
func validateVote(fl validator.FieldLevel) bool {
	switch strings.ToUpper(fl.Field().String()) {
	case "YES", "NO", "MAYBE":
		return true
	default:
		return false
	}
}

// validatePassword требует минимум 10 символов, хотя бы одну букву и одну цифру
func validatePassword(fl validator.FieldLevel) bool {
	pw := fl.Field().String()
	if len([]rune(pw)) < 10 || len(pw) > 72 {
		return false
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

// validateRole проверяет роль приглашения; пустая строка означает member
func validateRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "member", "admin":
		return true
	default:
		return false
	}
}
