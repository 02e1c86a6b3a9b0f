package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type voteBody struct {
	Vote string `validate:"required,vote"`
}

type passwordBody struct {
	Password string `validate:"required,password"`
}

type roleBody struct {
	Role string `validate:"role"`
}

func TestVote(t *testing.T) {
	for _, v := range []string{"YES", "no", "Maybe"} {
		assert.NoError(t, Validate.Struct(voteBody{Vote: v}), v)
	}
	for _, v := range []string{"", "vielleicht", "Y"} {
		assert.Error(t, Validate.Struct(voteBody{Vote: v}), v)
	}
}

func TestPassword(t *testing.T) {
	assert.NoError(t, Validate.Struct(passwordBody{Password: "Schiessstand2026"}))
	assert.Error(t, Validate.Struct(passwordBody{Password: "kurz1"}))
	assert.Error(t, Validate.Struct(passwordBody{Password: "nurbuchstabenlang"}))
	assert.Error(t, Validate.Struct(passwordBody{Password: "1234567890123"}))
	assert.Error(t, Validate.Struct(passwordBody{Password: strings.Repeat("a1", 40)}))
}

func TestRole(t *testing.T) {
	assert.NoError(t, Validate.Struct(roleBody{}))
	assert.NoError(t, Validate.Struct(roleBody{Role: "admin"}))
	assert.Error(t, Validate.Struct(roleBody{Role: "root"}))
}
