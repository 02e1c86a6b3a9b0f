// Package token выдаёт одноразовые токены для ссылок в письмах
// (сброс пароля, приглашение, RSVP, отписка) и считает их хэши для поиска в БД.
// В базе хранится только хэш, сам токен живёт только в ссылке.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Size в байтах: 256 бит энтропии
const Size = 32

// Generate возвращает URL-safe токен без паддинга.
func Generate() (string, error) {
	b := make([]byte, Size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func MustGenerate() string {
	t, err := Generate()
	if err != nil {
		panic(err)
	}
	return t
}

// Hash детерминирован между перезапусками (без соли), поэтому годится как ключ поиска.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
