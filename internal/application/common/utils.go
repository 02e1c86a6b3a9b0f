package common

import (
	"context"
	"fmt"
	"math/rand"
	"net/mail"
	"strings"
	"time"
)

const Version = "1.0.0"

func PgInterval(d time.Duration) string {
	sec := int64(d / time.Second)
	return fmt.Sprintf("%d seconds", sec)
}

// Backoff возвращает min(limit, base * 2^attempts) без переполнения.
func Backoff(attempts int, base, limit time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if base <= 0 {
		base = time.Second
	}
	if limit < base {
		limit = base
	}

	d := base
	for i := 0; i < attempts; i++ {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	return d
}

// NextBackoffWithJitter лежит в [b/2, b), где b = Backoff(attempts, base, limit).
// Интервалы соседних попыток не пересекаются, поэтому задержка растёт строго до упора в limit.
func NextBackoffWithJitter(attempts int, base, limit time.Duration) time.Duration {
	b := Backoff(attempts, base, limit)

	half := b / 2
	if half <= 0 {
		return b
	}
	jitter := time.Duration(rand.Int63n(int64(half)))

	return half + jitter
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
	}()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NormalizeEmail приводит адрес к виду, в котором он хранится в users.email
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err == nil {
		email = addr.Address
	}
	return strings.ToLower(email)
}

// GermanDate форматирует дату так, как она стоит в письмах: 20.02.2026
func GermanDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("02.01.2006")
}
