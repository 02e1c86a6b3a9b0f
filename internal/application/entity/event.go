package entity

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

type Event struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Title    string    `json:"title" db:"title"`
	Location string    `json:"location" db:"location"`
	StartsAt time.Time `json:"startsAt" db:"starts_at"`
	Visible  bool      `json:"-" db:"visible"`
}

type Vote string

const (
	VoteYes   Vote = "YES"
	VoteNo    Vote = "NO"
	VoteMaybe Vote = "MAYBE"
)

func ParseVote(s string) (Vote, bool) {
	switch v := Vote(strings.ToUpper(strings.TrimSpace(s))); v {
	case VoteYes, VoteNo, VoteMaybe:
		return v, true
	default:
		return "", false
	}
}

// RsvpView — то, что видит участник по ссылке из напоминания
type RsvpView struct {
	Event       Event `json:"event"`
	DaysBefore  int   `json:"daysBefore"`
	CurrentVote *Vote `json:"currentVote,omitempty"`
}

type ContactRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=120"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

type GeoResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"displayName"`
}
