package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is keyed by the identity provider's stable subject.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	GoogleID  string    `json:"-" gorm:"size:64;uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Name      *string   `json:"name" gorm:"size:255"`
	AvatarURL *string   `json:"avatarUrl" gorm:"size:512"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserSession is the server-side half of a session cookie. It exists before
// login so the OAuth state and redirect can be remembered.
type UserSession struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID      *uint     `json:"userId" gorm:"index"`
	StateHash   string    `json:"-"`
	RedirectURL string    `json:"-"`
	ExpiresAt   time.Time `json:"expiresAt" gorm:"not null"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (s *UserSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
