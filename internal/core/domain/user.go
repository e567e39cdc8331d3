package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const MinPasswordLength = 6

type User struct {
	ID           UserID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser validates the registration fields. The password is checked here but
// hashing is left to the caller.
func NewUser(name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return nil, errors.Mark(errors.New("name is required"), ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.Mark(errors.Newf("invalid email %q", email), ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return nil, errors.Mark(errors.Newf("password must be at least %d characters", MinPasswordLength), ErrInvalidInput)
	}
	now := time.Now().UTC()
	return &User{
		ID:        NewUserID(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
