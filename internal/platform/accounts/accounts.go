// Package accounts is the authentication provider: it owns login
// credentials, separate from the profile documents held in the document store.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password CreateUserAccount accepts.
const MinPasswordLength = 6

var (
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("account not found")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// Profile is the minimal identity copied onto the account at creation.
type Profile struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type Account struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider creates, removes and verifies login accounts.
type Provider interface {
	CreateUserAccount(ctx context.Context, email, password string, profile Profile) (*Account, error)
	// DeleteAccount removes an account; it is used to compensate when the
	// profile document for a freshly created account cannot be written.
	DeleteAccount(ctx context.Context, uid string) error
	Authenticate(ctx context.Context, email, password string) (*Account, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) ([]byte, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func checkPassword(hash []byte, password string) error {
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
