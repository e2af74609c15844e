package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Subscriber statuses.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusConfirmed           = "confirmed"
)

// ErrInvalidEmail marks a recipient address that fails validation.
var ErrInvalidEmail = errors.New("invalid subscriber email")

type Subscriber struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Status       string    `json:"status"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

type NewSubscriberRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

var validate = validator.New()

// ValidateEmail checks that an address is a well-formed email.
// Task rows carry addresses as stored at publish time, so the worker
// re-validates before every send attempt.
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}

// ValidateUsername rejects empty and oversized usernames as well as
// characters that have no business in a display name.
func ValidateUsername(username string) error {
	if username == "" || len(username) > 256 {
		return errors.New("username must be 1-256 characters")
	}
	for _, r := range username {
		switch r {
		case '/', '(', ')', '"', '<', '>', '\\', '{', '}':
			return fmt.Errorf("username contains forbidden character %q", r)
		}
	}
	return nil
}
