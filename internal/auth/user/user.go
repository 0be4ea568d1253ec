// Package user provides auth user management.
package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/hdnotes/server/internal/platform/errors"
	"github.com/hdnotes/server/internal/platform/id"
)

var (
	// ErrEmptyName indicates a missing display name.
	ErrEmptyName = apperrors.New(apperrors.CodeValidation, "name is required")
	// ErrEmptyEmail indicates a missing email address.
	ErrEmptyEmail = apperrors.New(apperrors.CodeValidation, "email is required")
	// ErrInvalidEmail indicates an email that does not look like an address.
	ErrInvalidEmail = apperrors.New(apperrors.CodeValidation, "email is not a valid address")
	// ErrEmptyDateOfBirth indicates a missing date of birth on signup.
	ErrEmptyDateOfBirth = apperrors.New(apperrors.CodeValidation, "date of birth is required")
	// ErrInvalidDateOfBirth indicates a date of birth that is not YYYY-MM-DD.
	ErrInvalidDateOfBirth = apperrors.New(apperrors.CodeValidation, "date of birth must be YYYY-MM-DD")

	// Intentionally loose: the OTP round trip is the real proof of ownership.
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// User represents an authenticated identity record.
//
// GoogleID is empty for accounts that originated from the OTP flow; the two
// identity kinds are resolved independently by email and never merged.
type User struct {
	ID          string
	Name        string
	Email       string
	DateOfBirth *time.Time
	GoogleID    string
	VerifiedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Verified reports whether the account completed a verification at least once.
func (u User) Verified() bool {
	return u.VerifiedAt != nil
}

// SignupInput describes the profile fields required to start a signup.
type SignupInput struct {
	Name        string
	Email       string
	DateOfBirth string
}

// Profile is the normalized result of validating a SignupInput.
type Profile struct {
	Name        string
	Email       string
	DateOfBirth time.Time
}

// ValidateEmail enforces the canonical email constraints used by both the OTP
// and federated flows.
func ValidateEmail(s string) error {
	if !emailPattern.MatchString(s) {
		return ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail lowercases and trims an address so lookups are stable.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeSignupInput trims and normalizes input before validation.
func NormalizeSignupInput(input SignupInput) (Profile, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Profile{}, ErrEmptyName
	}
	input.Email = NormalizeEmail(input.Email)
	if input.Email == "" {
		return Profile{}, ErrEmptyEmail
	}
	if err := ValidateEmail(input.Email); err != nil {
		return Profile{}, err
	}
	input.DateOfBirth = strings.TrimSpace(input.DateOfBirth)
	if input.DateOfBirth == "" {
		return Profile{}, ErrEmptyDateOfBirth
	}
	dob, err := time.Parse("2006-01-02", input.DateOfBirth)
	if err != nil {
		return Profile{}, ErrInvalidDateOfBirth
	}
	return Profile{Name: input.Name, Email: input.Email, DateOfBirth: dob.UTC()}, nil
}

// FederatedInput describes the provider profile needed to create a user.
type FederatedInput struct {
	GoogleID string
	Name     string
	Email    string
}

// NewFederatedUser creates a durable user identity from a resolved provider
// profile.
//
// Federated users are born verified: the provider already proved control of
// the email, so no OTP state is ever attached at creation.
func NewFederatedUser(input FederatedInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.GoogleID = strings.TrimSpace(input.GoogleID)
	if input.GoogleID == "" {
		return User{}, apperrors.New(apperrors.CodeValidation, "provider id is required")
	}
	input.Email = NormalizeEmail(input.Email)
	if input.Email == "" {
		return User{}, ErrEmptyEmail
	}
	if err := ValidateEmail(input.Email); err != nil {
		return User{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		input.Name = input.Email
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	verifiedAt := createdAt
	return User{
		ID:         userID,
		Name:       input.Name,
		Email:      input.Email,
		GoogleID:   input.GoogleID,
		VerifiedAt: &verifiedAt,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}, nil
}
