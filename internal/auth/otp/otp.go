// Package otp issues and verifies single-use, time-limited passcodes gating
// both signup and login.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/hdnotes/server/internal/auth/user"
	apperrors "github.com/hdnotes/server/internal/platform/errors"
	"github.com/hdnotes/server/internal/storage"
)

var (
	// ErrAlreadyRegistered indicates a signup for an email that already
	// completed verification.
	ErrAlreadyRegistered = apperrors.New(apperrors.CodeAlreadyExists, "User with this email already exists. Please sign in.")
	// ErrUserNotFound indicates a login request for an unregistered email.
	ErrUserNotFound = apperrors.New(apperrors.CodeNotFound, "User not found. Please create an account.")
	// ErrInvalidOrExpired covers a wrong code, an expired code, and no
	// pending code at all; the three cases are deliberately indistinguishable
	// to the caller.
	ErrInvalidOrExpired = apperrors.New(apperrors.CodeOTPInvalidExpired, "Invalid or expired OTP.")
)

// Purpose distinguishes the flow a verification belongs to. It never changes
// matching logic, only how callers respond to a success.
type Purpose string

const (
	// PurposeSignup is the first-time registration flow.
	PurposeSignup Purpose = "signup"
	// PurposeLogin is the returning-user flow.
	PurposeLogin Purpose = "login"
)

// Mailer delivers a passcode to an address. A delivery failure must surface
// as an error so the caller never reports a code as sent when it was not.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}

// UserStore is the slice of the credential store the passcode flows need.
type UserStore interface {
	UpsertSignup(ctx context.Context, profile user.Profile, otp storage.PendingOTP, now time.Time) error
	SetLoginOTP(ctx context.Context, email string, otp storage.PendingOTP, now time.Time) error
	ConsumeOTP(ctx context.Context, email, code string, now time.Time) (user.User, error)
}

// Service issues and verifies passcodes against the credential store.
type Service struct {
	users    UserStore
	mailer   Mailer
	cfg      Config
	clock    func() time.Time
	generate func() (string, error)
}

// NewService builds a passcode service.
func NewService(users UserStore, mailer Mailer, cfg Config) *Service {
	return &Service{
		users:    users,
		mailer:   mailer,
		cfg:      cfg,
		clock:    time.Now,
		generate: GenerateCode,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithGenerator overrides code generation, for tests.
func (s *Service) WithGenerator(generate func() (string, error)) *Service {
	s.generate = generate
	return s
}

// GenerateCode returns a uniformly random 6-digit passcode in 100000-999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate passcode: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// RequestSignup validates the profile, stores a fresh passcode on a new or
// still-unverified record, and dispatches it.
//
// A verified account cannot re-signup; an unverified one has its profile and
// pending code overwritten, so repeating the request simply re-issues.
func (s *Service) RequestSignup(ctx context.Context, input user.SignupInput) error {
	profile, err := user.NormalizeSignupInput(input)
	if err != nil {
		return err
	}

	code, expiresAt, err := s.newCode()
	if err != nil {
		return err
	}

	err = s.users.UpsertSignup(ctx, profile, storage.PendingOTP{Code: code, ExpiresAt: expiresAt}, s.clock().UTC())
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeAccountConflict {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("store signup passcode: %w", err)
	}

	return s.dispatch(ctx, profile.Email, code)
}

// RequestLogin stores a fresh passcode on an existing record and dispatches
// it, overwriting any pending code regardless of which flow issued it.
func (s *Service) RequestLogin(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return user.ErrEmptyEmail
	}

	code, expiresAt, err := s.newCode()
	if err != nil {
		return err
	}

	err = s.users.SetLoginOTP(ctx, email, storage.PendingOTP{Code: code, ExpiresAt: expiresAt}, s.clock().UTC())
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return ErrUserNotFound
		}
		return fmt.Errorf("store login passcode: %w", err)
	}

	return s.dispatch(ctx, email, code)
}

// Verify consumes a pending passcode and returns the identity it proved.
//
// The store clears the code in the same conditional statement that matches
// it, so a repeat verify with the same code observes the cleared state and
// fails. Purpose does not change matching; callers use it to shape their
// post-verification response.
func (s *Service) Verify(ctx context.Context, email, code string, purpose Purpose) (user.User, error) {
	email = user.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return user.User{}, ErrInvalidOrExpired
	}

	u, err := s.users.ConsumeOTP(ctx, email, code, s.clock().UTC())
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return user.User{}, ErrInvalidOrExpired
		}
		return user.User{}, fmt.Errorf("consume %s passcode: %w", purpose, err)
	}
	return u, nil
}

func (s *Service) newCode() (string, time.Time, error) {
	code, err := s.generate()
	if err != nil {
		return "", time.Time{}, err
	}
	return code, s.clock().UTC().Add(s.cfg.TTL), nil
}

func (s *Service) dispatch(ctx context.Context, email, code string) error {
	if err := s.mailer.SendOTP(ctx, email, code); err != nil {
		return apperrors.Wrap(apperrors.CodeDeliveryFailure, "failed to send verification code", err)
	}
	return nil
}
