// Package storage defines the persistence contracts for the credential and
// note stores.
package storage

import (
	"context"
	"time"

	"github.com/hdnotes/server/internal/auth/user"
	"github.com/hdnotes/server/internal/notes"
	"github.com/hdnotes/server/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrConflict indicates a write collided with an existing unique record.
var ErrConflict = errors.New(errors.CodeAccountConflict, "record conflicts with existing data")

// PendingOTP is a single-use verification code awaiting confirmation.
//
// It is not a separate entity: both fields live on the user row, so issuing a
// new code for either purpose overwrites any earlier pending code.
type PendingOTP struct {
	Code      string
	ExpiresAt time.Time
}

// UserStore persists auth user records.
//
// OTP issuance and consumption are expressed as single conditional statements
// because two requests for the same email may race; implementations must not
// decompose them into separate read and write round trips.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (user.User, error)

	// CreateUser inserts a new record and fails with ErrConflict when the
	// email or provider id is already taken.
	CreateUser(ctx context.Context, u user.User) error

	// UpsertSignup inserts an unverified user with the given profile and
	// pending code, or overwrites the profile and code of an existing
	// unverified record. It fails with ErrConflict when a verified record
	// already holds the email.
	UpsertSignup(ctx context.Context, profile user.Profile, otp PendingOTP, now time.Time) error

	// SetLoginOTP stores a fresh pending code on an existing record,
	// overwriting any earlier one. It fails with ErrNotFound when no record
	// holds the email.
	SetLoginOTP(ctx context.Context, email string, otp PendingOTP, now time.Time) error

	// ConsumeOTP atomically clears a matching unexpired code and returns the
	// record it belonged to, marking it verified. It fails with ErrNotFound
	// when no record matches email, code, and expiry; under concurrent calls
	// with the same code exactly one succeeds.
	ConsumeOTP(ctx context.Context, email, code string, now time.Time) (user.User, error)
}

// NoteStore persists note records.
type NoteStore interface {
	PutNote(ctx context.Context, n notes.Note) error
	GetNote(ctx context.Context, noteID string) (notes.Note, error)
	ListNotesByUser(ctx context.Context, userID string) ([]notes.Note, error)
	DeleteNote(ctx context.Context, noteID string) error
}

// ProviderState is a pending federated-login round trip.
type ProviderState struct {
	State        string
	CodeVerifier string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// ProviderStateStore persists single-use OAuth state records.
type ProviderStateStore interface {
	PutProviderState(ctx context.Context, s ProviderState) error
	// ConsumeProviderState deletes and returns an unexpired state row;
	// ErrNotFound covers unknown, expired, and already-consumed states alike.
	ConsumeProviderState(ctx context.Context, state string, now time.Time) (ProviderState, error)
	DeleteExpiredProviderStates(ctx context.Context, now time.Time) error
}
