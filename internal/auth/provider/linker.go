package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/hdnotes/server/internal/auth/user"
	apperrors "github.com/hdnotes/server/internal/platform/errors"
)

// ErrAccountConflict indicates the profile's email belongs to an account that
// did not originate from this provider. The accounts are never merged.
var ErrAccountConflict = apperrors.New(apperrors.CodeAccountConflict, "Email already in use with a different login method.")

// Profile is the subset of the provider's userinfo response the linker needs.
type Profile struct {
	GoogleID string
	Name     string
	Email    string
}

// UserStore is the slice of the credential store the linker needs.
type UserStore interface {
	GetUserByGoogleID(ctx context.Context, googleID string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	CreateUser(ctx context.Context, u user.User) error
}

// Linker maps an external identity-provider profile to exactly one local
// user record.
type Linker struct {
	users UserStore
	clock func() time.Time
}

// NewLinker builds a federated identity linker.
func NewLinker(users UserStore) *Linker {
	return &Linker{users: users, clock: time.Now}
}

// WithClock overrides the linker clock, for tests.
func (l *Linker) WithClock(clock func() time.Time) *Linker {
	l.clock = clock
	return l
}

// Resolve finds or creates the local user for a provider profile.
//
// The lookup order is a security boundary: a provider id hit returns the
// existing identity; an email hit without that provider id fails rather than
// silently attaching the provider to an email-based account; only a miss on
// both creates a fresh record.
func (l *Linker) Resolve(ctx context.Context, profile Profile) (user.User, error) {
	existing, err := l.users.GetUserByGoogleID(ctx, profile.GoogleID)
	if err == nil {
		return existing, nil
	}
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		return user.User{}, fmt.Errorf("lookup by provider id: %w", err)
	}

	email := user.NormalizeEmail(profile.Email)
	_, err = l.users.GetUserByEmail(ctx, email)
	if err == nil {
		return user.User{}, ErrAccountConflict
	}
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		return user.User{}, fmt.Errorf("lookup by email: %w", err)
	}

	created, err := user.NewFederatedUser(user.FederatedInput{
		GoogleID: profile.GoogleID,
		Name:     profile.Name,
		Email:    email,
	}, l.clock, nil)
	if err != nil {
		return user.User{}, err
	}
	if err := l.users.CreateUser(ctx, created); err != nil {
		// A racing insert between the lookups and here still surfaces as a
		// conflict, never as a merge.
		if apperrors.CodeOf(err) == apperrors.CodeAccountConflict {
			return user.User{}, ErrAccountConflict
		}
		return user.User{}, fmt.Errorf("create federated user: %w", err)
	}
	return created, nil
}
