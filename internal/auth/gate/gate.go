// Package gate converts inbound bearer tokens into resolved user identities
// for protected operations.
package gate

import (
	"context"
	"strings"

	"github.com/hdnotes/server/internal/auth/user"
	apperrors "github.com/hdnotes/server/internal/platform/errors"
)

// ErrUnauthenticated indicates the request carries no resolvable identity.
var ErrUnauthenticated = apperrors.New(apperrors.CodeUnauthenticated, "Not authorized")

// TokenVerifier checks a bearer token and returns the embedded user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserGetter resolves a user id to its credential record.
type UserGetter interface {
	GetUser(ctx context.Context, userID string) (user.User, error)
}

// Gate authorizes protected requests. It has no side effects and performs one
// store lookup per call.
type Gate struct {
	tokens TokenVerifier
	users  UserGetter
}

// New builds an authorization gate.
func New(tokens TokenVerifier, users UserGetter) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Authorize resolves an Authorization header value to a user identity.
//
// A missing header, a non-bearer scheme, a bad token, and a token whose user
// no longer exists all fail the same way; the caller learns only that the
// request is unauthenticated.
func (g *Gate) Authorize(ctx context.Context, authorization string) (user.User, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return user.User{}, ErrUnauthenticated
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
	if tokenString == "" {
		return user.User{}, ErrUnauthenticated
	}

	userID, err := g.tokens.Verify(tokenString)
	if err != nil {
		return user.User{}, ErrUnauthenticated
	}

	u, err := g.users.GetUser(ctx, userID)
	if err != nil {
		// A deleted account invalidates outstanding tokens.
		return user.User{}, ErrUnauthenticated
	}
	return u, nil
}
