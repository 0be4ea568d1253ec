package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hdnotes/server/internal/storage"
)

// PutProviderState stores a pending federated-login round trip.
func (s *Store) PutProviderState(ctx context.Context, state storage.ProviderState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(state.State) == "" {
		return fmt.Errorf("state is required")
	}
	if strings.TrimSpace(state.CodeVerifier) == "" {
		return fmt.Errorf("code verifier is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR REPLACE INTO provider_states (state, code_verifier, created_at, expires_at)
VALUES (?, ?, ?, ?)
`,
		state.State,
		state.CodeVerifier,
		toMillis(state.CreatedAt),
		toMillis(state.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put provider state: %w", err)
	}
	return nil
}

// ConsumeProviderState deletes and returns an unexpired state row.
//
// Deletion and lookup are one statement, so a replayed callback with the same
// state finds nothing.
func (s *Store) ConsumeProviderState(ctx context.Context, state string, now time.Time) (storage.ProviderState, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProviderState{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProviderState{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(state) == "" {
		return storage.ProviderState{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
DELETE FROM provider_states
WHERE state = ?1 AND expires_at > ?2
RETURNING state, code_verifier, created_at, expires_at
`,
		state,
		toMillis(now),
	)

	var result storage.ProviderState
	var createdAt int64
	var expiresAt int64
	if err := row.Scan(&result.State, &result.CodeVerifier, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProviderState{}, storage.ErrNotFound
		}
		return storage.ProviderState{}, fmt.Errorf("consume provider state: %w", err)
	}
	result.CreatedAt = fromMillis(createdAt)
	result.ExpiresAt = fromMillis(expiresAt)
	return result, nil
}

// DeleteExpiredProviderStates removes abandoned round trips.
func (s *Store) DeleteExpiredProviderStates(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM provider_states WHERE expires_at <= ?", toMillis(now)); err != nil {
		return fmt.Errorf("delete expired provider states: %w", err)
	}
	return nil
}
