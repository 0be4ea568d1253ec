package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hdnotes/server/internal/auth/user"
	"github.com/hdnotes/server/internal/platform/id"
	"github.com/hdnotes/server/internal/storage"
)

const userColumns = "id, name, email, date_of_birth, google_id, verified_at, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (user.User, error) {
	var u user.User
	var dateOfBirth sql.NullInt64
	var googleID sql.NullString
	var verifiedAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &dateOfBirth, &googleID, &verifiedAt, &createdAt, &updatedAt); err != nil {
		return user.User{}, err
	}
	if dateOfBirth.Valid {
		value := fromMillis(dateOfBirth.Int64)
		u.DateOfBirth = &value
	}
	if googleID.Valid {
		u.GoogleID = googleID.String
	}
	if verifiedAt.Valid {
		value := fromMillis(verifiedAt.Int64)
		u.VerifiedAt = &value
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

// GetUser fetches a user record by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return user.User{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", userID)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail fetches a user record by its unique email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(email) == "" {
		return user.User{}, fmt.Errorf("email is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetUserByGoogleID fetches a user record by its federated provider id.
func (s *Store) GetUserByGoogleID(ctx context.Context, googleID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(googleID) == "" {
		return user.User{}, fmt.Errorf("provider id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE google_id = ?", googleID)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user by provider id: %w", err)
	}
	return u, nil
}

// CreateUser inserts a new user record.
func (s *Store) CreateUser(ctx context.Context, u user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("email is required")
	}

	var dateOfBirth sql.NullInt64
	if u.DateOfBirth != nil {
		dateOfBirth = sql.NullInt64{Int64: toMillis(*u.DateOfBirth), Valid: true}
	}
	var googleID sql.NullString
	if u.GoogleID != "" {
		googleID = sql.NullString{String: u.GoogleID, Valid: true}
	}
	var verifiedAt sql.NullInt64
	if u.VerifiedAt != nil {
		verifiedAt = sql.NullInt64{Int64: toMillis(*u.VerifiedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, name, email, date_of_birth, google_id, verified_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		u.ID,
		u.Name,
		u.Email,
		dateOfBirth,
		googleID,
		verifiedAt,
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpsertSignup inserts an unverified user or refreshes the profile and pending
// code of an existing unverified record.
//
// The insert and the verified-record guard run as one statement so two racing
// signups for the same email cannot interleave.
func (s *Store) UpsertSignup(ctx context.Context, profile user.Profile, otp storage.PendingOTP, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(profile.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if strings.TrimSpace(otp.Code) == "" {
		return fmt.Errorf("otp code is required")
	}

	userID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, name, email, date_of_birth, otp_code, otp_expires_at, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?7)
ON CONFLICT(email) DO UPDATE SET
    name = excluded.name,
    date_of_birth = excluded.date_of_birth,
    otp_code = excluded.otp_code,
    otp_expires_at = excluded.otp_expires_at,
    updated_at = excluded.updated_at
WHERE users.verified_at IS NULL
`,
		userID,
		profile.Name,
		profile.Email,
		toMillis(profile.DateOfBirth),
		otp.Code,
		toMillis(otp.ExpiresAt),
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("upsert signup: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert signup rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	return nil
}

// SetLoginOTP stores a fresh pending code on an existing record.
func (s *Store) SetLoginOTP(ctx context.Context, email string, otp storage.PendingOTP, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	if strings.TrimSpace(otp.Code) == "" {
		return fmt.Errorf("otp code is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE users SET otp_code = ?, otp_expires_at = ?, updated_at = ? WHERE email = ?
`,
		otp.Code,
		toMillis(otp.ExpiresAt),
		toMillis(now),
		email,
	)
	if err != nil {
		return fmt.Errorf("set login otp: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set login otp rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ConsumeOTP atomically clears a matching unexpired code, marks the record
// verified, and returns it.
//
// The match and the clear are one UPDATE, so concurrent submissions of the
// same code resolve to exactly one winner.
func (s *Store) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" {
		return user.User{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
UPDATE users
SET otp_code = NULL,
    otp_expires_at = NULL,
    verified_at = COALESCE(verified_at, ?1),
    updated_at = ?1
WHERE email = ?2 AND otp_code = ?3 AND otp_expires_at > ?1
RETURNING `+userColumns,
		toMillis(now),
		email,
		code,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("consume otp: %w", err)
	}
	return u, nil
}
