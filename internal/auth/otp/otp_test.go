package otp

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/hdnotes/server/internal/auth/user"
	apperrors "github.com/hdnotes/server/internal/platform/errors"
	"github.com/hdnotes/server/internal/storage"
)

type fakeUserStore struct {
	upsertSignup func(ctx context.Context, profile user.Profile, otp storage.PendingOTP, now time.Time) error
	setLoginOTP  func(ctx context.Context, email string, otp storage.PendingOTP, now time.Time) error
	consumeOTP   func(ctx context.Context, email, code string, now time.Time) (user.User, error)
}

func (f *fakeUserStore) UpsertSignup(ctx context.Context, profile user.Profile, otp storage.PendingOTP, now time.Time) error {
	return f.upsertSignup(ctx, profile, otp, now)
}

func (f *fakeUserStore) SetLoginOTP(ctx context.Context, email string, otp storage.PendingOTP, now time.Time) error {
	return f.setLoginOTP(ctx, email, otp, now)
}

func (f *fakeUserStore) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (user.User, error) {
	return f.consumeOTP(ctx, email, code, now)
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) SendOTP(ctx context.Context, email, code string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email+":"+code)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateCodeRange(t *testing.T) {
	t.Parallel()

	for range 200 {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q is not 6 digits", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code %q is not numeric: %v", code, err)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d out of range", n)
		}
	}
}

func TestRequestSignupStoresAndDispatches(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var stored storage.PendingOTP
	store := &fakeUserStore{
		upsertSignup: func(_ context.Context, profile user.Profile, otp storage.PendingOTP, _ time.Time) error {
			if profile.Email != "a@x.com" {
				t.Fatalf("email = %q, want %q", profile.Email, "a@x.com")
			}
			stored = otp
			return nil
		},
	}
	mailer := &fakeMailer{}
	svc := NewService(store, mailer, Config{TTL: 10 * time.Minute}).WithClock(fixedClock(now))
	svc.WithGenerator(func() (string, error) { return "123456", nil })

	err := svc.RequestSignup(context.Background(), user.SignupInput{
		Name: "Alice", Email: "A@X.com", DateOfBirth: "2000-01-01",
	})
	if err != nil {
		t.Fatalf("request signup: %v", err)
	}
	if stored.Code != "123456" {
		t.Fatalf("stored code = %q, want %q", stored.Code, "123456")
	}
	if !stored.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("expiry = %v, want %v", stored.ExpiresAt, now.Add(10*time.Minute))
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "a@x.com:123456" {
		t.Fatalf("sent = %v", mailer.sent)
	}
}

func TestRequestSignupValidation(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeUserStore{}, &fakeMailer{}, Config{TTL: time.Minute})
	err := svc.RequestSignup(context.Background(), user.SignupInput{Email: "a@x.com"})
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestRequestSignupVerifiedAccountAlreadyExists(t *testing.T) {
	t.Parallel()

	store := &fakeUserStore{
		upsertSignup: func(context.Context, user.Profile, storage.PendingOTP, time.Time) error {
			return storage.ErrConflict
		},
	}
	svc := NewService(store, &fakeMailer{}, Config{TTL: time.Minute})
	err := svc.RequestSignup(context.Background(), user.SignupInput{
		Name: "Alice", Email: "a@x.com", DateOfBirth: "2000-01-01",
	})
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("err = %v, want %v", err, ErrAlreadyRegistered)
	}
}

func TestRequestSignupDeliveryFailurePropagates(t *testing.T) {
	t.Parallel()

	persisted := false
	store := &fakeUserStore{
		upsertSignup: func(context.Context, user.Profile, storage.PendingOTP, time.Time) error {
			persisted = true
			return nil
		},
	}
	mailer := &fakeMailer{err: errors.New("smtp dial failed")}
	svc := NewService(store, mailer, Config{TTL: time.Minute})

	err := svc.RequestSignup(context.Background(), user.SignupInput{
		Name: "Alice", Email: "a@x.com", DateOfBirth: "2000-01-01",
	})
	if apperrors.CodeOf(err) != apperrors.CodeDeliveryFailure {
		t.Fatalf("err = %v, want delivery failure", err)
	}
	// The stored pending code remains so a retry issuance can overwrite it.
	if !persisted {
		t.Fatal("expected code to be persisted before dispatch")
	}
}

func TestRequestLoginUnknownEmail(t *testing.T) {
	t.Parallel()

	store := &fakeUserStore{
		setLoginOTP: func(context.Context, string, storage.PendingOTP, time.Time) error {
			return storage.ErrNotFound
		},
	}
	svc := NewService(store, &fakeMailer{}, Config{TTL: time.Minute})
	err := svc.RequestLogin(context.Background(), "ghost@x.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrUserNotFound)
	}
}

func TestRequestLoginOverwritesPendingCode(t *testing.T) {
	t.Parallel()

	var gotEmail string
	store := &fakeUserStore{
		setLoginOTP: func(_ context.Context, email string, _ storage.PendingOTP, _ time.Time) error {
			gotEmail = email
			return nil
		},
	}
	mailer := &fakeMailer{}
	svc := NewService(store, mailer, Config{TTL: time.Minute})
	if err := svc.RequestLogin(context.Background(), " A@X.com "); err != nil {
		t.Fatalf("request login: %v", err)
	}
	if gotEmail != "a@x.com" {
		t.Fatalf("email = %q, want normalized address", gotEmail)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(mailer.sent))
	}
}

func TestVerifyMapsNoMatchToInvalidOrExpired(t *testing.T) {
	t.Parallel()

	store := &fakeUserStore{
		consumeOTP: func(context.Context, string, string, time.Time) (user.User, error) {
			return user.User{}, storage.ErrNotFound
		},
	}
	svc := NewService(store, &fakeMailer{}, Config{TTL: time.Minute})
	_, err := svc.Verify(context.Background(), "a@x.com", "123456", PurposeLogin)
	if !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidOrExpired)
	}
}

func TestVerifyRejectsEmptyInputWithoutStoreCall(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeUserStore{}, &fakeMailer{}, Config{TTL: time.Minute})
	if _, err := svc.Verify(context.Background(), "a@x.com", "  ", PurposeSignup); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidOrExpired)
	}
	if _, err := svc.Verify(context.Background(), "", "123456", PurposeSignup); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidOrExpired)
	}
}

func TestVerifyReturnsIdentity(t *testing.T) {
	t.Parallel()

	store := &fakeUserStore{
		consumeOTP: func(_ context.Context, email, code string, _ time.Time) (user.User, error) {
			if email != "a@x.com" || code != "123456" {
				t.Fatalf("lookup = %q %q", email, code)
			}
			return user.User{ID: "user-1", Name: "Alice", Email: email}, nil
		},
	}
	svc := NewService(store, &fakeMailer{}, Config{TTL: time.Minute})
	u, err := svc.Verify(context.Background(), "A@X.com", " 123456 ", PurposeSignup)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u.ID != "user-1" {
		t.Fatalf("user id = %q, want %q", u.ID, "user-1")
	}
}
