package provider

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hdnotes/server/internal/auth/user"
	"github.com/hdnotes/server/internal/storage"
)

type fakeUserStore struct {
	getByGoogleID func(ctx context.Context, googleID string) (user.User, error)
	getByEmail    func(ctx context.Context, email string) (user.User, error)
	create        func(ctx context.Context, u user.User) error
}

func (f *fakeUserStore) GetUserByGoogleID(ctx context.Context, googleID string) (user.User, error) {
	return f.getByGoogleID(ctx, googleID)
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return f.getByEmail(ctx, email)
}

func (f *fakeUserStore) CreateUser(ctx context.Context, u user.User) error {
	return f.create(ctx, u)
}

type fakeStateStore struct {
	put     func(ctx context.Context, s storage.ProviderState) error
	consume func(ctx context.Context, state string, now time.Time) (storage.ProviderState, error)
}

func (f *fakeStateStore) PutProviderState(ctx context.Context, s storage.ProviderState) error {
	return f.put(ctx, s)
}

func (f *fakeStateStore) ConsumeProviderState(ctx context.Context, state string, now time.Time) (storage.ProviderState, error) {
	return f.consume(ctx, state, now)
}

func (f *fakeStateStore) DeleteExpiredProviderStates(ctx context.Context, now time.Time) error {
	return nil
}

type fakeIssuer struct {
	issue func(userID string) (string, error)
}

func (f *fakeIssuer) Issue(userID string) (string, error) {
	return f.issue(userID)
}

func TestGenerateCodeVerifier(t *testing.T) {
	t.Parallel()

	first, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := hex.DecodeString(first); err != nil {
		t.Fatalf("verifier %q is not hex: %v", first, err)
	}
	if len(first) != 64 {
		t.Fatalf("verifier length = %d, want 64", len(first))
	}
	second, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct verifiers")
	}
}

func TestComputeS256Challenge(t *testing.T) {
	t.Parallel()

	got := ComputeS256Challenge("abc")
	want := "ungWv48Bz-pBQUDeXa4iI7ADYaOWF3qctBD_YfIAFa0"
	if got != want {
		t.Fatalf("challenge = %q, want %q", got, want)
	}
}

func TestResolveReturnsExistingProviderIdentity(t *testing.T) {
	t.Parallel()

	existing := user.User{ID: "u1", Email: "a@x.com", GoogleID: "g1"}
	store := &fakeUserStore{
		getByGoogleID: func(_ context.Context, googleID string) (user.User, error) {
			if googleID != "g1" {
				t.Fatalf("google id = %q", googleID)
			}
			return existing, nil
		},
		getByEmail: func(context.Context, string) (user.User, error) {
			t.Fatal("unexpected email lookup")
			return user.User{}, nil
		},
	}

	got, err := NewLinker(store).Resolve(context.Background(), Profile{GoogleID: "g1", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("user id = %q, want u1", got.ID)
	}
}

func TestResolveRejectsEmailFromOtherLoginMethod(t *testing.T) {
	t.Parallel()

	store := &fakeUserStore{
		getByGoogleID: func(context.Context, string) (user.User, error) {
			return user.User{}, storage.ErrNotFound
		},
		getByEmail: func(_ context.Context, email string) (user.User, error) {
			if email != "a@x.com" {
				t.Fatalf("email = %q", email)
			}
			return user.User{ID: "u1", Email: "a@x.com"}, nil
		},
		create: func(context.Context, user.User) error {
			t.Fatal("unexpected create")
			return nil
		},
	}

	_, err := NewLinker(store).Resolve(context.Background(), Profile{GoogleID: "g1", Email: "A@X.com"})
	if err != ErrAccountConflict {
		t.Fatalf("err = %v, want ErrAccountConflict", err)
	}
}

func TestResolveCreatesVerifiedUser(t *testing.T) {
	t.Parallel()

	var created user.User
	store := &fakeUserStore{
		getByGoogleID: func(context.Context, string) (user.User, error) {
			return user.User{}, storage.ErrNotFound
		},
		getByEmail: func(context.Context, string) (user.User, error) {
			return user.User{}, storage.ErrNotFound
		},
		create: func(_ context.Context, u user.User) error {
			created = u
			return nil
		},
	}

	got, err := NewLinker(store).Resolve(context.Background(), Profile{GoogleID: "g1", Name: "Ana", Email: "A@X.com"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("returned user %q does not match stored %q", got.ID, created.ID)
	}
	if created.GoogleID != "g1" {
		t.Fatalf("google id = %q", created.GoogleID)
	}
	if created.Email != "a@x.com" {
		t.Fatalf("email = %q, want normalized a@x.com", created.Email)
	}
	if !created.Verified() {
		t.Fatal("expected federated user to be verified at creation")
	}
}

func TestResolveMapsRacingInsertToConflict(t *testing.T) {
	t.Parallel()

	store := &fakeUserStore{
		getByGoogleID: func(context.Context, string) (user.User, error) {
			return user.User{}, storage.ErrNotFound
		},
		getByEmail: func(context.Context, string) (user.User, error) {
			return user.User{}, storage.ErrNotFound
		},
		create: func(context.Context, user.User) error {
			return storage.ErrConflict
		},
	}

	_, err := NewLinker(store).Resolve(context.Background(), Profile{GoogleID: "g1", Email: "a@x.com"})
	if err != ErrAccountConflict {
		t.Fatalf("err = %v, want ErrAccountConflict", err)
	}
}

func testConfig() Config {
	return Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "https://api.example.com/auth/google/callback",
		AuthURL:      "https://provider.example.com/auth",
		TokenURL:     "https://provider.example.com/token",
		UserInfoURL:  "https://provider.example.com/userinfo",
		Scopes:       []string{"openid", "email", "profile"},
		FrontendURL:  "https://app.example.com",
		StateTTL:     15 * time.Minute,
	}
}

func TestHandleStartRedirectsToProvider(t *testing.T) {
	t.Parallel()

	var stored storage.ProviderState
	states := &fakeStateStore{
		put: func(_ context.Context, s storage.ProviderState) error {
			stored = s
			return nil
		},
	}
	srv := NewServer(testConfig(), states, nil, nil)

	rec := httptest.NewRecorder()
	srv.HandleStart(rec, httptest.NewRequest(http.MethodGet, "/auth/google", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Host != "provider.example.com" {
		t.Fatalf("host = %q", location.Host)
	}
	query := location.Query()
	if query.Get("response_type") != "code" {
		t.Fatalf("response_type = %q", query.Get("response_type"))
	}
	if query.Get("client_id") != "client" {
		t.Fatalf("client_id = %q", query.Get("client_id"))
	}
	if query.Get("state") != stored.State {
		t.Fatalf("state %q does not match stored %q", query.Get("state"), stored.State)
	}
	if query.Get("code_challenge_method") != "S256" {
		t.Fatalf("challenge method = %q", query.Get("code_challenge_method"))
	}
	if query.Get("code_challenge") != ComputeS256Challenge(stored.CodeVerifier) {
		t.Fatal("challenge does not match stored verifier")
	}
	if stored.ExpiresAt.Sub(stored.CreatedAt) != 15*time.Minute {
		t.Fatalf("state ttl = %v", stored.ExpiresAt.Sub(stored.CreatedAt))
	}
}

func TestHandleStartWithoutConfiguration(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{}, nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.HandleStart(rec, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// callbackFixture wires a fake provider backend behind the callback handler.
func callbackFixture(t *testing.T, users *fakeUserStore, issue func(string) (string, error)) (*Server, *httptest.Server) {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			if r.FormValue("grant_type") != "authorization_code" {
				t.Errorf("grant_type = %q", r.FormValue("grant_type"))
			}
			if r.FormValue("code_verifier") == "" {
				t.Error("missing code_verifier")
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at-1"}`))
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer at-1" {
				t.Errorf("authorization = %q", r.Header.Get("Authorization"))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"sub":"g1","name":"Ana","email":"a@x.com"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(backend.Close)

	cfg := testConfig()
	cfg.TokenURL = backend.URL + "/token"
	cfg.UserInfoURL = backend.URL + "/userinfo"

	states := &fakeStateStore{
		consume: func(_ context.Context, state string, _ time.Time) (storage.ProviderState, error) {
			if state != "state-1" {
				return storage.ProviderState{}, storage.ErrNotFound
			}
			return storage.ProviderState{State: state, CodeVerifier: "verifier-1"}, nil
		},
	}
	srv := NewServer(cfg, states, NewLinker(users), &fakeIssuer{issue: issue}).
		WithHTTPClient(backend.Client())
	return srv, backend
}

func TestHandleCallbackIssuesSessionToken(t *testing.T) {
	t.Parallel()

	users := &fakeUserStore{
		getByGoogleID: func(context.Context, string) (user.User, error) {
			return user.User{ID: "u1", Email: "a@x.com", GoogleID: "g1"}, nil
		},
	}
	srv, _ := callbackFixture(t, users, func(userID string) (string, error) {
		if userID != "u1" {
			t.Errorf("user id = %q", userID)
		}
		return "session-token", nil
	})

	rec := httptest.NewRecorder()
	srv.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c1&state=state-1", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Path != "/auth/callback" {
		t.Fatalf("path = %q", location.Path)
	}
	if got := location.Query().Get("token"); got != "session-token" {
		t.Fatalf("token = %q", got)
	}
}

func TestHandleCallbackRedirectsFailures(t *testing.T) {
	t.Parallel()

	conflictUsers := &fakeUserStore{
		getByGoogleID: func(context.Context, string) (user.User, error) {
			return user.User{}, storage.ErrNotFound
		},
		getByEmail: func(context.Context, string) (user.User, error) {
			return user.User{ID: "u1", Email: "a@x.com"}, nil
		},
	}

	tests := []struct {
		name  string
		query string
	}{
		{name: "provider error", query: "error=access_denied"},
		{name: "missing code", query: "state=state-1"},
		{name: "unknown state", query: "code=c1&state=other"},
		{name: "account conflict", query: "code=c1&state=state-1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := callbackFixture(t, conflictUsers, func(string) (string, error) {
				t.Error("unexpected token issuance")
				return "", nil
			})

			rec := httptest.NewRecorder()
			srv.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+tc.query, nil))

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			location, err := url.Parse(rec.Header().Get("Location"))
			if err != nil {
				t.Fatalf("parse location: %v", err)
			}
			if location.Path != "/signin" {
				t.Fatalf("path = %q, want /signin", location.Path)
			}
			if got := location.Query().Get("error"); got != "auth_failed" {
				t.Fatalf("error = %q, want auth_failed", got)
			}
			if location.Query().Get("token") != "" {
				t.Fatal("failure redirect must not carry a token")
			}
		})
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("HDNOTES_GOOGLE_CLIENT_ID", "client")
	t.Setenv("HDNOTES_GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("HDNOTES_GOOGLE_REDIRECT_URI", "https://api.example.com/auth/google/callback")
	t.Setenv("HDNOTES_GOOGLE_SCOPES", "")
	t.Setenv("HDNOTES_FRONTEND_URL", "https://app.example.com/")

	cfg := LoadConfigFromEnv()
	if !cfg.Enabled() {
		t.Fatal("expected provider to be enabled")
	}
	if len(cfg.Scopes) != 3 {
		t.Fatalf("scopes = %v", cfg.Scopes)
	}
	if cfg.FrontendURL != "https://app.example.com" {
		t.Fatalf("frontend url = %q, want trailing slash trimmed", cfg.FrontendURL)
	}
	if cfg.StateTTL != 15*time.Minute {
		t.Fatalf("state ttl = %v", cfg.StateTTL)
	}
}
