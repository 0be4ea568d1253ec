// Package provider implements the federated sign-in flow against an external
// identity provider and links its profiles to local user records.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hdnotes/server/internal/platform/timeouts"
	"github.com/hdnotes/server/internal/storage"
)

// failureIndicator is the opaque error value delivered to the sign-in page.
// Internal failure detail never reaches the redirect target.
const failureIndicator = "auth_failed"

// TokenIssuer mints a session token for a resolved identity.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Server hosts the provider start and callback endpoints.
type Server struct {
	config     Config
	states     storage.ProviderStateStore
	linker     *Linker
	issuer     TokenIssuer
	clock      func() time.Time
	httpClient *http.Client
}

// NewServer builds a federated login server.
func NewServer(config Config, states storage.ProviderStateStore, linker *Linker, issuer TokenIssuer) *Server {
	return &Server{
		config:     config,
		states:     states,
		linker:     linker,
		issuer:     issuer,
		clock:      time.Now,
		httpClient: &http.Client{Timeout: timeouts.ProviderExchange},
	}
}

// WithClock overrides the server clock, for tests.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// WithHTTPClient overrides the outbound HTTP client, for tests.
func (s *Server) WithHTTPClient(client *http.Client) *Server {
	s.httpClient = client
	return s
}

// RegisterRoutes registers the federated flow endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("GET /auth/google", s.HandleStart)
	mux.HandleFunc("GET /auth/google/callback", s.HandleCallback)
}

// HandleStart redirects the client to the provider's consent screen.
func (s *Server) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !s.config.Enabled() {
		http.Error(w, "federated login is not configured", http.StatusNotFound)
		return
	}

	codeVerifier, err := GenerateCodeVerifier()
	if err != nil {
		http.Error(w, "failed to start provider flow", http.StatusInternalServerError)
		return
	}
	stateValue, err := GenerateCodeVerifier()
	if err != nil {
		http.Error(w, "failed to start provider flow", http.StatusInternalServerError)
		return
	}

	now := s.clock().UTC()
	err = s.states.PutProviderState(r.Context(), storage.ProviderState{
		State:        stateValue,
		CodeVerifier: codeVerifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.config.StateTTL),
	})
	if err != nil {
		http.Error(w, "failed to start provider flow", http.StatusInternalServerError)
		return
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", s.config.ClientID)
	query.Set("redirect_uri", s.config.RedirectURI)
	query.Set("scope", strings.Join(s.config.Scopes, " "))
	query.Set("state", stateValue)
	query.Set("code_challenge", ComputeS256Challenge(codeVerifier))
	query.Set("code_challenge_method", "S256")

	authURL, err := url.Parse(s.config.AuthURL)
	if err != nil {
		http.Error(w, "invalid provider config", http.StatusInternalServerError)
		return
	}
	authURL.RawQuery = query.Encode()
	http.Redirect(w, r, authURL.String(), http.StatusFound)
}

// HandleCallback completes the provider round trip.
//
// On success the session token travels as a one-time URL parameter the client
// exchanges immediately; on any failure the client lands on the sign-in entry
// point with an opaque indicator.
func (s *Server) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.config.Enabled() {
		http.Error(w, "federated login is not configured", http.StatusNotFound)
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		s.redirectFailure(w, r)
		return
	}

	code := r.URL.Query().Get("code")
	stateValue := r.URL.Query().Get("state")
	if code == "" || stateValue == "" {
		s.redirectFailure(w, r)
		return
	}

	state, err := s.states.ConsumeProviderState(r.Context(), stateValue, s.clock().UTC())
	if err != nil {
		s.redirectFailure(w, r)
		return
	}

	accessToken, err := s.exchangeCode(r.Context(), code, state.CodeVerifier)
	if err != nil {
		log.Printf("provider token exchange failed: %v", err)
		s.redirectFailure(w, r)
		return
	}

	profile, err := s.fetchProfile(r.Context(), accessToken)
	if err != nil {
		log.Printf("provider profile fetch failed: %v", err)
		s.redirectFailure(w, r)
		return
	}

	resolved, err := s.linker.Resolve(r.Context(), profile)
	if err != nil {
		if !errors.Is(err, ErrAccountConflict) {
			log.Printf("provider identity resolution failed: %v", err)
		}
		s.redirectFailure(w, r)
		return
	}

	sessionToken, err := s.issuer.Issue(resolved.ID)
	if err != nil {
		log.Printf("session token issuance failed: %v", err)
		s.redirectFailure(w, r)
		return
	}

	// The token parameter is consumed and discarded by the client right
	// away; the full URL must stay out of server logs.
	target, err := url.Parse(s.config.FrontendURL + "/auth/callback")
	if err != nil {
		s.redirectFailure(w, r)
		return
	}
	query := target.Query()
	query.Set("token", sessionToken)
	target.RawQuery = query.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) redirectFailure(w http.ResponseWriter, r *http.Request) {
	target, err := url.Parse(s.config.FrontendURL + "/signin")
	if err != nil {
		http.Error(w, "sign-in failed", http.StatusBadRequest)
		return
	}
	query := target.Query()
	query.Set("error", failureIndicator)
	target.RawQuery = query.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) exchangeCode(ctx context.Context, code, codeVerifier string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.config.RedirectURI)
	form.Set("client_id", s.config.ClientID)
	form.Set("client_secret", s.config.ClientSecret)
	form.Set("code_verifier", codeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("token exchange failed")
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", errors.New("missing access token")
	}
	return payload.AccessToken, nil
}

func (s *Server) fetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.UserInfoURL, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, errors.New("profile request failed")
	}

	var payload struct {
		Sub   string `json:"sub"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Profile{}, err
	}
	if payload.Sub == "" {
		return Profile{}, errors.New("missing provider user id")
	}
	if payload.Email == "" {
		return Profile{}, errors.New("missing provider email")
	}
	return Profile{GoogleID: payload.Sub, Name: payload.Name, Email: payload.Email}, nil
}
