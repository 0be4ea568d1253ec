// Package rest exposes the JSON HTTP surface for auth and notes.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hdnotes/server/internal/auth/otp"
	"github.com/hdnotes/server/internal/auth/user"
	"github.com/hdnotes/server/internal/notes"
)

// maxBodyBytes caps request bodies; every payload here is a small JSON object.
const maxBodyBytes = 1 << 20

// OTPService drives the passcode signup and login flows.
type OTPService interface {
	RequestSignup(ctx context.Context, input user.SignupInput) error
	RequestLogin(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string, purpose otp.Purpose) (user.User, error)
}

// TokenIssuer mints session tokens for verified identities.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Authorizer resolves an Authorization header to a user identity.
type Authorizer interface {
	Authorize(ctx context.Context, authorization string) (user.User, error)
}

// NoteService drives the note resource.
type NoteService interface {
	List(ctx context.Context, userID string) ([]notes.Note, error)
	Create(ctx context.Context, userID, content string) (notes.Note, error)
	Delete(ctx context.Context, userID, noteID string) error
}

// Server hosts the JSON endpoints.
type Server struct {
	otp    OTPService
	tokens TokenIssuer
	gate   Authorizer
	notes  NoteService
}

// NewServer builds the JSON API server.
func NewServer(otpService OTPService, tokens TokenIssuer, gate Authorizer, noteService NoteService) *Server {
	return &Server{
		otp:    otpService,
		tokens: tokens,
		gate:   gate,
		notes:  noteService,
	}
}

// RegisterRoutes registers the JSON endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/verify-signup", s.handleVerifySignup)
	mux.HandleFunc("POST /auth/send-login-otp", s.handleSendLoginOTP)
	mux.HandleFunc("POST /auth/verify-login", s.handleVerifyLogin)
	mux.HandleFunc("GET /auth/me", s.handleMe)
	mux.HandleFunc("GET /notes", s.handleListNotes)
	mux.HandleFunc("POST /notes", s.handleCreateNote)
	mux.HandleFunc("DELETE /notes/{id}", s.handleDeleteNote)
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// Middleware wraps a handler with the CORS allowlist and request tracing.
func Middleware(cors CORSConfig, next http.Handler) http.Handler {
	return withTracing(withCORS(cors, next))
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type signupRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	DOB   string `json:"dob"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.otp.RequestSignup(r.Context(), user.SignupInput{
		Name:        req.Name,
		Email:       req.Email,
		DateOfBirth: req.DOB,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "OTP sent to your email for verification.")
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type sessionResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request, purpose otp.Purpose, successStatus int) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	verified, err := s.otp.Verify(r.Context(), req.Email, req.OTP, purpose)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := s.tokens.Issue(verified.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, successStatus, sessionResponse{
		Token: token,
		Name:  verified.Name,
		Email: verified.Email,
	})
}

func (s *Server) handleVerifySignup(w http.ResponseWriter, r *http.Request) {
	s.verify(w, r, otp.PurposeSignup, http.StatusCreated)
}

type loginRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSendLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.otp.RequestLogin(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "OTP sent to your email.")
}

func (s *Server) handleVerifyLogin(w http.ResponseWriter, r *http.Request) {
	s.verify(w, r, otp.PurposeLogin, http.StatusOK)
}

type profileResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	DOB   string `json:"dob,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.gate.Authorize(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return
	}
	profile := profileResponse{ID: u.ID, Name: u.Name, Email: u.Email}
	if u.DateOfBirth != nil {
		profile.DOB = u.DateOfBirth.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, profile)
}

type noteResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func noteToResponse(n notes.Note) noteResponse {
	return noteResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	u, err := s.gate.Authorize(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.notes.List(r.Context(), u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	response := make([]noteResponse, 0, len(list))
	for _, n := range list {
		response = append(response, noteToResponse(n))
	}
	writeJSON(w, http.StatusOK, response)
}

type createNoteRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	u, err := s.gate.Authorize(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req createNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.notes.Create(r.Context(), u.ID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, noteToResponse(created))
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	u, err := s.gate.Authorize(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.notes.Delete(r.Context(), u.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Note deleted successfully")
}
