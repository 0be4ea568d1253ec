package notes

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/hdnotes/server/internal/platform/errors"
)

// ErrNoteNotFound indicates the requested note does not exist.
var ErrNoteNotFound = apperrors.New(apperrors.CodeNotFound, "note not found")

// ErrNotOwner indicates the caller does not own the note.
var ErrNotOwner = apperrors.New(apperrors.CodeUnauthenticated, "user not authorized to delete this note")

// Store persists note records for the service.
type Store interface {
	PutNote(ctx context.Context, n Note) error
	GetNote(ctx context.Context, noteID string) (Note, error)
	ListNotesByUser(ctx context.Context, userID string) ([]Note, error)
	DeleteNote(ctx context.Context, noteID string) error
}

// Service implements note CRUD over a backing store with ownership checks.
type Service struct {
	store Store
	clock func() time.Time
}

// NewService builds a note service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// List returns the user's notes, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Note, error) {
	list, err := s.store.ListNotesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return list, nil
}

// Create stores a new note owned by userID.
func (s *Service) Create(ctx context.Context, userID, content string) (Note, error) {
	note, err := NewNote(userID, content, s.clock, nil)
	if err != nil {
		return Note{}, err
	}
	if err := s.store.PutNote(ctx, note); err != nil {
		return Note{}, fmt.Errorf("put note: %w", err)
	}
	return note, nil
}

// Delete removes a note after confirming ownership.
func (s *Service) Delete(ctx context.Context, userID, noteID string) error {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return ErrNoteNotFound
		}
		return fmt.Errorf("get note: %w", err)
	}
	if note.UserID != userID {
		return ErrNotOwner
	}
	if err := s.store.DeleteNote(ctx, noteID); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}
