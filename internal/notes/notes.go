// Package notes provides the note resource owned by authenticated users.
package notes

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/hdnotes/server/internal/platform/errors"
	"github.com/hdnotes/server/internal/platform/id"
)

// ErrEmptyContent indicates a note create request without content.
var ErrEmptyContent = apperrors.New(apperrors.CodeValidation, "content is required")

// titleRunes caps the derived note title length.
const titleRunes = 20

// Note is a text note owned by exactly one user.
type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewNote creates a note for the given owner, deriving the title from the
// leading content.
func NewNote(userID, content string, now func() time.Time, idGenerator func() (string, error)) (Note, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	if strings.TrimSpace(content) == "" {
		return Note{}, ErrEmptyContent
	}
	if strings.TrimSpace(userID) == "" {
		return Note{}, fmt.Errorf("owner id is required")
	}

	noteID, err := idGenerator()
	if err != nil {
		return Note{}, fmt.Errorf("generate note id: %w", err)
	}

	createdAt := now().UTC()
	return Note{
		ID:        noteID,
		UserID:    userID,
		Title:     deriveTitle(content),
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// deriveTitle takes the first titleRunes runes of the content, whole runes
// only, so multi-byte text never splits mid-character.
func deriveTitle(content string) string {
	if utf8.RuneCountInString(content) <= titleRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleRunes])
}
