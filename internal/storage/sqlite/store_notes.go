package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hdnotes/server/internal/notes"
	"github.com/hdnotes/server/internal/storage"
)

const noteColumns = "id, user_id, title, content, created_at, updated_at"

func scanNote(row rowScanner) (notes.Note, error) {
	var n notes.Note
	var createdAt int64
	var updatedAt int64
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &createdAt, &updatedAt); err != nil {
		return notes.Note{}, err
	}
	n.CreatedAt = fromMillis(createdAt)
	n.UpdatedAt = fromMillis(updatedAt)
	return n, nil
}

// PutNote persists a note record, replacing content and title on conflict.
func (s *Store) PutNote(ctx context.Context, n notes.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("note id is required")
	}
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("owner id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notes (id, user_id, title, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    content = excluded.content,
    updated_at = excluded.updated_at
`,
		n.ID,
		n.UserID,
		n.Title,
		n.Content,
		toMillis(n.CreatedAt),
		toMillis(n.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put note: %w", err)
	}
	return nil
}

// GetNote fetches a note record by ID.
func (s *Store) GetNote(ctx context.Context, noteID string) (notes.Note, error) {
	if err := ctx.Err(); err != nil {
		return notes.Note{}, err
	}
	if s == nil || s.sqlDB == nil {
		return notes.Note{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(noteID) == "" {
		return notes.Note{}, fmt.Errorf("note id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", noteID)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notes.Note{}, storage.ErrNotFound
		}
		return notes.Note{}, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// ListNotesByUser returns the owner's notes newest first.
func (s *Store) ListNotesByUser(ctx context.Context, userID string) ([]notes.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	result := []notes.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return result, nil
}

// DeleteNote removes a note record by ID.
func (s *Store) DeleteNote(ctx context.Context, noteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(noteID) == "" {
		return fmt.Errorf("note id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
