package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/notekeeper/internal/models"
)

var (
	// ErrNoteNotFound is returned when the note does not exist or belongs to another user.
	ErrNoteNotFound = errors.New("note not found")
	// ErrInvalidNote is returned when a note has no title.
	ErrInvalidNote = errors.New("note title is required")
)

// NoteServiceProvider defines the interface for note services.
type NoteServiceProvider interface {
	ListNotes(ctx context.Context, userID string) ([]models.Note, error)
	GetNote(ctx context.Context, userID, id string) (models.Note, error)
	CreateNote(ctx context.Context, userID, title, content string) (models.Note, error)
	UpdateNote(ctx context.Context, userID, id, title, content string) (models.Note, error)
	DeleteNote(ctx context.Context, userID, id string) error
}

// NoteService provides note persistence scoped to an owner.
type NoteService struct {
	db  *sql.DB
	now func() time.Time
}

// NewNoteService creates a new NoteService.
func NewNoteService(db *sql.DB) *NoteService {
	return &NoteService{db: db, now: time.Now}
}

// ListNotes returns the user's notes, most recently updated first.
func (s *NoteService) ListNotes(ctx context.Context, userID string) ([]models.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, title, content, created_at, updated_at FROM notes WHERE user_id = ? ORDER BY updated_at DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// GetNote retrieves one of the user's notes.
func (s *NoteService) GetNote(ctx context.Context, userID, id string) (models.Note, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, content, created_at, updated_at FROM notes WHERE id = ? AND user_id = ?",
		id, userID)
	var n models.Note
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Note{}, ErrNoteNotFound
		}
		return models.Note{}, fmt.Errorf("get note %s: %w", id, err)
	}
	return n, nil
}

// CreateNote adds a new note for the user.
func (s *NoteService) CreateNote(ctx context.Context, userID, title, content string) (models.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Note{}, ErrInvalidNote
	}

	now := s.now().UTC()
	note := models.Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO notes (id, user_id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		note.ID, note.UserID, note.Title, note.Content, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		return models.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

// UpdateNote replaces the title and content of one of the user's notes.
func (s *NoteService) UpdateNote(ctx context.Context, userID, id, title, content string) (models.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Note{}, ErrInvalidNote
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		title, content, s.now().UTC(), id, userID)
	if err != nil {
		return models.Note{}, fmt.Errorf("update note %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Note{}, ErrNoteNotFound
	}
	return s.GetNote(ctx, userID, id)
}

// DeleteNote removes one of the user's notes.
func (s *NoteService) DeleteNote(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoteNotFound
	}
	return nil
}
