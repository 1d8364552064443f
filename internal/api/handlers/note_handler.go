package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/notekeeper/internal/auth"
	"github.com/isdelr/notekeeper/internal/services"
	"github.com/rs/zerolog/log"
)

// NoteHandler serves the notes JSON API for the authenticated user.
type NoteHandler struct {
	service services.NoteServiceProvider
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(service services.NoteServiceProvider) *NoteHandler {
	return &NoteHandler{service: service}
}

// NotePayload is the request body for creating or updating a note.
type NotePayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// GetAll handles the request to list the user's notes.
func (h *NoteHandler) GetAll(w http.ResponseWriter, r *http.Request) error {
	user := auth.CurrentUser(r.Context())
	notes, err := h.service.ListNotes(r.Context(), user.ID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, notes)
	return nil
}

// Get handles the request to get a single note by its ID.
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) error {
	user := auth.CurrentUser(r.Context())
	id := chi.URLParam(r, "id")
	note, err := h.service.GetNote(r.Context(), user.ID, id)
	if errors.Is(err, services.ErrNoteNotFound) {
		writeError(w, http.StatusNotFound, "Note not found")
		return nil
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, note)
	return nil
}

// Create handles the request to create a new note.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) error {
	user := auth.CurrentUser(r.Context())
	var payload NotePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil
	}

	note, err := h.service.CreateNote(r.Context(), user.ID, payload.Title, payload.Content)
	if errors.Is(err, services.ErrInvalidNote) {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("note_id", note.ID).Str("user_id", user.ID).Msg("Note created")
	writeJSON(w, http.StatusCreated, note)
	return nil
}

// Update handles the request to update an existing note.
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) error {
	user := auth.CurrentUser(r.Context())
	id := chi.URLParam(r, "id")
	var payload NotePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil
	}

	note, err := h.service.UpdateNote(r.Context(), user.ID, id, payload.Title, payload.Content)
	switch {
	case errors.Is(err, services.ErrNoteNotFound):
		writeError(w, http.StatusNotFound, "Note not found")
		return nil
	case errors.Is(err, services.ErrInvalidNote):
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	case err != nil:
		return err
	}
	writeJSON(w, http.StatusOK, note)
	return nil
}

// Delete handles the request to delete a note.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) error {
	user := auth.CurrentUser(r.Context())
	id := chi.URLParam(r, "id")
	err := h.service.DeleteNote(r.Context(), user.ID, id)
	if errors.Is(err, services.ErrNoteNotFound) {
		writeError(w, http.StatusNotFound, "Note not found")
		return nil
	}
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
