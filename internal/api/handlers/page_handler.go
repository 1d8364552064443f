package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/notekeeper/internal/auth"
	"github.com/isdelr/notekeeper/internal/models"
	"github.com/isdelr/notekeeper/internal/services"
	"github.com/isdelr/notekeeper/internal/session"
	"github.com/isdelr/notekeeper/internal/view"
)

// PageHandler renders the HTML pages for notes.
type PageHandler struct {
	notes services.NoteServiceProvider
	views *view.Renderer
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(notes services.NoteServiceProvider, views *view.Renderer) *PageHandler {
	return &PageHandler{notes: notes, views: views}
}

// Index lists the user's notes, or shows the landing page to visitors.
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) error {
	page := view.Page{Title: "Home"}
	if user := auth.CurrentUser(r.Context()); user != nil {
		notes, err := h.notes.ListNotes(r.Context(), user.ID)
		if err != nil {
			return err
		}
		page.Data = notes
	}
	h.views.Render(w, r, http.StatusOK, "pages/index.html", page)
	return nil
}

// New renders the form for a new note.
func (h *PageHandler) New(w http.ResponseWriter, r *http.Request) error {
	h.views.Render(w, r, http.StatusOK, "notes/new.html", view.Page{Title: "New note"})
	return nil
}

// Create saves a note posted from the form.
func (h *PageHandler) Create(w http.ResponseWriter, r *http.Request) error {
	user := auth.CurrentUser(r.Context())
	s := session.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		return NewError(http.StatusBadRequest, "Invalid form submission")
	}

	note, err := h.notes.CreateNote(r.Context(), user.ID, r.PostFormValue("title"), r.PostFormValue("content"))
	if errors.Is(err, services.ErrInvalidNote) {
		s.AddFlash("error", "A note needs a title")
		http.Redirect(w, r, "/notes/new", http.StatusFound)
		return nil
	}
	if err != nil {
		return err
	}
	s.AddFlash("success", "Note created!")
	http.Redirect(w, r, "/notes/"+note.ID, http.StatusFound)
	return nil
}

// Show renders a single note.
func (h *PageHandler) Show(w http.ResponseWriter, r *http.Request) error {
	note, err := h.load(r)
	if err != nil {
		return err
	}
	h.views.Render(w, r, http.StatusOK, "notes/show.html", view.Page{Title: note.Title, Data: note})
	return nil
}

// Edit renders the edit form for a note.
func (h *PageHandler) Edit(w http.ResponseWriter, r *http.Request) error {
	note, err := h.load(r)
	if err != nil {
		return err
	}
	h.views.Render(w, r, http.StatusOK, "notes/edit.html", view.Page{Title: "Edit " + note.Title, Data: note})
	return nil
}

// Update saves the edit form.
func (h *PageHandler) Update(w http.ResponseWriter, r *http.Request) error {
	user := auth.CurrentUser(r.Context())
	s := session.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		return NewError(http.StatusBadRequest, "Invalid form submission")
	}

	_, err := h.notes.UpdateNote(r.Context(), user.ID, id, r.PostFormValue("title"), r.PostFormValue("content"))
	switch {
	case errors.Is(err, services.ErrNoteNotFound):
		return &Error{StatusCode: http.StatusNotFound, Message: "Note not found", Err: err}
	case errors.Is(err, services.ErrInvalidNote):
		s.AddFlash("error", "A note needs a title")
		http.Redirect(w, r, "/notes/"+id+"/edit", http.StatusFound)
		return nil
	case err != nil:
		return err
	}
	s.AddFlash("success", "Note updated!")
	http.Redirect(w, r, "/notes/"+id, http.StatusFound)
	return nil
}

// Delete removes a note and flashes the deletion.
func (h *PageHandler) Delete(w http.ResponseWriter, r *http.Request) error {
	user := auth.CurrentUser(r.Context())
	err := h.notes.DeleteNote(r.Context(), user.ID, chi.URLParam(r, "id"))
	if errors.Is(err, services.ErrNoteNotFound) {
		return &Error{StatusCode: http.StatusNotFound, Message: "Note not found", Err: err}
	}
	if err != nil {
		return err
	}
	session.FromContext(r.Context()).AddFlash("deleted", "Note deleted!")
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

func (h *PageHandler) load(r *http.Request) (models.Note, error) {
	user := auth.CurrentUser(r.Context())
	note, err := h.notes.GetNote(r.Context(), user.ID, chi.URLParam(r, "id"))
	if errors.Is(err, services.ErrNoteNotFound) {
		return models.Note{}, &Error{StatusCode: http.StatusNotFound, Message: "Note not found", Err: err}
	}
	return note, err
}
