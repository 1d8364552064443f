package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/notekeeper/internal/api/handlers"
	"github.com/isdelr/notekeeper/internal/auth"
	"github.com/isdelr/notekeeper/internal/config"
	"github.com/isdelr/notekeeper/internal/services"
	"github.com/isdelr/notekeeper/internal/session"
	"github.com/isdelr/notekeeper/internal/view"
)

const loginPath = "/auth/login"

// NewRouter creates and configures a new Chi router.
func NewRouter(cfg *config.Config, sessions *session.Manager, authenticator *auth.Authenticator, views *view.Renderer, userService services.UserServiceProvider, noteService services.NoteServiceProvider) *chi.Mux {
	r := chi.NewRouter()
	errs := handlers.NewErrorHandler(views)

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(methodOverride)

	// Session, site locals, user and per-request locals, in that order.
	r.Use(sessions.Middleware)
	r.Use(siteLocals(cfg))
	r.Use(authenticator.Middleware(errs.Handle))
	r.Use(populateLocals)
	r.Use(errs.Recover)

	r.NotFound(errs.NotFound)
	r.MethodNotAllowed(errs.NotFound)

	// Initialize handlers
	pageHandler := handlers.NewPageHandler(noteService, views)
	userHandler := handlers.NewUserHandler(userService, authenticator, views, cfg.AppName)
	noteHandler := handlers.NewNoteHandler(noteService)

	r.Get("/", errs.Wrap(pageHandler.Index))
	r.Route("/notes", func(r chi.Router) {
		r.Use(auth.RequireUser(loginPath))
		r.Get("/new", errs.Wrap(pageHandler.New))
		r.Post("/", errs.Wrap(pageHandler.Create))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", errs.Wrap(pageHandler.Show))
			r.Get("/edit", errs.Wrap(pageHandler.Edit))
			r.Put("/", errs.Wrap(pageHandler.Update))
			r.Delete("/", errs.Wrap(pageHandler.Delete))
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/signup", errs.Wrap(userHandler.SignupForm))
		r.Post("/signup", errs.Wrap(userHandler.Signup))
		r.Get("/login", errs.Wrap(userHandler.LoginForm))
		r.Post("/login", errs.Wrap(userHandler.Login))
		r.Get("/logout", errs.Wrap(userHandler.Logout))
		r.Post("/logout", errs.Wrap(userHandler.Logout))
	})

	r.Route("/api/notes", func(r chi.Router) {
		r.Use(auth.RequireUserJSON)
		r.Get("/", errs.Wrap(noteHandler.GetAll))
		r.Post("/", errs.Wrap(noteHandler.Create))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", errs.Wrap(noteHandler.Get))
			r.Put("/", errs.Wrap(noteHandler.Update))
			r.Delete("/", errs.Wrap(noteHandler.Delete))
		})
	})

	return r
}
