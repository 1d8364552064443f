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
	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when the username is already taken.
	ErrUserExists = errors.New("A user with the given username is already registered")
	// ErrWrongPassword is returned when the password does not match the stored hash.
	ErrWrongPassword = errors.New("wrong password")
	// ErrInvalidUser is returned when registration data is incomplete.
	ErrInvalidUser = errors.New("username and password are required")
	// ErrPasswordTooLong is returned for passwords longer than bcrypt can hash.
	ErrPasswordTooLong = errors.New("Password must be at most 72 bytes")
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	CreateUser(ctx context.Context, username, email, password string) (models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (models.User, error)
}

// UserService provides business logic for user management.
type UserService struct {
	db   *sql.DB
	cost int
	now  func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithHashCost overrides the bcrypt cost, mostly so tests stay fast.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.cost = cost
	return s
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, username, email, created_at FROM users WHERE id = ?", id)
	var user models.User
	var email sql.NullString
	err := row.Scan(&user.ID, &user.Username, &email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	user.Email = email.String
	return user, nil
}

// GetUserByUsername retrieves a single user by username, including the password hash.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?", username)
	var user models.User
	var email sql.NullString
	err := row.Scan(&user.ID, &user.Username, &email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("get user by username: %w", err)
	}
	user.Email = email.String
	return user, nil
}

// CreateUser creates a new user, hashing their password.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.User{}, ErrInvalidUser
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return models.User{}, ErrPasswordTooLong
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hashedPassword),
		CreatedAt:    s.now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users(id, username, email, password_hash, created_at) VALUES(?, ?, ?, ?, ?)",
		user.ID, user.Username, nullString(user.Email), user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

// AuthenticateUser verifies a user's credentials. Callers facing the outside
// world should not tell ErrUserNotFound and ErrWrongPassword apart.
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrWrongPassword
	}

	user.PasswordHash = ""
	return user, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
