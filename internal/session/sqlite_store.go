package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// SQLiteStore keeps sealed session documents in the sessions table created
// by database.Migrate.
type SQLiteStore struct {
	db         *sql.DB
	codec      *codec
	touchAfter time.Duration
	now        func() time.Time
}

// NewSQLiteStore creates a store whose documents are encrypted with a key
// derived from secret.
func NewSQLiteStore(db *sql.DB, secret string, touchAfter time.Duration) (*SQLiteStore, error) {
	c, err := newCodec(secret)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, codec: c, touchAfter: touchAfter, now: time.Now}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*Record, error) {
	var doc []byte
	var expiresAt, lastModified int64
	err := s.db.QueryRowContext(ctx,
		"SELECT data, expires_at, last_modified FROM sessions WHERE id = ?", id,
	).Scan(&doc, &expiresAt, &lastModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if s.now().UnixMilli() >= expiresAt {
		if err := s.Destroy(ctx, id); err != nil {
			log.Warn().Err(err).Msg("Failed to remove expired session")
		}
		return nil, ErrNotFound
	}

	rec, err := s.codec.open(id, doc)
	if err != nil {
		// Written under another secret or tampered with; start over.
		log.Warn().Err(err).Msg("Discarding unreadable session document")
		return nil, ErrNotFound
	}
	rec.LastModified = time.UnixMilli(lastModified)
	return rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, id string, rec *Record, ttl time.Duration) error {
	doc, err := s.codec.seal(id, rec)
	if err != nil {
		return err
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, expires_at, last_modified) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at,
			last_modified = excluded.last_modified`,
		id, doc, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	rec.LastModified = time.UnixMilli(now.UnixMilli())
	return nil
}

func (s *SQLiteStore) Touch(ctx context.Context, id string, rec *Record, ttl time.Duration) error {
	now := s.now()
	if now.Sub(rec.LastModified) < s.touchAfter {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET expires_at = ?, last_modified = ? WHERE id = ?",
		now.Add(ttl).UnixMilli(), now.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	rec.LastModified = time.UnixMilli(now.UnixMilli())
	return nil
}

func (s *SQLiteStore) Destroy(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
