// Package session keeps per-client state across requests on top of
// gorilla/sessions. A ServerStore issues a signed cookie naming an opaque
// session id and keeps the values themselves in a Store; the Manager commits
// the request's working copy right before the response is written.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when a session is absent or expired.
var ErrNotFound = errors.New("session not found")

// Record is the persisted form of a session.
type Record struct {
	Values  map[string]any `json:"values,omitempty"`
	Expires time.Time      `json:"expires"`

	// LastModified is kept by the store and drives touch throttling.
	LastModified time.Time `json:"-"`
}

func (r *Record) clone() *Record {
	c := *r
	c.Values = nil
	if len(r.Values) > 0 {
		// Round-trip so the copy has exactly the shapes a persisted document
		// decodes to, and shares nothing with the original.
		if b, err := json.Marshal(r.Values); err == nil {
			_ = json.Unmarshal(b, &c.Values)
		}
	}
	return &c
}

// Store persists session records keyed by session id. It is the backend of
// a ServerStore.
type Store interface {
	// Load returns the record or ErrNotFound.
	Load(ctx context.Context, id string) (*Record, error)
	// Save writes the record; it expires ttl from now.
	Save(ctx context.Context, id string, rec *Record, ttl time.Duration) error
	// Touch keeps an unmodified record alive. Implementations skip the write
	// when the record was saved or touched within their throttle window.
	Touch(ctx context.Context, id string, rec *Record, ttl time.Duration) error
	// Destroy removes the record. Destroying a missing record is not an error.
	Destroy(ctx context.Context, id string) error
	// DeleteExpired purges expired records and reports how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
