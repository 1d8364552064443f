package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"
)

// state is what a ServerStore tracks next to a session's values. It sits in
// Values under an unexported key and is never persisted.
type state struct {
	expires      time.Time
	lastModified time.Time
	snapshot     []byte // encoded values as loaded
	stale        string // id to destroy on save after a regenerate
	degraded     bool
}

type stateKey struct{}

func stateOf(sess *sessions.Session) *state {
	st, ok := sess.Values[stateKey{}].(*state)
	if !ok {
		st = &state{}
		sess.Values[stateKey{}] = st
	}
	return st
}

// ServerStore is a sessions.Store that keeps session values in a Store and
// puts only a signed session id in the cookie. Only string keys are
// persisted, and values must encode to JSON.
type ServerStore struct {
	backend           Store
	options           sessions.Options
	maxAge            time.Duration
	saveUninitialized bool
	signer            *cookieSigner
	now               func() time.Time
	newID             func() string
}

var _ sessions.Store = (*ServerStore)(nil)

// NewServerStore creates a ServerStore over backend.
func NewServerStore(backend Store, opts Options) *ServerStore {
	s := &ServerStore{
		backend: backend,
		options: sessions.Options{
			Path:     "/",
			MaxAge:   int(opts.MaxAge / time.Second),
			HttpOnly: true,
			Secure:   opts.Secure,
			SameSite: http.SameSiteLaxMode,
		},
		maxAge:            opts.MaxAge,
		saveUninitialized: opts.SaveUninitialized,
		now:               time.Now,
		newID:             uuid.NewString,
	}
	s.signer = &cookieSigner{key: []byte(opts.Secret), now: func() time.Time { return s.now() }}
	return s
}

// Get returns the session for name, cached for the rest of the request.
func (s *ServerStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie, or starts a fresh one.
// When the backend fails the fresh session is returned together with the
// error and is never saved.
func (s *ServerStore) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := s.fresh(name)

	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return sess, nil
	}
	id, expires, err := s.signer.verify(cookie.Value)
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring session cookie")
		return sess, nil
	}

	rec, err := s.backend.Load(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		return sess, nil
	case err != nil:
		stateOf(sess).degraded = true
		return sess, fmt.Errorf("load session: %w", err)
	}

	sess.ID = id
	sess.IsNew = false
	for k, v := range rec.Values {
		sess.Values[k] = v
	}
	st := stateOf(sess)
	st.expires = rec.Expires
	if st.expires.IsZero() {
		st.expires = expires
	}
	st.lastModified = rec.LastModified
	if _, st.snapshot, err = encodeValues(sess.Values); err != nil {
		st.snapshot = nil
	}
	return sess, nil
}

// Save persists a new or modified session and sends its cookie, or keeps an
// unmodified one alive through the backend's throttled touch. A session whose
// Options.MaxAge is negative is destroyed and its cookie cleared.
func (s *ServerStore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	st := stateOf(sess)
	if st.degraded {
		return nil
	}
	ctx := context.WithoutCancel(r.Context())

	if st.stale != "" {
		if err := s.backend.Destroy(ctx, st.stale); err != nil {
			return fmt.Errorf("destroy replaced session: %w", err)
		}
		st.stale = ""
	}

	if sess.Options != nil && sess.Options.MaxAge < 0 {
		if !sess.IsNew {
			if err := s.backend.Destroy(ctx, sess.ID); err != nil {
				return fmt.Errorf("destroy session: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}

	ttl := st.expires.Sub(s.now())
	if ttl <= 0 {
		return s.backend.Destroy(ctx, sess.ID)
	}

	values, doc, err := encodeValues(sess.Values)
	if err != nil {
		return err
	}

	switch {
	case sess.IsNew && len(values) == 0 && !s.saveUninitialized:
		return nil
	case sess.IsNew || !bytes.Equal(doc, st.snapshot):
		rec := &Record{Values: values, Expires: st.expires}
		if err := s.backend.Save(ctx, sess.ID, rec, ttl); err != nil {
			return err
		}
		st.lastModified, st.snapshot = rec.LastModified, doc
		sess.IsNew = false
		return s.setCookie(w, sess, ttl)
	default:
		rec := &Record{Values: values, Expires: st.expires, LastModified: st.lastModified}
		if err := s.backend.Touch(ctx, sess.ID, rec, ttl); err != nil {
			return err
		}
		st.lastModified = rec.LastModified
		return nil
	}
}

func (s *ServerStore) fresh(name string) *sessions.Session {
	sess := sessions.NewSession(s, name)
	opts := s.options
	sess.Options = &opts
	sess.ID = s.newID()
	sess.IsNew = true
	stateOf(sess).expires = s.now().Add(s.maxAge)
	return sess
}

// regenerate gives sess a new id and empties it. The old record is destroyed
// on the next Save.
func (s *ServerStore) regenerate(sess *sessions.Session) {
	st := stateOf(sess)
	if st.stale == "" && !sess.IsNew {
		st.stale = sess.ID
	}
	for k := range sess.Values {
		if _, ok := k.(string); ok {
			delete(sess.Values, k)
		}
	}
	sess.ID = s.newID()
	sess.IsNew = true
	st.expires = s.now().Add(s.maxAge)
	st.snapshot = nil
}

func (s *ServerStore) setCookie(w http.ResponseWriter, sess *sessions.Session, ttl time.Duration) error {
	st := stateOf(sess)
	value, err := s.signer.sign(sess.ID, st.expires)
	if err != nil {
		return fmt.Errorf("sign session cookie: %w", err)
	}
	opts := *sess.Options
	opts.MaxAge = int(ttl / time.Second)
	if opts.MaxAge < 1 {
		opts.MaxAge = 1
	}
	cookie := sessions.NewCookie(sess.Name(), value, &opts)
	cookie.Expires = st.expires
	http.SetCookie(w, cookie)
	return nil
}

func encodeValues(in map[interface{}]interface{}) (map[string]any, []byte, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if key, ok := k.(string); ok {
			out[key] = v
		}
	}
	doc, err := json.Marshal(out)
	if err != nil {
		return nil, nil, fmt.Errorf("encode session values: %w", err)
	}
	return out, doc, nil
}
