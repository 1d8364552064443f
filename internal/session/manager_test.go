package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type clock struct{ t time.Time }

func (c *clock) now() time.Time         { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(store Store, c *clock) *Manager {
	m := NewManager(store, Options{
		CookieName:        "sid",
		MaxAge:            7 * 24 * time.Hour,
		Secret:            testSecret,
		SaveUninitialized: true,
	})
	m.store.now = c.now
	return m
}

func newTestStore(c *clock) *MemoryStore {
	s := NewMemoryStore(24 * time.Hour)
	s.now = c.now
	return s
}

// serve runs h behind the manager, replaying cookie when non-nil.
func serve(m *Manager, cookie *http.Cookie, h http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	return nil
}

func noop(w http.ResponseWriter, r *http.Request) {}

func TestNewClientGetsHTTPOnlyCookie(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newTestStore(c)
	m := newTestManager(store, c)

	var id string
	rec := serve(m, nil, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		require.NotNil(t, s)
		assert.True(t, s.IsNew())
		id = s.ID()
	})

	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, c.t.Add(7*24*time.Hour).Unix(), cookie.Expires.Unix())
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, store.Len(), "uninitialized sessions are saved")
}

func TestSessionSurvivesAcrossRequests(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(newTestStore(c), c)

	var firstID string
	rec := serve(m, nil, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		s.SetUserID("user-1")
		firstID = s.ID()
	})
	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)

	c.advance(time.Hour)
	rec = serve(m, cookie, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		assert.False(t, s.IsNew())
		assert.Equal(t, firstID, s.ID())
		assert.Equal(t, "user-1", s.UserID())
	})
	assert.Nil(t, sessionCookie(t, rec), "unmodified session does not resend the cookie")
}

func TestExpiryIsFixedAtIssuance(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(newTestStore(c), c)
	issued := c.t

	cookie := sessionCookie(t, serve(m, nil, noop))
	require.NotNil(t, cookie)

	c.advance(3 * 24 * time.Hour)
	rec := serve(m, cookie, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).AddFlash("success", "saved")
	})
	resent := sessionCookie(t, rec)
	require.NotNil(t, resent, "modified session resends the cookie")
	assert.Equal(t, issued.Add(7*24*time.Hour).Unix(), resent.Expires.Unix())

	c.advance(4*24*time.Hour + time.Second)
	serve(m, resent, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, FromContext(r.Context()).IsNew(), "session is gone after seven days")
	})
}

func TestFlashesDrainOnce(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(newTestStore(c), c)

	cookie := sessionCookie(t, serve(m, nil, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		s.AddFlash("success", "one")
		s.AddFlash("success", "two")
		s.AddFlash("error", "bad")
	}))
	require.NotNil(t, cookie)

	serve(m, cookie, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		assert.Equal(t, []string{"one", "two"}, s.Flashes("success"))
		assert.Nil(t, s.Flashes("deleted"))
	})
	serve(m, cookie, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		assert.Nil(t, s.Flashes("success"))
		assert.Equal(t, []string{"bad"}, s.Flashes("error"))
	})
	serve(m, cookie, func(w http.ResponseWriter, r *http.Request) {
		assert.Nil(t, FromContext(r.Context()).Flashes("error"))
	})
}

func TestRegenerateReplacesID(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newTestStore(c)
	m := newTestManager(store, c)

	cookie := sessionCookie(t, serve(m, nil, noop))
	require.NotNil(t, cookie)

	var oldID, newID string
	rec := serve(m, cookie, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		oldID = s.ID()
		s.Regenerate()
		s.SetUserID("user-1")
		newID = s.ID()
	})
	assert.NotEqual(t, oldID, newID)

	_, err := store.Load(context.Background(), oldID)
	assert.ErrorIs(t, err, ErrNotFound)

	fresh := sessionCookie(t, rec)
	require.NotNil(t, fresh)
	serve(m, fresh, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user-1", FromContext(r.Context()).UserID())
	})
	serve(m, cookie, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, FromContext(r.Context()).UserID(), "old cookie no longer resolves")
	})
}

func TestDestroyClearsCookie(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newTestStore(c)
	m := newTestManager(store, c)

	cookie := sessionCookie(t, serve(m, nil, noop))
	require.NotNil(t, cookie)

	rec := serve(m, cookie, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Destroy()
	})
	cleared := sessionCookie(t, rec)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Equal(t, 0, store.Len())
}

func TestTamperedCookieStartsNewSession(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(newTestStore(c), c)

	var firstID string
	cookie := sessionCookie(t, serve(m, nil, func(w http.ResponseWriter, r *http.Request) {
		firstID = FromContext(r.Context()).ID()
	}))
	require.NotNil(t, cookie)

	parts := strings.Split(cookie.Value, ".")
	require.Len(t, parts, 3)
	forged := &http.Cookie{Name: "sid", Value: parts[0] + "." + parts[1] + ".AAAA"}

	serve(m, forged, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		assert.True(t, s.IsNew())
		assert.NotEqual(t, firstID, s.ID())
	})
}

func TestCommitHappensBeforeHeaders(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(newTestStore(c), c)

	rec := serve(m, nil, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).AddFlash("success", "hi")
		http.Redirect(w, r, "/next", http.StatusFound)
	})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.NotNil(t, sessionCookie(t, rec))
}

type brokenStore struct{ *MemoryStore }

func (b *brokenStore) Load(context.Context, string) (*Record, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureDegradesSession(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	healthy := newTestStore(c)
	m := newTestManager(healthy, c)
	cookie := sessionCookie(t, serve(m, nil, noop))
	require.NotNil(t, cookie)

	broken := &brokenStore{MemoryStore: NewMemoryStore(time.Hour)}
	m2 := newTestManager(broken, c)

	called := false
	rec := serve(m2, cookie, func(w http.ResponseWriter, r *http.Request) {
		called = true
		s := FromContext(r.Context())
		assert.True(t, s.Degraded())
		s.AddFlash("success", "not persisted")
		w.WriteHeader(http.StatusOK)
	})
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sessionCookie(t, rec), "degraded sessions leave the client cookie alone")
	assert.Equal(t, 0, broken.Len())
}

func TestTouchIsThrottled(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newTestStore(c)
	m := newTestManager(store, c)

	var id string
	cookie := sessionCookie(t, serve(m, nil, func(w http.ResponseWriter, r *http.Request) {
		id = FromContext(r.Context()).ID()
	}))
	require.NotNil(t, cookie)
	saved := c.t

	c.advance(time.Hour)
	serve(m, cookie, noop)
	rec, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, saved, rec.LastModified, "touch within 24h is skipped")

	c.advance(24 * time.Hour)
	serve(m, cookie, noop)
	rec, err = store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, c.t, rec.LastModified, "touch after 24h is written")
}
