package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/isdelr/notekeeper/internal/auth"
	"github.com/isdelr/notekeeper/internal/config"
	"github.com/isdelr/notekeeper/internal/database"
	"github.com/isdelr/notekeeper/internal/models"
	"github.com/isdelr/notekeeper/internal/services"
	"github.com/isdelr/notekeeper/internal/session"
	"github.com/isdelr/notekeeper/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

// flakyUsers fails user lookups on demand.
type flakyUsers struct {
	services.UserServiceProvider
	fail bool
}

func (f *flakyUsers) GetUserByID(ctx context.Context, id string) (models.User, error) {
	if f.fail {
		return models.User{}, errors.New("database is locked")
	}
	return f.UserServiceProvider.GetUserByID(ctx, id)
}

// RouterTestSuite drives the full middleware stack over HTTP.
type RouterTestSuite struct {
	suite.Suite
	server *httptest.Server
	client *http.Client
	users  *flakyUsers
}

func (suite *RouterTestSuite) SetupTest() {
	t := suite.T()

	db, err := database.New(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Port:        "3000",
		AppName:     "Notes",
		CORSOrigins: []string{"*"},
	}
	users := services.NewUserService(db).WithHashCost(bcrypt.MinCost)
	notes := services.NewNoteService(db)
	views, err := view.NewRenderer()
	require.NoError(t, err)

	suite.users = &flakyUsers{UserServiceProvider: users}
	authenticator := auth.NewAuthenticator(suite.users, auth.NewLocalStrategy(users))
	sessions := session.NewManager(session.NewMemoryStore(24*time.Hour), session.Options{
		CookieName:        "notes.sid",
		MaxAge:            time.Hour,
		Secret:            "router-test-secret",
		SaveUninitialized: true,
	})

	suite.server = httptest.NewServer(NewRouter(cfg, sessions, authenticator, views, users, notes))
	t.Cleanup(suite.server.Close)
	suite.client = suite.newClient()
}

func (suite *RouterTestSuite) newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(suite.T(), err)
	return &http.Client{Jar: jar}
}

func (suite *RouterTestSuite) get(c *http.Client, path string) (*http.Response, string) {
	resp, err := c.Get(suite.server.URL + path)
	require.NoError(suite.T(), err)
	return resp, readBody(suite.T(), resp)
}

func (suite *RouterTestSuite) postForm(c *http.Client, path string, form url.Values) (*http.Response, string) {
	resp, err := c.PostForm(suite.server.URL+path, form)
	require.NoError(suite.T(), err)
	return resp, readBody(suite.T(), resp)
}

func (suite *RouterTestSuite) doJSON(c *http.Client, method, path string, body any) *http.Response {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(suite.T(), err)
		r = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, suite.server.URL+path, r)
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(suite.T(), err)
	return resp
}

func (suite *RouterTestSuite) signup(c *http.Client, username string) string {
	_, body := suite.postForm(c, "/auth/signup", url.Values{
		"username": {username},
		"email":    {username + "@example.com"},
		"password": {"correct horse"},
	})
	return body
}

func readBody(t *testing.T, resp *http.Response) string {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (suite *RouterTestSuite) TestNewClientGetsSessionCookie() {
	t := suite.T()

	resp, err := http.Get(suite.server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "notes.sid" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
}

func (suite *RouterTestSuite) TestSignupLogsInAndFlashesOnce() {
	t := suite.T()

	body := suite.signup(suite.client, "alice")
	assert.Contains(t, body, "Welcome to Notes!")
	assert.Contains(t, body, "Your notes")
	assert.Contains(t, body, "alice")

	_, body = suite.get(suite.client, "/")
	assert.NotContains(t, body, "Welcome to Notes!", "flash is shown once")
	assert.Contains(t, body, "Your notes", "the cookie alone still identifies the user")
}

func (suite *RouterTestSuite) TestDuplicateSignup() {
	t := suite.T()

	suite.signup(suite.client, "alice")
	body := suite.signup(suite.newClient(), "alice")
	assert.Contains(t, body, "A user with the given username is already registered")
}

func (suite *RouterTestSuite) TestSignupRejectsOverlongPassword() {
	t := suite.T()

	resp, body := suite.postForm(suite.client, "/auth/signup", url.Values{
		"username": {"alice"},
		"password": {strings.Repeat("x", 73)},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/auth/signup", resp.Request.URL.Path)
	assert.Contains(t, body, "Password must be at most 72 bytes")
}

func (suite *RouterTestSuite) TestUserLoadFailureKeepsSiteLocals() {
	t := suite.T()

	suite.signup(suite.client, "alice")
	suite.users.fail = true

	resp, body := suite.get(suite.client, "/")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "<title>Something went wrong | Notes</title>")
	assert.Contains(t, body, `<a class="brand" href="/">Notes</a>`)
	assert.Contains(t, body, `href="`+suite.server.URL+`"`)
}

func (suite *RouterTestSuite) TestLoginFailureIsGeneric() {
	t := suite.T()

	suite.signup(suite.newClient(), "alice")

	_, wrongPassword := suite.postForm(suite.client, "/auth/login", url.Values{"username": {"alice"}, "password": {"nope"}})
	_, unknownUser := suite.postForm(suite.client, "/auth/login", url.Values{"username": {"bob"}, "password": {"nope"}})
	assert.Contains(t, wrongPassword, "Password or username is incorrect")
	assert.Contains(t, unknownUser, "Password or username is incorrect")

	_, body := suite.postForm(suite.client, "/auth/login", url.Values{"username": {"alice"}, "password": {"correct horse"}})
	assert.Contains(t, body, "Welcome back to Notes!")
}

func (suite *RouterTestSuite) TestLogout() {
	t := suite.T()

	suite.signup(suite.client, "alice")
	_, body := suite.get(suite.client, "/auth/logout")
	assert.Contains(t, body, "You are logged out!")
	assert.Contains(t, body, "Create an account")

	_, body = suite.get(suite.client, "/")
	assert.NotContains(t, body, "Your notes")
}

func (suite *RouterTestSuite) TestPagesRequireLogin() {
	t := suite.T()

	resp, body := suite.get(suite.client, "/notes/new")
	assert.Equal(t, "/auth/login", resp.Request.URL.Path)
	assert.Contains(t, body, "You must be logged in first!")
}

func (suite *RouterTestSuite) TestNoteLifecycleWithMethodOverride() {
	t := suite.T()
	suite.signup(suite.client, "alice")

	resp, body := suite.postForm(suite.client, "/notes", url.Values{"title": {"Groceries"}, "content": {"milk"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Note created!")
	assert.Contains(t, body, "Groceries")
	notePath := resp.Request.URL.Path
	require.True(t, strings.HasPrefix(notePath, "/notes/"))

	_, body = suite.get(suite.client, notePath+"/edit")
	assert.Contains(t, body, `value="Groceries"`)

	_, body = suite.postForm(suite.client, notePath+"?_method=PUT", url.Values{"title": {"Shopping"}, "content": {"eggs"}})
	assert.Contains(t, body, "Note updated!")
	assert.Contains(t, body, "Shopping")

	resp, body = suite.postForm(suite.client, notePath+"?_method=DELETE", nil)
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Contains(t, body, "Note deleted!")
	assert.Contains(t, body, "No notes yet")

	resp, body = suite.get(suite.client, notePath)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Note not found")
}

func (suite *RouterTestSuite) TestNotesAreScopedToOwner() {
	t := suite.T()
	suite.signup(suite.client, "alice")
	resp, _ := suite.postForm(suite.client, "/notes", url.Values{"title": {"Private"}})
	notePath := resp.Request.URL.Path

	other := suite.newClient()
	suite.signup(other, "bob")
	resp, _ = suite.get(other, notePath)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (suite *RouterTestSuite) TestUnknownRouteRenders404() {
	t := suite.T()

	resp, body := suite.get(suite.client, "/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found")

	resp, _ = suite.get(suite.client, "/auth/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (suite *RouterTestSuite) TestCanonicalDomainFromRequest() {
	_, body := suite.get(suite.client, "/")
	assert.Contains(suite.T(), body, `href="`+suite.server.URL+`"`)
}

func (suite *RouterTestSuite) TestAPIRequiresAuthentication() {
	resp := suite.doJSON(suite.client, http.MethodGet, "/api/notes", nil)
	defer resp.Body.Close()
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (suite *RouterTestSuite) TestAPICRUD() {
	t := suite.T()
	suite.signup(suite.client, "alice")

	resp := suite.doJSON(suite.client, http.MethodPost, "/api/notes", map[string]string{"title": "API", "content": "body"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, "API", created.Title)

	resp = suite.doJSON(suite.client, http.MethodPut, "/api/notes/"+created.ID, map[string]string{"title": "API v2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = suite.doJSON(suite.client, http.MethodGet, "/api/notes", nil)
	var list []models.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, "API v2", list[0].Title)

	other := suite.newClient()
	suite.signup(other, "bob")
	resp = suite.doJSON(other, http.MethodGet, "/api/notes/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = suite.doJSON(suite.client, http.MethodPost, "/api/notes", map[string]string{"content": "untitled"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = suite.doJSON(suite.client, http.MethodDelete, "/api/notes/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = suite.doJSON(suite.client, http.MethodDelete, "/api/notes/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func TestMethodOverrideOnlyForPost(t *testing.T) {
	var got string
	h := methodOverride(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = r.Method }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/notes/1?_method=delete", nil))
	assert.Equal(t, http.MethodDelete, got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/notes/1?_method=DELETE", nil))
	assert.Equal(t, http.MethodGet, got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/notes/1?_method=CONNECT", nil))
	assert.Equal(t, http.MethodPost, got)
}
