package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/sessionauth/internal/models"
	"github.com/ayush/sessionauth/internal/session"
)

type fakeActivity struct {
	events []models.AuthEvent
	gotID  int64
}

func (f *fakeActivity) RecentEvents(_ context.Context, userID int64, _ int64) ([]models.AuthEvent, error) {
	f.gotID = userID
	return f.events, nil
}

type testServer struct {
	router http.Handler
	users  *fakeUsers
	mr     *miniredis.Miniredis
}

func newTestServer(t *testing.T, activity ActivityLog) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sessions := session.NewRedisStore(rdb, session.Options{TTL: time.Hour, PermanentTTL: 24 * time.Hour})

	users := newFakeUsers(&models.User{ID: 11, Username: "alice", Password: pbkdf2Hash(t, 1500, "s3cret")})
	h := NewHandler(NewAuthenticator(users, testHashes(t)), users, sessions, activity, "/login")

	r := chi.NewRouter()
	r.Use(sessions.Middleware)
	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/", h.Home)
	r.Get("/api/me", h.Me)
	r.Get("/api/me/activity", h.Activity)

	return &testServer{router: r, users: users, mr: mr}
}

func (s *testServer) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func jsonLogin(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return req
}

func formLogin(username, password string) *http.Request {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			return c
		}
	}
	return nil
}

func TestLoginForm_Renders(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/login", nil), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/login"`)
}

func TestLogin_JSONSuccess(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(jsonLogin(`{"username":"alice","password":"s3cret"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(11), body["user_id"])

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Positive(t, cookie.MaxAge, "login sessions are permanent")

	me := s.do(httptest.NewRequest(http.MethodGet, "/api/me", nil), cookie)
	require.Equal(t, http.StatusOK, me.Code)
	var user models.User
	require.NoError(t, json.NewDecoder(me.Body).Decode(&user))
	assert.Equal(t, "alice", user.Username)
	assert.NotContains(t, me.Body.String(), "pbkdf2")
}

func TestLogin_RotatesExistingSession(t *testing.T) {
	s := newTestServer(t, nil)

	first := s.do(httptest.NewRequest(http.MethodGet, "/login", nil), nil)
	assert.Nil(t, sessionCookie(first), "anonymous visits do not create sessions")

	sess := session.NewSession()
	sess.Set("theme", "dark")
	rdb := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := session.NewRedisStore(rdb, session.Options{})
	require.NoError(t, store.Save(context.Background(), httptest.NewRecorder(), sess))
	oldID := sess.ID

	rec := s.do(jsonLogin(`{"username":"alice","password":"s3cret"}`), &http.Cookie{Name: session.DefaultCookieName, Value: oldID})
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.NotEqual(t, oldID, cookie.Value)
	assert.False(t, s.mr.Exists("session:"+oldID))
}

func TestLogin_FormSuccessRedirects(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(formLogin("alice", "s3cret"), nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	require.NotNil(t, sessionCookie(rec))

	home := s.do(httptest.NewRequest(http.MethodGet, "/", nil), sessionCookie(rec))
	assert.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), "Signed in as alice")
}

func TestLogin_FormFailureRerendersForm(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(formLogin("alice", "wrong"), nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password.")
	assert.Contains(t, rec.Body.String(), `value="alice"`)
	assert.Nil(t, sessionCookie(rec))
}

func TestLogin_JSONFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"wrong password", `{"username":"alice","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"mallory","password":"s3cret"}`, http.StatusUnauthorized},
		{"missing password", `{"username":"alice"}`, http.StatusUnauthorized},
		{"null username", `{"username":null,"password":"s3cret"}`, http.StatusUnauthorized},
		{"bad json", `{"username":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)

			rec := s.do(jsonLogin(tt.body), nil)

			assert.Equal(t, tt.code, rec.Code)
			assert.Nil(t, sessionCookie(rec))
		})
	}
}

func TestLogin_StoreError(t *testing.T) {
	s := newTestServer(t, nil)
	s.users.fetchErr = errors.New("db down")

	rec := s.do(jsonLogin(`{"username":"alice","password":"s3cret"}`), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestLoginForm_LoggedInRedirectsHome(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := sessionCookie(s.do(jsonLogin(`{"username":"alice","password":"s3cret"}`), nil))
	require.NotNil(t, cookie)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/login", nil), cookie)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestHandler_Logout(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := sessionCookie(s.do(jsonLogin(`{"username":"alice","password":"s3cret"}`), nil))
	require.NotNil(t, cookie)

	rec := s.do(httptest.NewRequest(http.MethodPost, "/logout", nil), cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.False(t, s.mr.Exists("session:"+cookie.Value))

	me := s.do(httptest.NewRequest(http.MethodGet, "/api/me", nil), cookie)
	assert.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestActivity(t *testing.T) {
	activity := &fakeActivity{events: []models.AuthEvent{{Type: models.EventLoginSucceeded, UserID: 11}}}
	s := newTestServer(t, activity)
	cookie := sessionCookie(s.do(jsonLogin(`{"username":"alice","password":"s3cret"}`), nil))
	require.NotNil(t, cookie)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/me/activity", nil), cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(11), activity.gotID)
	var events []models.AuthEvent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, models.EventLoginSucceeded, events[0].Type)
}

func TestActivity_Disabled(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/me/activity", nil), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
