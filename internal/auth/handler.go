package auth

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayush/sessionauth/internal/logger"
	"github.com/ayush/sessionauth/internal/models"
	"github.com/ayush/sessionauth/internal/session"
)

// SessionStore persists the request session.
type SessionStore interface {
	Save(ctx context.Context, w http.ResponseWriter, sess *session.Session) error
	Destroy(ctx context.Context, w http.ResponseWriter, sess *session.Session) error
}

// UserLookup resolves the logged-in user.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// ActivityLog lists a user's recent audit events.
type ActivityLog interface {
	RecentEvents(ctx context.Context, userID int64, limit int64) ([]models.AuthEvent, error)
}

// Handler holds auth-related HTTP handlers.
type Handler struct {
	auth      *Authenticator
	users     UserLookup
	sessions  SessionStore
	activity  ActivityLog
	loginPath string
}

// NewHandler wires the handlers. activity may be nil when auditing is off.
func NewHandler(a *Authenticator, users UserLookup, sessions SessionStore, activity ActivityLog, loginPath string) *Handler {
	return &Handler{auth: a, users: users, sessions: sessions, activity: activity, loginPath: loginPath}
}

var pages = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><title>Sign in</title></head>
<body>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="{{.Action}}">
  <label>Username <input name="username" value="{{.Username}}" autocomplete="username"></label>
  <label>Password <input name="password" type="password" autocomplete="current-password"></label>
  <button type="submit">Sign in</button>
</form>
</body></html>
`))

func init() {
	template.Must(pages.New("home").Parse(`<!doctype html>
<html><head><title>Home</title></head>
<body>
<p>Signed in as {{.Username}}.</p>
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
</body></html>
`))
}

type loginPage struct {
	Action   string
	Username string
	Error    string
}

// LoginForm renders the sign-in page. Logged-in users go straight home.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if IsLoggedIn(session.FromContext(r.Context())) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.renderLogin(w, r, http.StatusOK, "", "")
}

// Login checks credentials from a form post or a JSON body and starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if sess == nil {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	asJSON := isJSON(r)
	username, password, err := readCredentials(r, asJSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok, err := h.auth.CheckLogin(ctx, sess, username, password)
	if err != nil {
		logger.Log(ctx).Error(ctx, "login check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		if asJSON {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.renderLogin(w, r, http.StatusUnauthorized, username, "Invalid username or password.")
		return
	}

	if err := h.sessions.Save(ctx, w, sess); err != nil {
		logger.Log(ctx).Error(ctx, "session save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session creation failed")
		return
	}

	if asJSON {
		id, _ := sess.UserID()
		writeJSON(w, http.StatusOK, map[string]int64{"user_id": id})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout destroys the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sess := session.FromContext(ctx); sess != nil {
		h.auth.Logout(ctx, sess)
		if err := h.sessions.Destroy(ctx, w, sess); err != nil {
			logger.Log(ctx).Error(ctx, "session destroy failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
}

// Home is the landing page behind the login gate.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, "home", user); err != nil {
		logger.Log(r.Context()).Error(r.Context(), "render home", zap.Error(err))
	}
}

// Me returns the currently authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Activity returns the user's recent login events.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	if h.activity == nil {
		writeError(w, http.StatusNotFound, "audit trail disabled")
		return
	}
	id, ok := sessionUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	events, err := h.activity.RecentEvents(r.Context(), id, 20)
	if err != nil {
		logger.Log(r.Context()).Error(r.Context(), "load activity", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	ctx := r.Context()
	id, ok := sessionUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}

	user, err := h.users.GetUserByID(ctx, id)
	if errors.Is(err, models.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	if err != nil {
		logger.Log(ctx).Error(ctx, "load current user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return user, true
}

func sessionUserID(r *http.Request) (int64, bool) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	return sess.UserID()
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, username, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	page := loginPage{Action: h.loginPath, Username: username, Error: msg}
	if err := pages.ExecuteTemplate(w, "login", page); err != nil {
		logger.Log(r.Context()).Error(r.Context(), "render login", zap.Error(err))
	}
}

// readCredentials returns empty strings for absent fields; Authenticate
// treats those as no match.
func readCredentials(r *http.Request, asJSON bool) (string, string, error) {
	if asJSON {
		var req models.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", "", err
		}
		var username, password string
		if req.Username != nil {
			username = *req.Username
		}
		if req.Password != nil {
			password = *req.Password
		}
		return username, password, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", "", err
	}
	return r.PostForm.Get("username"), r.PostForm.Get("password"), nil
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
