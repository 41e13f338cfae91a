package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ayush/sessionauth/internal/logger"
	"github.com/ayush/sessionauth/internal/models"
	"github.com/ayush/sessionauth/internal/passhash"
	"github.com/ayush/sessionauth/internal/session"
)

// UserStore is the data access the verifier needs.
type UserStore interface {
	FetchUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// AuditSink receives login audit events.
type AuditSink interface {
	Record(ctx context.Context, ev models.AuthEvent) error
}

// Authenticator checks credentials and marks sessions as logged in.
type Authenticator struct {
	users  UserStore
	hashes *passhash.Context
	audit  AuditSink
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithAudit records login events to sink.
func WithAudit(sink AuditSink) Option {
	return func(a *Authenticator) { a.audit = sink }
}

func NewAuthenticator(users UserStore, hashes *passhash.Context, opts ...Option) *Authenticator {
	a := &Authenticator{users: users, hashes: hashes}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate returns the id of the user matching username and password.
//
// Absent input, an unknown user, a wrong password and an unreadable stored
// hash all report ok=false with a nil error, so callers cannot tell them
// apart. Only store failures are returned as errors. A hash made by a
// deprecated scheme or with out-of-range parameters is replaced after a
// successful match; that write is best-effort and never fails the login.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (int64, bool, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	// Blank counts as absent, so an empty stored plaintext never matches.
	if username == "" || password == "" {
		return 0, false, nil
	}

	user, err := a.users.FetchUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("authenticate: %w", err)
	}

	log := logger.Log(ctx).With(zap.Int64("user_id", user.ID))
	stored := strings.TrimSpace(user.Password)

	scheme, err := a.hashes.Identify(stored)
	if err != nil {
		log.Warn(ctx, "stored password hash not recognised", zap.Error(err))
		return 0, false, nil
	}
	ok, newHash, err := a.hashes.VerifyAndUpdate(password, stored)
	switch {
	case err != nil && !ok:
		log.Warn(ctx, "stored password hash unreadable", zap.String("scheme", scheme.Name()), zap.Error(err))
		return 0, false, nil
	case !ok:
		return 0, false, nil
	case err != nil:
		log.Warn(ctx, "password rehash failed", zap.String("from", scheme.Name()), zap.Error(err))
	case newHash != "":
		a.storeRehash(ctx, log, user.ID, scheme.Name(), newHash)
	}
	return user.ID, true, nil
}

func (a *Authenticator) storeRehash(ctx context.Context, log *logger.Logger, id int64, from, hash string) {
	if err := a.users.UpdatePassword(ctx, id, hash); err != nil {
		log.Warn(ctx, "storing rehashed password failed", zap.String("from", from), zap.Error(err))
		return
	}
	log.Info(ctx, "password rehashed", zap.String("from", from), zap.String("to", a.hashes.Default().Name()))
	a.record(ctx, models.AuthEvent{Type: models.EventPasswordRehashed, UserID: id, Scheme: from})
}

// CheckLogin authenticates and, on success, marks sess as a fresh permanent
// session for the user. On failure sess is left untouched.
func (a *Authenticator) CheckLogin(ctx context.Context, sess *session.Session, username, password string) (bool, error) {
	id, ok, err := a.Authenticate(ctx, username, password)
	if err != nil {
		return false, err
	}
	if !ok {
		a.record(ctx, models.AuthEvent{Type: models.EventLoginFailed, Username: strings.TrimSpace(username)})
		return false, nil
	}

	sess.New = true
	sess.Permanent = true
	sess.Set(session.UserIDKey, id)

	a.record(ctx, models.AuthEvent{Type: models.EventLoginSucceeded, UserID: id})
	return true, nil
}

// Logout drops the user from sess. It reports whether anyone was logged in.
func (a *Authenticator) Logout(ctx context.Context, sess *session.Session) bool {
	id, ok := sess.UserID()
	if !ok {
		return false
	}
	sess.Delete(session.UserIDKey)
	a.record(ctx, models.AuthEvent{Type: models.EventLogout, UserID: id})
	return true
}

// IsLoggedIn reports whether sess carries a non-null user id.
func IsLoggedIn(sess *session.Session) bool {
	if sess == nil {
		return false
	}
	_, ok := sess.Get(session.UserIDKey)
	return ok
}

func (a *Authenticator) record(ctx context.Context, ev models.AuthEvent) {
	if a.audit == nil {
		return
	}
	if id, ok := logger.GetRequestID(ctx); ok {
		ev.RequestID = id
	}
	ev.CreatedAt = time.Now().UTC()
	if err := a.audit.Record(ctx, ev); err != nil {
		logger.Log(ctx).Warn(ctx, "audit record failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
}
