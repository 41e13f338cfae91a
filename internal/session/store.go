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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ayush/sessionauth/internal/logger"
)

const (
	DefaultCookieName   = "session_id"
	DefaultTTL          = 24 * time.Hour
	DefaultPermanentTTL = 31 * 24 * time.Hour

	keyPrefix = "session:"
)

// Options configures a RedisStore. Zero values take the defaults above.
type Options struct {
	CookieName   string
	TTL          time.Duration
	PermanentTTL time.Duration
	Secure       bool
}

// RedisStore persists sessions as JSON under session:<id>.
type RedisStore struct {
	rdb  redis.Cmdable
	opts Options
}

type record struct {
	Values    map[string]any `json:"values"`
	Permanent bool           `json:"permanent"`
}

func NewRedisStore(rdb redis.Cmdable, opts Options) *RedisStore {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.PermanentTTL <= 0 {
		opts.PermanentTTL = DefaultPermanentTTL
	}
	return &RedisStore{rdb: rdb, opts: opts}
}

// Load returns the session named by the request cookie. A missing cookie, an
// expired key or an unreadable record yields an empty unsaved session.
func (s *RedisStore) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(s.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return NewSession(), nil
	}

	raw, err := s.rdb.Get(ctx, keyPrefix+cookie.Value).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var rec record
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		logger.Log(ctx).Warn(ctx, "discarding unreadable session", zap.Error(err))
		return NewSession(), nil
	}
	if rec.Values == nil {
		rec.Values = make(map[string]any)
	}

	return &Session{ID: cookie.Value, Values: rec.Values, Permanent: rec.Permanent}, nil
}

// Save writes sess and sets the cookie. A new or never-saved session gets a
// fresh id and its previous key, if any, is removed.
func (s *RedisStore) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	oldID := sess.ID
	if sess.ID == "" || sess.New {
		sess.ID = uuid.NewString()
	}

	data, err := json.Marshal(record{Values: sess.Values, Permanent: sess.Permanent})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := s.opts.TTL
	if sess.Permanent {
		ttl = s.opts.PermanentTTL
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyPrefix+sess.ID, data, ttl)
	if oldID != "" && oldID != sess.ID {
		pipe.Del(ctx, keyPrefix+oldID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	cookie := &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if sess.Permanent {
		cookie.MaxAge = int(ttl / time.Second)
		cookie.Expires = time.Now().Add(ttl)
	}
	http.SetCookie(w, cookie)

	sess.New = false
	return nil
}

// Destroy removes sess from Redis and expires the cookie.
func (s *RedisStore) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess.ID != "" {
		if err := s.rdb.Del(ctx, keyPrefix+sess.ID).Err(); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	sess.ID = ""
	sess.Values = make(map[string]any)
	sess.New = false
	sess.Permanent = false
	return nil
}
