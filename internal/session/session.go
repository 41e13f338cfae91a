// Package session implements server-side cookie sessions stored in Redis.
//
// A Session is a small key/value mapping plus two lifetime flags. New asks
// the store to issue a fresh id on the next Save, Permanent switches from a
// browser-session cookie to a long-lived one.
package session

import (
	"encoding/json"
	"math"
)

// UserIDKey is the session key holding the authenticated user's id.
const UserIDKey = "userid"

// Session is the per-request session state. It is not safe for concurrent use.
type Session struct {
	ID        string
	Values    map[string]any
	New       bool
	Permanent bool
}

// NewSession returns an empty session that has never been saved.
func NewSession() *Session {
	return &Session{Values: make(map[string]any)}
}

// Get returns the value for key. Absent keys and nil values both report false.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.Values[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (s *Session) Set(key string, value any) {
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	s.Values[key] = value
}

func (s *Session) Delete(key string) {
	delete(s.Values, key)
}

// UserID returns the stored user id, whether it was set in this request or
// decoded from Redis.
func (s *Session) UserID() (int64, bool) {
	v, ok := s.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	switch id := v.(type) {
	case int64:
		return id, true
	case int:
		return int64(id), true
	case json.Number:
		n, err := id.Int64()
		return n, err == nil
	case float64:
		if id != math.Trunc(id) {
			return 0, false
		}
		return int64(id), true
	default:
		return 0, false
	}
}
