package models

import "time"

// AuthEventType names an entry in the login audit trail.
type AuthEventType string

const (
	EventLoginSucceeded   AuthEventType = "login_succeeded"
	EventLoginFailed      AuthEventType = "login_failed"
	EventPasswordRehashed AuthEventType = "password_rehashed"
	EventLogout           AuthEventType = "logout"
)

// AuthEvent is a single audit record stored in MongoDB.
type AuthEvent struct {
	Type      AuthEventType `json:"type"                bson:"type"`
	Username  string        `json:"username,omitempty"  bson:"username,omitempty"`
	UserID    int64         `json:"user_id,omitempty"   bson:"user_id,omitempty"`
	Scheme    string        `json:"scheme,omitempty"    bson:"scheme,omitempty"`
	RequestID string        `json:"request_id,omitempty" bson:"request_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"          bson:"created_at"`
}
