package models

import "errors"

// ErrUserNotFound is returned by user stores when no record matches.
var ErrUserNotFound = errors.New("user not found")

// User represents a row in the app.enduser table.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"` // stored hash, never serialize
}

// LoginRequest is the JSON body for POST /login. A missing field decodes to nil.
type LoginRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}
