package auth

import "errors"

// Login failure kinds.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// the response never reveals which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMissingPasswordHash indicates the account has no stored password
	// hash, which is a configuration problem, not a wrong password.
	ErrMissingPasswordHash = errors.New("password credential not configured")
	// ErrUserNotFound indicates a session referenced a user that no longer exists.
	ErrUserNotFound = errors.New("user not found")
)
