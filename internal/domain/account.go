package domain

import "errors"

// Account is an authenticated session bound to one cloud identity. It is
// created by a directory login and never mutated afterwards.
type Account struct {
	Identity string
	ID       string
	Token    string
	// SigningKey signs the session's requests on directories that
	// authenticate each call. Empty elsewhere.
	SigningKey string
}

var (
	// ErrAuth marks credential rejection, an unreachable login endpoint or a
	// session the remote service no longer accepts.
	ErrAuth = errors.New("authentication failed")
	// ErrFetch marks a failed device listing.
	ErrFetch = errors.New("device listing failed")
	// ErrToggle marks a failed toggle call. The device's resulting state is
	// unknown after it.
	ErrToggle = errors.New("toggle failed")
)
