// Package common defines shared constants and sentinel errors used across
// client and server layers of chatline. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")
	ErrStore    = errors.New("storage error")

	// Account / auth errors. These are always reported to the client and
	// are never fatal for the server.
	ErrUsernameTaken    = errors.New("username already taken")
	ErrNoSuchAccount    = errors.New("no such account")
	ErrWrongPassword    = errors.New("wrong password")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Message errors.
	ErrNoSuchRecipient = errors.New("no such recipient")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotAuthorized   = errors.New("not authorized")

	// Validation and generic service errors.
	ErrValidation = errors.New("validation error")
	ErrInternal   = errors.New("internal error")
)
