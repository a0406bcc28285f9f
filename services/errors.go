package services

import "errors"

var (
	// ErrNotFound reports that the requested post, attachment or member does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation wraps a missing or malformed input field.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateUsername is returned by Join when the username is taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrPasswordMismatch means the supplied current password does not match the stored hash.
	ErrPasswordMismatch = errors.New("password mismatch")
	// ErrBadCredentials is returned by Authenticate for an unknown user or a wrong password alike.
	ErrBadCredentials = errors.New("invalid username or password")
	// ErrStorage wraps filesystem failures while saving attachments or avatars.
	ErrStorage = errors.New("file storage failed")
)
