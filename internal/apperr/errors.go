// Package apperr holds the error kinds shared by the store, domain and
// HTTP layers. Callers wrap them with fmt.Errorf("...: %w") and test
// with errors.Is.
package apperr

import "errors"

var ErrUnauthenticated = errors.New("unauthenticated")
var ErrForbidden = errors.New("forbidden")

// ErrInvalidCredentials covers both an unknown username and a wrong
// password. The two cases must stay indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

var ErrDuplicateUsername = errors.New("username already exists")
var ErrAlreadyAssigned = errors.New("staff already assigned to project")

var ErrInvalidFileType = errors.New("invalid file type")
var ErrInvalidInput = errors.New("invalid input")

var ErrNotFound = errors.New("not found")

// ErrConstraintViolation is a storage-layer rejection that has no more
// specific kind, e.g. a foreign key pointing at a missing row.
var ErrConstraintViolation = errors.New("constraint violation")

var ErrUploadFailed = errors.New("upload failed")
