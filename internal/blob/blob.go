// Package blob stores uploaded document files and their thumbnails.
// Objects are addressed by a flat name (a single path segment); the
// portal records that name in the documents table.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrExists is returned by Put when the name is already taken.
var ErrExists = errors.New("blob already exists")

// Store is implemented by the local directory and S3 backends.
type Store interface {
	// Put writes r under name. It never overwrites an existing object.
	Put(ctx context.Context, name string, r io.Reader, contentType string) error
	// Open returns apperr.ErrNotFound when no object has that name.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
}

// ValidName reports whether name is a single, non-hidden path segment.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}
