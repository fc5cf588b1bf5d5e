// Package document is the port to the attachment store. Attachments are
// opaque blobs; the workflow only toggles their public flag.
package document

import "context"

// Store toggles attachment visibility.
type Store interface {
	// SetPublic marks the object readable by every authenticated user.
	// A missing key returns shared.ErrNotFound.
	SetPublic(ctx context.Context, key string, public bool) error
	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) (bool, error)
}
