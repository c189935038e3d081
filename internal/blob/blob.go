// Package blob is the pipeline's view of the object store: an opaque
// key-value store of text documents keyed by namespace/userKey/fileName.
//
// Append is read-modify-write, not atomic, and there is no compare-and-swap.
// Each key has exactly one writer role in this design, so lost updates under
// concurrent writers to the same key are out of scope.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read for a key that does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store is implemented by the filesystem store and the in-memory test store.
type Store interface {
	Exists(ctx context.Context, userKey, name string) (bool, error)
	Read(ctx context.Context, userKey, name string) (string, error)
	Write(ctx context.Context, userKey, name, content string) error
	Append(ctx context.Context, userKey, name, content string) error
	List(ctx context.Context, userKey string) ([]string, error)
	Delete(ctx context.Context, userKey, name string) error
}

// AppendReadModifyWrite implements Append in terms of Read and Write, the
// way an S3-style store has to.
func AppendReadModifyWrite(ctx context.Context, s Store, userKey, name, content string) error {
	existing, err := s.Read(ctx, userKey, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.Write(ctx, userKey, name, existing+content)
}
