// Package blob stores pattern images in named buckets: Supabase Storage in production and a local
// filesystem for development and tests.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrBadObject  = errors.New("invalid object name")
	ErrBadSigning = errors.New("invalid or expired signature")
)

// Store is a bucketed object store.
type Store interface {
	// SignedURL returns a URL that grants read access to an object for ttl.
	SignedURL(ctx context.Context, bucket, object string, ttl time.Duration) (string, error)
	Read(ctx context.Context, bucket, object string) ([]byte, error)
	Put(ctx context.Context, bucket, object, contentType string, data []byte) error
	// Remove deletes objects. Missing objects are not an error.
	Remove(ctx context.Context, bucket string, objects ...string) error
	Exists(ctx context.Context, bucket, object string) (bool, error)
	PublicURL(bucket, object string) string
}

// clean validates a bucket relative object name and returns its canonical form.
func clean(bucket, object string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", ErrBadObject, bucket)
	}
	object = strings.TrimPrefix(object, "/")
	if object == "" {
		return "", fmt.Errorf("%w: empty name", ErrBadObject)
	}
	for _, seg := range strings.Split(object, "/") {
		if seg == ".." || seg == "." {
			return "", fmt.Errorf("%w: %q", ErrBadObject, object)
		}
	}
	return path.Clean(object), nil
}

// ObjectFromURL extracts the object name that follows "/<bucket>/" in a stored public URL.
func ObjectFromURL(rawURL, bucket string) (string, bool) {
	_, object, ok := strings.Cut(rawURL, "/"+bucket+"/")
	if !ok || object == "" {
		return "", false
	}
	object, _, _ = strings.Cut(object, "?")
	return object, true
}
