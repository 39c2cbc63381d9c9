// Package store publishes signed artifacts. Names are written once: a
// second create of the same name fails with ErrExists instead of replacing
// the first artifact.
package store

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrExists   = errors.New("artifact already exists")
	ErrNotFound = errors.New("artifact not found")
	ErrBadName  = errors.New("invalid artifact name")
)

// Store keeps artifacts by name.
type Store interface {
	// Create stores data under name unless the name is taken.
	Create(ctx context.Context, name string, data []byte) error
	// Open returns the artifact and its size.
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
}

// Backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	// Dir is the directory of the local backend.
	Dir string

	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for a MinIO deployment.
	Endpoint string
}

// New returns the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocal(cfg.Dir)
	case BackendS3:
		return NewS3(ctx, cfg)
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// ValidName rejects names that are empty or could escape the store.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") || strings.HasPrefix(name, ".") {
		return errors.Wrapf(ErrBadName, "%q", name)
	}
	return nil
}
