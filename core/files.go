package core

import (
	"context"
	"io"
)

// FileStorage saves raw artifact bytes and returns a stable URL.
// Implementations: S3-compatible blob store (services/storage), fake for
// tests.
type FileStorage interface {
	Save(ctx context.Context, key, contentType string, content io.Reader) (string, error)
}
