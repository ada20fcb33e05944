// Package objectstore is the gateway to the bucket that holds uploaded media.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/familiar-chat/mediagate/pkg/config"
)

var ErrNotFound = errors.New("object not found")

type PutOptions struct {
	ContentType string
	Public      bool
}

// Store writes, checks and removes objects by path. Put returns the object's
// stable public URL.
type Store interface {
	Put(ctx context.Context, path string, body io.Reader, opts PutOptions) (string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Closer is implemented by backends that hold SDK clients.
type Closer interface {
	Close() error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg *config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "gcs":
		return NewGCS(ctx, cfg)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func publicURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
