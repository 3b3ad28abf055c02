package blob

import (
	"context"
	"io"
)

// Store uploads an image and returns its publicly reachable URL.
type Store interface {
	Upload(ctx context.Context, r io.Reader, filename string) (*UploadResult, error)
}

// UploadResult describes a stored image.
type UploadResult struct {
	URL      string
	PublicID string
}
