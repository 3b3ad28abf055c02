package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/meal-photo-api/pkg/storage"
)

// Local stores uploads on disk and serves them from a public base URL.
// Used when Cloudinary is not configured (development and air-gapped setups).
type Local struct {
	files         *storage.LocalStorage
	publicBaseURL string
}

// NewLocal wraps a LocalStorage handle as a blob store.
func NewLocal(files *storage.LocalStorage, publicBaseURL string) *Local {
	return &Local{files: files, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Upload writes the image under a generated name and returns its public URL.
func (l *Local) Upload(ctx context.Context, r io.Reader, filename string) (*UploadResult, error) {
	ext := path.Ext(filename)
	name := uuid.NewString() + ext

	if _, err := l.files.SaveStream(name, r); err != nil {
		return nil, fmt.Errorf("store upload locally: %w", err)
	}

	return &UploadResult{
		URL:      fmt.Sprintf("%s/%s", l.publicBaseURL, name),
		PublicID: name,
	}, nil
}
