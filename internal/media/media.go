// Package media stores listing images and returns their public URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// ErrUnavailable is returned when no media store is configured.
var ErrUnavailable = errors.New("media store not configured")

// Uploader stores one file under name and returns a stable URL for it.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// Disabled is the Uploader used when no media store is configured.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader) (string, error) {
	return "", ErrUnavailable
}

// UploadFiles uploads each multipart file in order and returns the URLs.
// Names are prefix followed by the file's index and its base name without
// extension.
func UploadFiles(ctx context.Context, u Uploader, prefix string, files []*multipart.FileHeader) ([]string, error) {
	urls := make([]string, 0, len(files))
	for i, fh := range files {
		url, err := uploadOne(ctx, u, fmt.Sprintf("%s_%d_%s", prefix, i, baseName(fh.Filename)), fh)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func uploadOne(ctx context.Context, u Uploader, name string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer f.Close()

	url, err := u.Upload(ctx, name, f)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", fh.Filename, err)
	}
	return url, nil
}

func baseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
