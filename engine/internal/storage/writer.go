package storage

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"sitemirror/engine/models"
)

// Save streams the response body into the file materialized for u under root,
// creating parent directories as needed. The body is copied chunk-wise, never
// buffered in full; cancellation of the request context aborts the copy and
// leaves the partial file behind. Returns the path written.
func Save(u *url.URL, resp *http.Response, root string) (string, error) {
	path := OutputPath(root, u, resp.Header.Get("Content-Type"))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrOutputDirCreation, filepath.Dir(path), err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrFileWriteFailed, path, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("%w: %s: %v", models.ErrFileWriteFailed, path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrFileWriteFailed, path, err)
	}
	return path, nil
}
