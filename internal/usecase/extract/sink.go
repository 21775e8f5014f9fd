package extract

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalSink writes images under a directory served at baseURL.
type LocalSink struct {
	dir     string
	baseURL string
}

// NewLocalSink creates a sink rooted at dir.
func NewLocalSink(dir, baseURL string) *LocalSink {
	return &LocalSink{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Put stores data at key (a slash-separated relative path) and returns its URL.
func (s *LocalSink) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("image key %q escapes the image directory", key)
	}

	path := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", key, err)
	}

	u, err := url.JoinPath(s.baseURL, strings.Split(filepath.ToSlash(clean), "/")...)
	if err != nil {
		return "", fmt.Errorf("image url: %w", err)
	}
	return u, nil
}
