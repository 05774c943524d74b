package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Disk writes objects under a media directory. The server exposes that
// directory at publicBase (e.g. "/media"), so PublicURL is a path join.
type Disk struct {
	dir        string
	publicBase string
}

func NewDisk(dir, publicBase string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	return &Disk{dir: dir, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Dir returns the root the server should serve at the public base path.
func (d *Disk) Dir() string { return d.dir }

func (d *Disk) Upload(_ context.Context, key, _ string, data []byte) error {
	path, err := d.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

func (d *Disk) PublicURL(key string) string {
	return d.publicBase + "/" + strings.TrimLeft(key, "/")
}

func (d *Disk) Close() error { return nil }

func (d *Disk) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(d.dir, clean), nil
}
