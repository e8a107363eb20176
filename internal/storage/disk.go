package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"roomhub/pkg/interfaces"
)

const fallbackExtension = ".png"

// DiskStore writes each upload to <dir>/<id><ext>
// FUNCTIONAL DISCOVERY: The extension is sniffed from content; unknown content
// keeps the historical .png suffix so existing image links stay valid
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("image directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func extensionFor(data []byte) string {
	mtype := mimetype.Detect(data)
	if mtype.Extension() == "" || mtype.Is("application/octet-stream") {
		return fallbackExtension
	}
	return mtype.Extension()
}

func (s *DiskStore) Store(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+extensionFor(data))

	// TECHNICAL DISCOVERY: Write then rename so a reader never sees a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize image: %w", err)
	}

	log.Debug().Str("module", "storage").Str("image_id", id).Str("path", path).Msg("Image written")
	return id, nil
}

// Path returns the file holding id, or ErrImageNotFound
func (s *DiskStore) Path(id string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, id+".*"))
	if err != nil {
		return "", err
	}
	for _, match := range matches {
		if filepath.Ext(match) != ".tmp" {
			return match, nil
		}
	}
	return "", interfaces.ErrImageNotFound
}

func (s *DiskStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("image directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("image path %s is not a directory", s.dir)
	}

	probe, err := os.CreateTemp(s.dir, ".health-*")
	if err != nil {
		return fmt.Errorf("image directory not writable: %w", err)
	}
	_ = probe.Close()
	return os.Remove(probe.Name())
}

func (s *DiskStore) Close() error {
	return nil
}
