// Package selfies stores enrollment selfie images in a bucket directory.
package selfies

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrBucketNotFound means the configured bucket directory does not exist.
	ErrBucketNotFound = errors.New("selfie storage bucket does not exist")
	// ErrNotConfigured means no bucket was configured at all.
	ErrNotConfigured = errors.New("selfie storage not configured")
)

// Store persists selfie bytes and returns an opaque reference.
type Store interface {
	Put(ctx context.Context, studentID string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// DirStore keeps selfies as files under a root directory. The directory must
// exist; it is never created implicitly so a wrong path surfaces as a
// configuration error.
type DirStore struct {
	root string
	now  func() time.Time
}

// NewDirStore returns a store rooted at dir, or nil when dir is empty.
func NewDirStore(dir string) *DirStore {
	if dir == "" {
		return nil
	}
	return &DirStore{root: dir, now: time.Now}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Put writes the selfie as <student>_<unix>_<id>.jpg and returns the file name.
func (s *DirStore) Put(ctx context.Context, studentID string, data []byte) (string, error) {
	if s == nil {
		return "", ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(s.root)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return "", fmt.Errorf("%w: %s", ErrBucketNotFound, s.root)
	}
	if err != nil {
		return "", fmt.Errorf("stat selfie bucket: %w", err)
	}

	safe := unsafeChars.ReplaceAllString(studentID, "_")
	name := fmt.Sprintf("%s_%d_%s.jpg", safe, s.now().Unix(), uuid.New().String()[:8])
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o600); err != nil {
		return "", fmt.Errorf("write selfie: %w", err)
	}
	return name, nil
}

// Path resolves a reference returned by Put.
func (s *DirStore) Path(ref string) string {
	return filepath.Join(s.root, filepath.Base(ref))
}

// Delete removes a selfie written by Put. A missing file is not an error.
func (s *DirStore) Delete(ctx context.Context, ref string) error {
	if s == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.Path(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete selfie: %w", err)
	}
	return nil
}
