package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var errTooLarge = errors.New("file exceeds the size limit")

// DiskStore keeps uploaded files under Path, one directory per category and month.
type DiskStore struct {
	Path string
}

func NewDiskStore(path string) *DiskStore {
	return &DiskStore{Path: path}
}

// Save copies at most limit bytes of r to rel under the store root. It
// returns errTooLarge, leaving nothing behind, when r holds more.
func (s *DiskStore) Save(rel string, r io.Reader, limit int64) (int64, error) {
	dst, err := s.resolve(rel)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("failed to create upload directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", rel, err)
	}

	n, err := io.Copy(out, io.LimitReader(r, limit+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = errTooLarge
	}
	if err != nil {
		os.Remove(dst)
		if errors.Is(err, errTooLarge) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return n, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (s *DiskStore) Remove(rel string) error {
	dst, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	return nil
}

// resolve maps rel into the store root, refusing paths that escape it.
func (s *DiskStore) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid upload path: %s", rel)
	}

	root, err := filepath.Abs(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	dst := filepath.Join(root, clean)
	if !strings.HasPrefix(dst, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid upload path: %s", rel)
	}
	return dst, nil
}
