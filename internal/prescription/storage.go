package prescription

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/afero"
)

// FileStore keeps uploaded prescription files under opaque keys.
type FileStore struct {
	fs afero.Fs
}

func NewFileStore(fs afero.Fs) *FileStore {
	return &FileStore{fs: fs}
}

// NewDiskStore roots the store at dir on the local filesystem.
func NewDiskStore(dir string) *FileStore {
	return NewFileStore(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

func (s *FileStore) Save(key string, content []byte) error {
	if err := s.fs.MkdirAll(path.Dir(key), 0o750); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", path.Dir(key), err)
	}
	if err := afero.WriteFile(s.fs, key, content, 0o640); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Open(key string) (afero.File, error) {
	f, err := s.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: open %s: %w", key, err)
	}
	return f, nil
}

func (s *FileStore) Remove(key string) error {
	if err := s.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", key, err)
	}
	return nil
}
