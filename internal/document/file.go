package document

import (
	"fmt"
	"os"
)

// FileStore writes exported documents to a local backup file. The write is
// atomic: a temp file is synced and renamed over the target, so a crash never
// leaves a half-written backup.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

// Save writes an exported document to the backup path.
func (f *FileStore) Save(raw []byte) error {
	tmp := f.path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	if _, err := file.Write(raw); err != nil {
		file.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync backup: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace backup: %w", err)
	}
	return nil
}

// Load reads the backup file back, for importing a previously saved document.
func (f *FileStore) Load() ([]byte, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return raw, nil
}
