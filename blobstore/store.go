package blobstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Store is the filesystem-backed blob store holding uploaded image bytes
// and cached face-detection documents. Blobs live directly under the base
// directory and are addressed by bare filename.
type Store struct {
	basePath string
}

// New creates the base directory if needed and returns a store rooted there.
func New(basePath string) (*Store, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid blob store path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob store directory '%s': %w", absBasePath, err)
	}

	log.Printf("blobstore: initialized at %s", absBasePath)
	return &Store{basePath: absBasePath}, nil
}

// FullPath resolves a blob name to an absolute path, rejecting anything
// that would escape the base directory.
func (s *Store) FullPath(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.ContainsAny(cleaned, `/\`) {
		return "", fmt.Errorf("invalid blob name '%s'", name)
	}

	fullPath := filepath.Join(s.basePath, cleaned)
	if !strings.HasPrefix(fullPath, s.basePath) {
		return "", fmt.Errorf("invalid blob name: access denied for '%s'", name)
	}
	return fullPath, nil
}

// Exists reports whether a blob with the given name is present.
func (s *Store) Exists(name string) bool {
	fullPath, err := s.FullPath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// Save writes data to a new blob. A partially written file is removed on
// failure so the store never keeps truncated blobs.
func (s *Store) Save(name string, data io.Reader) error {
	fullPath, err := s.FullPath(name)
	if err != nil {
		return err
	}

	outFile, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create blob '%s': %w", name, err)
	}

	if _, err := io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(fullPath)
		return fmt.Errorf("failed to write blob '%s': %w", name, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to finalize blob '%s': %w", name, err)
	}
	return nil
}

// Open returns the blob file for reading along with its FileInfo.
// os.ErrNotExist is preserved in the error chain for missing blobs.
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	fullPath, err := s.FullPath(name)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open blob '%s': %w", name, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat blob '%s': %w", name, err)
	}
	return file, info, nil
}

// Delete removes a blob. A missing blob is not an error; the caller only
// cares that the bytes are gone.
func (s *Store) Delete(name string) error {
	fullPath, err := s.FullPath(name)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob '%s': %w", name, err)
	}
	if err == nil {
		log.Printf("blobstore: deleted %s", name)
	}
	return nil
}

// SaveJSON stores a raw JSON payload pretty-printed, used for the cached
// face-detection response documents.
func (s *Store) SaveJSON(name string, raw json.RawMessage) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "    "); err != nil {
		return fmt.Errorf("failed to format JSON document '%s': %w", name, err)
	}
	pretty.WriteByte('\n')
	return s.Save(name, &pretty)
}
