package cas

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/teijson/core/errors"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// Store keeps blobs under <root>/blobs/sha256/<first2>/<sha256> with BLAKE3
// pointers under <root>/blobs/blake3/<first2>/<blake3>.json.
type Store struct {
	root string
}

// blake3Pointer is the content of a BLAKE3 pointer file.
type blake3Pointer struct {
	SHA256 string `json:"sha256"`
}

// NewStore creates a store at root, creating the directory layout if needed.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{"sha256", "blake3"} {
		if err := os.MkdirAll(filepath.Join(root, "blobs", dir), 0755); err != nil {
			return nil, errors.NewIO("create", root, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Put stores data and returns its hashes. Storing the same bytes twice is a
// no-op that returns the same hashes.
func (s *Store) Put(data []byte) (HashResult, error) {
	sum := Sum(data)

	blobPath := s.blobPath(sum.SHA256)
	if _, err := os.Stat(blobPath); err != nil {
		if err := writeAtomic(blobPath, data, ".blob-*"); err != nil {
			return HashResult{}, fmt.Errorf("storing blob: %w", err)
		}
	}

	pointerPath := s.pointerPath(sum.BLAKE3)
	if _, err := os.Stat(pointerPath); err != nil {
		ptr, err := json.Marshal(blake3Pointer{SHA256: sum.SHA256})
		if err != nil {
			return HashResult{}, fmt.Errorf("failed to marshal pointer: %w", err)
		}
		if err := writeAtomic(pointerPath, ptr, ".pointer-*"); err != nil {
			return HashResult{}, fmt.Errorf("storing BLAKE3 pointer: %w", err)
		}
	}

	return sum, nil
}

// Get returns the blob addressed by hash, which may be either its SHA-256 or
// its BLAKE3 digest.
func (s *Store) Get(hash string) ([]byte, error) {
	if !ValidHash(hash) {
		return nil, &errors.ValidationError{Field: "hash", Value: hash, Message: "not a 64 character lowercase hex digest"}
	}

	data, err := os.ReadFile(s.blobPath(hash))
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.NewIO("read", s.blobPath(hash), err)
	}

	sha, err := s.LookupBlake3(hash)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(s.blobPath(sha))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("result", hash)
		}
		return nil, errors.NewIO("read", s.blobPath(sha), err)
	}
	return data, nil
}

// Has reports whether a blob with the given SHA-256 hash exists.
func (s *Store) Has(hash string) bool {
	if !ValidHash(hash) {
		return false
	}
	_, err := os.Stat(s.blobPath(hash))
	return err == nil
}

// LookupBlake3 resolves a BLAKE3 hash to the SHA-256 hash of the same blob.
func (s *Store) LookupBlake3(blake3Hash string) (string, error) {
	if !ValidHash(blake3Hash) {
		return "", &errors.ValidationError{Field: "hash", Value: blake3Hash, Message: "not a 64 character lowercase hex digest"}
	}

	path := s.pointerPath(blake3Hash)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFound("result", blake3Hash)
		}
		return "", errors.NewIO("read", path, err)
	}

	var ptr blake3Pointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return "", &errors.ParseError{Format: "JSON", Path: path, Message: err.Error(), Err: err}
	}
	return ptr.SHA256, nil
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.root, "blobs", "sha256", hash[:2], hash)
}

func (s *Store) pointerPath(hash string) string {
	return filepath.Join(s.root, "blobs", "blake3", hash[:2], hash+".json")
}

// writeAtomic writes data to a temp file next to path and renames it into
// place.
func writeAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create prefix directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return fmt.Errorf("failed to write: %w", err)
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}
