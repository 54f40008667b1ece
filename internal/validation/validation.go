// Package validation checks user-supplied paths and file contents before the
// converter, the batch runner or the API touch them.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

// MaxPathLength bounds every user-supplied path.
const MaxPathLength = 4096

// Path and content errors.
var (
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrNotXML           = errors.New("input is not XML")
)

// ValidatePath rejects empty and overlong paths and paths holding NUL or
// other control characters.
func ValidatePath(path string) error {
	switch {
	case path == "":
		return ErrEmptyPath
	case len(path) > MaxPathLength:
		return ErrPathTooLong
	}
	if i := strings.IndexFunc(path, unicode.IsControl); i >= 0 {
		return fmt.Errorf("%w: %q at byte %d", ErrInvalidCharacter, path[i], i)
	}
	return nil
}

// SanitizePath cleans a path supplied relative to some base directory and
// returns it still relative. Absolute paths and paths that climb out of the
// base are rejected.
func SanitizePath(userPath string) (string, error) {
	if err := ValidatePath(userPath); err != nil {
		return "", err
	}
	clean := filepath.Clean(userPath)
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, userPath)
	}
	return clean, nil
}

// FileType is the detected kind of an input file.
type FileType string

const (
	FileTypeXML     FileType = "xml"
	FileTypeXZ      FileType = "xz"
	FileTypeGzip    FileType = "gzip"
	FileTypeJSON    FileType = "json"
	FileTypeSQLite  FileType = "sqlite"
	FileTypeUnknown FileType = "unknown"
)

// magicBytes defines magic byte signatures for file type detection.
var magicBytes = []struct {
	fileType FileType
	magic    []byte
}{
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{FileTypeGzip, []byte{0x1f, 0x8b}},
	{FileTypeSQLite, []byte("SQLite format 3\x00")},
}

// utf8BOM is skipped before looking for the first markup byte.
var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// DetectFileType classifies buf, the first bytes of a file.
func DetectFileType(buf []byte) FileType {
	for _, sig := range magicBytes {
		if bytes.HasPrefix(buf, sig.magic) {
			return sig.fileType
		}
	}

	text := bytes.TrimLeft(bytes.TrimPrefix(buf, utf8BOM), " \t\r\n")
	switch {
	case len(text) == 0:
		return FileTypeUnknown
	case text[0] == '<':
		return FileTypeXML
	case text[0] == '{' || text[0] == '[':
		return FileTypeJSON
	}
	return FileTypeUnknown
}

// PeekFileType reads up to 512 bytes from r to classify it and returns a
// reader that still yields the whole stream.
func PeekFileType(r io.Reader) (FileType, io.Reader, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, nil, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]
	return DetectFileType(buf), io.MultiReader(bytes.NewReader(buf), r), nil
}

// ValidateInput checks that r holds TEI input: plain XML, or XML behind xz
// or gzip compression. It returns the detected type and a reader positioned
// at the start of the stream.
func ValidateInput(r io.Reader, filename string) (FileType, io.Reader, error) {
	ft, rest, err := PeekFileType(r)
	if err != nil {
		return FileTypeUnknown, nil, err
	}
	switch ft {
	case FileTypeXML, FileTypeXZ, FileTypeGzip:
		return ft, rest, nil
	}
	return ft, nil, fmt.Errorf("%w: %s looks like %s", ErrNotXML, filepath.Base(filename), ft)
}
