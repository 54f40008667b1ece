// Package archive reads TEI documents bundled in tar archives. Plain,
// gzip-compressed and xz-compressed tar files are supported.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/teijson/core/errors"
)

// Archive extensions, most specific first.
var (
	xzExts   = []string{".tar.xz", ".txz"}
	gzipExts = []string{".tar.gz", ".tgz"}
	tarExts  = []string{".tar"}
)

// IsArchive reports whether path names a tar archive this package can read.
func IsArchive(path string) bool {
	return kind(path) != ""
}

func kind(path string) string {
	lower := strings.ToLower(path)
	for _, group := range []struct {
		name string
		exts []string
	}{{"xz", xzExts}, {"gzip", gzipExts}, {"tar", tarExts}} {
		for _, ext := range group.exts {
			if strings.HasSuffix(lower, ext) {
				return group.name
			}
		}
	}
	return ""
}

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader opens the archive at path, choosing the decompressor from the
// file extension.
func NewReader(path string) (*Reader, error) {
	k := kind(path)
	if k == "" {
		return nil, errors.NewUnsupported("archive format", path)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("archive", path)
		}
		return nil, errors.NewIO("open", path, err)
	}

	var reader io.Reader = f
	var decompressor io.Closer

	switch k {
	case "xz":
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.NewIO("decompress", path, err)
		}
		reader = xzr
	case "gzip":
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.NewIO("decompress", path, err)
		}
		reader = gzr
		decompressor = gzr
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
	var first error
	if r.decompressor != nil {
		first = r.decompressor.Close()
	}
	if err := r.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Visitor is called for each regular file in the archive.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks the regular files of the archive in stored order. Directories,
// links and other special entries are skipped.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewIO("read", r.file.Name(), err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// Walk opens the archive at path and iterates its regular files.
func Walk(path string, visitor Visitor) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

// Members lists the names of the TEI members of the archive at path.
func Members(path string) ([]string, error) {
	var names []string
	err := Walk(path, func(header *tar.Header, _ io.Reader) (bool, error) {
		if IsTEIMember(header.Name) {
			names = append(names, header.Name)
		}
		return false, nil
	})
	return names, err
}

// IsTEIMember reports whether an archive member name looks like a TEI file.
// Hidden files such as AppleDouble "._" entries are ignored.
func IsTEIMember(name string) bool {
	base := name
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if base == "" || strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(base), ".xml")
}
