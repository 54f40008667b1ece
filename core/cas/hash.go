// Package cas hashes TEI inputs and converted outputs and keeps converted
// JSON in a content-addressed store.
//
// Every blob is addressed by its SHA-256 hash. A BLAKE3 pointer is kept next
// to it so that a result can also be fetched by the BLAKE3 hash recorded in
// the conversion ledger.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/teijson/core/errors"
)

// HashResult contains both SHA-256 and BLAKE3 hashes of a blob.
type HashResult struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// hexPattern matches a lowercase 256-bit hex digest (64 characters).
var hexPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ValidHash reports whether s looks like a SHA-256 or BLAKE3 hex digest.
func ValidHash(s string) bool {
	return hexPattern.MatchString(s)
}

// Hash computes the SHA-256 hash of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Blake3Hash computes the BLAKE3 hash of data.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Sum computes both hashes of data.
func Sum(data []byte) HashResult {
	return HashResult{SHA256: Hash(data), BLAKE3: Blake3Hash(data)}
}

// SumReader computes both hashes of everything read from r in one pass.
func SumReader(r io.Reader) (HashResult, error) {
	s := sha256.New()
	b := blake3.New()
	if _, err := io.Copy(io.MultiWriter(s, b), r); err != nil {
		return HashResult{}, err
	}
	return HashResult{
		SHA256: hex.EncodeToString(s.Sum(nil)),
		BLAKE3: hex.EncodeToString(b.Sum(nil)),
	}, nil
}

// SumFile hashes the file at path.
func SumFile(path string) (HashResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return HashResult{}, errors.NewIO("open", path, err)
	}
	defer f.Close()

	res, err := SumReader(f)
	if err != nil {
		return HashResult{}, errors.NewIO("read", path, err)
	}
	return res, nil
}
