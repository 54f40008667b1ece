package api

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/teijson/core/cas"
	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/internal/logging"
	"github.com/FocuswithJustin/teijson/internal/validation"
)

// ResolveDir maps a client-supplied directory onto baseDir. Absolute paths
// and paths that climb out of baseDir are rejected and logged.
func ResolveDir(baseDir, userPath, field string) (string, error) {
	safe, err := validation.SanitizePath(userPath)
	if err != nil {
		logging.SecurityEvent("path_rejected", "api",
			"field", field,
			"path", userPath,
			"reason", err.Error())
		return "", &errors.ValidationError{Field: field, Value: userPath, Message: err.Error()}
	}
	return filepath.Join(baseDir, safe), nil
}

// ValidateJobID checks that id is a canonical UUID as issued by the job store.
func ValidateJobID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return errors.NewValidation("id", fmt.Sprintf("%q is not a job id", id))
	}
	return nil
}

// ValidateResultHash checks that hash is a lowercase hex digest.
func ValidateResultHash(hash string) error {
	if !cas.ValidHash(hash) {
		return errors.NewValidation("hash", "expected 64 lowercase hex characters")
	}
	return nil
}
