package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "with ID",
			err:      &NotFoundError{Resource: "job", ID: "0b1c"},
			wantMsg:  "job not found: 0b1c",
			wantBase: ErrNotFound,
		},
		{
			name:     "without ID",
			err:      &NotFoundError{Resource: "result"},
			wantMsg:  "result not found",
			wantBase: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if got := tt.err.Unwrap(); !errors.Is(got, tt.wantBase) {
				t.Errorf("Unwrap() = %v, want %v", got, tt.wantBase)
			}
		})
	}

	t.Run("with underlying error", func(t *testing.T) {
		underlyingErr := fmt.Errorf("stat failed")
		err := &NotFoundError{Resource: "file", ID: "paper.tei.xml", Err: underlyingErr}
		if got := err.Unwrap(); got != underlyingErr {
			t.Errorf("Unwrap() = %v, want %v", got, underlyingErr)
		}
	})
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ValidationError
		wantMsg string
	}{
		{
			name:    "with field",
			err:     &ValidationError{Field: "tei-file", Message: "not a regular file"},
			wantMsg: "validation failed for tei-file: not a regular file",
		},
		{
			name:    "without field",
			err:     &ValidationError{Message: "no input given"},
			wantMsg: "validation failed: no input given",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrInvalidInput) {
				t.Errorf("errors.Is(%v, ErrInvalidInput) = false", tt.err)
			}
		})
	}
}

func TestIOError(t *testing.T) {
	base := fmt.Errorf("permission denied")
	tests := []struct {
		name    string
		err     *IOError
		wantMsg string
	}{
		{"with path", &IOError{Operation: "write", Path: "out/a.json", Err: base}, "failed to write out/a.json: permission denied"},
		{"without path", &IOError{Operation: "read", Err: base}, "failed to read: permission denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, base) {
				t.Error("IOError should unwrap to its cause")
			}
		})
	}
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ParseError
		wantMsg string
	}{
		{"path and line", &ParseError{Format: "XML", Path: "a.xml", Line: 12, Message: "unexpected EOF"}, "failed to parse XML at a.xml:12: unexpected EOF"},
		{"path only", &ParseError{Format: "XML", Path: "a.xml", Message: "bad"}, "failed to parse XML at a.xml: bad"},
		{"line only", &ParseError{Format: "XML", Line: 3, Message: "bad"}, "failed to parse XML at line 3: bad"},
		{"neither", &ParseError{Format: "XPath", Message: "bad"}, "failed to parse XPath: bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrInvalidInput) {
				t.Error("ParseError should match ErrInvalidInput")
			}
		})
	}

	t.Run("with underlying error", func(t *testing.T) {
		underlyingErr := fmt.Errorf("xml: unexpected end element")
		err := &ParseError{Format: "XML", Message: "bad", Err: underlyingErr}
		if !errors.Is(err, underlyingErr) {
			t.Error("ParseError should unwrap to its cause")
		}
		if !errors.Is(err, ErrInvalidInput) {
			t.Error("ParseError with cause should still match ErrInvalidInput")
		}
	})
}

func TestUnsupportedError(t *testing.T) {
	err := &UnsupportedError{Feature: "input", Reason: "root element is not TEI"}
	if got, want := err.Error(), "unsupported input: root element is not TEI"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Error("UnsupportedError should match ErrUnsupported")
	}
	if got, want := NewUnsupported("compression", "").Error(), "unsupported compression"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestHelperFunctions(t *testing.T) {
	t.Run("NewNotFound", func(t *testing.T) {
		err := NewNotFound("job", "abc")
		if err.Resource != "job" || err.ID != "abc" {
			t.Errorf("NewNotFound() = %+v", err)
		}
	})

	t.Run("NewValidation", func(t *testing.T) {
		err := NewValidation("output", "not a directory")
		if err.Field != "output" || err.Message != "not a directory" {
			t.Errorf("NewValidation() = %+v", err)
		}
	})

	t.Run("NewIO", func(t *testing.T) {
		baseErr := fmt.Errorf("disk full")
		err := NewIO("write", "/tmp/x.json", baseErr)
		if err.Operation != "write" || err.Path != "/tmp/x.json" || err.Err != baseErr {
			t.Errorf("NewIO() = %+v", err)
		}
	})

	t.Run("NewParse", func(t *testing.T) {
		err := NewParse("XML", "a.xml", "bad")
		if err.Format != "XML" || err.Path != "a.xml" || err.Message != "bad" {
			t.Errorf("NewParse() = %+v", err)
		}
	})
}

func TestWithPath(t *testing.T) {
	pe := &ParseError{Format: "XML", Message: "bad"}
	wrapped := fmt.Errorf("convert: %w", pe)
	if got := WithPath(wrapped, "in.xml"); got != wrapped {
		t.Errorf("WithPath should return the same error value")
	}
	if pe.Path != "in.xml" {
		t.Errorf("Path = %q, want in.xml", pe.Path)
	}

	pe2 := &ParseError{Format: "XML", Path: "first.xml", Message: "bad"}
	WithPath(pe2, "second.xml")
	if pe2.Path != "first.xml" {
		t.Errorf("WithPath overwrote an existing path: %q", pe2.Path)
	}

	other := fmt.Errorf("plain")
	if got := WithPath(other, "x"); got != other {
		t.Error("WithPath should leave other errors alone")
	}
}

func TestWrap(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	wrapped := Wrap(baseErr, "context message")
	if !errors.Is(wrapped, baseErr) {
		t.Errorf("Wrap() error does not unwrap to base error")
	}
	if got, want := wrapped.Error(), "context message: base error"; got != want {
		t.Errorf("Wrap() = %q, want %q", got, want)
	}
	if got := Wrap(nil, "context"); got != nil {
		t.Errorf("Wrap(nil) = %v, want nil", got)
	}
}

func TestWrapf(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	wrapped := Wrapf(baseErr, "failed to process %s", "file.xml")
	if got, want := wrapped.Error(), "failed to process file.xml: base error"; got != want {
		t.Errorf("Wrapf() = %q, want %q", got, want)
	}
	if got := Wrapf(nil, "context %s", "test"); got != nil {
		t.Errorf("Wrapf(nil) = %v, want nil", got)
	}
}

func TestIsAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", &NotFoundError{Resource: "job", ID: "123"})
	if !Is(err, ErrNotFound) {
		t.Error("Is() failed to match NotFoundError to ErrNotFound")
	}
	var nfErr *NotFoundError
	if !As(err, &nfErr) {
		t.Fatal("As() failed to match NotFoundError")
	}
	if nfErr.ID != "123" {
		t.Errorf("As() nfErr.ID = %q, want %q", nfErr.ID, "123")
	}
}
