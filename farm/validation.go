package farm

import (
	"strings"

	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
)

// FieldError is a validation failure on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors collects validation failures. It unwraps to ErrValidation.
type FieldErrors []FieldError

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for _, e := range f {
		if e.Field == "" {
			parts = append(parts, e.Message)
			continue
		}
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (f FieldErrors) Unwrap() error {
	return ierrors.ErrValidation
}

type checker struct {
	errs FieldErrors
}

func (c *checker) text(field, value string) {
	if strings.TrimSpace(value) == "" {
		c.errs = append(c.errs, FieldError{Field: field, Message: "es obligatorio"})
	}
}

func (c *checker) id(field string, value int) {
	if value <= 0 {
		c.errs = append(c.errs, FieldError{Field: field, Message: "es obligatorio"})
	}
}

func (c *checker) check(ok bool, field, message string) {
	if !ok {
		c.errs = append(c.errs, FieldError{Field: field, Message: message})
	}
}

func (c *checker) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs
}
