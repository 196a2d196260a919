package entity

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the requested row does not exist. Repositories
// wrap it with the entity kind and id; callers test for it with errors.Is
// to tell a lost race from a real failure.
var ErrNotFound = errors.New("entity not found")

// ValidationError reports a single field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
